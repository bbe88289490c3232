package usecase

import (
	"fmt"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

const defaultHistoryLimit = 50

// SessionService exposes the session log to the HTTP surface.
type SessionService struct {
	Sessions domain.SessionRepository
}

func NewSessionService(sessions domain.SessionRepository) *SessionService {
	return &SessionService{Sessions: sessions}
}

// History returns the oldest-first message log, capped at n (default 50).
func (s *SessionService) History(ctx domain.Context, userID, sessionID string, n int) ([]domain.Message, error) {
	if n <= 0 || n > 500 {
		n = defaultHistoryLimit
	}
	msgs, err := s.Sessions.History(ctx, userID, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("op=sessions.history: %w", err)
	}
	return msgs, nil
}
