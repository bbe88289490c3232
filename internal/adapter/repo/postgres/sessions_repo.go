package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// SessionRepo persists the append-only session log. Message ids are
// ULIDs, so ordering by (created_at, id) matches insertion order even
// when two appends share a timestamp.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// Append validates and stores one message, returning its id.
func (r *SessionRepo) Append(ctx domain.Context, m domain.Message) (string, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "messages"),
	)
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("op=session.append: %w", err)
	}
	id := m.ID
	if id == "" {
		id = ulid.Make().String()
	}
	var meta []byte
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return "", fmt.Errorf("op=session.append: %w", err)
		}
		meta = b
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO messages (id, user_id, session_id, role, text, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, id, m.UserID, m.SessionID, string(m.Role), m.Text, meta, created)
	if err != nil {
		return "", fmt.Errorf("op=session.append: %w", err)
	}
	return id, nil
}

// History returns the last n messages of a session in chronological
// order (oldest first).
func (r *SessionRepo) History(ctx domain.Context, userID, sessionID string, n int) ([]domain.Message, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.History")
	defer span.End()
	if n <= 0 {
		n = 50
	}
	q := `SELECT id, user_id, session_id, role, text, metadata, created_at FROM messages
	WHERE user_id=$1 AND session_id=$2 ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, userID, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("op=session.history: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("op=session.history: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// RecentAssistantMetadata returns the newest assistant messages that
// carry metadata, newest first. Continuation logic scans these to find
// a suspended pipeline.
func (r *SessionRepo) RecentAssistantMetadata(ctx domain.Context, userID, sessionID string, n int) ([]domain.Message, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.RecentAssistantMetadata")
	defer span.End()
	if n <= 0 {
		n = 10
	}
	q := `SELECT id, user_id, session_id, role, text, metadata, created_at FROM messages
	WHERE user_id=$1 AND session_id=$2 AND role='assistant' AND metadata IS NOT NULL
	ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, userID, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("op=session.recent_meta: %w", err)
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("op=session.recent_meta: %w", err)
	}
	return msgs, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		var meta []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &role, &m.Text, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		if len(meta) > 0 {
			var md domain.MessageMetadata
			if err := json.Unmarshal(meta, &md); err != nil {
				return nil, err
			}
			m.Metadata = &md
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
