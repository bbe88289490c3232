package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// SettingsService manages per-user preferences. It also serves as the
// router's preferred-model source, so a settings change applies to the
// very next LLM call.
type SettingsService struct {
	Profiles domain.ProfileRepository
	Pool     config.ModelPool
	Clock    func() time.Time
}

func NewSettingsService(profiles domain.ProfileRepository, pool config.ModelPool) *SettingsService {
	return &SettingsService{Profiles: profiles, Pool: pool, Clock: time.Now}
}

// PreferredModel returns the user's pinned model, or "" to follow the
// chain. It never fails: a read error just defers to the chain.
func (s *SettingsService) PreferredModel(ctx domain.Context, userID string) string {
	p, err := s.Profiles.Get(ctx, userID)
	if err != nil {
		return ""
	}
	if p.PreferredModel == "" || p.PreferredModel == "auto" {
		return ""
	}
	return p.PreferredModel
}

// Model returns the stored preference for display; "auto" when unset.
func (s *SettingsService) Model(ctx domain.Context, userID string) (string, error) {
	p, err := s.Profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return "auto", nil
	}
	if err != nil {
		return "", fmt.Errorf("op=settings.model: %w", err)
	}
	if p.PreferredModel == "" {
		return "auto", nil
	}
	return p.PreferredModel, nil
}

// SetPreferredModel validates the model against the pool and saves it.
// "auto" and "" both mean "follow the chain".
func (s *SettingsService) SetPreferredModel(ctx domain.Context, userID, model string) error {
	if _, err := s.Pool.ResolveModel(model); err != nil {
		return fmt.Errorf("op=settings.set_model model=%s: %w", model, err)
	}
	p, err := s.Profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		p = domain.Profile{UserID: userID}
	} else if err != nil {
		return fmt.Errorf("op=settings.set_model: %w", err)
	}
	if model == "auto" {
		model = ""
	}
	p.PreferredModel = model
	p.UpdatedAt = s.Clock().UTC()
	if err := s.Profiles.Save(ctx, p); err != nil {
		return fmt.Errorf("op=settings.set_model: %w", err)
	}
	return nil
}

// Profile returns the stored profile; a user with none yet gets a zero
// profile carrying their ID.
func (s *SettingsService) Profile(ctx domain.Context, userID string) (domain.Profile, error) {
	p, err := s.Profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{UserID: userID}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("op=settings.profile: %w", err)
	}
	return p, nil
}

// ProfilePatch carries optional profile updates; nil fields are left
// untouched.
type ProfilePatch struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Location *string `json:"location,omitempty"`
	Headline *string `json:"headline,omitempty"`
}

// UpdateProfile applies a patch and returns the stored result.
func (s *SettingsService) UpdateProfile(ctx domain.Context, userID string, patch ProfilePatch) (domain.Profile, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if patch.Headline != nil {
		p.Headline = *patch.Headline
	}
	p.UpdatedAt = s.Clock().UTC()
	if err := s.Profiles.Save(ctx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("op=settings.update_profile: %w", err)
	}
	return p, nil
}
