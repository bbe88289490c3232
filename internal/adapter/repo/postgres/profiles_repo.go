package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ProfileRepo persists per-user identity and preference records.
type ProfileRepo struct{ Pool PgxPool }

// NewProfileRepo constructs a ProfileRepo with the given pool.
func NewProfileRepo(p PgxPool) *ProfileRepo { return &ProfileRepo{Pool: p} }

// Get loads the user's profile.
func (r *ProfileRepo) Get(ctx domain.Context, userID string) (domain.Profile, error) {
	tracer := otel.Tracer("repo.profiles")
	ctx, span := tracer.Start(ctx, "profiles.Get")
	defer span.End()
	q := `SELECT user_id, full_name, email, phone, location, headline, preferred_model, updated_at FROM profiles WHERE user_id=$1`
	row := r.Pool.QueryRow(ctx, q, userID)
	var p domain.Profile
	if err := row.Scan(&p.UserID, &p.FullName, &p.Email, &p.Phone, &p.Location, &p.Headline, &p.PreferredModel, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Profile{}, fmt.Errorf("op=profile.get: %w", domain.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("op=profile.get: %w", err)
	}
	return p, nil
}

// Save upserts the user's profile.
func (r *ProfileRepo) Save(ctx domain.Context, p domain.Profile) error {
	tracer := otel.Tracer("repo.profiles")
	ctx, span := tracer.Start(ctx, "profiles.Save")
	defer span.End()
	if p.UserID == "" {
		return fmt.Errorf("op=profile.save: user id empty: %w", domain.ErrInvalidArgument)
	}
	q := `INSERT INTO profiles (user_id, full_name, email, phone, location, headline, preferred_model, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (user_id)
	DO UPDATE SET full_name=EXCLUDED.full_name, email=EXCLUDED.email, phone=EXCLUDED.phone, location=EXCLUDED.location, headline=EXCLUDED.headline, preferred_model=EXCLUDED.preferred_model, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, p.UserID, p.FullName, p.Email, p.Phone, p.Location, p.Headline, p.PreferredModel, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=profile.save: %w", err)
	}
	return nil
}
