package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// MailCredentialRepo persists per-user mailer OAuth records.
type MailCredentialRepo struct{ Pool PgxPool }

// NewMailCredentialRepo constructs a MailCredentialRepo with the given pool.
func NewMailCredentialRepo(p PgxPool) *MailCredentialRepo { return &MailCredentialRepo{Pool: p} }

// Get loads the user's mail credential.
func (r *MailCredentialRepo) Get(ctx domain.Context, userID string) (domain.MailCredential, error) {
	tracer := otel.Tracer("repo.mailcreds")
	ctx, span := tracer.Start(ctx, "mailcreds.Get")
	defer span.End()
	q := `SELECT user_id, address, access_token, refresh_token, expiry, active, updated_at FROM mail_credentials WHERE user_id=$1`
	row := r.Pool.QueryRow(ctx, q, userID)
	var c domain.MailCredential
	if err := row.Scan(&c.UserID, &c.Address, &c.AccessToken, &c.RefreshToken, &c.Expiry, &c.Active, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.MailCredential{}, fmt.Errorf("op=mailcred.get: %w", domain.ErrNotFound)
		}
		return domain.MailCredential{}, fmt.Errorf("op=mailcred.get: %w", err)
	}
	return c, nil
}

// Save upserts the user's mail credential.
func (r *MailCredentialRepo) Save(ctx domain.Context, c domain.MailCredential) error {
	tracer := otel.Tracer("repo.mailcreds")
	ctx, span := tracer.Start(ctx, "mailcreds.Save")
	defer span.End()
	if c.UserID == "" {
		return fmt.Errorf("op=mailcred.save: user id empty: %w", domain.ErrInvalidArgument)
	}
	q := `INSERT INTO mail_credentials (user_id, address, access_token, refresh_token, expiry, active, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (user_id)
	DO UPDATE SET address=EXCLUDED.address, access_token=EXCLUDED.access_token, refresh_token=EXCLUDED.refresh_token, expiry=EXCLUDED.expiry, active=EXCLUDED.active, updated_at=EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, c.UserID, c.Address, c.AccessToken, c.RefreshToken, c.Expiry, c.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=mailcred.save: %w", err)
	}
	return nil
}

// Deactivate marks the credential revoked so sends stop until the user
// reconnects. Idempotent; a missing row is not an error.
func (r *MailCredentialRepo) Deactivate(ctx domain.Context, userID string) error {
	tracer := otel.Tracer("repo.mailcreds")
	ctx, span := tracer.Start(ctx, "mailcreds.Deactivate")
	defer span.End()
	q := `UPDATE mail_credentials SET active=false, updated_at=$2 WHERE user_id=$1`
	_, err := r.Pool.Exec(ctx, q, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=mailcred.deactivate: %w", err)
	}
	return nil
}
