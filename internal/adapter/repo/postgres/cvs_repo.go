package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// CVRepo persists uploaded résumés and their parse state.
type CVRepo struct{ Pool PgxPool }

// NewCVRepo constructs a CVRepo with the given pool.
func NewCVRepo(p PgxPool) *CVRepo { return &CVRepo{Pool: p} }

// Create stores a new CV record and returns its id (generates one if empty).
func (r *CVRepo) Create(ctx domain.Context, cv domain.CV) (string, error) {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "cvs"),
	)
	id := cv.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := cv.Status
	if status == "" {
		status = domain.CVQueued
	}
	now := time.Now().UTC()
	q := `INSERT INTO cvs (id, user_id, filename, mime, size, path, status, error, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, cv.UserID, cv.Filename, cv.MIME, cv.Size, cv.Path, status, cv.Error, now, now)
	if err != nil {
		return "", fmt.Errorf("op=cv.create: %w", err)
	}
	return id, nil
}

// Get loads one of the user's CVs by id.
func (r *CVRepo) Get(ctx domain.Context, userID, id string) (domain.CV, error) {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.Get")
	defer span.End()
	q := `SELECT id, user_id, filename, mime, size, path, status, COALESCE(error,''), parsed, created_at, updated_at FROM cvs WHERE user_id=$1 AND id=$2`
	row := r.Pool.QueryRow(ctx, q, userID, id)
	cv, err := scanCV(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CV{}, fmt.Errorf("op=cv.get: %w", domain.ErrNotFound)
		}
		return domain.CV{}, fmt.Errorf("op=cv.get: %w", err)
	}
	return cv, nil
}

// List returns the user's CVs, newest first.
func (r *CVRepo) List(ctx domain.Context, userID string) ([]domain.CV, error) {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.List")
	defer span.End()
	q := `SELECT id, user_id, filename, mime, size, path, status, COALESCE(error,''), parsed, created_at, updated_at FROM cvs WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=cv.list: %w", err)
	}
	defer rows.Close()
	var out []domain.CV
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, fmt.Errorf("op=cv.list_scan: %w", err)
		}
		out = append(out, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=cv.list_rows: %w", err)
	}
	return out, nil
}

// Delete removes one of the user's CVs.
func (r *CVRepo) Delete(ctx domain.Context, userID, id string) error {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.Delete")
	defer span.End()
	q := `DELETE FROM cvs WHERE user_id=$1 AND id=$2`
	tag, err := r.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return fmt.Errorf("op=cv.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=cv.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// ListStuck returns CVs that entered the processing state before the
// cutoff and never left it, oldest first.
func (r *CVRepo) ListStuck(ctx domain.Context, cutoff time.Time, limit int) ([]domain.CV, error) {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.ListStuck")
	defer span.End()
	q := `SELECT id, user_id, filename, mime, size, path, status, COALESCE(error,''), parsed, created_at, updated_at FROM cvs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, domain.CVProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=cv.list_stuck: %w", err)
	}
	defer rows.Close()
	var out []domain.CV
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, fmt.Errorf("op=cv.list_stuck_scan: %w", err)
		}
		out = append(out, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=cv.list_stuck_rows: %w", err)
	}
	return out, nil
}

// SetStatus updates the parse status and error message of a CV.
func (r *CVRepo) SetStatus(ctx domain.Context, id string, status domain.CVStatus, errMsg string) error {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.SetStatus")
	defer span.End()
	q := `UPDATE cvs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, status, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=cv.set_status: %w", err)
	}
	return nil
}

// SetParsed stores the structured content and marks the CV ready.
func (r *CVRepo) SetParsed(ctx domain.Context, id string, content domain.CVContent) error {
	tracer := otel.Tracer("repo.cvs")
	ctx, span := tracer.Start(ctx, "cvs.SetParsed")
	defer span.End()
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("op=cv.set_parsed: %w", err)
	}
	q := `UPDATE cvs SET status=$2, parsed=$3, error='', updated_at=$4 WHERE id=$1`
	_, err = r.Pool.Exec(ctx, q, id, domain.CVReady, b, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=cv.set_parsed: %w", err)
	}
	return nil
}

func scanCV(row pgx.Row) (domain.CV, error) {
	var cv domain.CV
	var status string
	var parsed []byte
	if err := row.Scan(&cv.ID, &cv.UserID, &cv.Filename, &cv.MIME, &cv.Size, &cv.Path, &status, &cv.Error, &parsed, &cv.CreatedAt, &cv.UpdatedAt); err != nil {
		return domain.CV{}, err
	}
	cv.Status = domain.CVStatus(status)
	if len(parsed) > 0 {
		var c domain.CVContent
		if err := json.Unmarshal(parsed, &c); err != nil {
			return domain.CV{}, err
		}
		cv.Parsed = &c
	}
	return cv, nil
}
