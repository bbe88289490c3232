package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// TailoredRepo persists per-job CV rewrites.
type TailoredRepo struct{ Pool PgxPool }

// NewTailoredRepo constructs a TailoredRepo with the given pool.
func NewTailoredRepo(p PgxPool) *TailoredRepo { return &TailoredRepo{Pool: p} }

// Create stores a tailored CV and returns its id.
func (r *TailoredRepo) Create(ctx domain.Context, t domain.TailoredCV) (string, error) {
	tracer := otel.Tracer("repo.tailored")
	ctx, span := tracer.Start(ctx, "tailored.Create")
	defer span.End()
	id := t.ID
	if id == "" {
		id = uuid.New().String()
	}
	content, err := json.Marshal(t.Content)
	if err != nil {
		return "", fmt.Errorf("op=tailored.create: %w", err)
	}
	changeLog, err := json.Marshal(t.ChangeLog)
	if err != nil {
		return "", fmt.Errorf("op=tailored.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO tailored_cvs (id, user_id, cv_id, job_id, content, cover_letter, ats_score, match_score, change_log, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = r.Pool.Exec(ctx, q, id, t.UserID, t.CVID, t.JobID, content, t.CoverLetter, t.ATSScore, t.MatchScore, changeLog, now, now)
	if err != nil {
		return "", fmt.Errorf("op=tailored.create: %w", err)
	}
	return id, nil
}

// Get loads one of the user's tailored CVs by id.
func (r *TailoredRepo) Get(ctx domain.Context, userID, id string) (domain.TailoredCV, error) {
	tracer := otel.Tracer("repo.tailored")
	ctx, span := tracer.Start(ctx, "tailored.Get")
	defer span.End()
	q := `SELECT id, user_id, cv_id, job_id, content, cover_letter, ats_score, match_score, change_log, created_at, updated_at FROM tailored_cvs WHERE user_id=$1 AND id=$2`
	row := r.Pool.QueryRow(ctx, q, userID, id)
	var t domain.TailoredCV
	var content, changeLog []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.CVID, &t.JobID, &content, &t.CoverLetter, &t.ATSScore, &t.MatchScore, &changeLog, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.TailoredCV{}, fmt.Errorf("op=tailored.get: %w", domain.ErrNotFound)
		}
		return domain.TailoredCV{}, fmt.Errorf("op=tailored.get: %w", err)
	}
	if err := json.Unmarshal(content, &t.Content); err != nil {
		return domain.TailoredCV{}, fmt.Errorf("op=tailored.get: %w", err)
	}
	if len(changeLog) > 0 {
		if err := json.Unmarshal(changeLog, &t.ChangeLog); err != nil {
			return domain.TailoredCV{}, fmt.Errorf("op=tailored.get: %w", err)
		}
	}
	return t, nil
}

// UpdateContent replaces the document content after a manual edit.
func (r *TailoredRepo) UpdateContent(ctx domain.Context, userID, id string, content domain.CVContent) error {
	tracer := otel.Tracer("repo.tailored")
	ctx, span := tracer.Start(ctx, "tailored.UpdateContent")
	defer span.End()
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("op=tailored.update_content: %w", err)
	}
	q := `UPDATE tailored_cvs SET content=$3, updated_at=$4 WHERE user_id=$1 AND id=$2`
	tag, err := r.Pool.Exec(ctx, q, userID, id, b, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=tailored.update_content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=tailored.update_content: %w", domain.ErrNotFound)
	}
	return nil
}
