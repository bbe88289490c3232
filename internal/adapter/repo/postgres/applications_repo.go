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

// ApplicationRepo persists the per-job pipeline state.
type ApplicationRepo struct{ Pool PgxPool }

// NewApplicationRepo constructs an ApplicationRepo with the given pool.
func NewApplicationRepo(p PgxPool) *ApplicationRepo { return &ApplicationRepo{Pool: p} }

const applicationColumns = `id, user_id, session_id, job_id, cv_id, tailored_cv_id, contact, email_subject, email_body, pdf_path, thread_id, status, failure_kind, COALESCE(failure_msg,''), sent_at, replied_at, interview_offer, created_at, updated_at`

// Create stores a new application and returns its id.
func (r *ApplicationRepo) Create(ctx domain.Context, a domain.Application) (string, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.Create")
	defer span.End()
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := a.Status
	if status == "" {
		status = domain.ApplicationDraft
	}
	contact, err := json.Marshal(a.Contact)
	if err != nil {
		return "", fmt.Errorf("op=application.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO applications (id, user_id, session_id, job_id, cv_id, tailored_cv_id, contact, email_subject, email_body, pdf_path, thread_id, status, failure_kind, failure_msg, sent_at, replied_at, interview_offer, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = r.Pool.Exec(ctx, q, id, a.UserID, a.SessionID, a.JobID, a.CVID, a.TailoredCVID, contact, a.EmailSubject, a.EmailBody, a.PDFPath, a.ThreadID, status, a.FailureKind, a.FailureMsg, a.SentAt, a.RepliedAt, a.InterviewOffer, now, now)
	if err != nil {
		return "", fmt.Errorf("op=application.create: %w", err)
	}
	return id, nil
}

// Get loads one of the user's applications by id.
func (r *ApplicationRepo) Get(ctx domain.Context, userID, id string) (domain.Application, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.Get")
	defer span.End()
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id=$1 AND id=$2`
	row := r.Pool.QueryRow(ctx, q, userID, id)
	a, err := scanApplication(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Application{}, fmt.Errorf("op=application.get: %w", domain.ErrNotFound)
		}
		return domain.Application{}, fmt.Errorf("op=application.get: %w", err)
	}
	return a, nil
}

// GetByJob loads the user's application for one posting. At most one
// application exists per (user, job).
func (r *ApplicationRepo) GetByJob(ctx domain.Context, userID, jobID string) (domain.Application, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.GetByJob")
	defer span.End()
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id=$1 AND job_id=$2 LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, userID, jobID)
	a, err := scanApplication(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Application{}, fmt.Errorf("op=application.get_by_job: %w", domain.ErrNotFound)
		}
		return domain.Application{}, fmt.Errorf("op=application.get_by_job: %w", err)
	}
	return a, nil
}

// List returns the user's applications, newest first.
func (r *ApplicationRepo) List(ctx domain.Context, userID string) ([]domain.Application, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.List")
	defer span.End()
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=application.list: %w", err)
	}
	defer rows.Close()
	out, err := collectApplications(rows)
	if err != nil {
		return nil, fmt.Errorf("op=application.list: %w", err)
	}
	return out, nil
}

// ListByStatus returns applications in one status across all users.
// The reply watcher uses it to scan sent applications.
func (r *ApplicationRepo) ListByStatus(ctx domain.Context, status domain.ApplicationStatus) ([]domain.Application, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.ListByStatus")
	defer span.End()
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE status=$1 ORDER BY created_at ASC`
	rows, err := r.Pool.Query(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("op=application.list_by_status: %w", err)
	}
	defer rows.Close()
	out, err := collectApplications(rows)
	if err != nil {
		return nil, fmt.Errorf("op=application.list_by_status: %w", err)
	}
	return out, nil
}

// Update persists the whole application row.
func (r *ApplicationRepo) Update(ctx domain.Context, a domain.Application) error {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.Update")
	defer span.End()
	contact, err := json.Marshal(a.Contact)
	if err != nil {
		return fmt.Errorf("op=application.update: %w", err)
	}
	q := `UPDATE applications SET tailored_cv_id=$3, contact=$4, email_subject=$5, email_body=$6, pdf_path=$7, thread_id=$8, status=$9, failure_kind=$10, failure_msg=$11, sent_at=$12, replied_at=$13, interview_offer=$14, updated_at=$15
	WHERE user_id=$1 AND id=$2`
	tag, err := r.Pool.Exec(ctx, q, a.UserID, a.ID, a.TailoredCVID, contact, a.EmailSubject, a.EmailBody, a.PDFPath, a.ThreadID, a.Status, a.FailureKind, a.FailureMsg, a.SentAt, a.RepliedAt, a.InterviewOffer, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=application.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=application.update: %w", domain.ErrNotFound)
	}
	return nil
}

func collectApplications(rows pgx.Rows) ([]domain.Application, error) {
	var out []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (domain.Application, error) {
	var a domain.Application
	var contact []byte
	var status, failureKind string
	if err := row.Scan(&a.ID, &a.UserID, &a.SessionID, &a.JobID, &a.CVID, &a.TailoredCVID, &contact, &a.EmailSubject, &a.EmailBody, &a.PDFPath, &a.ThreadID, &status, &failureKind, &a.FailureMsg, &a.SentAt, &a.RepliedAt, &a.InterviewOffer, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return domain.Application{}, err
	}
	a.Status = domain.ApplicationStatus(status)
	a.FailureKind = domain.SendFailureKind(failureKind)
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &a.Contact); err != nil {
			return domain.Application{}, err
		}
	}
	return a, nil
}
