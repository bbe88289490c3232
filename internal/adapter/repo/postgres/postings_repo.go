package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// PostingRepo persists aggregated job postings per user.
type PostingRepo struct{ Pool PgxPool }

// NewPostingRepo constructs a PostingRepo with the given pool.
func NewPostingRepo(p PgxPool) *PostingRepo { return &PostingRepo{Pool: p} }

// SaveAll upserts a batch of postings in one transaction. Re-running a
// search refreshes match scores and contacts without duplicating rows.
func (r *PostingRepo) SaveAll(ctx domain.Context, userID string, postings []domain.JobPosting) error {
	tracer := otel.Tracer("repo.postings")
	ctx, span := tracer.Start(ctx, "postings.SaveAll")
	defer span.End()
	if len(postings) == 0 {
		return nil
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=posting.save_all: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	q := `INSERT INTO postings (id, user_id, title, company, location, salary, type, description, requirements, sources, application_url, posted_date, match_score, contact, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (id) DO UPDATE SET match_score=EXCLUDED.match_score, contact=EXCLUDED.contact, sources=EXCLUDED.sources, description=EXCLUDED.description`
	now := time.Now().UTC()
	for _, p := range postings {
		requirements, err := json.Marshal(p.Requirements)
		if err != nil {
			return fmt.Errorf("op=posting.save_all: %w", err)
		}
		sources, err := json.Marshal(p.Sources)
		if err != nil {
			return fmt.Errorf("op=posting.save_all: %w", err)
		}
		var contact []byte
		if p.Contact != nil {
			contact, err = json.Marshal(p.Contact)
			if err != nil {
				return fmt.Errorf("op=posting.save_all: %w", err)
			}
		}
		_, err = tx.Exec(ctx, q, p.ID, userID, p.Title, p.Company, p.Location, p.Salary, p.Type, p.Description, requirements, sources, p.ApplicationURL, p.PostedDate, p.MatchScore, contact, now)
		if err != nil {
			return fmt.Errorf("op=posting.save_all: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=posting.save_all: %w", err)
	}
	return nil
}

// Get loads one of the user's postings by id.
func (r *PostingRepo) Get(ctx domain.Context, userID, id string) (domain.JobPosting, error) {
	tracer := otel.Tracer("repo.postings")
	ctx, span := tracer.Start(ctx, "postings.Get")
	defer span.End()
	q := `SELECT id, title, company, location, salary, type, description, requirements, sources, application_url, posted_date, match_score, contact FROM postings WHERE user_id=$1 AND id=$2`
	row := r.Pool.QueryRow(ctx, q, userID, id)
	p, err := scanPosting(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobPosting{}, fmt.Errorf("op=posting.get: %w", domain.ErrNotFound)
		}
		return domain.JobPosting{}, fmt.Errorf("op=posting.get: %w", err)
	}
	return p, nil
}

// List returns the user's postings, newest first then by match score.
func (r *PostingRepo) List(ctx domain.Context, userID string, limit int) ([]domain.JobPosting, error) {
	tracer := otel.Tracer("repo.postings")
	ctx, span := tracer.Start(ctx, "postings.List")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, title, company, location, salary, type, description, requirements, sources, application_url, posted_date, match_score, contact FROM postings
	WHERE user_id=$1 ORDER BY created_at DESC, match_score DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=posting.list: %w", err)
	}
	defer rows.Close()
	var out []domain.JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("op=posting.list_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=posting.list_rows: %w", err)
	}
	return out, nil
}

func scanPosting(row pgx.Row) (domain.JobPosting, error) {
	var p domain.JobPosting
	var requirements, sources, contact []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Company, &p.Location, &p.Salary, &p.Type, &p.Description, &requirements, &sources, &p.ApplicationURL, &p.PostedDate, &p.MatchScore, &contact); err != nil {
		return domain.JobPosting{}, err
	}
	if len(requirements) > 0 {
		if err := json.Unmarshal(requirements, &p.Requirements); err != nil {
			return domain.JobPosting{}, err
		}
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &p.Sources); err != nil {
			return domain.JobPosting{}, err
		}
	}
	if len(contact) > 0 {
		var c domain.HRContact
		if err := json.Unmarshal(contact, &c); err != nil {
			return domain.JobPosting{}, err
		}
		p.Contact = &c
	}
	return p, nil
}
