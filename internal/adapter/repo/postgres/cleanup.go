package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the transaction subset the cleanup service needs.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens transactions. Wrap a pgxpool.Pool in PoolBeginner to
// satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts a pgxpool.Pool to the Beginner interface.
type PoolBeginner struct{ Pool *pgxpool.Pool }

// Begin opens a transaction on the underlying pool.
func (b PoolBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CleanupService prunes aged rows per the data retention policy.
type CleanupService struct {
	DB            Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90 // default 90 days
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays}
}

// CleanupOldData removes session messages and postings older than the
// retention window. Postings referenced by an application are kept so
// the application history stays navigable.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var deletedMessages int64
	err = tx.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM messages WHERE created_at < $1 RETURNING 1
		) SELECT count(*) FROM gone
	`, cutoff).Scan(&deletedMessages)
	if err != nil {
		slog.Debug("no messages to delete", slog.Any("error", err))
	}

	var deletedPostings int64
	err = tx.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM postings
			WHERE created_at < $1
			AND id NOT IN (SELECT job_id FROM applications)
			RETURNING 1
		) SELECT count(*) FROM gone
	`, cutoff).Scan(&deletedPostings)
	if err != nil {
		slog.Debug("no postings to delete", slog.Any("error", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_messages", deletedMessages),
		slog.Int64("deleted_postings", deletedPostings),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour // daily by default
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
