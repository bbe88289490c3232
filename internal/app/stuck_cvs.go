package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// CVSweepStore is the slice of the CV repository the sweeper needs.
type CVSweepStore interface {
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]domain.CV, error)
	SetStatus(ctx context.Context, id string, status domain.CVStatus, errMsg string) error
}

// StuckCVSweeper fails CV parses that sat in the processing state past
// a maximum age, so a crashed worker cannot wedge an upload in a
// non-terminal state forever. The owner re-uploads after a sweep.
type StuckCVSweeper struct {
	cvs              CVSweepStore
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckCVSweeper builds a sweeper; zero durations take defaults.
func NewStuckCVSweeper(cvs CVSweepStore, maxProcessingAge, interval time.Duration) *StuckCVSweeper {
	if cvs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckCVSweeper{
		cvs:              cvs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *StuckCVSweeper) Run(ctx context.Context) {
	if s == nil || s.cvs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck cv sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckCVSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("cvs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckCVSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	const batchSize = 100
	span.SetAttributes(
		attribute.Int("cvs.batch_size", batchSize),
		attribute.Float64("cvs.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	totalChecked := 0
	totalFailed := 0

	// Each marked row leaves the stuck set, so re-listing from the top
	// makes progress without offset bookkeeping.
	for {
		stuck, err := s.cvs.ListStuck(ctx, cutoff, batchSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck cv sweep failed to list", slog.Any("error", err))
			return
		}
		if len(stuck) == 0 {
			break
		}
		totalChecked += len(stuck)

		marked := 0
		for _, cv := range stuck {
			msg := fmt.Sprintf("parse exceeded maximum age %v; failed by sweeper", s.maxProcessingAge)
			if err := s.cvs.SetStatus(ctx, cv.ID, domain.CVFailed, msg); err != nil {
				span.RecordError(err)
				slog.Error("stuck cv sweep failed to update status",
					slog.String("cv_id", cv.ID), slog.Any("error", err))
				continue
			}
			marked++
			slog.Warn("cv parse marked failed by sweeper",
				slog.String("cv_id", cv.ID), slog.String("user_id", cv.UserID),
				slog.Time("updated_at", cv.UpdatedAt))
		}
		totalFailed += marked

		// No row changed state: stop rather than spin on the same batch.
		if marked == 0 || len(stuck) < batchSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("cvs.total_checked", totalChecked),
		attribute.Int("cvs.total_marked_failed", totalFailed),
	)
}
