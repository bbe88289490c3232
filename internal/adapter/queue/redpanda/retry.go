package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// RetryManager re-enqueues failed parse tasks with backoff and parks
// them on the dead-letter topic once the policy gives up. Parking also
// marks the CV failed so upload polling surfaces the error.
type RetryManager struct {
	producer recordProducer
	cvs      domain.CVRepository
	config   domain.RetryConfig
}

// NewRetryManager wires the retry flow to a producer and the CV store.
func NewRetryManager(p *Producer, cvs domain.CVRepository, cfg domain.RetryConfig) *RetryManager {
	return &RetryManager{producer: p, cvs: cvs, config: cfg}
}

// HandleFailure decides between a delayed re-enqueue and parking.
// attempt is the count of the attempt that just failed, starting at 0.
func (rm *RetryManager) HandleFailure(ctx context.Context, payload domain.ParseCVPayload, attempt int, cause error) error {
	info := &domain.RetryInfo{
		AttemptCount:  attempt,
		MaxAttempts:   rm.config.MaxRetries,
		LastAttemptAt: time.Now(),
		RetryStatus:   domain.RetryStatusRetrying,
		LastError:     cause.Error(),
		ErrorHistory:  []string{cause.Error()},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if !info.ShouldRetry(cause, rm.config) {
		return rm.park(ctx, payload, info, cause)
	}

	delay := info.CalculateNextRetryDelay(rm.config)
	go rm.requeueAfter(payload, attempt+1, delay)
	slog.Info("parse task scheduled for retry",
		slog.String("cv_id", payload.CVID),
		slog.Int("next_attempt", attempt+1),
		slog.Duration("delay", delay),
		slog.String("code", classifyFailureCode(cause.Error())))
	return nil
}

// requeueAfter waits out the backoff delay and publishes the task with
// a bumped attempt header. The send must not inherit the turn context;
// the failing turn is long gone by then.
func (rm *RetryManager) requeueAfter(payload domain.ParseCVPayload, attempt int, delay time.Duration) {
	time.Sleep(delay)

	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal retry payload", slog.String("cv_id", payload.CVID), slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rm.producer.produce(ctx, parseTaskRecord(payload.CVID, payload.UserID, b, attempt)); err != nil {
		slog.Error("requeue parse task failed", slog.String("cv_id", payload.CVID), slog.Any("error", err))
		if sErr := rm.cvs.SetStatus(ctx, payload.CVID, domain.CVFailed, "parse retry could not be scheduled"); sErr != nil {
			slog.Error("mark cv failed", slog.String("cv_id", payload.CVID), slog.Any("error", sErr))
		}
		return
	}
	slog.Info("parse task requeued", slog.String("cv_id", payload.CVID), slog.Int("attempt", attempt))
}

// park publishes the task to the dead-letter topic and marks the CV
// failed with the final cause.
func (rm *RetryManager) park(ctx context.Context, payload domain.ParseCVPayload, info *domain.RetryInfo, cause error) error {
	info.MarkAsDLQ()
	task := domain.DLQTask{
		TaskID:           payload.CVID,
		OriginalPayload:  payload,
		RetryInfo:        *info,
		FailureReason:    cause.Error(),
		MovedToDLQAt:     time.Now(),
		CanBeReprocessed: true,
	}
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("op=queue.park: marshal dlq task: %w", err)
	}
	rec := &kgo.Record{Topic: TopicParseCVDLQ, Key: []byte(payload.CVID), Value: b}
	if err := rm.producer.produce(ctx, rec); err != nil {
		slog.Error("park parse task failed", slog.String("cv_id", payload.CVID), slog.Any("error", err))
	} else {
		slog.Info("parse task parked",
			slog.String("cv_id", payload.CVID),
			slog.Int("attempts", info.AttemptCount),
			slog.String("reason", task.FailureReason))
	}

	if err := rm.cvs.SetStatus(ctx, payload.CVID, domain.CVFailed, cause.Error()); err != nil {
		return fmt.Errorf("op=queue.park: mark cv failed: %w", err)
	}
	return nil
}
