package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	metrics "github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/observability"
)

// recordProducer is the slice of Producer the retry manager needs.
type recordProducer interface {
	produce(ctx context.Context, rec *kgo.Record) error
}

// Producer is a transactional producer implementing domain.TaskQueue.
type Producer struct {
	client *kgo.Client
	// transactionChan serializes transactions; kgo allows one open
	// transaction per client.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "ai-job-agent-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional ID so tests can run several producers side by side.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	slog.Info("creating queue producer", slog.Any("brokers", brokers), slog.String("transactional_id", transactionalID))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}

	// Best effort; the topic usually exists already.
	if err := createTopicIfNotExists(context.Background(), client, TopicParseCV, 8, 1); err != nil {
		slog.Warn("parse topic creation failed", slog.String("topic", TopicParseCV), slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// Ping verifies broker connectivity. Used by the readiness probe.
func (p *Producer) Ping(ctx domain.Context) error {
	return p.client.Ping(ctx)
}

// EnqueueParseCV enqueues a CV parse task keyed by CV id.
func (p *Producer) EnqueueParseCV(ctx domain.Context, payload domain.ParseCVPayload) (string, error) {
	if payload.CVID == "" || payload.UserID == "" {
		return "", fmt.Errorf("op=queue.EnqueueParseCV: payload missing cv or user id: %w", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.EnqueueParseCV: marshal payload: %w", err)
	}
	rec := parseTaskRecord(payload.CVID, payload.UserID, b, 0)
	if rid := observability.RequestIDFromContext(ctx); rid != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerRequestID, Value: []byte(rid)})
	}
	if err := p.produce(ctx, rec); err != nil {
		return "", fmt.Errorf("op=queue.EnqueueParseCV: %w", err)
	}

	metrics.EnqueueJob("parse_cv")
	slog.Info("parse task enqueued",
		slog.String("cv_id", payload.CVID),
		slog.String("user_id", payload.UserID),
		slog.String("topic", TopicParseCV))
	return payload.CVID, nil
}

// produce publishes one record inside its own transaction.
func (p *Producer) produce(ctx context.Context, rec *kgo.Record) error {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, rec, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("abort transaction failed", slog.Any("error", abortErr))
		}
		return fmt.Errorf("produce: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// parseTaskRecord builds the wire record for one parse task attempt.
func parseTaskRecord(cvID, userID string, value []byte, attempt int) *kgo.Record {
	return &kgo.Record{
		Topic: TopicParseCV,
		Key:   []byte(cvID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "cv_id", Value: []byte(cvID)},
			{Key: "user_id", Value: []byte(userID)},
			{Key: headerAttempt, Value: []byte(strconv.Itoa(attempt))},
		},
	}
}

// attemptFromHeaders reads the retry count from record headers; absent
// or malformed headers count as the first attempt.
func attemptFromHeaders(headers []kgo.RecordHeader) int {
	for _, h := range headers {
		if h.Key != headerAttempt {
			continue
		}
		n, err := strconv.Atoi(string(h.Value))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// requestIDFromHeaders reads the originating request id, if any.
func requestIDFromHeaders(headers []kgo.RecordHeader) string {
	for _, h := range headers {
		if h.Key == headerRequestID {
			return string(h.Value)
		}
	}
	return ""
}
