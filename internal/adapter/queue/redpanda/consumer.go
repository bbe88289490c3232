package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	metrics "github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/observability"
)

// fetchBackoff is how long the poll loop sleeps after a fetch error.
const fetchBackoff = 2 * time.Second

// ParseCVHandler processes one parse task. The handler owns the CV
// status transitions for normal outcomes; the retry manager marks the
// CV failed only when retries are exhausted.
type ParseCVHandler interface {
	Handle(ctx context.Context, p domain.ParseCVPayload) error
}

// Consumer reads parse tasks in a consumer group and dispatches them to
// a bounded worker pool.
type Consumer struct {
	session *kgo.GroupTransactSession
	handler ParseCVHandler
	retry   *RetryManager

	groupID  string
	topic    string
	workers  int
	jobQueue chan *kgo.Record

	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewConsumer constructs a Consumer on the parse topic.
func NewConsumer(brokers []string, groupID string, handler ParseCVHandler, retry *RetryManager, workers int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, "ai-job-agent-consumer", handler, retry, workers, TopicParseCV)
}

// NewConsumerWithTopic constructs a Consumer with a custom topic and
// transactional ID so tests can isolate their traffic.
func NewConsumerWithTopic(brokers []string, groupID, transactionalID string, handler ParseCVHandler, retry *RetryManager, workers int, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: missing required group ID")
	}
	if handler == nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: nil handler")
	}
	if workers <= 0 {
		workers = 1
	}

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: temp client: %w", err)
	}
	defer tempClient.Close()
	if err := createTopicIfNotExists(ctx, tempClient, topic, 8, 1); err != nil {
		slog.Warn("parse topic creation failed", slog.String("topic", topic), slog.Any("error", err))
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))

	session, err := kgo.NewGroupTransactSession(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.RequireStableFetchOffsets(),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.RebalanceTimeout(10*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: transactional session: %w", err)
	}

	slog.Info("queue consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("workers", workers))
	return &Consumer{
		session:  session,
		handler:  handler,
		retry:    retry,
		groupID:  groupID,
		topic:    topic,
		workers:  workers,
		jobQueue: make(chan *kgo.Record, workers*2),
		shutdown: make(chan struct{}),
	}, nil
}

// Start runs the poll loop and worker pool until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting queue consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("workers", c.workers))

	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i)
	}
	go c.pollLoop(ctx)

	<-ctx.Done()
	slog.Info("queue consumer shutting down")
	return ctx.Err()
}

// pollLoop fetches records and hands them to the worker pool.
func (c *Consumer) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		fetches := c.session.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fatal := false
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					fatal = true
					continue
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			if fatal {
				return
			}
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			select {
			case c.jobQueue <- rec:
			case <-ctx.Done():
			}
		})
	}
}

// worker drains the job queue.
func (c *Consumer) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case rec := <-c.jobQueue:
			if rec == nil {
				return
			}
			if err := c.processRecord(ctx, rec); err != nil {
				slog.Error("parse task failed",
					slog.Int("worker_id", id),
					slog.Int64("offset", rec.Offset),
					slog.Int("partition", int(rec.Partition)),
					slog.String("code", classifyFailureCode(err.Error())),
					slog.Any("error", err))
			}
		}
	}
}

// processRecord decodes and runs one parse task.
func (c *Consumer) processRecord(ctx context.Context, rec *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessParseCV")
	defer span.End()

	var payload domain.ParseCVPayload
	if err := json.Unmarshal(rec.Value, &payload); err != nil {
		// Poison message; retrying cannot help.
		return fmt.Errorf("op=queue.processRecord: unmarshal payload: %w", err)
	}

	lg := observability.LoggerFromContext(ctx).With(
		slog.String("cv_id", payload.CVID),
		slog.String("user_id", payload.UserID),
	)
	if rid := requestIDFromHeaders(rec.Headers); rid != "" {
		lg = lg.With(slog.String("request_id", rid))
	}
	ctx = observability.ContextWithLogger(ctx, lg)

	attempt := attemptFromHeaders(rec.Headers)
	lg.Info("processing parse task", slog.Int("attempt", attempt), slog.Int64("offset", rec.Offset))

	metrics.StartProcessingJob("parse_cv")
	err := c.handler.Handle(ctx, payload)
	if err == nil {
		metrics.CompleteJob("parse_cv")
		lg.Info("parse task completed")
		return nil
	}
	metrics.FailJob("parse_cv")

	if c.retry != nil {
		if rErr := c.retry.HandleFailure(ctx, payload, attempt, err); rErr != nil {
			lg.Error("retry handling failed", slog.Any("error", rErr))
		}
	}
	return err
}

// Close stops workers and releases the session. Safe to call twice.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		close(c.shutdown)
		if c.session != nil {
			c.session.Close()
		}
	})
	return nil
}
