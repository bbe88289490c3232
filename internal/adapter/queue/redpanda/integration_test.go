//go:build integration

package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// startRedpanda boots a single-node dev container and returns its
// broker address. The fixed host port keeps the advertised listener
// reachable from the test process.
func startRedpanda(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const hostPort = 19092
	req := tc.ContainerRequest{
		Image:        "redpandadata/redpanda:v24.3.7",
		ExposedPorts: []string{"9092/tcp"},
		Cmd: []string{
			"redpanda", "start",
			"--overprovisioned",
			"--smp", "1",
			"--memory", "256M",
			"--reserve-memory", "0M",
			"--node-id", "0",
			"--check=false",
			"--kafka-addr", "PLAINTEXT://0.0.0.0:9092",
			"--advertise-kafka-addr", fmt.Sprintf("PLAINTEXT://127.0.0.1:%d", hostPort),
			"--default-log-level=error",
			"--mode", "dev-container",
		},
		WaitingFor: wait.ForListeningPort("9092/tcp").WithStartupTimeout(30 * time.Second),
		HostConfigModifier: func(hc *containerTypes.HostConfig) {
			if hc.PortBindings == nil {
				hc.PortBindings = nat.PortMap{}
			}
			hc.PortBindings[nat.Port("9092/tcp")] = []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)},
			}
		},
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})

	return fmt.Sprintf("localhost:%d", hostPort)
}

func TestParseQueue_RoundTrip(t *testing.T) {
	broker := startRedpanda(t)

	producer, err := NewProducerWithTransactionalID([]string{broker}, fmt.Sprintf("it-prod-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	defer func() { _ = producer.Close() }()

	received := make(chan domain.ParseCVPayload, 1)
	handler := handlerFunc(func(_ context.Context, p domain.ParseCVPayload) error {
		select {
		case received <- p:
		default:
		}
		return nil
	})

	consumer, err := NewConsumerWithTopic(
		[]string{broker},
		fmt.Sprintf("it-group-%d", time.Now().UnixNano()),
		fmt.Sprintf("it-cons-%d", time.Now().UnixNano()),
		handler, nil, 2, TopicParseCV,
	)
	require.NoError(t, err)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	go func() { _ = consumer.Start(ctx) }()

	want := domain.ParseCVPayload{CVID: "it-cv-1", UserID: "it-user", Path: "/tmp/cv.pdf", Filename: "cv.pdf"}
	taskID, err := producer.EnqueueParseCV(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want.CVID, taskID)

	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-ctx.Done():
		t.Fatal("parse task was not consumed in time")
	}
}

func TestParseQueue_RetryLandsInDLQ(t *testing.T) {
	broker := startRedpanda(t)

	producer, err := NewProducerWithTransactionalID([]string{broker}, fmt.Sprintf("it-prod2-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	defer func() { _ = producer.Close() }()

	cvs := &cvStatusRecorder{}
	cfg := domain.RetryConfig{
		MaxRetries:         1,
		InitialDelay:       50 * time.Millisecond,
		MaxDelay:           time.Second,
		Multiplier:         2.0,
		RetryableErrors:    []string{"rate limit"},
		NonRetryableErrors: []string{"schema invalid"},
	}
	rm := NewRetryManager(producer, cvs, cfg)

	handler := handlerFunc(func(context.Context, domain.ParseCVPayload) error {
		return fmt.Errorf("upstream rate limit")
	})
	consumer, err := NewConsumerWithTopic(
		[]string{broker},
		fmt.Sprintf("it-group2-%d", time.Now().UnixNano()),
		fmt.Sprintf("it-cons2-%d", time.Now().UnixNano()),
		handler, rm, 2, TopicParseCV,
	)
	require.NoError(t, err)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	go func() { _ = consumer.Start(ctx) }()

	_, err = producer.EnqueueParseCV(ctx, domain.ParseCVPayload{CVID: "it-cv-2", UserID: "it-user"})
	require.NoError(t, err)

	// Attempt 0 fails and requeues; attempt 1 fails and parks.
	require.Eventually(t, func() bool {
		_, status, _, calls := cvs.snapshot()
		return calls > 0 && status == domain.CVFailed
	}, 90*time.Second, 500*time.Millisecond, "cv was never marked failed")

	// The parked task is readable from the DLQ topic.
	reader, err := newDLQReader(broker)
	require.NoError(t, err)
	defer reader.Close()

	task, err := reader.pollOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, "it-cv-2", task.TaskID)
	assert.GreaterOrEqual(t, task.RetryInfo.AttemptCount, cfg.MaxRetries)
}

// dlqReader is a plain consumer over the parking topic.
type dlqReader struct{ client *kgo.Client }

func newDLQReader(broker string) (*dlqReader, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumerGroup(fmt.Sprintf("it-dlq-%d", time.Now().UnixNano())),
		kgo.ConsumeTopics(TopicParseCVDLQ),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
	)
	if err != nil {
		return nil, err
	}
	return &dlqReader{client: cl}, nil
}

func (r *dlqReader) Close() { r.client.Close() }

func (r *dlqReader) pollOne(ctx context.Context) (domain.DLQTask, error) {
	for {
		fetches := r.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return domain.DLQTask{}, err
		}
		var task domain.DLQTask
		found := false
		fetches.EachRecord(func(rec *kgo.Record) {
			if found {
				return
			}
			if err := json.Unmarshal(rec.Value, &task); err == nil {
				found = true
			}
		})
		if found {
			return task, nil
		}
	}
}
