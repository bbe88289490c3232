// Package redpanda integrates the Redpanda/Kafka queue that carries
// background CV parse tasks from the upload endpoint to the worker.
// Production uses transactions on both ends for exactly-once delivery;
// failed tasks are retried with backoff and parked on a dead-letter
// topic once retries are exhausted.
package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	// TopicParseCV carries queued CV parse tasks.
	TopicParseCV = "parse-cv-jobs"
	// TopicParseCVDLQ holds tasks whose retries are exhausted.
	TopicParseCVDLQ = "parse-cv-jobs-dlq"

	// headerAttempt tracks the retry count of a record so the decision
	// to retry or park is stateless across workers.
	headerAttempt = "attempt"
	// headerRequestID carries the id of the HTTP request that enqueued
	// the task so worker logs line up with server logs. Re-enqueued
	// retries drop it; those correlate by cv_id.
	headerRequestID = "request_id"
)

// createTopicIfNotExists creates a topic via the admin API, treating
// TOPIC_ALREADY_EXISTS as success so producer and consumer can both
// call it at startup.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("op=redpanda.createTopic: topic name cannot be empty")
	}
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("op=redpanda.createTopic: partitions and replication factor must be positive")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.createTopic: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.createTopic: unexpected response type %T", resp)
	}
	for _, tr := range createResp.Topics {
		if tr.ErrorCode == 0 {
			slog.Info("topic created", slog.String("topic", tr.Topic), slog.Int("partitions", int(partitions)))
			continue
		}
		// Error code 36 = TOPIC_ALREADY_EXISTS.
		if tr.ErrorCode == 36 {
			slog.Debug("topic already exists", slog.String("topic", tr.Topic))
			continue
		}
		msg := ""
		if tr.ErrorMessage != nil {
			msg = *tr.ErrorMessage
		}
		return fmt.Errorf("op=redpanda.createTopic: %s (code %d)", msg, tr.ErrorCode)
	}
	return nil
}
