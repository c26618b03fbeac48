// Package redpanda implements the work queue on Redpanda/Kafka: an
// at-least-once producer, a consumer-group worker pool, and a retry manager
// that realizes visibility-timeout redelivery and the dead-letter cap.
package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	// TopicJobs carries generation job messages for both kinds.
	TopicJobs = "gen-jobs"
	// TopicDLQ retains messages that exhausted their redeliveries.
	TopicDLQ = "gen-jobs-dlq"
)

// kafkaErrTopicAlreadyExists is protocol error code 36.
const kafkaErrTopicAlreadyExists = 36

// createTopicIfNotExists creates a topic via the admin API, treating
// "already exists" as success.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
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
		return fmt.Errorf("op=queue.create_topic request: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=queue.create_topic unexpected response type: %T", resp)
	}
	for _, tr := range createResp.Topics {
		if tr.ErrorCode == 0 {
			slog.Info("topic created", slog.String("topic", tr.Topic))
			continue
		}
		if tr.ErrorCode == kafkaErrTopicAlreadyExists {
			slog.Debug("topic already exists", slog.String("topic", tr.Topic))
			continue
		}
		errorMsg := ""
		if tr.ErrorMessage != nil {
			errorMsg = *tr.ErrorMessage
		}
		return fmt.Errorf("op=queue.create_topic %s: %s (code %d)", tr.Topic, errorMsg, tr.ErrorCode)
	}
	return nil
}
