package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DLQConsumer surfaces dead letters for operators. It never republishes to
// the main topic.
type DLQConsumer struct {
	client   *kgo.Client
	groupID  string
	shutdown chan struct{}
}

// NewDLQConsumer constructs a consumer on the DLQ topic.
func NewDLQConsumer(brokers []string, groupID string) (*DLQConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.dlq_consumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=queue.dlq_consumer: missing group ID")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicDLQ),
		kgo.DialTimeout(10*time.Second),
		kgo.FetchMaxWait(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.dlq_consumer client: %w", err)
	}
	return &DLQConsumer{client: client, groupID: groupID, shutdown: make(chan struct{})}, nil
}

// Start logs incoming dead letters until the context is cancelled.
func (dc *DLQConsumer) Start(ctx context.Context) error {
	slog.Info("dlq consumer starting", slog.String("group_id", dc.groupID))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dc.shutdown:
			return nil
		default:
		}

		fetches := dc.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("dlq fetch error", slog.Any("error", fe.Err))
			}
			time.Sleep(2 * time.Second)
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			var dl DeadLetter
			if err := json.Unmarshal(record.Value, &dl); err != nil {
				slog.Error("malformed dead letter", slog.Int64("offset", record.Offset))
				return
			}
			slog.Warn("dead letter retained",
				slog.String("job_id", dl.Msg.JobID),
				slog.String("kind", string(dl.Msg.Kind)),
				slog.Int("attempt", dl.Attempt),
				slog.String("reason", dl.Reason),
				slog.Time("moved_at", dl.MovedAt))
		})
	}
}

// Stop shuts the consumer down.
func (dc *DLQConsumer) Stop() {
	close(dc.shutdown)
	dc.client.Close()
}
