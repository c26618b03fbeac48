package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/domain"
)

// Producer publishes job messages and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer and ensures the jobs and DLQ topics
// exist.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.producer: no seed brokers provided")
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.RecordDeliveryTimeout(30*time.Second),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.producer client: %w", err)
	}

	ctx := context.Background()
	for _, topic := range []string{TopicJobs, TopicDLQ} {
		if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
			slog.Warn("topic creation failed, it may already exist",
				slog.String("topic", topic), slog.Any("error", err))
		}
	}

	return &Producer{client: client, topic: TopicJobs}, nil
}

// Publish enqueues a job message. The job id keys the record so redeliveries
// of the same job stay ordered within a partition.
func (p *Producer) Publish(ctx domain.Context, msg domain.JobMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=queue.publish marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(msg.JobID)},
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "attempt", Value: []byte(strconv.Itoa(msg.Attempt))},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=queue.publish job_id=%s: %w: %v", msg.JobID, domain.ErrEnqueueFailed, err)
	}
	if msg.Attempt == 0 {
		observability.EnqueueJob(string(msg.Kind))
	}
	slog.Info("job published",
		slog.String("job_id", msg.JobID),
		slog.String("kind", string(msg.Kind)),
		slog.Int("attempt", msg.Attempt))
	return nil
}

// PublishDLQ retains a dead letter for operator inspection.
func (p *Producer) PublishDLQ(ctx domain.Context, dl DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("op=queue.publish_dlq marshal: %w", err)
	}
	record := &kgo.Record{Topic: TopicDLQ, Key: []byte(dl.Msg.JobID), Value: b}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=queue.publish_dlq job_id=%s: %w", dl.Msg.JobID, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
