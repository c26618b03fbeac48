package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Consumer pulls job messages and feeds them through a fixed worker pool.
// Offsets are committed only after a record is terminally handled, which is
// what makes delivery at-least-once.
type Consumer struct {
	client    *kgo.Client
	processor *JobProcessor
	groupID   string
	topic     string
	workers   int

	records  chan *kgo.Record
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer constructs a Consumer on the jobs topic.
func NewConsumer(brokers []string, groupID string, processor *JobProcessor, workers int) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.consumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=queue.consumer: missing group ID")
	}
	if workers < 1 {
		workers = 1
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicJobs),
		kgo.DisableAutoCommit(),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.FetchMaxBytes(10*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.consumer client: %w", err)
	}

	return &Consumer{
		client:    client,
		processor: processor,
		groupID:   groupID,
		topic:     TopicJobs,
		workers:   workers,
		records:   make(chan *kgo.Record, workers*2),
		shutdown:  make(chan struct{}),
	}, nil
}

// Start runs the fetch loop and worker pool until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("consumer starting",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("workers", c.workers))

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	c.fetchLoop(ctx)

	close(c.shutdown)
	c.wg.Wait()
	return ctx.Err()
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("fetch loop stopping")
			return
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fatal := false
			for _, fe := range errs {
				if ctx.Err() != nil {
					return
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
				fatal = true
			}
			if fatal {
				time.Sleep(2 * time.Second)
				continue
			}
		}

		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case c.records <- record:
			case <-ctx.Done():
			}
		})
	}
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case record := <-c.records:
			if record == nil {
				return
			}
			c.handleRecord(ctx, record, id)
		}
	}
}

// handleRecord decodes and processes one record, committing its offset only
// on terminal handling.
func (c *Consumer) handleRecord(ctx context.Context, record *kgo.Record, workerID int) {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessJobMessage")
	defer span.End()

	var msg domain.JobMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		// A malformed record can never succeed; commit it so it does not wedge
		// the partition.
		slog.Error("malformed job message, dropping",
			slog.Int64("offset", record.Offset),
			slog.Any("error", err))
		c.commit(ctx, record)
		return
	}

	if err := c.processor.Process(ctx, msg); err != nil {
		slog.Error("record processing failed, leaving uncommitted",
			slog.Int("worker_id", workerID),
			slog.String("job_id", msg.JobID),
			slog.Any("error", err))
		return
	}
	c.commit(ctx, record)
}

func (c *Consumer) commit(ctx context.Context, record *kgo.Record) {
	if err := c.client.CommitRecords(ctx, record); err != nil {
		slog.Error("offset commit failed",
			slog.Int64("offset", record.Offset),
			slog.Any("error", err))
	}
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
