package redpanda

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/domain"
)

// DeadLetter is the DLQ envelope. DLQ messages are never fed back into the
// main topic automatically; they exist for operator inspection.
type DeadLetter struct {
	Msg     domain.JobMessage `json:"msg"`
	Reason  string            `json:"reason"`
	Attempt int               `json:"attempt"`
	MovedAt time.Time         `json:"moved_at"`
}

// DLQPublisher is the slice of Producer the retry manager needs.
type DLQPublisher interface {
	Publish(ctx domain.Context, msg domain.JobMessage) error
	PublishDLQ(ctx domain.Context, dl DeadLetter) error
}

// RetryManager realizes visibility-timeout redelivery on Kafka: a transient
// failure republishes the message after a delay with an incremented attempt,
// and attempts beyond the cap move the message to the DLQ with the job marked
// failed/dead_lettered.
type RetryManager struct {
	producer        DLQPublisher
	jobs            domain.JobRepository
	delay           time.Duration
	maxRedeliveries int
}

// NewRetryManager constructs a RetryManager.
func NewRetryManager(producer DLQPublisher, jobs domain.JobRepository, delay time.Duration, maxRedeliveries int) *RetryManager {
	return &RetryManager{
		producer:        producer,
		jobs:            jobs,
		delay:           delay,
		maxRedeliveries: maxRedeliveries,
	}
}

// HandleTransientFailure routes a transient worker failure: redeliver after
// the visibility delay, or dead-letter once the claimed attempt exceeds the
// cap. The redelivery is published before returning so the message is durable
// before the caller acks the original; a publish failure propagates, which
// leaves the original offset uncommitted for broker-side redelivery. The
// delay is carried on the message and waited out at consume time.
func (rm *RetryManager) HandleTransientFailure(ctx domain.Context, job domain.Job, msg domain.JobMessage, cause error) error {
	if job.Attempt > rm.maxRedeliveries {
		return rm.moveToDLQ(ctx, job, msg, cause)
	}

	if err := rm.jobs.Requeue(ctx, job.ID); err != nil {
		return fmt.Errorf("op=retry.requeue job_id=%s: %w", job.ID, err)
	}
	observability.ReleaseJob(string(job.Kind))

	redelivery := msg
	redelivery.Attempt = job.Attempt
	redelivery.NotBeforeUnix = time.Now().Add(rm.delay).Unix()
	if err := rm.producer.Publish(ctx, redelivery); err != nil {
		return fmt.Errorf("op=retry.republish job_id=%s attempt=%d: %w", job.ID, redelivery.Attempt, err)
	}

	slog.Warn("transient failure, job scheduled for redelivery",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.Duration("delay", rm.delay),
		slog.Any("error", cause))
	return nil
}

// moveToDLQ retains the message on the DLQ topic and marks the job failed.
func (rm *RetryManager) moveToDLQ(ctx domain.Context, job domain.Job, msg domain.JobMessage, cause error) error {
	dl := DeadLetter{
		Msg:     msg,
		Reason:  cause.Error(),
		Attempt: job.Attempt,
		MovedAt: time.Now().UTC(),
	}
	if err := rm.producer.PublishDLQ(ctx, dl); err != nil {
		return fmt.Errorf("op=retry.dlq job_id=%s: %w", job.ID, err)
	}
	if err := rm.jobs.Fail(ctx, job.ID, domain.ErrorKindDeadLettered, "redeliveries exhausted: "+cause.Error()); err != nil {
		slog.Error("failed to mark dead-lettered job",
			slog.String("job_id", job.ID), slog.Any("error", err))
	}
	observability.FailJob(string(job.Kind), domain.ErrorKindDeadLettered)
	observability.DeadLetterJob(string(job.Kind))
	slog.Warn("job moved to DLQ",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.String("reason", dl.Reason))
	return nil
}
