package redpanda

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/domain"
	obsctx "github.com/craftlab/cardsmith/internal/observability"
)

// JobProcessor runs one job message end to end: claim, generate, persist,
// complete, count. Backend calls are bounded by a semaphore shared across the
// whole worker process, independent of how many consumer goroutines run.
type JobProcessor struct {
	jobs   domain.JobRepository
	blobs  domain.BlobStore
	ledger domain.QuotaLedger
	gen    domain.GenerationClient
	retry  *RetryManager

	sem chan struct{}
}

// NewJobProcessor constructs a JobProcessor. maxConcurrency bounds
// simultaneous generation backend calls.
func NewJobProcessor(jobs domain.JobRepository, blobs domain.BlobStore, ledger domain.QuotaLedger, gen domain.GenerationClient, retry *RetryManager, maxConcurrency int) *JobProcessor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &JobProcessor{
		jobs:   jobs,
		blobs:  blobs,
		ledger: ledger,
		gen:    gen,
		retry:  retry,
		sem:    make(chan struct{}, maxConcurrency),
	}
}

// Process handles a single message. A nil return means the message is
// terminally handled and the caller must commit it; a non-nil return leaves
// the offset uncommitted for broker-side redelivery.
func (p *JobProcessor) Process(ctx domain.Context, msg domain.JobMessage) error {
	if msg.RequestID != "" {
		ctx = obsctx.ContextWithRequestID(ctx, msg.RequestID)
	}
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("job_id", msg.JobID),
		slog.String("kind", string(msg.Kind)))
	if msg.RequestID != "" {
		lg = lg.With(slog.String("request_id", msg.RequestID))
	}
	ctx = obsctx.ContextWithLogger(ctx, lg)

	// Redeliveries carry a not-before time; waiting here keeps the offset
	// uncommitted if the process dies inside the delay window.
	if wait := time.Until(msg.NotBefore()); wait > 0 {
		lg.Info("redelivery delayed", slog.Duration("wait", wait))
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("op=worker.delay job_id=%s: %w", msg.JobID, ctx.Err())
		case <-timer.C:
		}
	}

	job, err := p.jobs.Claim(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			lg.Warn("message references unknown job, dropping")
			return nil
		}
		return fmt.Errorf("op=worker.claim: %w", err)
	}

	// Redelivery after a terminal state is a no-op.
	if job.Status == domain.JobCompleted || job.Status == domain.JobFailed {
		lg.Info("job already terminal, skipping redelivery",
			slog.String("status", string(job.Status)))
		return nil
	}

	observability.StartProcessingJob(string(job.Kind))
	lg.Info("processing job", slog.Int("attempt", job.Attempt))

	data, genErr := p.generate(ctx, job)
	if genErr != nil {
		return p.handleFailure(ctx, job, msg, genErr)
	}

	key := domain.BuildArtifactKey(job.Kind, job.SessionID, job.UserOrdinal, job.OverrideLevel, domain.NewArtifactSeq(), time.Now().UTC())
	if err := p.blobs.Put(ctx, key, data, ""); err != nil {
		return p.handleFailure(ctx, job, msg, fmt.Errorf("op=worker.blob_put: %w: %v", domain.ErrBackendUnavailable, err))
	}

	completed, err := p.jobs.Complete(ctx, job.ID, key)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			lg.Warn("completion conflicts with terminal state, dropping")
			observability.ReleaseJob(string(job.Kind))
			return nil
		}
		return fmt.Errorf("op=worker.complete: %w", err)
	}
	if !completed {
		// A concurrent delivery already completed this job; do not double
		// count the quota.
		lg.Info("job completed by another delivery")
		observability.ReleaseJob(string(job.Kind))
		return nil
	}

	if err := p.ledger.IncrCompleted(ctx, job.SessionID, job.Kind); err != nil {
		// The job is completed; quota undercounting is preferable to blocking
		// the ack and generating twice.
		lg.Error("quota increment failed after completion", slog.Any("error", err))
	}

	observability.CompleteJob(string(job.Kind))
	lg.Info("job completed", slog.String("artifact_key", key))
	return nil
}

// generate invokes the backend under the concurrency semaphore.
func (p *JobProcessor) generate(ctx domain.Context, job domain.Job) ([]byte, error) {
	p.sem <- struct{}{}
	observability.GenerationInFlight.Inc()
	start := time.Now()
	defer func() {
		observability.GenerationInFlight.Dec()
		<-p.sem
	}()

	var data []byte
	var err error
	switch job.Kind {
	case domain.KindVideo:
		data, err = p.gen.GenerateVideo(ctx, job.Prompt, p.seedForVideo(ctx, job))
	default:
		data, err = p.gen.GenerateImage(ctx, job.Prompt)
	}

	outcome := "ok"
	if err != nil {
		outcome = domain.ErrorKindOf(err)
	}
	observability.ObserveGeneration(string(job.Kind), outcome, time.Since(start))
	return data, err
}

// seedForVideo fetches the session's most recent completed card as the video
// seed image. Best effort: a missing or unreadable seed degrades to a
// prompt-only generation.
func (p *JobProcessor) seedForVideo(ctx domain.Context, job domain.Job) []byte {
	cards, err := p.jobs.ListCompletedBySession(ctx, job.SessionID, domain.KindCard, 1)
	if err != nil || len(cards) == 0 {
		return nil
	}
	seed, err := p.blobs.Get(ctx, cards[0].ArtifactKey)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("seed artifact unreadable, generating without seed",
			slog.String("seed_key", cards[0].ArtifactKey), slog.Any("error", err))
		return nil
	}
	return seed
}

// handleFailure routes a generation failure to terminal failed or to the
// retry manager. Both paths terminally handle the message.
func (p *JobProcessor) handleFailure(ctx domain.Context, job domain.Job, msg domain.JobMessage, cause error) error {
	lg := obsctx.LoggerFromContext(ctx)
	if !domain.Transient(cause) {
		kind := domain.ErrorKindOf(cause)
		if err := p.jobs.Fail(ctx, job.ID, kind, cause.Error()); err != nil {
			return fmt.Errorf("op=worker.fail: %w", err)
		}
		observability.FailJob(string(job.Kind), kind)
		lg.Warn("job failed permanently",
			slog.String("error_kind", kind), slog.Any("error", cause))
		return nil
	}
	return p.retry.HandleTransientFailure(ctx, job, msg, cause)
}
