package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/craftlab/cardsmith/internal/domain"
)

// StuckJobSweeper reconciles jobs abandoned by crashed workers. A job stuck
// in processing past the maximum age is marked failed with the dead_lettered
// kind; the queue's redelivery already covers the shorter failures.
type StuckJobSweeper struct {
	jobs             domain.JobRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

func NewStuckJobSweeper(jobs domain.JobRepository, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{
		jobs:             jobs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps immediately and then on every tick until the context ends.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	totalMarked := 0
	for {
		stale, err := s.jobs.StaleProcessing(ctx, cutoff, pageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck job sweep failed to list jobs", slog.Any("error", err))
			return
		}
		if len(stale) == 0 {
			break
		}
		marked := 0
		for _, j := range stale {
			msg := fmt.Sprintf("processing exceeded %v; reclaimed by sweeper", s.maxProcessingAge)
			if err := s.jobs.Fail(ctx, j.ID, domain.ErrorKindDeadLettered, msg); err != nil {
				span.RecordError(err)
				slog.Error("stuck job sweep failed to mark job",
					slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			marked++
			slog.Warn("stale processing job marked failed",
				slog.String("job_id", j.ID),
				slog.String("kind", string(j.Kind)),
				slog.Int("attempt", j.Attempt))
		}
		totalMarked += marked
		// Every fetched job errored out; stop rather than spin on the same page.
		if marked == 0 {
			break
		}
		if len(stale) < pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("jobs.total_marked_failed", totalMarked))
}
