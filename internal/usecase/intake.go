// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/domain"
	obsctx "github.com/craftlab/cardsmith/internal/observability"
)

// PromptBounds returns the inclusive [min, max] prompt length for a kind.
type PromptBounds func(kind domain.Kind) (int, int)

// IntakeService admits submissions: validate, quota precheck, persist, then
// publish. The job row always exists before its message is on the wire.
type IntakeService struct {
	Jobs   domain.JobRepository
	Queue  domain.Queue
	Ledger domain.QuotaLedger
	// Tokens is optional; when nil the token guard is skipped.
	Tokens    domain.TokenCounter
	Policy    domain.QuotaPolicy
	Bounds    PromptBounds
	MaxTokens int
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(jobs domain.JobRepository, q domain.Queue, ledger domain.QuotaLedger, tokens domain.TokenCounter, policy domain.QuotaPolicy, bounds PromptBounds, maxTokens int) IntakeService {
	return IntakeService{
		Jobs: jobs, Queue: q, Ledger: ledger, Tokens: tokens,
		Policy: policy, Bounds: bounds, MaxTokens: maxTokens,
	}
}

// SubmitResult is returned to the caller immediately after admission.
type SubmitResult struct {
	JobID       string
	UserOrdinal int
	Remaining   int
}

// Submit admits one generation request and returns its job id. The request
// does not consume quota until the job completes.
func (s IntakeService) Submit(ctx domain.Context, sessionID string, kind domain.Kind, prompt string) (SubmitResult, error) {
	prompt = strings.TrimSpace(prompt)
	minLen, maxLen := s.Bounds(kind)
	if len(prompt) < minLen || len(prompt) > maxLen {
		return SubmitResult{}, fmt.Errorf("op=intake.submit prompt length %d outside [%d,%d]: %w",
			len(prompt), minLen, maxLen, domain.ErrInvalidInput)
	}

	if s.Tokens != nil && s.MaxTokens > 0 {
		n, err := s.Tokens.Count(prompt)
		if err != nil {
			obsctx.LoggerFromContext(ctx).Warn("token count unavailable", slog.Any("error", err))
		} else {
			observability.ObservePromptTokens(string(kind), n)
			if n > s.MaxTokens {
				return SubmitResult{}, fmt.Errorf("op=intake.submit prompt tokens %d exceed %d: %w",
					n, s.MaxTokens, domain.ErrInvalidInput)
			}
		}
	}

	used, overrideLevel, err := s.Ledger.Snapshot(ctx, sessionID, kind)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("op=intake.submit quota snapshot: %w", err)
	}
	if !s.Policy.Admits(kind, used, overrideLevel) {
		observability.QuotaRejected(string(kind))
		return SubmitResult{}, fmt.Errorf("op=intake.submit %s budget %d used %d: %w",
			kind, s.Policy.Budget(kind, overrideLevel), used, domain.ErrQuotaExceeded)
	}

	ordinal, err := s.Jobs.NextUserOrdinal(ctx, sessionID, kind)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("op=intake.submit ordinal: %w", err)
	}

	job := domain.Job{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		Kind:          kind,
		Status:        domain.JobQueued,
		Prompt:        prompt,
		CreatedAt:     time.Now().UTC(),
		UserOrdinal:   ordinal,
		OverrideLevel: overrideLevel,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return SubmitResult{}, fmt.Errorf("op=intake.submit create: %w", err)
	}

	msg := domain.JobMessage{
		JobID:         job.ID,
		SessionID:     sessionID,
		Kind:          kind,
		Prompt:        prompt,
		UserOrdinal:   ordinal,
		OverrideLevel: overrideLevel,
		RequestID:     obsctx.RequestIDFromContext(ctx),
	}
	if err := s.Queue.Publish(ctx, msg); err != nil {
		// The row stays behind as failed/enqueue_failed so the caller can see
		// what happened; no orphan message exists.
		if failErr := s.Jobs.Fail(ctx, job.ID, domain.ErrorKindEnqueueFailed, "publish failed: "+err.Error()); failErr != nil {
			obsctx.LoggerFromContext(ctx).Error("failed to mark unpublished job",
				slog.String("job_id", job.ID), slog.Any("error", failErr))
		}
		return SubmitResult{}, fmt.Errorf("op=intake.submit publish: %w: %v", domain.ErrEnqueueFailed, err)
	}

	return SubmitResult{
		JobID:       job.ID,
		UserOrdinal: ordinal,
		// The just-admitted job counts against the budget immediately.
		Remaining: s.Policy.Remaining(kind, used+1, overrideLevel),
	}, nil
}
