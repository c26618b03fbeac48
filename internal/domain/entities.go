// Package domain holds the core entities, ports, and error taxonomy for the
// generation pipeline. Adapters depend on this package, never the other way.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). Callers branch with errors.Is; the HTTP layer
// maps these to status codes, the worker maps them to transient/permanent.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrTokenExpired       = errors.New("token expired")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrEnqueueFailed      = errors.New("enqueue failed")
	ErrThrottled          = errors.New("throttled")
	ErrPolicyBlocked      = errors.New("policy blocked")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInternal           = errors.New("internal error")
)

// Kind enumerates generation varieties. Print exists only as a quota bucket;
// print jobs never enter the pipeline.
type Kind string

const (
	KindCard  Kind = "card"
	KindVideo Kind = "video"
	KindPrint Kind = "print"
)

// Kinds lists every quota bucket, including print.
func Kinds() []Kind { return []Kind{KindCard, KindVideo, KindPrint} }

// ParseKind validates a caller-supplied kind for job submission.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCard, KindVideo:
		return Kind(s), nil
	default:
		return "", ErrInvalidInput
	}
}

// Plural returns the artifact key prefix for the kind.
func (k Kind) Plural() string {
	switch k {
	case KindCard:
		return "cards"
	case KindVideo:
		return "videos"
	case KindPrint:
		return "prints"
	}
	return string(k) + "s"
}

// Ext returns the artifact file extension for the kind.
func (k Kind) Ext() string {
	if k == KindVideo {
		return "mp4"
	}
	return "png"
}

// JobStatus is the job lifecycle state. Transitions are monotonic except for
// processing -> queued, which is permitted on redelivery.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Stable error kinds surfaced on the wire and stored on failed jobs.
const (
	ErrorKindInvalidInput       = "invalid_input"
	ErrorKindQuotaExceeded      = "quota_exceeded"
	ErrorKindEnqueueFailed      = "enqueue_failed"
	ErrorKindThrottled          = "throttled"
	ErrorKindBackendUnavailable = "backend_unavailable"
	ErrorKindPolicyBlocked      = "policy_blocked"
	ErrorKindDeadLettered       = "dead_lettered"
	ErrorKindInternal           = "internal"
)

// ErrorKindOf maps a pipeline error to its stable wire kind.
func ErrorKindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, ErrQuotaExceeded):
		return ErrorKindQuotaExceeded
	case errors.Is(err, ErrEnqueueFailed):
		return ErrorKindEnqueueFailed
	case errors.Is(err, ErrThrottled):
		return ErrorKindThrottled
	case errors.Is(err, ErrBackendUnavailable):
		return ErrorKindBackendUnavailable
	case errors.Is(err, ErrPolicyBlocked):
		return ErrorKindPolicyBlocked
	default:
		return ErrorKindInternal
	}
}

// Transient reports whether a worker-side error should trigger redelivery
// rather than a terminal failed state. Unknown errors count as transient and
// are bounded by the redelivery cap.
func Transient(err error) bool {
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrBackendUnavailable) {
		return true
	}
	return !errors.Is(err, ErrPolicyBlocked) && !errors.Is(err, ErrInvalidInput)
}

// Job is a single generation request and its lifecycle record.
// Invariants: completed => ArtifactKey set and readable; failed => ErrorKind
// set and no ArtifactKey; UserOrdinal unique per (SessionID, Kind).
type Job struct {
	ID            string
	SessionID     string
	Kind          Kind
	Status        JobStatus
	Prompt        string
	ArtifactKey   string
	ErrorKind     string
	ErrorMsg      string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Attempt       int
	UserOrdinal   int
	OverrideLevel int
}

// JobMessage is the queue envelope. It carries enough context for the worker
// to run without re-reading the job store. Idempotency key = JobID.
type JobMessage struct {
	JobID         string `json:"job_id"`
	SessionID     string `json:"session_id"`
	Kind          Kind   `json:"kind"`
	Prompt        string `json:"prompt"`
	UserOrdinal   int    `json:"user_ordinal"`
	OverrideLevel int    `json:"override_level"`
	Attempt       int    `json:"attempt"`
	RequestID     string `json:"request_id,omitempty"`
	// NotBeforeUnix delays processing of a redelivery until the given unix
	// time. Redeliveries are published immediately so the message is durable
	// before the failed delivery is acked; the consumer waits out the delay.
	NotBeforeUnix int64 `json:"not_before_unix,omitempty"`
}

// NotBefore returns the earliest processing time, zero when unset.
func (m JobMessage) NotBefore() time.Time {
	if m.NotBeforeUnix <= 0 {
		return time.Time{}
	}
	return time.Unix(m.NotBeforeUnix, 0)
}

// Repositories and services (ports)

// JobRepository persists jobs. Mutations are conditional on the current state;
// illegal transitions return ErrConflict.
type JobRepository interface {
	Create(ctx Context, j Job) error
	Get(ctx Context, id string) (Job, error)
	// Claim transitions queued|processing -> processing, increments attempt and
	// stamps started_at, returning the post-claim job. A completed or failed
	// job is returned unchanged so the caller can detect redelivery after a
	// terminal state.
	Claim(ctx Context, id string) (Job, error)
	// Complete transitions to completed exactly once. The second return is
	// false when the job was already completed (idempotent no-op).
	Complete(ctx Context, id, artifactKey string) (bool, error)
	Fail(ctx Context, id, errorKind, errorMsg string) error
	// Requeue returns a processing job to queued for redelivery.
	Requeue(ctx Context, id string) error
	ListCompletedBySession(ctx Context, sessionID string, kind Kind, limit int) ([]Job, error)
	// NextUserOrdinal atomically allocates the next per-(session, kind) ordinal.
	NextUserOrdinal(ctx Context, sessionID string, kind Kind) (int, error)
	// StaleProcessing returns processing jobs whose last claim is older than
	// the cutoff; used by the sweeper to reconcile lost workers.
	StaleProcessing(ctx Context, cutoff time.Time, limit int) ([]Job, error)
}

// BlobStore writes produced bytes and mints time-bounded signed read URLs.
type BlobStore interface {
	Put(ctx Context, key string, data []byte, contentType string) error
	Get(ctx Context, key string) ([]byte, error)
	PresignGet(ctx Context, key string, ttl time.Duration) (string, error)
}

// Queue publishes job messages for asynchronous processing.
type Queue interface {
	Publish(ctx Context, msg JobMessage) error
}

// QuotaLedger counts completed units per (session, kind) and tracks the
// per-session override level. Increments are atomic per session.
type QuotaLedger interface {
	// Snapshot returns the completed count and the session override level.
	Snapshot(ctx Context, sessionID string, kind Kind) (used, overrideLevel int, err error)
	IncrCompleted(ctx Context, sessionID string, kind Kind) error
	SetOverrideLevel(ctx Context, sessionID string, level int) error
}

// GenerationClient wraps the downstream model backend. It contains no retry
// logic beyond the video poll loop; transient failures are the queue's job.
type GenerationClient interface {
	// GenerateImage produces final PNG bytes synchronously (~5-30s).
	GenerateImage(ctx Context, prompt string) ([]byte, error)
	// GenerateVideo starts a backend job, polls to completion, and fetches the
	// produced bytes so the worker can persist them under our own key.
	GenerateVideo(ctx Context, prompt string, seedImage []byte) ([]byte, error)
}

// TokenCounter estimates model token usage for a prompt.
type TokenCounter interface {
	Count(text string) (int, error)
}

// Context aliases context.Context; ports pass it through untouched.
type Context = context.Context
