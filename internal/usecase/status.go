package usecase

import (
	"fmt"
	"time"

	"github.com/craftlab/cardsmith/internal/domain"
)

// StatusService reads job state for polling clients. Completed jobs get a
// fresh short-lived signed URL on every hit; artifact bytes never pass
// through here.
type StatusService struct {
	Jobs    domain.JobRepository
	Blobs   domain.BlobStore
	LinkTTL time.Duration
}

// NewStatusService constructs a StatusService.
func NewStatusService(jobs domain.JobRepository, blobs domain.BlobStore, linkTTL time.Duration) StatusService {
	return StatusService{Jobs: jobs, Blobs: blobs, LinkTTL: linkTTL}
}

// JobStatusView is the polling response shape.
type JobStatusView struct {
	JobID       string
	Kind        domain.Kind
	Status      domain.JobStatus
	ArtifactURL string
	ErrorKind   string
	ErrorMsg    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Get returns the job's current state. Requests for another session's job
// surface as not found.
func (s StatusService) Get(ctx domain.Context, sessionID, jobID string) (JobStatusView, error) {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return JobStatusView{}, err
	}
	if job.SessionID != sessionID {
		return JobStatusView{}, fmt.Errorf("op=status.get session mismatch: %w", domain.ErrNotFound)
	}

	view := JobStatusView{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		ErrorKind:   job.ErrorKind,
		ErrorMsg:    job.ErrorMsg,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == domain.JobCompleted && job.ArtifactKey != "" {
		url, err := s.Blobs.PresignGet(ctx, job.ArtifactKey, s.LinkTTL)
		if err != nil {
			return JobStatusView{}, fmt.Errorf("op=status.get presign: %w", err)
		}
		view.ArtifactURL = url
	}
	return view, nil
}
