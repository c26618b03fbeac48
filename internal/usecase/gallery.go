package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/craftlab/cardsmith/internal/domain"
)

// GalleryService lists a session's completed artifacts as signed URLs with a
// long TTL. Response size is proportional to the item count only.
type GalleryService struct {
	Jobs     domain.JobRepository
	Blobs    domain.BlobStore
	LinkTTL  time.Duration
	MaxItems int
}

// NewGalleryService constructs a GalleryService.
func NewGalleryService(jobs domain.JobRepository, blobs domain.BlobStore, linkTTL time.Duration, maxItems int) GalleryService {
	return GalleryService{Jobs: jobs, Blobs: blobs, LinkTTL: linkTTL, MaxItems: maxItems}
}

// GalleryItem is one completed artifact in the gallery.
type GalleryItem struct {
	JobID       string
	Kind        domain.Kind
	Prompt      string
	ArtifactURL string
	UserOrdinal int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// List returns the session's completed artifacts for a kind, newest first.
func (s GalleryService) List(ctx domain.Context, sessionID string, kind domain.Kind) ([]GalleryItem, error) {
	jobs, err := s.Jobs.ListCompletedBySession(ctx, sessionID, kind, s.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("op=gallery.list: %w", err)
	}
	items := make([]GalleryItem, 0, len(jobs))
	for _, j := range jobs {
		url, err := s.Blobs.PresignGet(ctx, j.ArtifactKey, s.LinkTTL)
		if err != nil {
			return nil, fmt.Errorf("op=gallery.list presign job_id=%s: %w", j.ID, err)
		}
		items = append(items, GalleryItem{
			JobID:       j.ID,
			Kind:        j.Kind,
			Prompt:      j.Prompt,
			ArtifactURL: url,
			UserOrdinal: j.UserOrdinal,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
		})
	}
	return items, nil
}

// ListAll returns the session's completed artifacts across every pipeline
// kind, merged newest first.
func (s GalleryService) ListAll(ctx domain.Context, sessionID string) ([]GalleryItem, error) {
	var merged []GalleryItem
	for _, kind := range []domain.Kind{domain.KindCard, domain.KindVideo} {
		items, err := s.List(ctx, sessionID, kind)
		if err != nil {
			return nil, err
		}
		merged = append(merged, items...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].CompletedAt, merged[j].CompletedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if s.MaxItems > 0 && len(merged) > s.MaxItems {
		merged = merged[:s.MaxItems]
	}
	return merged, nil
}
