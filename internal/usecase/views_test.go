package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlab/cardsmith/internal/domain"
	"github.com/craftlab/cardsmith/internal/usecase"
)

type stubBlobs struct {
	presigns []string
	ttls     []time.Duration
}

func (s *stubBlobs) Put(_ domain.Context, _ string, _ []byte, _ string) error { return nil }

func (s *stubBlobs) Get(_ domain.Context, _ string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func (s *stubBlobs) PresignGet(_ domain.Context, key string, ttl time.Duration) (string, error) {
	s.presigns = append(s.presigns, key)
	s.ttls = append(s.ttls, ttl)
	return "https://blob.test/" + key + "?sig=abc", nil
}

func TestStatus_CompletedGetsFreshSignedURL(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	jobs := newStubJobs()
	jobs.byID["job-1"] = domain.Job{
		ID: "job-1", SessionID: "sess-1", Kind: domain.KindCard,
		Status: domain.JobCompleted, ArtifactKey: "cards/a.png", CompletedAt: &now,
	}
	blobs := &stubBlobs{}
	svc := usecase.NewStatusService(jobs, blobs, 15*time.Minute)

	v, err := svc.Get(context.Background(), "sess-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, v.Status)
	assert.Contains(t, v.ArtifactURL, "cards/a.png")

	// Every poll mints a fresh URL with the short TTL.
	_, err = svc.Get(context.Background(), "sess-1", "job-1")
	require.NoError(t, err)
	assert.Len(t, blobs.presigns, 2)
	assert.Equal(t, 15*time.Minute, blobs.ttls[0])
}

func TestStatus_PendingHasNoURL(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	jobs.byID["job-2"] = domain.Job{ID: "job-2", SessionID: "sess-1", Status: domain.JobQueued}
	svc := usecase.NewStatusService(jobs, &stubBlobs{}, 15*time.Minute)

	v, err := svc.Get(context.Background(), "sess-1", "job-2")
	require.NoError(t, err)
	assert.Empty(t, v.ArtifactURL)
}

func TestStatus_FailedSurfacesErrorKind(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	jobs.byID["job-3"] = domain.Job{
		ID: "job-3", SessionID: "sess-1", Status: domain.JobFailed,
		ErrorKind: domain.ErrorKindPolicyBlocked, ErrorMsg: "blocked",
	}
	svc := usecase.NewStatusService(jobs, &stubBlobs{}, 15*time.Minute)

	v, err := svc.Get(context.Background(), "sess-1", "job-3")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindPolicyBlocked, v.ErrorKind)
	assert.Empty(t, v.ArtifactURL)
}

func TestStatus_OtherSessionLooksLikeNotFound(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	jobs.byID["job-4"] = domain.Job{ID: "job-4", SessionID: "sess-1", Status: domain.JobQueued}
	svc := usecase.NewStatusService(jobs, &stubBlobs{}, 15*time.Minute)

	_, err := svc.Get(context.Background(), "sess-2", "job-4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGallery_SignedURLsOnly(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	jobs := newStubJobs()
	jobs.listOut = []domain.Job{
		{ID: "job-b", Kind: domain.KindCard, Prompt: "b", ArtifactKey: "cards/b.png", UserOrdinal: 2, CompletedAt: &now},
		{ID: "job-a", Kind: domain.KindCard, Prompt: "a", ArtifactKey: "cards/a.png", UserOrdinal: 1, CompletedAt: &now},
	}
	blobs := &stubBlobs{}
	svc := usecase.NewGalleryService(jobs, blobs, 168*time.Hour, 100)

	items, err := svc.List(context.Background(), "sess-1", domain.KindCard)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "job-b", items[0].JobID)
	assert.Contains(t, items[0].ArtifactURL, "cards/b.png")
	assert.Equal(t, 168*time.Hour, blobs.ttls[0])
}

func TestGallery_ListAllMergesKindsNewestFirst(t *testing.T) {
	t.Parallel()
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	jobs := newStubJobs()
	jobs.listByKind = map[domain.Kind][]domain.Job{
		domain.KindCard: {
			{ID: "job-card", Kind: domain.KindCard, ArtifactKey: "cards/a.png", CompletedAt: &older},
		},
		domain.KindVideo: {
			{ID: "job-video", Kind: domain.KindVideo, ArtifactKey: "videos/a.mp4", CompletedAt: &newer},
		},
	}
	svc := usecase.NewGalleryService(jobs, &stubBlobs{}, 168*time.Hour, 100)

	items, err := svc.ListAll(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "job-video", items[0].JobID)
	assert.Equal(t, "job-card", items[1].JobID)
}

func TestGallery_ListAllCapsMergedItems(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	jobs := newStubJobs()
	jobs.listByKind = map[domain.Kind][]domain.Job{
		domain.KindCard: {
			{ID: "job-1", Kind: domain.KindCard, ArtifactKey: "cards/1.png", CompletedAt: &now},
			{ID: "job-2", Kind: domain.KindCard, ArtifactKey: "cards/2.png", CompletedAt: &now},
		},
		domain.KindVideo: {
			{ID: "job-3", Kind: domain.KindVideo, ArtifactKey: "videos/3.mp4", CompletedAt: &now},
		},
	}
	svc := usecase.NewGalleryService(jobs, &stubBlobs{}, 168*time.Hour, 2)

	items, err := svc.ListAll(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestGallery_EmptySession(t *testing.T) {
	t.Parallel()
	svc := usecase.NewGalleryService(newStubJobs(), &stubBlobs{}, time.Hour, 100)
	items, err := svc.List(context.Background(), "sess-empty", domain.KindVideo)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSessionIDForUser_Stable(t *testing.T) {
	t.Parallel()
	a := usecase.SessionIDForUser("studio")
	b := usecase.SessionIDForUser("  Studio ")
	assert.Equal(t, a, b)
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, usecase.SessionIDForUser("other"))
}

func TestQuotaSummary(t *testing.T) {
	t.Parallel()
	ledger := &stubLedger{used: map[domain.Kind]int{domain.KindCard: 2}, override: 1}
	svc := usecase.NewSessionService(ledger, testPolicy())

	sum, err := svc.QuotaSummary(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, usecase.KindQuota{Used: 2, Budget: 10, Remaining: 8, OverrideLevel: 1}, sum[domain.KindCard])
	assert.Equal(t, usecase.KindQuota{Used: 0, Budget: 6, Remaining: 6, OverrideLevel: 1}, sum[domain.KindVideo])
	assert.Equal(t, usecase.KindQuota{Used: 0, Budget: 2, Remaining: 2, OverrideLevel: 1}, sum[domain.KindPrint])
}
