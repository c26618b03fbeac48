package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlab/cardsmith/internal/domain"
	"github.com/craftlab/cardsmith/internal/usecase"
)

type stubJobs struct {
	created    []domain.Job
	byID       map[string]domain.Job
	ordinal    int
	listOut    []domain.Job
	listByKind map[domain.Kind][]domain.Job
	failedID   string
	failKind   string
}

func newStubJobs() *stubJobs { return &stubJobs{byID: map[string]domain.Job{}} }

func (s *stubJobs) Create(_ domain.Context, j domain.Job) error {
	s.created = append(s.created, j)
	s.byID[j.ID] = j
	return nil
}

func (s *stubJobs) Get(_ domain.Context, id string) (domain.Job, error) {
	j, ok := s.byID[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (s *stubJobs) Claim(_ domain.Context, id string) (domain.Job, error) {
	return s.byID[id], nil
}

func (s *stubJobs) Complete(_ domain.Context, _, _ string) (bool, error) { return true, nil }

func (s *stubJobs) Fail(_ domain.Context, id, errorKind, _ string) error {
	s.failedID = id
	s.failKind = errorKind
	j := s.byID[id]
	j.Status = domain.JobFailed
	j.ErrorKind = errorKind
	s.byID[id] = j
	return nil
}

func (s *stubJobs) Requeue(_ domain.Context, _ string) error { return nil }

func (s *stubJobs) ListCompletedBySession(_ domain.Context, _ string, kind domain.Kind, _ int) ([]domain.Job, error) {
	if s.listByKind != nil {
		return s.listByKind[kind], nil
	}
	return s.listOut, nil
}

func (s *stubJobs) NextUserOrdinal(_ domain.Context, _ string, _ domain.Kind) (int, error) {
	s.ordinal++
	return s.ordinal, nil
}

func (s *stubJobs) StaleProcessing(_ domain.Context, _ time.Time, _ int) ([]domain.Job, error) {
	return nil, nil
}

type stubQueue struct {
	published []domain.JobMessage
	err       error
}

func (s *stubQueue) Publish(_ domain.Context, msg domain.JobMessage) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, msg)
	return nil
}

type stubLedger struct {
	used     map[domain.Kind]int
	override int
	snapErr  error
}

func (s *stubLedger) Snapshot(_ domain.Context, _ string, kind domain.Kind) (int, int, error) {
	if s.snapErr != nil {
		return 0, 0, s.snapErr
	}
	return s.used[kind], s.override, nil
}

func (s *stubLedger) IncrCompleted(_ domain.Context, _ string, kind domain.Kind) error {
	if s.used == nil {
		s.used = map[domain.Kind]int{}
	}
	s.used[kind]++
	return nil
}

func (s *stubLedger) SetOverrideLevel(_ domain.Context, _ string, level int) error {
	s.override = level
	return nil
}

type stubTokens struct{ n int }

func (s stubTokens) Count(_ string) (int, error) { return s.n, nil }

func testPolicy() domain.QuotaPolicy {
	return domain.QuotaPolicy{Base: map[domain.Kind]int{
		domain.KindCard: 5, domain.KindVideo: 3, domain.KindPrint: 1,
	}}
}

func testBounds(kind domain.Kind) (int, int) {
	if kind == domain.KindVideo {
		return 5, 512
	}
	return 10, 1024
}

func newIntake(jobs *stubJobs, q *stubQueue, ledger *stubLedger) usecase.IntakeService {
	return usecase.NewIntakeService(jobs, q, ledger, nil, testPolicy(), testBounds, 0)
}

func TestSubmit_PersistsBeforePublish(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	q := &stubQueue{}
	svc := newIntake(jobs, q, &stubLedger{})

	res, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "a red dragon breathing fire")
	require.NoError(t, err)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 1, res.UserOrdinal)
	// Base budget 5, one job just admitted.
	assert.Equal(t, 4, res.Remaining)

	require.Len(t, jobs.created, 1)
	require.Len(t, q.published, 1)
	assert.Equal(t, jobs.created[0].ID, q.published[0].JobID)
	assert.Equal(t, domain.JobQueued, jobs.created[0].Status)
}

func TestSubmit_PromptBounds(t *testing.T) {
	t.Parallel()
	svc := newIntake(newStubJobs(), &stubQueue{}, &stubLedger{})

	_, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "short")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Submit(context.Background(), "sess-1", domain.KindCard, strings.Repeat("x", 1025))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Video bounds are looser on the low end.
	_, err = svc.Submit(context.Background(), "sess-1", domain.KindVideo, "loops")
	assert.NoError(t, err)
}

func TestSubmit_WhitespaceTrimmedBeforeBounds(t *testing.T) {
	t.Parallel()
	svc := newIntake(newStubJobs(), &stubQueue{}, &stubLedger{})
	_, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "   pad   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	q := &stubQueue{}
	ledger := &stubLedger{used: map[domain.Kind]int{domain.KindCard: 5}}
	svc := newIntake(jobs, q, ledger)

	_, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "a red dragon breathing fire")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Empty(t, jobs.created)
	assert.Empty(t, q.published)
}

func TestSubmit_OverrideRaisesBudget(t *testing.T) {
	t.Parallel()
	ledger := &stubLedger{used: map[domain.Kind]int{domain.KindCard: 5}, override: 1}
	svc := newIntake(newStubJobs(), &stubQueue{}, ledger)

	res, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "a red dragon breathing fire")
	require.NoError(t, err)
	// Budget 10, 5 completed plus the admission itself.
	assert.Equal(t, 4, res.Remaining)
}

func TestSubmit_PublishFailureMarksJobFailed(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	q := &stubQueue{err: errors.New("broker down")}
	svc := newIntake(jobs, q, &stubLedger{})

	_, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "a red dragon breathing fire")
	assert.ErrorIs(t, err, domain.ErrEnqueueFailed)
	require.Len(t, jobs.created, 1)
	assert.Equal(t, jobs.created[0].ID, jobs.failedID)
	assert.Equal(t, domain.ErrorKindEnqueueFailed, jobs.failKind)
}

func TestSubmit_TokenGuard(t *testing.T) {
	t.Parallel()
	svc := usecase.NewIntakeService(newStubJobs(), &stubQueue{}, &stubLedger{}, stubTokens{n: 600}, testPolicy(), testBounds, 512)
	_, err := svc.Submit(context.Background(), "sess-1", domain.KindCard, "a red dragon breathing fire")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmit_OrdinalAdvancesPerSubmission(t *testing.T) {
	t.Parallel()
	jobs := newStubJobs()
	svc := newIntake(jobs, &stubQueue{}, &stubLedger{})
	ctx := context.Background()

	a, err := svc.Submit(ctx, "sess-1", domain.KindCard, "a red dragon breathing fire")
	require.NoError(t, err)
	b, err := svc.Submit(ctx, "sess-1", domain.KindCard, "a blue dragon breathing ice")
	require.NoError(t, err)
	assert.Equal(t, 1, a.UserOrdinal)
	assert.Equal(t, 2, b.UserOrdinal)
}
