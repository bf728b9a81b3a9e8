package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/storage/memory"
)

type sequentialIDs struct{ n int }

func (g *sequentialIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingCanceler struct{ canceled []string }

func (c *recordingCanceler) Cancel(jobID string) bool {
	c.canceled = append(c.canceled, jobID)
	return true
}

func newService(t *testing.T) (*Service, *memory.JobStore, *recordingCanceler) {
	t.Helper()
	store := memory.NewJobStore()
	canceler := &recordingCanceler{}
	clock := &tickingClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(store, &sequentialIDs{}, clock, canceler, nil), store, canceler
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	job, err := svc.Submit(context.Background(), "  https://example.com  ")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "https://example.com", job.URL)
	require.Equal(t, crawler.JobStatusQueued, job.Status)

	stored, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job, stored)
}

func TestSubmitRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	_, err := svc.Submit(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyURL)
}

func TestSubmitIDFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(memory.NewJobStore(), failingIDs{}, &tickingClock{}, nil, nil)
	_, err := svc.Submit(context.Background(), "https://example.com")
	require.ErrorContains(t, err, "generate job id")
}

func TestRerunAndStart(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	ctx := context.Background()
	job, err := svc.Submit(ctx, "https://example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Rerun(ctx, job.ID), crawler.ErrInvalidTransition, "queued job cannot be re-queued")

	require.NoError(t, store.ClaimJob(ctx, job.ID))
	require.NoError(t, store.CommitResult(ctx, job.ID, crawler.AnalysisResult{Title: "first"}))
	require.NoError(t, svc.Rerun(ctx, job.ID))

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusQueued, got.Status)
	require.Equal(t, "first", got.Result.Title)

	require.NoError(t, svc.Stop(ctx, job.ID))
	require.NoError(t, svc.Start(ctx, job.ID))
	got, err = svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusQueued, got.Status)

	require.ErrorIs(t, svc.Rerun(ctx, "missing"), crawler.ErrNotFound)
}

func TestRerunRejectsRunningJob(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	ctx := context.Background()
	job, err := svc.Submit(ctx, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, store.ClaimJob(ctx, job.ID))

	require.ErrorIs(t, svc.Rerun(ctx, job.ID), crawler.ErrInvalidTransition)
	require.ErrorIs(t, svc.Start(ctx, job.ID), crawler.ErrInvalidTransition)

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusRunning, got.Status)
}

func TestStopCancelsExecution(t *testing.T) {
	t.Parallel()

	svc, store, canceler := newService(t)
	ctx := context.Background()
	job, err := svc.Submit(ctx, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, store.ClaimJob(ctx, job.ID))

	require.NoError(t, svc.Stop(ctx, job.ID))
	require.Equal(t, []string{job.ID}, canceler.canceled)

	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusStopped, got.Status)

	require.ErrorIs(t, svc.Stop(ctx, job.ID), crawler.ErrInvalidTransition)
	require.ErrorIs(t, svc.Stop(ctx, "missing"), crawler.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	t.Parallel()

	svc, _, canceler := newService(t)
	ctx := context.Background()
	first, err := svc.Submit(ctx, "https://a.example")
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "https://b.example")
	require.NoError(t, err)

	jobs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, second.ID, jobs[0].ID)
	require.Equal(t, first.ID, jobs[1].ID)

	require.NoError(t, svc.Delete(ctx, first.ID))
	require.Equal(t, []string{first.ID}, canceler.canceled)
	jobs, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.ErrorIs(t, svc.Delete(ctx, first.ID), crawler.ErrNotFound)
	_, err = svc.Get(ctx, first.ID)
	require.ErrorIs(t, err, crawler.ErrNotFound)
}
