package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

// ErrJobExists is returned when CreateJob sees a duplicate ID.
var ErrJobExists = errors.New("job already exists")

// JobStore keeps jobs in memory. Every read returns a copy.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.Job
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawler.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: %w", job.ID, ErrJobExists)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrNotFound)
	}
	return copyJob(job), nil
}

// ListJobs returns every job, newest first.
func (s *JobStore) ListJobs(_ context.Context) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, copyJob(job))
	}
	slices.SortFunc(out, func(a, b crawler.Job) int {
		return -compareAge(a, b)
	})
	return out, nil
}

// ListJobsByStatus returns the jobs in status, oldest first.
func (s *JobStore) ListJobsByStatus(_ context.Context, status crawler.JobStatus) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, copyJob(job))
		}
	}
	slices.SortFunc(out, compareAge)
	return out, nil
}

// SetStatus moves a job to status when the lifecycle allows it.
func (s *JobStore) SetStatus(_ context.Context, jobID string, status crawler.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("set status %s: %w", jobID, crawler.ErrNotFound)
	}
	if err := crawler.CheckTransition(job.Status, status); err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}
	job.Status = status
	s.jobs[jobID] = job
	return nil
}

// ClaimJob moves a queued job to running.
func (s *JobStore) ClaimJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("claim job %s: %w", jobID, crawler.ErrNotFound)
	}
	if job.Status != crawler.JobStatusQueued {
		return fmt.Errorf("claim job %s: %w", jobID, crawler.ErrClaimLost)
	}
	job.Status = crawler.JobStatusRunning
	s.jobs[jobID] = job
	return nil
}

// ReleaseJob moves a running job back to queued.
func (s *JobStore) ReleaseJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("release job %s: %w", jobID, crawler.ErrNotFound)
	}
	if job.Status != crawler.JobStatusRunning {
		return fmt.Errorf("release job %s: %w: %s -> %s",
			jobID, crawler.ErrInvalidTransition, job.Status, crawler.JobStatusQueued)
	}
	job.Status = crawler.JobStatusQueued
	s.jobs[jobID] = job
	return nil
}

// CommitResult replaces the job's result and marks it done, only while the
// job is running.
func (s *JobStore) CommitResult(_ context.Context, jobID string, result crawler.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("commit result %s: %w", jobID, crawler.ErrNotFound)
	}
	if err := crawler.CheckTransition(job.Status, crawler.JobStatusDone); err != nil {
		return fmt.Errorf("commit result %s: %w", jobID, err)
	}
	stored := result.Clone()
	job.Result = &stored
	job.Status = crawler.JobStatusDone
	s.jobs[jobID] = job
	return nil
}

// DeleteJob removes a job together with its result.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("delete job %s: %w", jobID, crawler.ErrNotFound)
	}
	delete(s.jobs, jobID)
	return nil
}

func copyJob(job crawler.Job) crawler.Job {
	if job.Result != nil {
		result := job.Result.Clone()
		job.Result = &result
	}
	return job
}

func compareAge(a, b crawler.Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
