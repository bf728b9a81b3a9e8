// Package jobs exposes the job operations offered to request handlers.
// None of them analyze synchronously; they only move jobs through the
// lifecycle and leave execution to the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

// ErrEmptyURL is returned when a job is submitted without a URL.
var ErrEmptyURL = errors.New("url is required")

// Canceler interrupts an in-flight execution.
type Canceler interface {
	Cancel(jobID string) bool
}

// Service implements submit, re-run, stop, list and delete.
type Service struct {
	store    crawler.JobStore
	ids      crawler.IDGenerator
	clock    crawler.Clock
	canceler Canceler
	logger   *zap.Logger
}

// NewService constructs a Service. canceler may be nil.
func NewService(
	store crawler.JobStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	canceler Canceler,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		ids:      ids,
		clock:    clock,
		canceler: canceler,
		logger:   logger,
	}
}

// Submit creates a queued job for rawURL. Reachability is not checked.
func (s *Service) Submit(ctx context.Context, rawURL string) (crawler.Job, error) {
	target := strings.TrimSpace(rawURL)
	if target == "" {
		return crawler.Job{}, ErrEmptyURL
	}
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:        id,
		URL:       target,
		Status:    crawler.JobStatusQueued,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info("job submitted", zap.String("job_id", id), zap.String("url", target))
	return job, nil
}

// Rerun puts a finished job back in the queue. Its previous result stays
// visible until the next commit replaces it.
func (s *Service) Rerun(ctx context.Context, jobID string) error {
	if err := s.store.SetStatus(ctx, jobID, crawler.JobStatusQueued); err != nil {
		return fmt.Errorf("rerun job: %w", err)
	}
	s.logger.Info("job requeued", zap.String("job_id", jobID))
	return nil
}

// Start is an alias of Rerun backing the /analyze/start endpoint.
func (s *Service) Start(ctx context.Context, jobID string) error {
	return s.Rerun(ctx, jobID)
}

// Stop moves a queued or running job to stopped and cancels its execution.
func (s *Service) Stop(ctx context.Context, jobID string) error {
	if err := s.store.SetStatus(ctx, jobID, crawler.JobStatusStopped); err != nil {
		return fmt.Errorf("stop job: %w", err)
	}
	interrupted := false
	if s.canceler != nil {
		interrupted = s.canceler.Cancel(jobID)
	}
	s.logger.Info("job stopped", zap.String("job_id", jobID), zap.Bool("interrupted", interrupted))
	return nil
}

// List returns every job with its result, newest first.
func (s *Service) List(ctx context.Context) ([]crawler.Job, error) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, jobID string) (crawler.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Delete removes a job and its result. A running execution is cancelled.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if s.canceler != nil {
		s.canceler.Cancel(jobID)
	}
	s.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}
