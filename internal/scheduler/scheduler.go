// Package scheduler polls the job store and fans queued jobs out to
// independent executions.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/metrics"
)

const defaultInterval = 10 * time.Second

// JobLister lists jobs in a given state.
type JobLister interface {
	ListJobsByStatus(ctx context.Context, status crawler.JobStatus) ([]crawler.Job, error)
}

// Executor runs one job to completion.
type Executor interface {
	Execute(ctx context.Context, job crawler.Job)
}

// Config controls Scheduler behavior.
type Config struct {
	// Interval between polls. Zero means 10s.
	Interval time.Duration
}

// Scheduler is the long-lived poll loop.
type Scheduler struct {
	jobs     JobLister
	executor Executor
	interval time.Duration
	logger   *zap.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Scheduler.
func New(jobs JobLister, executor Executor, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		jobs:     jobs,
		executor: executor,
		interval: interval,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Run polls immediately and then on every interval until ctx finishes. It
// returns once every execution it started has returned.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for executions")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll starts one goroutine per queued job and never waits for them.
func (s *Scheduler) poll(ctx context.Context) {
	jobs, err := s.jobs.ListJobsByStatus(ctx, crawler.JobStatusQueued)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObservePollError()
		s.logger.Error("list queued jobs failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if !s.acquire(job.ID) {
			continue
		}
		s.wg.Add(1)
		go func(job crawler.Job) {
			defer s.wg.Done()
			defer s.releaseJob(job.ID)
			s.executor.Execute(ctx, job)
		}(job)
	}
	if len(jobs) > 0 {
		s.logger.Debug("dispatched queued jobs", zap.Int("count", len(jobs)))
	}
}

// acquire skips jobs this process is already executing.
func (s *Scheduler) acquire(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[jobID]; busy {
		return false
	}
	s.inFlight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, jobID)
}
