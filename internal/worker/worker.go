// Package worker runs one job execution: claim, analyze, commit.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/metrics"
)

// Analyzer produces the result for one page.
type Analyzer interface {
	Analyze(ctx context.Context, request crawler.FetchRequest) (crawler.AnalysisResult, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives completion events. Empty disables publishing.
	Topic string
}

// outcomeRequeued labels executions interrupted by shutdown.
const outcomeRequeued = "requeued"

// Worker executes claimed jobs.
type Worker struct {
	jobStore  crawler.JobStore
	analyzer  Analyzer
	publisher crawler.Publisher
	clock     crawler.Clock
	registry  *Registry
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	jobStore crawler.JobStore,
	analyzer Analyzer,
	publisher crawler.Publisher,
	clock crawler.Clock,
	registry *Registry,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Worker{
		jobStore:  jobStore,
		analyzer:  analyzer,
		publisher: publisher,
		clock:     clock,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute runs job to a terminal state. It returns without analyzing when
// another execution wins the claim or the job was stopped in between.
// Cancelling ctx interrupts the analysis and puts the job back in the queue.
func (w *Worker) Execute(ctx context.Context, job crawler.Job) {
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("url", job.URL))

	if err := w.jobStore.ClaimJob(ctx, job.ID); err != nil {
		if errors.Is(err, crawler.ErrClaimLost) {
			log.Debug("claim lost")
			return
		}
		log.Error("claim job failed", zap.Error(err))
		return
	}
	metrics.IncActiveExecutions()
	defer metrics.DecActiveExecutions()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := w.registry.Register(job.ID, cancel)
	defer release()

	// Writes after the analysis must land even when execCtx was cancelled.
	storeCtx := context.WithoutCancel(ctx)

	current, err := w.jobStore.GetJob(execCtx, job.ID)
	if err != nil {
		log.Error("reload job failed", zap.Error(err))
		return
	}
	if current.Status == crawler.JobStatusStopped {
		log.Info("job stopped before fetch")
		w.finish(storeCtx, job, crawler.JobStatusStopped, 0)
		return
	}

	log.Info("analysis started")
	result, err := w.analyzer.Analyze(execCtx, crawler.FetchRequest{JobID: job.ID, URL: job.URL})
	switch {
	case err == nil:
		w.commit(storeCtx, log, job, result)
	case ctx.Err() != nil:
		w.requeue(storeCtx, log, job)
	case execCtx.Err() != nil:
		log.Info("analysis interrupted by stop request")
		w.finish(storeCtx, job, crawler.JobStatusStopped, 0)
	default:
		log.Warn("analysis failed", zap.Error(err))
		w.fail(storeCtx, log, job)
	}
}

func (w *Worker) commit(ctx context.Context, log *zap.Logger, job crawler.Job, result crawler.AnalysisResult) {
	err := w.jobStore.CommitResult(ctx, job.ID, result)
	switch {
	case err == nil:
		log.Info("analysis committed", zap.Int("inaccessible_links", result.InaccessibleLinks))
		w.finish(ctx, job, crawler.JobStatusDone, result.InaccessibleLinks)
	case errors.Is(err, crawler.ErrInvalidTransition):
		log.Info("result discarded, job left running state", zap.Error(err))
		w.settle(ctx, log, job)
	default:
		// The job stays running until someone requests a re-run.
		log.Error("commit result failed", zap.Error(err))
		metrics.ObserveJob("commit_failed")
	}
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, job crawler.Job) {
	err := w.jobStore.SetStatus(ctx, job.ID, crawler.JobStatusError)
	switch {
	case err == nil:
		w.finish(ctx, job, crawler.JobStatusError, 0)
	case errors.Is(err, crawler.ErrInvalidTransition):
		log.Info("error status discarded, job left running state", zap.Error(err))
		w.settle(ctx, log, job)
	default:
		log.Error("set error status failed", zap.Error(err))
	}
}

// settle reports the state another actor moved the job to while this
// execution was running. Only terminal states produce an event.
func (w *Worker) settle(ctx context.Context, log *zap.Logger, job crawler.Job) {
	current, err := w.jobStore.GetJob(ctx, job.ID)
	if err != nil {
		log.Info("job gone after execution", zap.Error(err))
		return
	}
	if !current.Status.Terminal() {
		log.Info("job no longer owned by execution", zap.String("status", string(current.Status)))
		return
	}
	w.finish(ctx, job, current.Status, 0)
}

func (w *Worker) requeue(ctx context.Context, log *zap.Logger, job crawler.Job) {
	if err := w.jobStore.ReleaseJob(ctx, job.ID); err != nil {
		if !errors.Is(err, crawler.ErrInvalidTransition) && !errors.Is(err, crawler.ErrNotFound) {
			log.Warn("requeue on shutdown failed", zap.Error(err))
		}
		return
	}
	log.Info("analysis interrupted by shutdown, job requeued")
	metrics.ObserveJob(outcomeRequeued)
}

// finish records the terminal state and publishes the completion event.
func (w *Worker) finish(ctx context.Context, job crawler.Job, status crawler.JobStatus, inaccessible int) {
	metrics.ObserveJob(string(status))
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := crawler.CompletionEvent{
		JobID:             job.ID,
		URL:               job.URL,
		Status:            status,
		InaccessibleLinks: inaccessible,
		Timestamp:         w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("publish completion event failed",
			zap.String("job_id", job.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
