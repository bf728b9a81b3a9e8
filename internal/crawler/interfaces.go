package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists jobs and their analysis results.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// ListJobs returns every job with its attached result, newest first.
	ListJobs(ctx context.Context) ([]Job, error)
	ListJobsByStatus(ctx context.Context, status JobStatus) ([]Job, error)
	// SetStatus applies the transition only when CanTransition allows it.
	SetStatus(ctx context.Context, jobID string, status JobStatus) error
	// ClaimJob moves a job from queued to running in one conditional update.
	// It returns ErrClaimLost when the job is no longer queued.
	ClaimJob(ctx context.Context, jobID string) error
	// ReleaseJob undoes a claim, moving a running job back to queued. It
	// returns ErrInvalidTransition when the job is no longer running.
	ReleaseJob(ctx context.Context, jobID string) error
	// CommitResult stores the result and sets the job to done atomically.
	CommitResult(ctx context.Context, jobID string, result AnalysisResult) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
