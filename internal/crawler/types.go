package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
	JobStatusStopped JobStatus = "stopped"
)

// HTMLVersion classifies the doctype declared by a page.
type HTMLVersion string

// Recognised HTML versions.
const (
	HTML5   HTMLVersion = "HTML5"
	XHTML11 HTMLVersion = "XHTML 1.1"
	XHTML10 HTMLVersion = "XHTML 1.0"
	HTML401 HTMLVersion = "HTML 4.01"
	HTML40  HTMLVersion = "HTML 4.0"
)

// HeadingLevels is the number of heading levels, h1 through h6.
const HeadingLevels = 6

// Job is one submitted crawl-and-analyze request.
type Job struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Status    JobStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Result    *AnalysisResult `json:"result,omitempty"`
}

// HasResult reports whether a result has ever been committed for the job.
func (j Job) HasResult() bool {
	return j.Result != nil
}

// AnalysisResult is the immutable outcome of analyzing one page.
type AnalysisResult struct {
	HTMLVersion       HTMLVersion        `json:"html_version"`
	Title             string             `json:"title"`
	Headings          [HeadingLevels]int `json:"headings"`
	InternalLinks     int                `json:"internal_links"`
	ExternalLinks     int                `json:"external_links"`
	InaccessibleLinks int                `json:"inaccessible_links"`
	BrokenLinks       []string           `json:"broken_links"`
	HasLoginForm      bool               `json:"has_login_form"`

	// FinalURL, StatusCode and SnapshotURI describe the page fetch itself.
	FinalURL    string    `json:"final_url,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// HeadingCount returns the number of headings seen at level (1..6).
func (r AnalysisResult) HeadingCount(level int) int {
	if level < 1 || level > HeadingLevels {
		return 0
	}
	return r.Headings[level-1]
}

// Clone returns a deep copy so callers can never mutate a stored result.
func (r AnalysisResult) Clone() AnalysisResult {
	cp := r
	if r.BrokenLinks != nil {
		cp.BrokenLinks = append([]string(nil), r.BrokenLinks...)
	}
	return cp
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID string
	URL   string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// CompletionEvent is published when an execution reaches a terminal state.
type CompletionEvent struct {
	JobID             string    `json:"job_id"`
	URL               string    `json:"url"`
	Status            JobStatus `json:"status"`
	InaccessibleLinks int       `json:"inaccessible_links"`
	Timestamp         time.Time `json:"timestamp"`
}
