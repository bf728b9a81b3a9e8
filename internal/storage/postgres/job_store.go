// Package postgres provides the Postgres-backed JobStore.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// JobStore persists jobs in the analyses table and broken links in
// broken_links.
type JobStore struct {
	pool pool
}

const jobColumns = `id, url, status, created_at, html_version, title,
	h1_count, h2_count, h3_count, h4_count, h5_count, h6_count,
	internal_links, external_links, inaccessible_links, has_login_form,
	final_url, status_code, snapshot_uri, result_committed_at,
	COALESCE((SELECT array_agg(b.link ORDER BY b.position)
		FROM broken_links b WHERE b.analysis_id = analyses.id), '{}')`

// NewJobStore connects to Postgres and applies the schema.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &JobStore{pool: p}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Migrate creates the tables when they do not exist yet.
func (s *JobStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, url, status, created_at) VALUES ($1, $2, $3, $4)`,
		job.ID, job.URL, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// GetJob loads a job and its broken links. Both come from one statement, so
// a concurrent commit is seen entirely or not at all.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM analyses WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListJobs returns every job with its result, newest first.
func (s *JobStore) ListJobs(ctx context.Context) ([]crawler.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM analyses ORDER BY created_at DESC, id DESC`)
}

// ListJobsByStatus returns the jobs in status, oldest first.
func (s *JobStore) ListJobsByStatus(ctx context.Context, status crawler.JobStatus) ([]crawler.Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM analyses WHERE status = $1 ORDER BY created_at, id`,
		string(status),
	)
}

// SetStatus moves a job to status when the lifecycle allows it. The guard
// is part of the UPDATE so concurrent writers cannot interleave.
func (s *JobStore) SetStatus(ctx context.Context, jobID string, status crawler.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET status = $1 WHERE id = $2 AND status = ANY($3)`,
		string(status), jobID, statusStrings(crawler.Sources(status)),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := s.currentStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}
	return fmt.Errorf("set status %s: %w", jobID, crawler.CheckTransition(current, status))
}

// ClaimJob moves a queued job to running in one conditional update.
func (s *JobStore) ClaimJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET status = $1 WHERE id = $2 AND status = $3`,
		string(crawler.JobStatusRunning), jobID, string(crawler.JobStatusQueued),
	)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.currentStatus(ctx, jobID); err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	return fmt.Errorf("claim job %s: %w", jobID, crawler.ErrClaimLost)
}

// ReleaseJob moves a running job back to queued in one conditional update.
func (s *JobStore) ReleaseJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analyses SET status = $1 WHERE id = $2 AND status = $3`,
		string(crawler.JobStatusQueued), jobID, string(crawler.JobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := s.currentStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("release job %s: %w", jobID, err)
	}
	return fmt.Errorf("release job %s: %w: %s -> %s",
		jobID, crawler.ErrInvalidTransition, current, crawler.JobStatusQueued)
}

// CommitResult writes the result columns, replaces the broken links and
// marks the job done in one transaction. Nothing is written unless the job
// is still running.
func (s *JobStore) CommitResult(ctx context.Context, jobID string, result crawler.AnalysisResult) error {
	committedAt := result.AnalyzedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE analyses SET
	status = $1, html_version = $2, title = $3,
	h1_count = $4, h2_count = $5, h3_count = $6, h4_count = $7, h5_count = $8, h6_count = $9,
	internal_links = $10, external_links = $11, inaccessible_links = $12, has_login_form = $13,
	final_url = $14, status_code = $15, snapshot_uri = $16, result_committed_at = $17
WHERE id = $18 AND status = $19`,
		string(crawler.JobStatusDone),
		string(result.HTMLVersion),
		result.Title,
		result.Headings[0],
		result.Headings[1],
		result.Headings[2],
		result.Headings[3],
		result.Headings[4],
		result.Headings[5],
		result.InternalLinks,
		result.ExternalLinks,
		len(result.BrokenLinks),
		result.HasLoginForm,
		result.FinalURL,
		result.StatusCode,
		result.SnapshotURI,
		committedAt,
		jobID,
		string(crawler.JobStatusRunning),
	)
	if err != nil {
		return rollback(ctx, tx, fmt.Errorf("update result: %w", err))
	}
	if tag.RowsAffected() == 0 {
		current, err := lookupStatus(ctx, tx, jobID)
		if err == nil {
			err = crawler.CheckTransition(current, crawler.JobStatusDone)
		}
		return rollback(ctx, tx, fmt.Errorf("commit result %s: %w", jobID, err))
	}
	if _, err := tx.Exec(ctx, `DELETE FROM broken_links WHERE analysis_id = $1`, jobID); err != nil {
		return rollback(ctx, tx, fmt.Errorf("clear broken links: %w", err))
	}
	if len(result.BrokenLinks) > 0 {
		rows := make([][]any, 0, len(result.BrokenLinks))
		for i, link := range result.BrokenLinks {
			rows = append(rows, []any{jobID, i, link})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"broken_links"},
			[]string{"analysis_id", "position", "link"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return rollback(ctx, tx, fmt.Errorf("insert broken links: %w", err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

// DeleteJob removes a job; its broken links go with it via ON DELETE CASCADE.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete job %s: %w", jobID, crawler.ErrNotFound)
	}
	return nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]crawler.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var jobs []crawler.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return jobs, nil
}

func (s *JobStore) currentStatus(ctx context.Context, jobID string) (crawler.JobStatus, error) {
	return lookupStatus(ctx, s.pool, jobID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lookupStatus(ctx context.Context, q rowQuerier, jobID string) (crawler.JobStatus, error) {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM analyses WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", crawler.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup status: %w", err)
	}
	return crawler.JobStatus(status), nil
}

func scanJob(row pgx.Row) (crawler.Job, error) {
	var (
		job         crawler.Job
		status      string
		version     string
		result      crawler.AnalysisResult
		committedAt pgtype.Timestamptz
		brokenLinks []string
	)
	err := row.Scan(
		&job.ID,
		&job.URL,
		&status,
		&job.CreatedAt,
		&version,
		&result.Title,
		&result.Headings[0],
		&result.Headings[1],
		&result.Headings[2],
		&result.Headings[3],
		&result.Headings[4],
		&result.Headings[5],
		&result.InternalLinks,
		&result.ExternalLinks,
		&result.InaccessibleLinks,
		&result.HasLoginForm,
		&result.FinalURL,
		&result.StatusCode,
		&result.SnapshotURI,
		&committedAt,
		&brokenLinks,
	)
	if err != nil {
		return crawler.Job{}, err
	}
	job.Status = crawler.JobStatus(status)
	if committedAt.Valid {
		result.HTMLVersion = crawler.HTMLVersion(version)
		result.AnalyzedAt = committedAt.Time
		result.BrokenLinks = brokenLinks
		if result.BrokenLinks == nil {
			result.BrokenLinks = []string{}
		}
		job.Result = &result
	}
	return job, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

func statusStrings(statuses []crawler.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
