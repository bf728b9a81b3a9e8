// Package analyzer turns one URL into one AnalysisResult: it fetches the
// page, walks the document and checks every link on it.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/document"
	"github.com/JakeFAU/page-analyzer/internal/metrics"
)

// LinkChecker reports which of the given links are broken.
type LinkChecker interface {
	Check(ctx context.Context, links []string) ([]string, error)
}

// Archive optionally stores the raw page body of every analysis.
type Archive struct {
	Store       crawler.BlobStore
	Hasher      crawler.Hasher
	Prefix      string
	ContentType string
}

// Analyzer orchestrates page fetching, document walking and link checking.
type Analyzer struct {
	fetcher crawler.Fetcher
	checker LinkChecker
	clock   crawler.Clock
	archive *Archive
	logger  *zap.Logger
}

// New returns an Analyzer. archive may be nil.
func New(
	fetcher crawler.Fetcher,
	checker LinkChecker,
	clock crawler.Clock,
	archive *Archive,
	logger *zap.Logger,
) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if archive != nil && (archive.Store == nil || archive.Hasher == nil) {
		archive = nil
	}
	return &Analyzer{
		fetcher: fetcher,
		checker: checker,
		clock:   clock,
		archive: archive,
		logger:  logger,
	}
}

// Analyze fetches request.URL once and produces its AnalysisResult. It
// returns a *FetchError or *ParseError for page-level failures and the
// context error, wrapped, when link checking was interrupted.
func (a *Analyzer) Analyze(ctx context.Context, request crawler.FetchRequest) (crawler.AnalysisResult, error) {
	base, err := url.Parse(request.URL)
	if err != nil {
		return crawler.AnalysisResult{}, &ParseError{URL: request.URL, Err: err}
	}

	resp, err := a.fetcher.Fetch(ctx, request)
	if err != nil {
		metrics.ObservePage(request.URL, 0)
		return crawler.AnalysisResult{}, &FetchError{URL: request.URL, Err: err}
	}
	metrics.ObservePage(request.URL, resp.StatusCode)
	a.logger.Debug("page fetched",
		zap.String("job_id", request.JobID),
		zap.String("url", request.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)

	root, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return crawler.AnalysisResult{}, &ParseError{URL: request.URL, Err: err}
	}

	result := document.Walk(root).Apply(crawler.AnalysisResult{
		FinalURL:   resp.URL,
		StatusCode: resp.StatusCode,
	})

	links := document.ResolveLinks(root, base)
	broken, err := a.checker.Check(ctx, links)
	if err != nil {
		return crawler.AnalysisResult{}, fmt.Errorf("check links: %w", err)
	}
	result.BrokenLinks = broken
	result.InaccessibleLinks = len(broken)
	result.SnapshotURI = a.snapshot(ctx, request.JobID, resp.Body)
	result.AnalyzedAt = a.clock.Now()

	a.logger.Info("page analyzed",
		zap.String("job_id", request.JobID),
		zap.String("url", request.URL),
		zap.Int("links", len(links)),
		zap.Int("broken", result.InaccessibleLinks),
	)
	return result, nil
}

func (a *Analyzer) snapshot(ctx context.Context, jobID string, body []byte) string {
	if a.archive == nil {
		return ""
	}
	hash, err := a.archive.Hasher.Hash(body)
	if err != nil {
		a.logger.Warn("snapshot hash failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}
	uri, err := a.archive.Store.PutObject(ctx, a.snapshotPath(jobID, hash), a.archive.ContentType, bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("snapshot store failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}
	return uri
}

func (a *Analyzer) snapshotPath(jobID, hash string) string {
	prefix := strings.Trim(a.archive.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}
