// Package collyfetcher fetches the analyzed page with a colly collector.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

const (
	defaultTimeout = 30 * time.Second
	acceptHTML     = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds the whole page fetch. Zero means 30s.
	Timeout time.Duration
	// MaxBodySize caps the bytes read from a page. Zero keeps colly's default.
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher. Each Fetch clones a template
// collector so concurrent executions never share callbacks.
type Fetcher struct {
	template *colly.Collector
}

// New builds a Fetcher with its own transport.
func New(cfg Config) *Fetcher {
	return NewWithTransport(cfg, newHTTPTransport())
}

// NewWithTransport builds a Fetcher over a caller-supplied transport.
func NewWithTransport(cfg Config, transport http.RoundTripper) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	// The same page is fetched again on every re-run.
	c.AllowURLRevisit = true
	// Error pages are still documents to analyze.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(timeout)

	return &Fetcher{template: c}
}

// Fetch performs one GET of request.URL. Redirects are followed; the final
// URL is reported in the response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	pc := &pageCapture{start: time.Now()}
	collector := f.template.Clone()
	collector.OnRequest(pc.onRequest)
	collector.OnResponse(pc.onResponse)
	collector.OnError(pc.onError)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("visit %s: %w", request.URL, err)
		}
		return pc.result()
	}
}

// pageCapture collects what the collector callbacks observe for one visit.
type pageCapture struct {
	start    time.Time
	response crawler.FetchResponse
	seen     bool
	err      error
}

func (pc *pageCapture) onRequest(r *colly.Request) {
	r.Headers.Set("Accept", acceptHTML)
}

func (pc *pageCapture) onResponse(r *colly.Response) {
	pc.seen = true
	pc.response = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(pc.start),
	}
}

func (pc *pageCapture) onError(_ *colly.Response, err error) {
	pc.err = err
}

func (pc *pageCapture) result() (crawler.FetchResponse, error) {
	if pc.err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("response: %w", pc.err)
	}
	if !pc.seen {
		return crawler.FetchResponse{}, fmt.Errorf("no response received")
	}
	return pc.response, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
