// Package linkcheck probes resolved links and reports the unreachable ones.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/page-analyzer/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	// maxDrainBytes bounds how much of a probe body is read before closing,
	// so keep-alive connections can be reused.
	maxDrainBytes = 64 << 10
)

// Config controls Checker behavior.
type Config struct {
	// Timeout bounds each probe. Zero means 10s.
	Timeout time.Duration
	// Concurrency is the number of probes in flight per page. Values below
	// one probe sequentially.
	Concurrency int
	UserAgent   string
}

// Checker probes links with a single GET each.
type Checker struct {
	client      *http.Client
	concurrency int
	userAgent   string
	logger      *zap.Logger
}

// New builds a Checker with its own HTTP client.
func New(cfg Config, logger *zap.Logger) *Checker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithClient(&http.Client{Timeout: timeout}, cfg, logger)
}

// NewWithClient builds a Checker around an existing client (primarily for testing).
func NewWithClient(client *http.Client, cfg Config, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		client:      client,
		concurrency: max(1, cfg.Concurrency),
		userAgent:   cfg.UserAgent,
		logger:      logger,
	}
}

// Check probes every link and returns the broken ones in input order.
// Duplicates are probed and reported once per occurrence. The context is
// checked before each probe is dispatched; when it ends, Check returns the
// broken links found so far together with the context error.
func (c *Checker) Check(ctx context.Context, links []string) ([]string, error) {
	outcomes := make([]outcome, len(links))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = c.probe(ctx, link)
			return nil
		})
	}
	// Probes never return errors; the group only bounds concurrency.
	_ = g.Wait()

	var broken []string
	for i, o := range outcomes {
		if o == outcomeBroken {
			broken = append(broken, links[i])
		}
	}
	if err := ctx.Err(); err != nil {
		return broken, fmt.Errorf("link check interrupted: %w", err)
	}
	return broken, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeReachable
	outcomeBroken
)

func (c *Checker) probe(ctx context.Context, link string) outcome {
	if ctx.Err() != nil {
		return outcomeSkipped
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		c.logger.Debug("probe request invalid", zap.String("url", link), zap.Error(err))
		return c.record(outcomeBroken)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeSkipped
		}
		c.logger.Debug("probe failed", zap.String("url", link), zap.Error(err))
		return c.record(outcomeBroken)
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("probe body close failed", zap.String("url", link), zap.Error(cerr))
		}
	}()

	if IsBrokenStatus(resp.StatusCode) {
		c.logger.Debug("probe returned error status", zap.String("url", link), zap.Int("status", resp.StatusCode))
		return c.record(outcomeBroken)
	}
	return c.record(outcomeReachable)
}

func (c *Checker) record(o outcome) outcome {
	metrics.ObserveLinkProbe(o == outcomeBroken)
	return o
}

// IsBrokenStatus reports whether a response status marks a link as broken.
func IsBrokenStatus(code int) bool {
	return code >= 400 && code <= 599
}
