package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/opendatawatch/opendatawatch/internal/ratelimit"
)

const (
	defaultMaxRetries   = 3
	defaultMaxBodyBytes = 256 << 20

	userAgent = "opendatawatch/1.0"
)

// HTTPClient defines the interface for HTTP operations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrRateLimited marks a fetch deferred by a 429; it is never retried
// locally, only re-queued after the limiter's backoff.
var ErrRateLimited = errors.New("fetch: rate limited by remote host")

// StatusError carries the HTTP status of a server-side failure so callers
// can record it on the failed check.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: status %d", e.Code)
}

// Result is the outcome of one rate-limited fetch.
type Result struct {
	URL          string
	StatusCode   int
	Body         []byte
	ContentType  string
	LastModified string
	Duration     time.Duration
}

type FetcherConfig struct {
	Logger     *slog.Logger
	Limiter    *ratelimit.Limiter
	HTTPClient HTTPClient

	MaxRetries   int
	MaxBodyBytes int64
}

func (c *FetcherConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Limiter == nil {
		return errors.New("rate limiter is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return nil
}

// Fetcher performs rate-limited HTTP fetches with bounded local retry.
type Fetcher struct {
	log *slog.Logger
	cfg *FetcherConfig
}

func NewFetcher(cfg *FetcherConfig) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{log: cfg.Logger, cfg: cfg}, nil
}

// Fetch gets the URL, honoring the limiter's delay decision first and
// retrying transport-level failures locally with short exponential backoff.
// 429s are handed to the limiter and surfaced as ErrRateLimited without
// local retry.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*Result, error) {
	if delay, ok := f.waitForLimiter(ctx, url); !ok {
		return nil, fmt.Errorf("fetch cancelled while delayed %s: %w", delay, ctx.Err())
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, func() (*Result, error) {
		res, err := f.fetchOnce(ctx, url, timeout)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return res, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(f.cfg.MaxRetries)))
}

// waitForLimiter sleeps through the limiter's computed delay, re-asking after
// each wait since the window may have refilled or tightened meanwhile.
func (f *Fetcher) waitForLimiter(ctx context.Context, url string) (time.Duration, bool) {
	for {
		shouldDelay, delay := f.cfg.Limiter.ShouldDelay(url)
		if !shouldDelay {
			return 0, true
		}
		f.log.Debug("delaying fetch for rate limit",
			slog.String("url", url),
			slog.String("delay", delay.String()))
		select {
		case <-ctx.Done():
			return delay, false
		case <-time.After(delay):
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, timeout time.Duration) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	f.cfg.Limiter.RecordRequest(url)
	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		MetricFetchErrors.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	f.cfg.Limiter.HandleResponse(url, resp.StatusCode, resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		MetricFetchErrors.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		MetricFetchErrors.WithLabelValues("server_error").Inc()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		MetricFetchErrors.WithLabelValues("body_read").Inc()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Result{
		URL:          url,
		StatusCode:   resp.StatusCode,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		Duration:     time.Since(start),
	}, nil
}
