package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/opendatawatch/opendatawatch/internal/fetch"
)

const (
	defaultPageCacheTTL   = 10 * time.Minute
	defaultRequestTimeout = 60 * time.Second
)

type ClientConfig struct {
	Logger  *slog.Logger
	Fetcher *fetch.Fetcher

	PageCacheTTL   time.Duration
	RequestTimeout time.Duration
}

func (c *ClientConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if c.PageCacheTTL == 0 {
		c.PageCacheTTL = defaultPageCacheTTL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

// Client is the shared HTTP-to-JSON layer under every source adapter. All
// requests ride the rate-limited fetcher, and page bodies are cached briefly
// so overlapping sessions don't re-pull identical catalog pages.
type Client struct {
	log *slog.Logger
	cfg *ClientConfig

	cache *ttlcache.Cache[string, []byte]
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](cfg.PageCacheTTL),
	)
	go cache.Start()
	return &Client{
		log:   cfg.Logger,
		cfg:   cfg,
		cache: cache,
	}, nil
}

// GetJSON fetches the URL and unmarshals the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	if item := c.cache.Get(url); item != nil {
		return json.Unmarshal(item.Value(), out)
	}

	res, err := c.cfg.Fetcher.Fetch(ctx, url, c.cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, url)
	}

	c.cache.Set(url, res.Body, ttlcache.DefaultTTL)
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) Close() {
	c.cache.Stop()
}
