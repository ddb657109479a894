package monitor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/opendatawatch/opendatawatch/internal/discovery"
	"github.com/opendatawatch/opendatawatch/internal/fetch"
	"github.com/opendatawatch/opendatawatch/internal/ratelimit"
	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

const (
	defaultDiscoveryInterval = 6 * time.Hour
	defaultScheduleInterval  = 1 * time.Minute
	defaultDueTaskBatch      = 50
	defaultMetricsAddr       = "127.0.0.1:2113"
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	Store     *store.Store
	Limiter   *ratelimit.Limiter
	Fetcher   *fetch.Fetcher
	Pools     *fetch.Pools
	Scheduler *schedule.Scheduler
	Discovery *discovery.Orchestrator

	// DiscoveryInterval is the sleep between discovery sessions;
	// ScheduleInterval is the poll interval for due tasks.
	DiscoveryInterval time.Duration
	ScheduleInterval  time.Duration
	DueTaskBatch      int
	MetricsAddr       string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Limiter == nil {
		return errors.New("rate limiter is required")
	}
	if c.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if c.Pools == nil {
		return errors.New("worker pools are required")
	}
	if c.Scheduler == nil {
		return errors.New("scheduler is required")
	}
	if c.Discovery == nil {
		return errors.New("discovery orchestrator is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.ScheduleInterval == 0 {
		c.ScheduleInterval = defaultScheduleInterval
	}
	if c.DueTaskBatch == 0 {
		c.DueTaskBatch = defaultDueTaskBatch
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}
	return nil
}

// Monitor wires the full loop: discovery registers datasets, the scheduler
// surfaces due work, tier pools fetch it, and each completed check flows
// through analysis, snapshot, diff, and volatility back into classification.
type Monitor struct {
	log   *slog.Logger
	cfg   *Config
	clock clockwork.Clock
}

func New(cfg *Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		log:   cfg.Logger,
		cfg:   cfg,
		clock: cfg.Clock,
	}, nil
}
