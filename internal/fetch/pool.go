package fetch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/opendatawatch/opendatawatch/internal/store"
)

// TierLimits is the per-tier concurrency and request timeout. Higher tiers
// get more workers and a longer timeout since their datasets matter more.
type TierLimits struct {
	Concurrency int
	Timeout     time.Duration
}

// DefaultTierLimits mirrors the tier ordering: critical datasets get the
// most headroom, low-tier ones the least.
func DefaultTierLimits() map[store.Priority]TierLimits {
	return map[store.Priority]TierLimits{
		store.PriorityCritical: {Concurrency: 5, Timeout: 30 * time.Second},
		store.PriorityHigh:     {Concurrency: 3, Timeout: 20 * time.Second},
		store.PriorityMedium:   {Concurrency: 2, Timeout: 15 * time.Second},
		store.PriorityLow:      {Concurrency: 1, Timeout: 10 * time.Second},
	}
}

type PoolsConfig struct {
	Logger *slog.Logger
	Limits map[store.Priority]TierLimits
}

func (c *PoolsConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Limits == nil {
		c.Limits = DefaultTierLimits()
	}
	for tier, l := range c.Limits {
		if l.Concurrency <= 0 {
			return errors.New("concurrency must be greater than 0 for tier " + string(tier))
		}
		if l.Timeout <= 0 {
			return errors.New("timeout must be greater than 0 for tier " + string(tier))
		}
	}
	return nil
}

// Pools is one bounded worker pool per priority tier. Back-pressure is
// structural: a tier can never have more in-flight fetches than its
// concurrency limit, and unclassified datasets ride the low-tier pool.
type Pools struct {
	log    *slog.Logger
	cfg    *PoolsConfig
	pools  map[store.Priority]pond.Pool
	limits map[store.Priority]TierLimits

	stopOnce sync.Once
}

func NewPools(cfg *PoolsConfig) (*Pools, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pools := make(map[store.Priority]pond.Pool, len(cfg.Limits))
	for tier, l := range cfg.Limits {
		pools[tier] = pond.NewPool(l.Concurrency)
	}
	return &Pools{
		log:    cfg.Logger,
		cfg:    cfg,
		pools:  pools,
		limits: cfg.Limits,
	}, nil
}

func (p *Pools) tier(priority store.Priority) store.Priority {
	if _, ok := p.pools[priority]; ok {
		return priority
	}
	return store.PriorityLow
}

// Submit hands one unit of work to the tier's pool and returns its task
// handle so callers can wait on a batch.
func (p *Pools) Submit(priority store.Priority, fn func()) pond.Task {
	tier := p.tier(priority)
	MetricTasksSubmitted.WithLabelValues(string(tier)).Inc()
	return p.pools[tier].Submit(fn)
}

// Timeout returns the per-request timeout for the tier.
func (p *Pools) Timeout(priority store.Priority) time.Duration {
	return p.limits[p.tier(priority)].Timeout
}

// StopAndWait drains every tier pool. Safe to call more than once; later
// calls are no-ops.
func (p *Pools) StopAndWait() {
	p.stopOnce.Do(func() {
		for _, pool := range p.pools {
			pool.StopAndWait()
		}
	})
}
