package ratelimit

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultRequestsPerHour = 30
	defaultBaseDelay       = 2 * time.Second
	defaultMaxBackoff      = 3600 * time.Second

	backoffMultiplierStep = 1.5
	backoffMultiplierMax  = 10.0
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	RequestsPerHour int
	BaseDelay       time.Duration
	MaxBackoff      time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.RequestsPerHour == 0 {
		c.RequestsPerHour = defaultRequestsPerHour
	}
	if c.RequestsPerHour < 0 {
		return errors.New("requests per hour must be greater than 0")
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return nil
}

// domainState is the per-domain request window plus 429 backoff state. Each
// domain is fully independent; there is no cross-domain coupling.
type domainState struct {
	mu sync.Mutex

	requests []time.Time // request timestamps inside the sliding hour

	consecutive429s   int
	backoffMultiplier float64
	backoffUntil      time.Time
	retryAfterUntil   time.Time
}

// Limiter gates outbound fetches per remote domain: a sliding-hour request
// cap plus exponential backoff driven by 429 responses.
type Limiter struct {
	log   *slog.Logger
	cfg   *Config
	clock clockwork.Clock

	mu      sync.Mutex
	domains map[string]*domainState

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg *Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		log:     cfg.Logger,
		cfg:     cfg,
		clock:   cfg.Clock,
		domains: make(map[string]*domainState),
		rng:     rand.New(rand.NewSource(cfg.Clock.Now().UnixNano())),
	}, nil
}

func (l *Limiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{backoffMultiplier: 1.0}
		l.domains[domain] = st
	}
	return st
}

// Domain extracts the rate-limit key from a URL. Unparseable URLs share one
// bucket so malformed input still gets throttled.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}

// ShouldDelay reports whether a fetch of the URL must wait, and for how long.
// Checks, in order: the hourly sliding-window cap, an active Retry-After
// window, and the 429 backoff deadline. The backoff and Retry-After windows
// expire on their own, so a caller that sleeps the returned delay gets a
// clean answer on the next ask; only the window cap can re-delay.
func (l *Limiter) ShouldDelay(rawURL string) (bool, time.Duration) {
	domain := Domain(rawURL)
	st := l.state(domain)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.pruneWindow(now)

	if len(st.requests) >= l.cfg.RequestsPerHour {
		// Delay until the oldest in-window request expires.
		delay := st.requests[0].Add(time.Hour).Sub(now)
		if delay < 0 {
			delay = 0
		}
		MetricDelays.WithLabelValues(MetricDelayReasonWindow).Inc()
		return true, delay
	}

	if st.retryAfterUntil.After(now) {
		MetricDelays.WithLabelValues(MetricDelayReasonRetryAfter).Inc()
		return true, st.retryAfterUntil.Sub(now)
	}

	if st.backoffUntil.After(now) {
		MetricDelays.WithLabelValues(MetricDelayReasonBackoff).Inc()
		return true, st.backoffUntil.Sub(now)
	}

	return false, 0
}

// backoffDelay computes base * 2^n * multiplier * jitter(0.75..1.25), capped
// at the configured max. Jitter aside, the delay is monotonically
// non-decreasing in n.
func (l *Limiter) backoffDelay(consecutive429s int, multiplier float64) time.Duration {
	base := float64(l.cfg.BaseDelay) * math.Pow(2, float64(consecutive429s)) * multiplier

	l.rngMu.Lock()
	jitter := 0.75 + l.rng.Float64()*0.5
	l.rngMu.Unlock()

	d := time.Duration(base * jitter)
	if d > l.cfg.MaxBackoff {
		d = l.cfg.MaxBackoff
	}
	return d
}

// RecordRequest counts one outbound request against the domain's window.
// Callers invoke it immediately before issuing the fetch.
func (l *Limiter) RecordRequest(rawURL string) {
	domain := Domain(rawURL)
	st := l.state(domain)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneWindow(now)
	st.requests = append(st.requests, now)
}

// HandleResponse feeds a response back into the backoff state: 429 escalates,
// anything else decays toward steady state.
func (l *Limiter) HandleResponse(rawURL string, statusCode int, header http.Header) {
	domain := Domain(rawURL)
	st := l.state(domain)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if statusCode == http.StatusTooManyRequests {
		st.consecutive429s++
		st.backoffMultiplier = math.Min(st.backoffMultiplier*backoffMultiplierStep, backoffMultiplierMax)
		// Fix the deadline now so the backoff is a window that expires, not
		// a latch: once it passes, the next request goes out and the
		// response decides what happens next.
		st.backoffUntil = now.Add(l.backoffDelay(st.consecutive429s, st.backoffMultiplier))
		if ra := parseRetryAfter(header, now); !ra.IsZero() {
			st.retryAfterUntil = ra
		}
		MetricRateLimited.WithLabelValues(domain).Inc()
		l.log.Warn("rate limited by remote host",
			slog.String("domain", domain),
			slog.Int("consecutive_429s", st.consecutive429s),
			slog.Float64("backoff_multiplier", st.backoffMultiplier))
		return
	}

	if st.consecutive429s > 0 {
		st.consecutive429s--
	}
	st.backoffUntil = time.Time{}
	if st.backoffMultiplier > 1.0 {
		st.backoffMultiplier = math.Max(1.0, st.backoffMultiplier/backoffMultiplierStep)
	}
	if statusCode != 0 && !st.retryAfterUntil.IsZero() && now.After(st.retryAfterUntil) {
		st.retryAfterUntil = time.Time{}
	}
}

func (st *domainState) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(st.requests) && !st.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		st.requests = append(st.requests[:0], st.requests[i:]...)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(header http.Header, now time.Time) time.Time {
	v := header.Get("Retry-After")
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t
	}
	return time.Time{}
}
