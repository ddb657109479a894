package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendatawatch/opendatawatch/internal/store"
)

// Run starts the metrics endpoint, the discovery loop, and one scheduling
// loop per tier, then blocks until the context is cancelled. Cancellation
// lands at task boundaries; in-flight fetches finish under their own
// timeouts.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("starting monitor",
		slog.String("discovery_interval", m.cfg.DiscoveryInterval.String()),
		slog.String("schedule_interval", m.cfg.ScheduleInterval.String()),
		slog.String("metrics_addr", m.cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: m.cfg.MetricsAddr, Handler: mux}
	go func() {
		m.log.Info("starting metrics server", slog.String("address", m.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			m.log.Warn("metrics server shutdown", slog.String("error", err.Error()))
		}
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.discoveryLoop(ctx)
	}()

	for _, tier := range store.Tiers {
		wg.Add(1)
		go func(tier store.Priority) {
			defer wg.Done()
			m.scheduleLoop(ctx, tier)
		}(tier)
	}
	// Unclassified datasets ride the low-tier pool until classified.
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.scheduleLoop(ctx, store.PriorityUnclassified)
	}()

	wg.Wait()
	m.cfg.Pools.StopAndWait()
	m.log.Info("monitor stopped")
	return nil
}

// discoveryLoop runs a session immediately, then sleeps the configured
// interval between sessions. A failed session is logged and the loop keeps
// going.
func (m *Monitor) discoveryLoop(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.DiscoveryInterval)
	defer ticker.Stop()

	m.runDiscovery(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.runDiscovery(ctx)
		}
	}
}

func (m *Monitor) runDiscovery(ctx context.Context) {
	result, err := m.cfg.Discovery.RunDiscoverySession(ctx)
	if err != nil {
		m.log.Error("discovery session failed", slog.String("error", err.Error()))
		return
	}
	for _, err := range result.Errors {
		m.log.Warn("discovery source error", slog.String("error", err.Error()))
	}
}

// scheduleLoop polls one tier for due tasks and fans them out to the tier's
// pool, waiting for each batch before polling again so a slow tier can never
// queue unbounded work.
func (m *Monitor) scheduleLoop(ctx context.Context, tier store.Priority) {
	ticker := m.clock.NewTicker(m.cfg.ScheduleInterval)
	defer ticker.Stop()

	m.runDueTasks(ctx, tier)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.runDueTasks(ctx, tier)
		}
	}
}

func (m *Monitor) runDueTasks(ctx context.Context, tier store.Priority) {
	tasks, err := m.cfg.Scheduler.GetDueTasks(ctx, tier, m.cfg.DueTaskBatch)
	if err != nil {
		m.log.Error("failed to get due tasks",
			slog.String("tier", string(tier)),
			slog.String("error", err.Error()))
		return
	}
	if len(tasks) == 0 {
		return
	}
	m.log.Debug("dispatching due tasks",
		slog.String("tier", string(tier)),
		slog.Int("count", len(tasks)))

	handles := make([]pond.Task, 0, len(tasks))
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		handles = append(handles, m.cfg.Pools.Submit(task.Priority, func() {
			if err := m.CheckDataset(ctx, task); err != nil {
				m.log.Warn("check failed",
					slog.String("dataset_id", task.DatasetID),
					slog.String("error", err.Error()))
			}
		}))
	}
	for _, h := range handles {
		h.Wait()
	}
}
