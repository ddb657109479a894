package monitor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/opendatawatch/opendatawatch/internal/diff"
	"github.com/opendatawatch/opendatawatch/internal/discovery"
	"github.com/opendatawatch/opendatawatch/internal/fetch"
	"github.com/opendatawatch/opendatawatch/internal/ratelimit"
	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

// scriptedHTTPClient returns the queued responses in order, repeating the
// last one once the script runs out.
type scriptedHTTPClient struct {
	mu        sync.Mutex
	responses []*http.Response
}

func (c *scriptedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func csvResponse(status int, body string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/csv")
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

type noopSource struct{}

func (noopSource) Name() string { return "noop" }
func (noopSource) FetchCatalogPage(ctx context.Context, cursor string) ([]discovery.RawDatasetRecord, string, error) {
	return nil, "", nil
}

type testHarness struct {
	monitor   *Monitor
	store     *store.Store
	scheduler *schedule.Scheduler
	clock     *clockwork.FakeClock
}

func newTestMonitor(t *testing.T, client fetch.HTTPClient) *testHarness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	limiter, err := ratelimit.New(&ratelimit.Config{Logger: log})
	require.NoError(t, err)
	fetcher, err := fetch.NewFetcher(&fetch.FetcherConfig{Logger: log, Limiter: limiter, HTTPClient: client})
	require.NoError(t, err)
	pools, err := fetch.NewPools(&fetch.PoolsConfig{Logger: log})
	require.NoError(t, err)
	t.Cleanup(pools.StopAndWait)

	scheduler, err := schedule.New(&schedule.Config{Logger: log, Store: st, Clock: clock})
	require.NoError(t, err)

	orch, err := discovery.New(&discovery.Config{
		Logger:    log,
		Store:     st,
		Scheduler: scheduler,
		Clock:     clock,
		Sources:   []discovery.Source{noopSource{}},
	})
	require.NoError(t, err)

	m, err := New(&Config{
		Logger:    log,
		Clock:     clock,
		Store:     st,
		Limiter:   limiter,
		Fetcher:   fetcher,
		Pools:     pools,
		Scheduler: scheduler,
		Discovery: orch,
	})
	require.NoError(t, err)

	return &testHarness{monitor: m, store: st, scheduler: scheduler, clock: clock}
}

func registerDataset(t *testing.T, h *testHarness, id string) schedule.Task {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.UpsertDataset(ctx, &store.Dataset{
		DatasetID:       id,
		Title:           "Inspection Results",
		Agency:          "City Health Department",
		LandingURL:      "https://data.example.gov/" + id + ".csv",
		ResourceFormat:  "csv",
		LicenseCategory: "public-domain",
		FirstDiscovered: h.clock.Now().UTC(),
	}))
	require.NoError(t, h.scheduler.Register(ctx, id))
	return schedule.Task{DatasetID: id, Priority: store.PriorityUnclassified}
}

func TestCheckDataset_FirstCheckWritesSnapshotAndMarker(t *testing.T) {
	t.Parallel()

	client := &scriptedHTTPClient{responses: []*http.Response{
		csvResponse(200, "id,score\n1,98\n2,87\n"),
	}}
	h := newTestMonitor(t, client)
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	snap, err := h.store.LatestSnapshot(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, "2026-08-29", snap.SnapshotDate)
	require.Equal(t, store.Available, snap.Availability)
	require.Equal(t, int64(2), snap.RowCount)
	require.Equal(t, int64(2), snap.ColumnCount)
	require.True(t, snap.DimensionsComputed)
	require.NotEmpty(t, snap.ContentHash)

	events, err := h.store.ListEvents(ctx, "ds-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, diff.EventSnapshotCreated, events[0].Type)

	// The volatility row exists even when history is too short to score.
	_, err = h.store.GetVolatility(ctx, "ds-1")
	require.NoError(t, err)

	entry, err := h.store.GetScheduleEntry(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.CheckCount)
	require.Equal(t, int64(1), entry.SuccessCount)
	require.True(t, entry.NextCheck.After(h.clock.Now()))
}

func TestCheckDataset_SecondCheckDiffsAgainstPrevious(t *testing.T) {
	t.Parallel()

	client := &scriptedHTTPClient{responses: []*http.Response{
		csvResponse(200, "id,score\n1,98\n2,87\n"),
		csvResponse(200, "id,score\n1,98\n2,87\n3,91\n"),
	}}
	h := newTestMonitor(t, client)
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	require.NoError(t, h.monitor.CheckDataset(ctx, task))
	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	history, err := h.store.SnapshotHistory(ctx, "ds-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	events, err := h.store.ListEvents(ctx, "ds-1")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, diff.EventSnapshotCreated)
	require.Contains(t, types, diff.EventRowCountIncreased)
	require.Contains(t, types, diff.EventContentDrift)
	require.Contains(t, types, diff.EventFileSizeChanged)

	vol, err := h.store.GetVolatility(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, 1.0, vol.ChurnRate, "the single pair changed")
}

func TestCheckDataset_FetchFailureWritesUnavailableSnapshot(t *testing.T) {
	t.Parallel()

	client := &scriptedHTTPClient{responses: []*http.Response{
		csvResponse(404, "not found"),
	}}
	h := newTestMonitor(t, client)
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	snap, err := h.store.LatestSnapshot(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, store.Unavailable, snap.Availability)
	require.Equal(t, 404, snap.StatusCode)
	require.Empty(t, snap.ContentHash)
	require.False(t, snap.DimensionsComputed)

	entry, err := h.store.GetScheduleEntry(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.FailureCount)
	require.True(t, entry.NextCheck.After(h.clock.Now()), "failed checks still advance the schedule")
}

func TestCheckDataset_BecameUnavailableEvent(t *testing.T) {
	t.Parallel()

	client := &scriptedHTTPClient{responses: []*http.Response{
		csvResponse(200, "id,score\n1,98\n"),
		csvResponse(404, ""),
	}}
	h := newTestMonitor(t, client)
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	require.NoError(t, h.monitor.CheckDataset(ctx, task))
	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	events, err := h.store.ListEvents(ctx, "ds-1")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, diff.EventBecameUnavailable)
}

func TestCheckDataset_RateLimitedLeavesEntryDue(t *testing.T) {
	t.Parallel()

	client := &scriptedHTTPClient{responses: []*http.Response{
		csvResponse(429, ""),
	}}
	h := newTestMonitor(t, client)
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	before, err := h.store.GetScheduleEntry(ctx, "ds-1")
	require.NoError(t, err)

	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	// No snapshot, no schedule movement: the check is deferred, not failed.
	_, err = h.store.LatestSnapshot(ctx, "ds-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	after, err := h.store.GetScheduleEntry(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, before.CheckCount, after.CheckCount)
	require.True(t, before.NextCheck.Equal(after.NextCheck))
}

func TestCheckDataset_DegradedAnalysisIsPartiallyAvailable(t *testing.T) {
	t.Parallel()

	h := newTestMonitor(t, &scriptedHTTPClient{responses: []*http.Response{
		func() *http.Response {
			resp := csvResponse(200, `{"broken`)
			resp.Header.Set("Content-Type", "application/json")
			return resp
		}(),
	}})
	ctx := context.Background()
	task := registerDataset(t, h, "ds-1")

	require.NoError(t, h.store.UpsertDataset(ctx, &store.Dataset{
		DatasetID:       "ds-1",
		Title:           "Inspection Results",
		Agency:          "City Health Department",
		LandingURL:      "https://data.example.gov/ds-1.json",
		ResourceFormat:  "json",
		FirstDiscovered: h.clock.Now().UTC(),
	}))

	require.NoError(t, h.monitor.CheckDataset(ctx, task))

	snap, err := h.store.LatestSnapshot(ctx, "ds-1")
	require.NoError(t, err)
	require.Equal(t, store.PartiallyAvailable, snap.Availability)
	require.False(t, snap.DimensionsComputed)
	require.NotEmpty(t, snap.DimensionError)
	require.NotEmpty(t, snap.ContentHash, "the payload itself was fetched and hashed")
}
