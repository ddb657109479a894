package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opendatawatch/opendatawatch/internal/analyze"
	"github.com/opendatawatch/opendatawatch/internal/diff"
	"github.com/opendatawatch/opendatawatch/internal/fetch"
	"github.com/opendatawatch/opendatawatch/internal/schedule"
	"github.com/opendatawatch/opendatawatch/internal/store"
	"github.com/opendatawatch/opendatawatch/internal/volatility"
)

// CheckDataset runs one complete check cycle for a due task: fetch the
// resource, analyze the payload, upsert today's snapshot, diff against the
// previous one, recompute volatility, and feed the result back into
// classification and the schedule. Per-dataset state only; no cross-dataset
// locking is needed.
func (m *Monitor) CheckDataset(ctx context.Context, task schedule.Task) error {
	dataset, err := m.cfg.Store.GetDataset(ctx, task.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to load dataset %s: %w", task.DatasetID, err)
	}

	start := m.clock.Now().UTC()
	res, fetchErr := m.cfg.Fetcher.Fetch(ctx, dataset.LandingURL, m.cfg.Pools.Timeout(task.Priority))

	if errors.Is(fetchErr, fetch.ErrRateLimited) {
		// Deferred, not failed: the schedule entry stays due and the
		// limiter's backoff gates the next attempt.
		MetricChecks.WithLabelValues(string(task.Priority), "rate_limited").Inc()
		return m.cfg.Store.RecordCheckResult(ctx, &store.CheckResult{
			DatasetID: task.DatasetID,
			CheckedAt: start,
			Success:   false,
			Error:     fetchErr.Error(),
		})
	}

	snap := m.buildSnapshot(dataset, res, fetchErr)
	if err := m.cfg.Store.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to persist snapshot for %s: %w", task.DatasetID, err)
	}

	if err := m.recordEvents(ctx, task.DatasetID); err != nil {
		return err
	}
	if err := m.updateVolatility(ctx, dataset); err != nil {
		return err
	}

	success := fetchErr == nil && snap.Availability == store.Available
	duration := m.clock.Now().UTC().Sub(start)

	result := &store.CheckResult{
		DatasetID:  task.DatasetID,
		CheckedAt:  start,
		Success:    success,
		StatusCode: snap.StatusCode,
		DurationMS: duration.Milliseconds(),
	}
	if fetchErr != nil {
		result.Error = fetchErr.Error()
	}
	if err := m.cfg.Store.RecordCheckResult(ctx, result); err != nil {
		return err
	}
	if err := m.cfg.Scheduler.RecordCheckOutcome(ctx, task.DatasetID, success); err != nil {
		return err
	}

	status := "failed"
	if success {
		status = "success"
	}
	MetricChecks.WithLabelValues(string(task.Priority), status).Inc()
	m.log.Debug("check completed",
		slog.String("dataset_id", task.DatasetID),
		slog.String("priority", string(task.Priority)),
		slog.Bool("success", success),
		slog.Int64("duration_ms", duration.Milliseconds()))
	return nil
}

// buildSnapshot turns a fetch outcome into today's observation. Fetch
// failures still produce a snapshot: availability degrades but history is
// preserved. Payload analysis failures degrade only the dimension fields.
func (m *Monitor) buildSnapshot(dataset *store.Dataset, res *fetch.Result, fetchErr error) *store.Snapshot {
	now := m.clock.Now().UTC()
	snap := &store.Snapshot{
		DatasetID:       dataset.DatasetID,
		SnapshotDate:    now.Format("2006-01-02"),
		Title:           dataset.Title,
		Agency:          dataset.Agency,
		URL:             dataset.LandingURL,
		ResourceFormat:  dataset.ResourceFormat,
		LicenseCategory: dataset.LicenseCategory,
		LastModified:    dataset.LastModified,
		Availability:    store.Unavailable,
		CreatedAt:       now,
	}

	if fetchErr != nil {
		var statusErr *fetch.StatusError
		if errors.As(fetchErr, &statusErr) {
			snap.StatusCode = statusErr.Code
		}
		return snap
	}

	snap.StatusCode = res.StatusCode
	if res.LastModified != "" {
		snap.LastModified = res.LastModified
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return snap
	}

	snap.Availability = store.Available
	snap.ContentHash = analyze.Hash(res.Body)
	snap.FileSize = int64(len(res.Body))

	dims := analyze.Analyze(res.Body, dataset.ResourceFormat)
	snap.RowCount = dims.RowCount
	snap.ColumnCount = dims.ColumnCount
	snap.Schema = dims.SchemaPreview
	snap.DimensionsComputed = dims.Success
	snap.DimensionError = dims.Error
	if !dims.Success {
		snap.Availability = store.PartiallyAvailable
	}
	return snap
}

// recordEvents diffs the two newest snapshots. A first-ever snapshot yields
// only the creation marker. Event IDs are deterministic, so replays after a
// crash upsert the same rows.
func (m *Monitor) recordEvents(ctx context.Context, datasetID string) error {
	history, err := m.cfg.Store.SnapshotHistory(ctx, datasetID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	var events []*store.Event
	if len(history) == 1 {
		events = []*store.Event{diff.FirstSnapshot(history[0])}
	} else {
		prev, curr := history[len(history)-2], history[len(history)-1]
		events = diff.Diff(prev, curr)
	}
	for _, ev := range events {
		MetricEvents.WithLabelValues(ev.Type).Inc()
	}
	return m.cfg.Store.UpsertEvents(ctx, events)
}

// updateVolatility recomputes the dataset's aggregate metrics from its full
// snapshot history and feeds the result into reclassification.
func (m *Monitor) updateVolatility(ctx context.Context, dataset *store.Dataset) error {
	history, err := m.cfg.Store.SnapshotHistory(ctx, dataset.DatasetID)
	if err != nil {
		return err
	}
	metrics := volatility.Recompute(dataset.DatasetID, history, m.clock.Now().UTC())
	if err := m.cfg.Store.UpsertVolatility(ctx, metrics); err != nil {
		return err
	}

	_, err = m.cfg.Scheduler.Reclassify(ctx, dataset.DatasetID, schedule.ClassifierInput{
		Agency:        dataset.Agency,
		Title:         dataset.Title,
		Volatility:    metrics.ChurnRate,
		ChangesPerDay: metrics.AvgChangeFrequency,
	})
	return err
}
