package volatility

import (
	"time"

	"github.com/opendatawatch/opendatawatch/internal/diff"
	"github.com/opendatawatch/opendatawatch/internal/store"
)

// Recompute derives a dataset's volatility metrics from its ordered snapshot
// history. It is a pure function of the snapshots, not of stored events, so
// the materialized row can always be rebuilt from scratch.
func Recompute(datasetID string, history []*store.Snapshot, now time.Time) *store.VolatilityMetrics {
	m := &store.VolatilityMetrics{
		DatasetID:  datasetID,
		ComputedAt: now,
	}
	if len(history) < 2 {
		return m
	}

	pairs := len(history) - 1
	var changedPairs, driftPairs, schemaPairs, availPairs int
	var totalChanges int64

	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]

		changes := len(diff.Diff(prev, curr))
		totalChanges += int64(changes)
		if changes > 0 {
			changedPairs++
		}
		if prev.ContentHash != curr.ContentHash && prev.ContentHash != "" && curr.ContentHash != "" {
			driftPairs++
		}
		if prev.LicenseCategory != curr.LicenseCategory && prev.LicenseCategory != "" && curr.LicenseCategory != "" {
			m.LicenseFlips++
		}
		if schemaDiffers(prev, curr) {
			schemaPairs++
		}
		if prev.Availability != curr.Availability {
			availPairs++
		}
	}

	m.ChurnRate = float64(changedPairs) / float64(pairs)
	m.ContentDrift = float64(driftPairs) / float64(pairs)
	m.SchemaVolatility = float64(schemaPairs) / float64(pairs)
	m.AvailabilityVolatility = float64(availPairs) / float64(pairs)
	m.TotalChanges = totalChanges
	m.AvgChangeFrequency = changesPerDay(history, totalChanges)
	return m
}

// schemaDiffers prefers a structural comparison and falls back to row/column
// counts when either snapshot's stored schema is unreadable.
func schemaDiffers(prev, curr *store.Snapshot) bool {
	if len(prev.Schema) > 0 && len(curr.Schema) > 0 {
		return diff.SchemaChanged(prev, curr)
	}
	if !prev.DimensionsComputed || !curr.DimensionsComputed {
		return false
	}
	return prev.RowCount != curr.RowCount || prev.ColumnCount != curr.ColumnCount
}

// changesPerDay spreads the total observed changes over the span of the
// history. A single-day history counts as one day.
func changesPerDay(history []*store.Snapshot, totalChanges int64) float64 {
	first, errFirst := time.Parse("2006-01-02", history[0].SnapshotDate)
	last, errLast := time.Parse("2006-01-02", history[len(history)-1].SnapshotDate)
	if errFirst != nil || errLast != nil {
		return 0
	}
	days := last.Sub(first).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(totalChanges) / days
}
