package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/opendatawatch/opendatawatch/internal/store"
)

// Event type names, the closed taxonomy.
const (
	EventSnapshotCreated     = "SNAPSHOT_CREATED"
	EventTitleChanged        = "TITLE_CHANGED"
	EventAgencyChanged       = "AGENCY_CHANGED"
	EventURLChanged          = "URL_CHANGED"
	EventFormatChanged       = "FORMAT_CHANGED"
	EventRowCountIncreased   = "ROW_COUNT_INCREASED"
	EventRowCountDecreased   = "ROW_COUNT_DECREASED"
	EventSchemaExpand        = "SCHEMA_EXPAND"
	EventSchemaShrink        = "SCHEMA_SHRINK"
	EventStructureChanged    = "STRUCTURE_CHANGED"
	EventFileSizeChanged     = "FILE_SIZE_CHANGED"
	EventContentDrift        = "CONTENT_DRIFT"
	EventBecameAvailable     = "BECAME_AVAILABLE"
	EventBecameUnavailable   = "BECAME_UNAVAILABLE"
	EventStatusCodeChanged   = "STATUS_CODE_CHANGED"
	EventLastModifiedChanged = "LAST_MODIFIED_CHANGED"
)

// rule is one row of the detection table: when changed() reports a difference
// between the pair, one event of this type is emitted with fixed severity and
// impact.
type rule struct {
	eventType string
	severity  store.Severity
	impact    float64
	changed   func(prev, curr *store.Snapshot) bool
	values    func(prev, curr *store.Snapshot) (old, new string)
}

// rules is evaluated in order; the order is part of the diff contract since
// event sets must be byte-identical across runs.
var rules = []rule{
	{
		eventType: EventTitleChanged, severity: store.SeverityMedium, impact: 0.7,
		changed: func(p, c *store.Snapshot) bool { return p.Title != c.Title && p.Title != "" && c.Title != "" },
		values:  func(p, c *store.Snapshot) (string, string) { return p.Title, c.Title },
	},
	{
		eventType: EventAgencyChanged, severity: store.SeverityHigh, impact: 0.9,
		changed: func(p, c *store.Snapshot) bool { return p.Agency != c.Agency && p.Agency != "" && c.Agency != "" },
		values:  func(p, c *store.Snapshot) (string, string) { return p.Agency, c.Agency },
	},
	{
		eventType: EventURLChanged, severity: store.SeverityHigh, impact: 0.8,
		changed: func(p, c *store.Snapshot) bool { return p.URL != c.URL && p.URL != "" && c.URL != "" },
		values:  func(p, c *store.Snapshot) (string, string) { return p.URL, c.URL },
	},
	{
		eventType: EventFormatChanged, severity: store.SeverityMedium, impact: 0.6,
		changed: func(p, c *store.Snapshot) bool {
			return p.ResourceFormat != c.ResourceFormat && p.ResourceFormat != "" && c.ResourceFormat != ""
		},
		values: func(p, c *store.Snapshot) (string, string) { return p.ResourceFormat, c.ResourceFormat },
	},
	{
		eventType: EventRowCountIncreased, severity: store.SeverityMedium, impact: 0.6,
		changed: func(p, c *store.Snapshot) bool { return bothComputed(p, c) && c.RowCount > p.RowCount },
		values:  func(p, c *store.Snapshot) (string, string) { return itoa(p.RowCount), itoa(c.RowCount) },
	},
	{
		eventType: EventRowCountDecreased, severity: store.SeverityHigh, impact: 0.8,
		changed: func(p, c *store.Snapshot) bool { return bothComputed(p, c) && c.RowCount < p.RowCount },
		values:  func(p, c *store.Snapshot) (string, string) { return itoa(p.RowCount), itoa(c.RowCount) },
	},
	{
		eventType: EventSchemaExpand, severity: store.SeverityMedium, impact: 0.6,
		changed: func(p, c *store.Snapshot) bool { return bothComputed(p, c) && c.ColumnCount > p.ColumnCount },
		values:  func(p, c *store.Snapshot) (string, string) { return itoa(p.ColumnCount), itoa(c.ColumnCount) },
	},
	{
		eventType: EventSchemaShrink, severity: store.SeverityHigh, impact: 0.8,
		changed: func(p, c *store.Snapshot) bool { return bothComputed(p, c) && c.ColumnCount < p.ColumnCount },
		values:  func(p, c *store.Snapshot) (string, string) { return itoa(p.ColumnCount), itoa(c.ColumnCount) },
	},
	{
		eventType: EventStructureChanged, severity: store.SeverityHigh, impact: 0.9,
		changed: func(p, c *store.Snapshot) bool { return SchemaChanged(p, c) },
		values: func(p, c *store.Snapshot) (string, string) {
			return fmt.Sprintf("%v", p.Schema), fmt.Sprintf("%v", c.Schema)
		},
	},
	{
		eventType: EventFileSizeChanged, severity: store.SeverityMedium, impact: 0.5,
		changed: func(p, c *store.Snapshot) bool { return p.FileSize != c.FileSize && p.FileSize > 0 && c.FileSize > 0 },
		values:  func(p, c *store.Snapshot) (string, string) { return itoa(p.FileSize), itoa(c.FileSize) },
	},
	{
		eventType: EventContentDrift, severity: store.SeverityMedium, impact: 0.7,
		changed: func(p, c *store.Snapshot) bool {
			return p.ContentHash != c.ContentHash && p.ContentHash != "" && c.ContentHash != ""
		},
		values: func(p, c *store.Snapshot) (string, string) { return p.ContentHash, c.ContentHash },
	},
	{
		eventType: EventBecameAvailable, severity: store.SeverityMedium, impact: 0.6,
		changed: func(p, c *store.Snapshot) bool {
			return p.Availability != c.Availability && c.Availability == store.Available
		},
		values: func(p, c *store.Snapshot) (string, string) {
			return string(p.Availability), string(c.Availability)
		},
	},
	{
		eventType: EventBecameUnavailable, severity: store.SeverityHigh, impact: 0.9,
		changed: func(p, c *store.Snapshot) bool {
			return p.Availability != c.Availability && c.Availability == store.Unavailable
		},
		values: func(p, c *store.Snapshot) (string, string) {
			return string(p.Availability), string(c.Availability)
		},
	},
	{
		eventType: EventStatusCodeChanged, severity: store.SeverityMedium, impact: 0.5,
		changed: func(p, c *store.Snapshot) bool {
			return p.StatusCode != c.StatusCode && p.StatusCode != 0 && c.StatusCode != 0
		},
		values: func(p, c *store.Snapshot) (string, string) {
			return strconv.Itoa(p.StatusCode), strconv.Itoa(c.StatusCode)
		},
	},
	{
		eventType: EventLastModifiedChanged, severity: store.SeverityLow, impact: 0.2,
		changed: func(p, c *store.Snapshot) bool {
			return p.LastModified != c.LastModified && p.LastModified != "" && c.LastModified != ""
		},
		values: func(p, c *store.Snapshot) (string, string) { return p.LastModified, c.LastModified },
	},
}

func bothComputed(p, c *store.Snapshot) bool {
	return p.DimensionsComputed && c.DimensionsComputed
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// SchemaChanged reports a structural schema difference between the pair.
// Snapshots with unreadable stored schemas (nil) fall back to row/column
// count comparison upstream, so a nil on either side is not a change here.
func SchemaChanged(prev, curr *store.Snapshot) bool {
	if len(prev.Schema) == 0 || len(curr.Schema) == 0 {
		return false
	}
	if len(prev.Schema) != len(curr.Schema) {
		return true
	}
	for i := range prev.Schema {
		if prev.Schema[i] != curr.Schema[i] {
			return true
		}
	}
	return false
}

// Diff compares two consecutive snapshots of one dataset and returns the
// events their differences produce, in rule-table order. It is pure: the same
// pair always yields the same event set, IDs included, which is what makes
// crash recovery replay-safe.
func Diff(prev, curr *store.Snapshot) []*store.Event {
	if prev == nil || curr == nil {
		return nil
	}
	ts := pairTimestamp(curr)

	var events []*store.Event
	for _, r := range rules {
		if !r.changed(prev, curr) {
			continue
		}
		oldV, newV := r.values(prev, curr)
		events = append(events, &store.Event{
			EventID:     EventID(curr.DatasetID, r.eventType, ts),
			DatasetID:   curr.DatasetID,
			Type:        r.eventType,
			Severity:    r.severity,
			Timestamp:   ts,
			OldValue:    oldV,
			NewValue:    newV,
			ImpactScore: r.impact,
		})
	}
	return events
}

// FirstSnapshot returns the marker event for a dataset's first-ever snapshot.
// No field diffs are emitted from a single snapshot.
func FirstSnapshot(curr *store.Snapshot) *store.Event {
	ts := pairTimestamp(curr)
	return &store.Event{
		EventID:     EventID(curr.DatasetID, EventSnapshotCreated, ts),
		DatasetID:   curr.DatasetID,
		Type:        EventSnapshotCreated,
		Severity:    store.SeverityLow,
		Timestamp:   ts,
		NewValue:    curr.SnapshotDate,
		ImpactScore: 0.1,
	}
}

// pairTimestamp anchors all of a pair's events to the current snapshot's
// date, not wall-clock time, so a replayed diff regenerates identical IDs.
func pairTimestamp(curr *store.Snapshot) time.Time {
	t, err := time.Parse("2006-01-02", curr.SnapshotDate)
	if err != nil {
		return curr.CreatedAt.UTC().Truncate(24 * time.Hour)
	}
	return t.UTC()
}

// EventID derives the deterministic event identity from dataset, type, and
// pair timestamp.
func EventID(datasetID, eventType string, ts time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", datasetID, eventType, ts.Unix()))
	return hex.EncodeToString(sum[:16])
}
