package store

import (
	"time"
)

// Priority is a dataset's monitoring tier. Tiers decide both how often a
// dataset is re-checked and how much fetch concurrency it is given.
type Priority string

const (
	PriorityUnclassified Priority = "unclassified"
	PriorityCritical     Priority = "critical"
	PriorityHigh         Priority = "high"
	PriorityMedium       Priority = "medium"
	PriorityLow          Priority = "low"
)

// Tiers lists the schedulable tiers in descending priority order.
var Tiers = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

type Availability string

const (
	Available          Availability = "available"
	Unavailable        Availability = "unavailable"
	PartiallyAvailable Availability = "partially_available"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Dataset is one logical catalog entry, identified across sources and time by
// DatasetID. Datasets are never deleted; a dataset that drops out of live
// enumeration keeps its row and its snapshot history.
type Dataset struct {
	DatasetID       string
	Title           string
	Agency          string
	LandingURL      string
	ResourceFormat  string
	License         string
	LicenseCategory string
	LastModified    string
	FirstDiscovered time.Time
}

// Snapshot is one dated observation of a dataset's fetched state. Exactly one
// row exists per (DatasetID, SnapshotDate); a same-day re-check upserts.
type Snapshot struct {
	DatasetID          string
	SnapshotDate       string // YYYY-MM-DD
	Title              string
	Agency             string
	URL                string
	ResourceFormat     string
	LicenseCategory    string
	LastModified       string
	ContentHash        string
	FileSize           int64
	RowCount           int64
	ColumnCount        int64
	Schema             []string
	Availability       Availability
	StatusCode         int
	DimensionsComputed bool
	DimensionError     string
	CreatedAt          time.Time
}

// Event is a normalized record of one difference between two consecutive
// snapshots of the same dataset.
type Event struct {
	EventID     string
	DatasetID   string
	Type        string
	Severity    Severity
	Timestamp   time.Time
	OldValue    string
	NewValue    string
	ImpactScore float64
}

// VolatilityMetrics is a materialized aggregate over a dataset's snapshot
// history. It is always recomputable from the snapshots, so rows are
// replaced, never appended.
type VolatilityMetrics struct {
	DatasetID              string
	ChurnRate              float64
	ContentDrift           float64
	LicenseFlips           int64
	SchemaVolatility       float64
	AvailabilityVolatility float64
	TotalChanges           int64
	AvgChangeFrequency     float64
	ComputedAt             time.Time
}

// ScheduleEntry is the scheduler's per-dataset row: one per dataset, mutated
// after every check attempt and on every reclassification.
type ScheduleEntry struct {
	DatasetID      string
	Priority       Priority
	FrequencyHours float64
	NextCheck      time.Time
	LastCheck      time.Time
	CheckCount     int64
	SuccessCount   int64
	FailureCount   int64
}

// CheckResult is one row of the per-check log (monitoring_results).
type CheckResult struct {
	DatasetID  string
	CheckedAt  time.Time
	Success    bool
	StatusCode int
	DurationMS int64
	Error      string
}

// DiscoverySession is the append-only record of one discovery run.
type DiscoverySession struct {
	SessionID          string
	StartTime          time.Time
	EndTime            time.Time
	SourcesChecked     int64
	TotalDatasetsFound int64
	NewDatasetsFound   int64
	Status             string // running, completed, failed
}

const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)
