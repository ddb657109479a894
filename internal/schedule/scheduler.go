package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/opendatawatch/opendatawatch/internal/store"
)

type Config struct {
	Logger *slog.Logger
	Store  *store.Store
	Clock  clockwork.Clock
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Scheduler owns the monitoring_schedule table: registration, tier
// reclassification, due-task queries, and post-check bookkeeping.
type Scheduler struct {
	log   *slog.Logger
	cfg   *Config
	store *store.Store
	clock clockwork.Clock
}

func New(cfg *Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:   cfg.Logger,
		cfg:   cfg,
		store: cfg.Store,
		clock: cfg.Clock,
	}, nil
}

// Task is one unit of due work handed to a fetch pool.
type Task struct {
	DatasetID string
	Priority  store.Priority
}

// Register creates a schedule entry for a newly discovered dataset at the
// unclassified tier, due immediately. Existing entries are left alone.
func (s *Scheduler) Register(ctx context.Context, datasetID string) error {
	_, err := s.store.GetScheduleEntry(ctx, datasetID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	entry := &store.ScheduleEntry{
		DatasetID:      datasetID,
		Priority:       store.PriorityUnclassified,
		FrequencyHours: FrequencyHours(store.PriorityUnclassified),
		NextCheck:      s.clock.Now().UTC(),
	}
	if err := s.store.UpsertScheduleEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to register %s: %w", datasetID, err)
	}
	MetricRegistered.Inc()
	s.log.Debug("registered dataset for monitoring", slog.String("dataset_id", datasetID))
	return nil
}

// Reclassify re-evaluates a dataset's tier from current metadata and
// volatility. A tier change rewrites frequency and pulls next_check forward
// when the new cadence is tighter.
func (s *Scheduler) Reclassify(ctx context.Context, datasetID string, in ClassifierInput) (store.Priority, error) {
	entry, err := s.store.GetScheduleEntry(ctx, datasetID)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.Register(ctx, datasetID); err != nil {
			return "", err
		}
		entry, err = s.store.GetScheduleEntry(ctx, datasetID)
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	priority := Classify(in)
	if priority == entry.Priority {
		return priority, nil
	}

	oldPriority := entry.Priority
	entry.Priority = priority
	entry.FrequencyHours = FrequencyHours(priority)

	if !entry.LastCheck.IsZero() {
		recheck := entry.LastCheck.Add(time.Duration(entry.FrequencyHours * float64(time.Hour)))
		if recheck.Before(entry.NextCheck) {
			entry.NextCheck = recheck
		}
	}

	if err := s.store.UpsertScheduleEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to reclassify %s: %w", datasetID, err)
	}
	MetricReclassified.WithLabelValues(string(priority)).Inc()
	s.log.Info("dataset reclassified",
		slog.String("dataset_id", datasetID),
		slog.String("from", string(oldPriority)),
		slog.String("to", string(priority)))
	return priority, nil
}

// GetDueTasks returns up to limit tasks in the tier whose next_check has
// passed, soonest first.
func (s *Scheduler) GetDueTasks(ctx context.Context, priority store.Priority, limit int) ([]Task, error) {
	entries, err := s.store.DueScheduleEntries(ctx, priority, s.clock.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, Task{DatasetID: e.DatasetID, Priority: e.Priority})
	}
	return tasks, nil
}

// RecordCheckOutcome updates the schedule entry after a check attempt. The
// next check lands one full tier interval out whether the check succeeded or
// failed; failure backoff is the rate limiter's concern, not the scheduler's.
func (s *Scheduler) RecordCheckOutcome(ctx context.Context, datasetID string, success bool) error {
	entry, err := s.store.GetScheduleEntry(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("failed to load schedule entry for %s: %w", datasetID, err)
	}

	now := s.clock.Now().UTC()
	entry.LastCheck = now
	entry.CheckCount++
	if success {
		entry.SuccessCount++
	} else {
		entry.FailureCount++
	}
	entry.NextCheck = now.Add(time.Duration(entry.FrequencyHours * float64(time.Hour)))

	if err := s.store.UpsertScheduleEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to record check outcome for %s: %w", datasetID, err)
	}
	return nil
}
