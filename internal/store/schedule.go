package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) UpsertScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastCheck any
	if !e.LastCheck.IsZero() {
		lastCheck = e.LastCheck
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_schedule (
			dataset_id, priority, frequency_hours, next_check, last_check,
			check_count, success_count, failure_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			priority = excluded.priority,
			frequency_hours = excluded.frequency_hours,
			next_check = excluded.next_check,
			last_check = excluded.last_check,
			check_count = excluded.check_count,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count`,
		e.DatasetID, string(e.Priority), e.FrequencyHours, e.NextCheck, lastCheck,
		e.CheckCount, e.SuccessCount, e.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule entry for %s: %w", e.DatasetID, err)
	}
	return nil
}

func scanScheduleEntry(row interface{ Scan(...any) error }) (*ScheduleEntry, error) {
	var e ScheduleEntry
	var priority string
	var lastCheck sql.NullTime
	err := row.Scan(&e.DatasetID, &priority, &e.FrequencyHours, &e.NextCheck,
		&lastCheck, &e.CheckCount, &e.SuccessCount, &e.FailureCount)
	if err != nil {
		return nil, err
	}
	e.Priority = Priority(priority)
	if lastCheck.Valid {
		e.LastCheck = lastCheck.Time
	}
	return &e, nil
}

func (s *Store) GetScheduleEntry(ctx context.Context, datasetID string) (*ScheduleEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, priority, frequency_hours, next_check, last_check,
			check_count, success_count, failure_count
		FROM monitoring_schedule WHERE dataset_id = ?`, datasetID)
	e, err := scanScheduleEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule entry for %s: %w", datasetID, err)
	}
	return e, nil
}

// DueScheduleEntries returns entries in the given tier whose next_check is at
// or before now, ordered by next_check ascending.
func (s *Store) DueScheduleEntries(ctx context.Context, priority Priority, now time.Time, limit int) ([]*ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, priority, frequency_hours, next_check, last_check,
			check_count, success_count, failure_count
		FROM monitoring_schedule
		WHERE priority = ? AND next_check <= ?
		ORDER BY next_check ASC
		LIMIT ?`, string(priority), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due entries for %s: %w", priority, err)
	}
	defer rows.Close()

	var entries []*ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordCheckResult appends one row to the per-check log.
func (s *Store) RecordCheckResult(ctx context.Context, r *CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_results (dataset_id, checked_at, success, status_code, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.DatasetID, r.CheckedAt, r.Success, r.StatusCode, r.DurationMS, r.Error)
	if err != nil {
		return fmt.Errorf("failed to record check result for %s: %w", r.DatasetID, err)
	}
	return nil
}
