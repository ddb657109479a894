package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertEvents writes diff events keyed by their deterministic event ID.
// Re-running a diff after a crash replays the same IDs, so recovery never
// duplicates events.
func (s *Store) UpsertEvents(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO historian_diffs (
				event_id, dataset_id, event_type, severity, timestamp,
				old_value, new_value, impact_score
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(event_id) DO NOTHING`,
			ev.EventID, ev.DatasetID, ev.Type, string(ev.Severity), ev.Timestamp,
			ev.OldValue, ev.NewValue, ev.ImpactScore)
		if err != nil {
			return fmt.Errorf("failed to upsert event %s: %w", ev.EventID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListEvents(ctx context.Context, datasetID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, dataset_id, event_type, severity, timestamp,
			old_value, new_value, impact_score
		FROM historian_diffs
		WHERE dataset_id = ?
		ORDER BY timestamp ASC, event_id ASC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", datasetID, err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var severity string
		if err := rows.Scan(&ev.EventID, &ev.DatasetID, &ev.Type, &severity,
			&ev.Timestamp, &ev.OldValue, &ev.NewValue, &ev.ImpactScore); err != nil {
			return nil, err
		}
		ev.Severity = Severity(severity)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *Store) UpsertVolatility(ctx context.Context, m *VolatilityMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO volatility_metrics (
			dataset_id, churn_rate, content_drift, license_flips,
			schema_volatility, availability_volatility, total_changes,
			avg_change_frequency, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			churn_rate = excluded.churn_rate,
			content_drift = excluded.content_drift,
			license_flips = excluded.license_flips,
			schema_volatility = excluded.schema_volatility,
			availability_volatility = excluded.availability_volatility,
			total_changes = excluded.total_changes,
			avg_change_frequency = excluded.avg_change_frequency,
			computed_at = excluded.computed_at`,
		m.DatasetID, m.ChurnRate, m.ContentDrift, m.LicenseFlips,
		m.SchemaVolatility, m.AvailabilityVolatility, m.TotalChanges,
		m.AvgChangeFrequency, m.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert volatility for %s: %w", m.DatasetID, err)
	}
	return nil
}

func (s *Store) GetVolatility(ctx context.Context, datasetID string) (*VolatilityMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, churn_rate, content_drift, license_flips,
			schema_volatility, availability_volatility, total_changes,
			avg_change_frequency, computed_at
		FROM volatility_metrics WHERE dataset_id = ?`, datasetID)

	var m VolatilityMetrics
	err := row.Scan(&m.DatasetID, &m.ChurnRate, &m.ContentDrift, &m.LicenseFlips,
		&m.SchemaVolatility, &m.AvailabilityVolatility, &m.TotalChanges,
		&m.AvgChangeFrequency, &m.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volatility for %s: %w", datasetID, err)
	}
	return &m, nil
}
