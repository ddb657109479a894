package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertSnapshot writes one dated observation. The (dataset_id, snapshot_date)
// key makes a same-day re-check overwrite rather than append.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schemaJSON, err := json.Marshal(snap.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for %s: %w", snap.DatasetID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dataset_states (
			dataset_id, snapshot_date, title, agency, url, resource_format,
			license_category, last_modified, content_hash, file_size,
			row_count, column_count, schema_json, availability, status_code,
			dimensions_computed, dimension_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id, snapshot_date) DO UPDATE SET
			title = excluded.title,
			agency = excluded.agency,
			url = excluded.url,
			resource_format = excluded.resource_format,
			license_category = excluded.license_category,
			last_modified = excluded.last_modified,
			content_hash = excluded.content_hash,
			file_size = excluded.file_size,
			row_count = excluded.row_count,
			column_count = excluded.column_count,
			schema_json = excluded.schema_json,
			availability = excluded.availability,
			status_code = excluded.status_code,
			dimensions_computed = excluded.dimensions_computed,
			dimension_error = excluded.dimension_error`,
		snap.DatasetID, snap.SnapshotDate, snap.Title, snap.Agency, snap.URL,
		snap.ResourceFormat, snap.LicenseCategory, snap.LastModified,
		snap.ContentHash, snap.FileSize, snap.RowCount, snap.ColumnCount,
		string(schemaJSON), string(snap.Availability), snap.StatusCode,
		snap.DimensionsComputed, snap.DimensionError, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s/%s: %w", snap.DatasetID, snap.SnapshotDate, err)
	}
	return nil
}

const snapshotColumns = `dataset_id, snapshot_date, title, agency, url,
	resource_format, license_category, last_modified, content_hash, file_size,
	row_count, column_count, schema_json, availability, status_code,
	dimensions_computed, dimension_error, created_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var snap Snapshot
	var schemaJSON, availability string
	err := row.Scan(&snap.DatasetID, &snap.SnapshotDate, &snap.Title, &snap.Agency,
		&snap.URL, &snap.ResourceFormat, &snap.LicenseCategory, &snap.LastModified,
		&snap.ContentHash, &snap.FileSize, &snap.RowCount, &snap.ColumnCount,
		&schemaJSON, &availability, &snap.StatusCode,
		&snap.DimensionsComputed, &snap.DimensionError, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}
	snap.Availability = Availability(availability)
	// Unparseable stored schema degrades to nil; diff and volatility fall
	// back to row/column comparison in that case.
	if err := json.Unmarshal([]byte(schemaJSON), &snap.Schema); err != nil {
		snap.Schema = nil
	}
	return &snap, nil
}

func (s *Store) GetSnapshot(ctx context.Context, datasetID, date string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM dataset_states
		 WHERE dataset_id = ? AND snapshot_date = ?`, datasetID, date)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s/%s: %w", datasetID, date, err)
	}
	return snap, nil
}

// LatestSnapshot returns the most recent snapshot for the dataset, or
// ErrNotFound if none exists yet.
func (s *Store) LatestSnapshot(ctx context.Context, datasetID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM dataset_states
		 WHERE dataset_id = ? ORDER BY snapshot_date DESC LIMIT 1`, datasetID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot for %s: %w", datasetID, err)
	}
	return snap, nil
}

// SnapshotHistory returns all snapshots for the dataset ordered by date
// ascending, the order the volatility analyzer consumes.
func (s *Store) SnapshotHistory(ctx context.Context, datasetID string) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM dataset_states
		 WHERE dataset_id = ? ORDER BY snapshot_date ASC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history for %s: %w", datasetID, err)
	}
	defer rows.Close()

	var history []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}
