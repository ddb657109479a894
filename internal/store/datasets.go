package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("store: not found")

func (s *Store) UpsertDataset(ctx context.Context, d *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (
			dataset_id, title, agency, landing_url, resource_format,
			license, license_category, last_modified, first_discovered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			title = excluded.title,
			agency = excluded.agency,
			landing_url = excluded.landing_url,
			resource_format = excluded.resource_format,
			license = excluded.license,
			license_category = excluded.license_category,
			last_modified = excluded.last_modified`,
		d.DatasetID, d.Title, d.Agency, d.LandingURL, d.ResourceFormat,
		d.License, d.LicenseCategory, d.LastModified, d.FirstDiscovered)
	if err != nil {
		return fmt.Errorf("failed to upsert dataset %s: %w", d.DatasetID, err)
	}
	return nil
}

func (s *Store) GetDataset(ctx context.Context, datasetID string) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, title, agency, landing_url, resource_format,
			license, license_category, last_modified, first_discovered
		FROM datasets WHERE dataset_id = ?`, datasetID)

	var d Dataset
	err := row.Scan(&d.DatasetID, &d.Title, &d.Agency, &d.LandingURL, &d.ResourceFormat,
		&d.License, &d.LicenseCategory, &d.LastModified, &d.FirstDiscovered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", datasetID, err)
	}
	return &d, nil
}

func (s *Store) ListDatasetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dataset_id FROM datasets ORDER BY dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DatasetKnown reports whether any discovery source has ever associated this
// dataset ID. Newness is decided here, not by snapshot presence: a dataset
// registered but never successfully fetched is still known.
func (s *Store) DatasetKnown(ctx context.Context, datasetID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dataset_sources WHERE dataset_id = ?`, datasetID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check dataset association: %w", err)
	}
	return n > 0, nil
}

// AssociateSource records that a source enumerated this dataset in the given
// session, creating the association row on first sight.
func (s *Store) AssociateSource(ctx context.Context, datasetID, source, sessionID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_sources (dataset_id, source, first_seen, last_seen_session)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dataset_id, source) DO UPDATE SET
			last_seen_session = excluded.last_seen_session`,
		datasetID, source, seenAt, sessionID)
	if err != nil {
		return fmt.Errorf("failed to associate source %s with dataset %s: %w", source, datasetID, err)
	}
	return nil
}

// DatasetsNotSeenInSession returns dataset IDs that have at least one source
// association but were absent from the given session's enumeration. These are
// the vanished-dataset candidates; their rows are never deleted.
func (s *Store) DatasetsNotSeenInSession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT dataset_id FROM dataset_sources
		WHERE dataset_id NOT IN (
			SELECT dataset_id FROM dataset_sources WHERE last_seen_session = ?
		)
		ORDER BY dataset_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unseen datasets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
