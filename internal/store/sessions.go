package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) CreateDiscoverySession(ctx context.Context, sess *DiscoverySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discovery_sessions (session_id, start_time, status)
		VALUES (?, ?, ?)`,
		sess.SessionID, sess.StartTime, sess.Status)
	if err != nil {
		return fmt.Errorf("failed to create discovery session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *Store) CloseDiscoverySession(ctx context.Context, sess *DiscoverySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE discovery_sessions SET
			end_time = ?,
			sources_checked = ?,
			total_datasets_found = ?,
			new_datasets_found = ?,
			status = ?
		WHERE session_id = ?`,
		sess.EndTime, sess.SourcesChecked, sess.TotalDatasetsFound,
		sess.NewDatasetsFound, sess.Status, sess.SessionID)
	if err != nil {
		return fmt.Errorf("failed to close discovery session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *Store) GetDiscoverySession(ctx context.Context, sessionID string) (*DiscoverySession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, start_time, end_time, sources_checked,
			total_datasets_found, new_datasets_found, status
		FROM discovery_sessions WHERE session_id = ?`, sessionID)

	var sess DiscoverySession
	var endTime sql.NullTime
	err := row.Scan(&sess.SessionID, &sess.StartTime, &endTime, &sess.SourcesChecked,
		&sess.TotalDatasetsFound, &sess.NewDatasetsFound, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discovery session %s: %w", sessionID, err)
	}
	if endTime.Valid {
		sess.EndTime = endTime.Time
	}
	return &sess, nil
}
