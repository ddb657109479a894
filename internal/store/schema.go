package store

// schemaSQL returns the DDL statements for every table the monitor owns. The
// dashboard and export layers read these tables directly; nothing outside
// this package writes them.
func schemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			dataset_id       TEXT PRIMARY KEY,
			title            TEXT NOT NULL DEFAULT '',
			agency           TEXT NOT NULL DEFAULT '',
			landing_url      TEXT NOT NULL DEFAULT '',
			resource_format  TEXT NOT NULL DEFAULT '',
			license          TEXT NOT NULL DEFAULT '',
			license_category TEXT NOT NULL DEFAULT 'unknown',
			last_modified    TEXT NOT NULL DEFAULT '',
			first_discovered TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_sources (
			dataset_id   TEXT NOT NULL,
			source       TEXT NOT NULL,
			first_seen   TIMESTAMP NOT NULL,
			last_seen_session TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (dataset_id, source)
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_states (
			dataset_id          TEXT NOT NULL,
			snapshot_date       TEXT NOT NULL,
			title               TEXT NOT NULL DEFAULT '',
			agency              TEXT NOT NULL DEFAULT '',
			url                 TEXT NOT NULL DEFAULT '',
			resource_format     TEXT NOT NULL DEFAULT '',
			license_category    TEXT NOT NULL DEFAULT 'unknown',
			last_modified       TEXT NOT NULL DEFAULT '',
			content_hash        TEXT NOT NULL DEFAULT '',
			file_size           INTEGER NOT NULL DEFAULT 0,
			row_count           INTEGER NOT NULL DEFAULT 0,
			column_count        INTEGER NOT NULL DEFAULT 0,
			schema_json         TEXT NOT NULL DEFAULT '[]',
			availability        TEXT NOT NULL DEFAULT 'unavailable',
			status_code         INTEGER NOT NULL DEFAULT 0,
			dimensions_computed INTEGER NOT NULL DEFAULT 0,
			dimension_error     TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMP NOT NULL,
			PRIMARY KEY (dataset_id, snapshot_date)
		)`,
		`CREATE TABLE IF NOT EXISTS historian_diffs (
			event_id     TEXT PRIMARY KEY,
			dataset_id   TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			severity     TEXT NOT NULL,
			timestamp    TIMESTAMP NOT NULL,
			old_value    TEXT NOT NULL DEFAULT '',
			new_value    TEXT NOT NULL DEFAULT '',
			impact_score REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historian_diffs_dataset
			ON historian_diffs (dataset_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS volatility_metrics (
			dataset_id              TEXT PRIMARY KEY,
			churn_rate              REAL NOT NULL DEFAULT 0,
			content_drift           REAL NOT NULL DEFAULT 0,
			license_flips           INTEGER NOT NULL DEFAULT 0,
			schema_volatility       REAL NOT NULL DEFAULT 0,
			availability_volatility REAL NOT NULL DEFAULT 0,
			total_changes           INTEGER NOT NULL DEFAULT 0,
			avg_change_frequency    REAL NOT NULL DEFAULT 0,
			computed_at             TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS monitoring_schedule (
			dataset_id      TEXT PRIMARY KEY,
			priority        TEXT NOT NULL DEFAULT 'unclassified',
			frequency_hours REAL NOT NULL DEFAULT 168,
			next_check      TIMESTAMP NOT NULL,
			last_check      TIMESTAMP,
			check_count     INTEGER NOT NULL DEFAULT 0,
			success_count   INTEGER NOT NULL DEFAULT 0,
			failure_count   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monitoring_schedule_due
			ON monitoring_schedule (priority, next_check)`,
		`CREATE TABLE IF NOT EXISTS monitoring_results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_id  TEXT NOT NULL,
			checked_at  TIMESTAMP NOT NULL,
			success     INTEGER NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS discovery_sessions (
			session_id           TEXT PRIMARY KEY,
			start_time           TIMESTAMP NOT NULL,
			end_time             TIMESTAMP,
			sources_checked      INTEGER NOT NULL DEFAULT 0,
			total_datasets_found INTEGER NOT NULL DEFAULT 0,
			new_datasets_found   INTEGER NOT NULL DEFAULT 0,
			status               TEXT NOT NULL DEFAULT 'running'
		)`,
	}
}
