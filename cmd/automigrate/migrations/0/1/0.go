package v0x1x0

import (
	"database/sql"

	"go.uber.org/zap"
)

// V0x1x0 creates the two tables the feature pipeline reads and writes:
// features (the current-value store C5 upserts into and the read API
// serves from) and raw_events (the history C2 falls back to on a cache
// miss).
func V0x1x0(db *sql.DB) error {
	zap.S().Infof("Applying migration 0.1.0")

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS features (
			user_id text NOT NULL,
			feature_name text NOT NULL,
			feature_value double precision NOT NULL,
			computed_at timestamptz NOT NULL,
			feature_version text NOT NULL,
			ab_variant text NOT NULL,
			PRIMARY KEY (user_id, feature_name)
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS features_computed_at_idx ON features (computed_at);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS raw_events (
			id bigserial PRIMARY KEY,
			user_id text NOT NULL,
			event_type text NOT NULL,
			timestamp timestamptz NOT NULL,
			payload jsonb NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS raw_events_user_id_timestamp_idx ON raw_events (user_id, timestamp);
	`)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	zap.S().Infof("Applied migration 0.1.0")
	return nil
}
