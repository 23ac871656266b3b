// Package store is the feature store: a Postgres-backed connection pool
// providing the bulk upsert C5 needs per batch and the historical count
// read C2 falls back to on a cache miss.
//
// The pooled connection is held behind this package's narrow
// pgxPoolIface rather than the concrete *pgxpool.Pool type, the way the
// teacher's postgresql package does for its own Connection.db —
// *pgxpool.Pool satisfies it, and tests substitute pgxmock.NewPool() to
// drive real SQL assertions without a live database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/backoff"
	"github.com/featurepipeline/featurepipeline/internal/feature"
)

// pgxPoolIface is the subset of pgxmock.PgxPoolIface this package
// actually calls. pgxmock.PgxPoolIface itself also pulls in mock-only
// expectation-setting methods that *pgxpool.Pool has no reason to
// implement, so Store is kept behind this narrower interface instead:
// both *pgxpool.Pool and a pgxmock.PgxPoolIface value satisfy it.
type pgxPoolIface interface {
	Close()
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Row is one (user_id, feature_name) upsert target.
type Row struct {
	UserID         string
	FeatureName    string
	Value          feature.Value
	ComputedAt     time.Time
	FeatureVersion string
	ABVariant      string
}

// Store wraps a Postgres connection pool.
type Store struct {
	db pgxPoolIface
}

// Connect opens a pool against connString. connString is expected in the
// libpq keyword/value form the teacher's postgresql.go builds from
// POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE/SSL_MODE.
func Connect(ctx context.Context, connString string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	return &Store{db: pool}, nil
}

// New wraps an already-constructed pool (production *pgxpool.Pool, or a
// pgxmock.PgxPoolIface in tests).
func New(db pgxPoolIface) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// Available reports whether the store answers a trivial query within a
// bounded timeout.
func (s *Store) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var one int
	row := s.db.QueryRow(ctx, "SELECT 1")
	if err := row.Scan(&one); err != nil {
		zap.S().Debugw("store unavailable", "error", err)
		return false
	}
	return true
}

const upsertSQL = `
INSERT INTO features (user_id, feature_name, feature_value, computed_at, feature_version, ab_variant)
SELECT * FROM %s
ON CONFLICT (user_id, feature_name) DO UPDATE SET
	feature_value = EXCLUDED.feature_value,
	computed_at = EXCLUDED.computed_at,
	feature_version = EXCLUDED.feature_version,
	ab_variant = EXCLUDED.ab_variant;
`

// UpsertBatch persists every row in one transaction: a temp table absorbs
// a COPY, then a single INSERT ... ON CONFLICT DO UPDATE merges it into
// features. On any failure the transaction is rolled back and the error
// is returned so the caller can dead-letter the batch's events.
func (s *Store) UpsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const tempTable = "tmp_features_batch"
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s
		( LIKE features INCLUDING DEFAULTS )
		ON COMMIT DROP;
	`, tempTable))
	if err != nil {
		return fmt.Errorf("store: create temp table: %w", err)
	}

	source := &rowSource{rows: rows, index: -1}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{tempTable}, []string{
		"user_id", "feature_name", "feature_value", "computed_at", "feature_version", "ab_variant",
	}, source)
	if err != nil {
		return fmt.Errorf("store: copy into temp table: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(upsertSQL, tempTable))
	if err != nil {
		return fmt.Errorf("store: merge into features: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// UpsertBatchWithRetry retries UpsertBatch with the same exponential
// backoff shape used elsewhere in this repo for transient store faults,
// giving up and returning the last error after maxRetries.
func (s *Store) UpsertBatchWithRetry(ctx context.Context, rows []Row, maxRetries int) error {
	var err error
	for attempt := int64(0); attempt <= int64(maxRetries); attempt++ {
		if attempt > 0 {
			backoff.StoreRetry.Sleep(attempt)
		}
		if err = s.UpsertBatch(ctx, rows); err == nil {
			return nil
		}
		zap.S().Warnw("store upsert failed, retrying", "attempt", attempt, "error", err)
	}
	return err
}

// ActivityCountSince counts raw_events for user_id within the last
// windowSeconds, for C2's cache-miss fallback. Any database failure is
// reported to the caller, which per §4.2 treats it as a count of 0.
func (s *Store) ActivityCountSince(ctx context.Context, userID string, windowSeconds int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM raw_events
		WHERE user_id = $1 AND timestamp > NOW() - ($2 * INTERVAL '1 second')
	`, userID, windowSeconds)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("store: activity count query: %w", err)
	}
	return count, nil
}

// LatestFeatures reads every current feature row for a user, for the
// read API's database fallback path.
func (s *Store) LatestFeatures(ctx context.Context, userID string) (map[string]float64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.db.Query(ctx, `
		SELECT feature_name, feature_value, computed_at FROM features
		WHERE user_id = $1 ORDER BY computed_at DESC
	`, userID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: query features: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	var latest time.Time
	for rows.Next() {
		var name string
		var value float64
		var computedAt time.Time
		if err := rows.Scan(&name, &value, &computedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("store: scan feature row: %w", err)
		}
		if _, seen := out[name]; !seen {
			out[name] = value
			if computedAt.After(latest) {
				latest = computedAt
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(out) == 0 {
		return nil, time.Time{}, errNoRows
	}
	return out, latest, nil
}

// SingleFeature reads one named feature for a user.
func (s *Store) SingleFeature(ctx context.Context, userID, featureName string) (float64, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	row := s.db.QueryRow(ctx, `
		SELECT feature_value, computed_at FROM features
		WHERE user_id = $1 AND feature_name = $2
	`, userID, featureName)
	var value float64
	var computedAt time.Time
	if err := row.Scan(&value, &computedAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("store: query single feature: %w", err)
	}
	return value, computedAt, nil
}

var errNoRows = errors.New("store: no feature rows for user")

// ErrNoRows reports whether err denotes "no rows found" from a store read.
func ErrNoRows(err error) bool {
	return errors.Is(err, errNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// rowSource adapts a []Row to pgx.CopyFromSource, widening feature.Value
// to float64 the way the features table's feature_value column stores it.
type rowSource struct {
	rows  []Row
	index int
}

func (r *rowSource) Next() bool {
	r.index++
	return r.index < len(r.rows)
}

func (r *rowSource) Values() ([]interface{}, error) {
	row := r.rows[r.index]
	v, ok := row.Value.AsFloat64()
	if !ok {
		return nil, fmt.Errorf("store: feature %s has no populated value", row.FeatureName)
	}
	return []interface{}{
		row.UserID, row.FeatureName, v, row.ComputedAt, row.FeatureVersion, row.ABVariant,
	}, nil
}

func (r *rowSource) Err() error {
	return nil
}
