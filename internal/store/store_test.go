package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featurepipeline/featurepipeline/internal/feature"
)

func TestUpsertBatch_HappyPath_CommitsCopyThenMerge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	rows := []Row{
		{UserID: "u1", FeatureName: "activity_count_1h", Value: feature.Int(3), ComputedAt: time.Now(), FeatureVersion: "v1", ABVariant: "A"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"tmp_features_batch"}, []string{
		"user_id", "feature_name", "feature_value", "computed_at", "feature_version", "ab_variant",
	}).WillReturnResult(int64(len(rows)))
	mock.ExpectExec("INSERT INTO features").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = s.UpsertBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_EmptyBatch_IsNoOp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	require.NoError(t, s.UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_CopyFails_RollsBackAndReturnsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	rows := []Row{{UserID: "u1", FeatureName: "x", Value: feature.Int(1), ComputedAt: time.Now()}}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"tmp_features_batch"}, []string{
		"user_id", "feature_name", "feature_value", "computed_at", "feature_version", "ab_variant",
	}).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.UpsertBatch(context.Background(), rows)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityCountSince_ReturnsScannedCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("u1", 3600).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := s.ActivityCountSince(context.Background(), "u1", 3600)
	require.NoError(t, err)
	assert.EqualValues(t, 7, count)
}

func TestLatestFeatures_NoRows_ReturnsErrNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	mock.ExpectQuery("SELECT feature_name").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"feature_name", "feature_value", "computed_at"}))

	_, _, err = s.LatestFeatures(context.Background(), "ghost")
	assert.True(t, ErrNoRows(err))
}

func TestLatestFeatures_KeepsFirstSeenPerFeatureName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	now := time.Now()
	mock.ExpectQuery("SELECT feature_name").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"feature_name", "feature_value", "computed_at"}).
			AddRow("activity_count_1h", 3.0, now).
			AddRow("activity_count_1h", 1.0, now.Add(-time.Hour)))

	values, latest, err := s.LatestFeatures(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, values["activity_count_1h"])
	assert.Equal(t, now, latest)
}

func TestSingleFeature_ReturnsValueAndTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := New(mock)
	now := time.Now()
	mock.ExpectQuery("SELECT feature_value").
		WithArgs("u1", "engagement_score").
		WillReturnRows(pgxmock.NewRows([]string{"feature_value", "computed_at"}).AddRow(42.0, now))

	value, computedAt, err := s.SingleFeature(context.Background(), "u1", "engagement_score")
	require.NoError(t, err)
	assert.Equal(t, 42.0, value)
	assert.Equal(t, now, computedAt)
}
