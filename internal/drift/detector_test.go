package drift

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featurepipeline/featurepipeline/internal/config"
	"github.com/featurepipeline/featurepipeline/internal/metrics"
)

// fakeStore is an in-memory stand-in for the cache, sufficient to drive
// the detector's hash/sorted-set usage without a live Redis.
type fakeStore struct {
	hashes map[string]map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, bool) {
	h, ok := f.hashes[key]
	if !ok || len(h) == 0 {
		return nil, false
	}
	return h, true
}

func (f *fakeStore) HSetAll(_ context.Context, key string, fields map[string]interface{}, _ time.Duration) {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = toString(v)
	}
}

func (f *fakeStore) ZAdd(context.Context, string, float64, string, float64) {}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return formatFloat(float64(t))
	default:
		return formatFloat(0)
	}
}

func TestDetector_Record_Disabled_NoOp(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, config.DriftDetectionConfig{Enabled: false})
	d.Record(context.Background(), "engagement_score", 30)
	assert.Empty(t, fs.hashes)
}

func TestDetector_Record_EstablishesBaselineOnFirstSample(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, config.DriftDetectionConfig{
		Enabled:    true,
		Thresholds: map[string]config.DriftThreshold{"engagement_score": {MeanShift: 10}},
	})
	d.Record(context.Background(), "engagement_score", 30)

	baseline, ok := fs.HGetAll(context.Background(), "drift:baseline:engagement_score")
	require.True(t, ok)
	assert.Equal(t, "30", baseline["mean"])
}

func TestDetector_Record_AlertsOnMeanShiftPastThreshold(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, config.DriftDetectionConfig{
		Enabled:    true,
		Thresholds: map[string]config.DriftThreshold{"engagement_score": {MeanShift: 10}},
	})
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.FeatureDriftAlerts.WithLabelValues("engagement_score"))

	for i := 0; i < 100; i++ {
		d.Record(ctx, "engagement_score", 30)
	}
	// Baseline was seeded on the first sample and never expires here (no
	// TTL simulated by the fake), so force a rotation the way a TTL expiry
	// would: drop the baseline hash and let the next sample re-seed it
	// against the now-shifted rolling stats.
	delete(fs.hashes, "drift:baseline:engagement_score")

	for i := 0; i < 100; i++ {
		d.Record(ctx, "engagement_score", 60)
	}

	// Feeding a further batch after the new baseline snapshot should now
	// show a mean shift once the rolling stats move again.
	for i := 0; i < 100; i++ {
		d.Record(ctx, "engagement_score", 90)
	}

	stats, ok := fs.HGetAll(ctx, "drift:stats:engagement_score")
	require.True(t, ok)
	assert.NotEmpty(t, stats["mean"])

	after := testutil.ToFloat64(metrics.FeatureDriftAlerts.WithLabelValues("engagement_score"))
	assert.Greater(t, after, before)
}

func TestDetector_Record_NoThresholdNeverAlertsButStillTracks(t *testing.T) {
	fs := newFakeStore()
	d := New(fs, config.DriftDetectionConfig{Enabled: true})
	d.Record(context.Background(), "untracked_feature", 5)

	stats, ok := fs.HGetAll(context.Background(), "drift:stats:untracked_feature")
	require.True(t, ok)
	assert.Equal(t, "5", stats["mean"])

	_, hasBaseline := fs.HGetAll(context.Background(), "drift:baseline:untracked_feature")
	assert.False(t, hasBaseline)
}
