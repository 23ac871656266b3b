package compute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featurepipeline/featurepipeline/internal/config"
	registrypkg "github.com/featurepipeline/featurepipeline/internal/registry"
)

type fakeCounters struct {
	windowCounts map[string]int64
	eventFreq    map[string]int64
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{windowCounts: map[string]int64{}, eventFreq: map[string]int64{}}
}

func (f *fakeCounters) BumpWindow(_ context.Context, userID string, window, _ time.Duration) int64 {
	key := userID + ":" + window.String()
	f.windowCounts[key]++
	return f.windowCounts[key]
}

func (f *fakeCounters) BumpEventTypeFreq(_ context.Context, userID, eventType string) int64 {
	key := userID + ":" + eventType
	f.eventFreq[key]++
	return f.eventFreq[key]
}

func (f *fakeCounters) ReadEventTypeFreq(_ context.Context, userID, eventType string) int64 {
	return f.eventFreq[userID+":"+eventType]
}

type fakeSessionCache struct {
	strings map[string]string
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{strings: map[string]string{}}
}

func (f *fakeSessionCache) GetString(_ context.Context, key string) (string, bool) {
	v, ok := f.strings[key]
	return v, ok
}

func (f *fakeSessionCache) SetString(_ context.Context, key, value string, _ time.Duration) {
	f.strings[key] = value
}

type fakeDrift struct {
	recorded map[string][]float64
}

func newFakeDrift() *fakeDrift {
	return &fakeDrift{recorded: map[string][]float64{}}
}

func (f *fakeDrift) Record(_ context.Context, featureName string, value float64) {
	f.recorded[featureName] = append(f.recorded[featureName], value)
}

func v1Registry(t *testing.T) *registrypkg.Registry {
	t.Helper()
	doc := &config.Document{
		FeatureVersion: "v1",
		Cache:          config.CacheConfig{DefaultTTLSeconds: 300},
		ABTesting: config.ABTestingConfig{
			Enabled:  true,
			Variants: []config.Variant{{ID: "A", TrafficPercentage: 100, FeaturesVersion: "v1"}},
		},
	}
	reg, err := registrypkg.New(doc)
	require.NoError(t, err)
	return reg
}

func newComputer(t *testing.T, reg *registrypkg.Registry) (*Computer, *fakeCounters, *fakeSessionCache, *fakeDrift) {
	t.Helper()
	counters := newFakeCounters()
	cache := newFakeSessionCache()
	drift := newFakeDrift()
	c := New(reg, counters, cache, drift)
	return c, counters, cache, drift
}

func eventJSON(userID, eventType, ts string) []byte {
	return []byte(`{"user_id":"` + userID + `","event_type":"` + eventType + `","ingested_at":"` + ts + `"}`)
}

func TestCompute_FirstEventForUser_IsActiveSessionAndScoreTwenty(t *testing.T) {
	reg := v1Registry(t)
	c, _, _, _ := newComputer(t, reg)

	record, err := c.Compute(context.Background(), eventJSON("u1", "click", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	count1h, ok := record.Get("activity_count_1h")
	require.True(t, ok)
	i, _ := count1h.Int()
	assert.EqualValues(t, 1, i)

	active, ok := record.Get("is_active_session")
	require.True(t, ok)
	b, _ := active.Bool()
	assert.True(t, b)

	score, ok := record.Get("engagement_score")
	require.True(t, ok)
	f, _ := score.Float()
	assert.Equal(t, 20.0, f)

	_, hasV2 := record.Get("engagement_score_v2")
	assert.False(t, hasV2)
}

func TestCompute_SecondEventTenSecondsLater_TracksElapsedAndSecondCount(t *testing.T) {
	reg := v1Registry(t)
	c, _, _, _ := newComputer(t, reg)
	ctx := context.Background()

	_, err := c.Compute(ctx, eventJSON("u1", "click", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	record, err := c.Compute(ctx, eventJSON("u1", "click", "2024-01-01T10:00:10Z"))
	require.NoError(t, err)

	elapsed, ok := record.Get("seconds_since_last_event")
	require.True(t, ok)
	f, _ := elapsed.Float()
	assert.Equal(t, 10.0, f)

	count1h, _ := record.Get("activity_count_1h")
	i, _ := count1h.Int()
	assert.EqualValues(t, 2, i)

	score, _ := record.Get("engagement_score")
	sf, _ := score.Float()
	assert.Equal(t, 20.0, sf)
}

func TestCompute_NewUserFlag_TrueOnFirstEventFalseAfterWindowExpires(t *testing.T) {
	reg := v1Registry(t)
	c, _, _, _ := newComputer(t, reg)
	ctx := context.Background()

	first, err := c.Compute(ctx, eventJSON("u2", "login", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	isNew, ok := first.Get("is_new_user")
	require.True(t, ok)
	b, _ := isNew.Bool()
	assert.True(t, b)

	later, err := c.Compute(ctx, eventJSON("u2", "login", "2024-01-02T01:00:00Z"))
	require.NoError(t, err)
	isNew2, _ := later.Get("is_new_user")
	b2, _ := isNew2.Bool()
	assert.False(t, b2)
}

func TestCompute_CategoricalGating_IsByCompositeGateNotPerColumn(t *testing.T) {
	doc := &config.Document{
		FeatureVersion: "v1",
		Features: map[string][]config.FeatureDefinition{
			"categorical": {{Name: "event_type_encoded", Version: "v2"}},
		},
		Cache: config.CacheConfig{DefaultTTLSeconds: 300},
		ABTesting: config.ABTestingConfig{
			Enabled:  true,
			Variants: []config.Variant{{ID: "A", TrafficPercentage: 100, FeaturesVersion: "v1"}},
		},
	}
	reg, err := registrypkg.New(doc)
	require.NoError(t, err)
	c, _, _, _ := newComputer(t, reg)

	record, err := c.Compute(context.Background(), eventJSON("u3", "login", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	// event_type_encoded is v2-only, variant A is v1: the whole one-hot
	// block must be absent, not partially present.
	for _, et := range eventTypes {
		_, ok := record.Get("event_type_" + et)
		assert.False(t, ok, "event_type_%s should be gated off", et)
	}

	// device_type_encoded has no registry entry: unknown-feature default
	// is always active, so its whole block must be present.
	for _, dt := range deviceTypes {
		_, ok := record.Get("device_type_" + dt)
		assert.True(t, ok, "device_type_%s should be active by default", dt)
	}
}

func TestCompute_TimestampParseFailure_FallsBackToNowAndOmitsTemporalFeatures(t *testing.T) {
	reg := v1Registry(t)
	c, _, _, _ := newComputer(t, reg)

	record, err := c.Compute(context.Background(), eventJSON("u4", "view", "not-a-timestamp"))
	require.NoError(t, err)

	_, hasHour := record.Get("hour_of_day")
	assert.False(t, hasHour)
}

func TestCompute_VariantB_UsesV2EngagementKey(t *testing.T) {
	doc := &config.Document{
		FeatureVersion: "v2",
		Cache:          config.CacheConfig{DefaultTTLSeconds: 300},
		ABTesting: config.ABTestingConfig{
			Enabled:  true,
			Variants: []config.Variant{{ID: "B", TrafficPercentage: 100, FeaturesVersion: "v2"}},
		},
	}
	reg, err := registrypkg.New(doc)
	require.NoError(t, err)
	c, _, _, _ := newComputer(t, reg)

	record, err := c.Compute(context.Background(), eventJSON("u5", "click", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	_, hasV1 := record.Get("engagement_score")
	assert.False(t, hasV1)
	_, hasV2 := record.Get("engagement_score_v2")
	assert.True(t, hasV2)
}

func TestCompute_RecordsDriftForEngagementAndActivityCount(t *testing.T) {
	reg := v1Registry(t)
	c, _, _, drift := newComputer(t, reg)

	_, err := c.Compute(context.Background(), eventJSON("u6", "click", "2024-01-01T10:00:00Z"))
	require.NoError(t, err)

	assert.Len(t, drift.recorded["engagement_score"], 1)
	assert.Len(t, drift.recorded["activity_count_1h"], 1)
}
