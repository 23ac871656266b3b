package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featurepipeline/featurepipeline/internal/config"
)

func fiftyFiftyDoc() *config.Document {
	return &config.Document{
		FeatureVersion: "v2",
		Features: map[string][]config.FeatureDefinition{
			"temporal": {
				{Name: "hour_of_day", Version: "v1"},
			},
			"engagement": {
				{Name: "engagement_score_v2", Version: "v2"},
			},
		},
		Cache: config.CacheConfig{DefaultTTLSeconds: 300},
		ABTesting: config.ABTestingConfig{
			Enabled: true,
			Variants: []config.Variant{
				{ID: "A", TrafficPercentage: 50, FeaturesVersion: "v1"},
				{ID: "B", TrafficPercentage: 50, FeaturesVersion: "v2"},
			},
		},
	}
}

func TestVariant_StableAcrossRepeatedCalls(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("user_%d", i)
		first := reg.Variant(userID)
		for r := 0; r < 100; r++ {
			assert.Equal(t, first, reg.Variant(userID))
		}
	}
}

func TestVariant_ConvergesToConfiguredSplit(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)

	countA := 0
	const n = 1000
	for i := 0; i < n; i++ {
		if reg.Variant(fmt.Sprintf("user_%d", i)) == "A" {
			countA++
		}
	}
	assert.InDelta(t, 500, countA, 80)
}

func TestVariant_DisabledReturnsFirstConfiguredVariant(t *testing.T) {
	doc := fiftyFiftyDoc()
	doc.ABTesting.Enabled = false
	reg, err := New(doc)
	require.NoError(t, err)

	assert.Equal(t, "A", reg.Variant("anyone"))
}

func TestActive_UnknownFeatureIsAlwaysActive(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)

	assert.True(t, reg.Active("some_extra_computed_thing", "A"))
	assert.True(t, reg.Active("some_extra_computed_thing", "B"))
}

func TestActive_KnownFeatureGatedByVersionMatch(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)

	// hour_of_day is v1: active for variant A (v1) and B (v2, the superset).
	assert.True(t, reg.Active("hour_of_day", "A"))
	assert.True(t, reg.Active("hour_of_day", "B"))
}

func TestActive_V2OnlyFeatureInactiveForV1Variant(t *testing.T) {
	doc := fiftyFiftyDoc()
	doc.ABTesting.Variants = []config.Variant{
		{ID: "A", TrafficPercentage: 100, FeaturesVersion: "v1"},
	}
	reg, err := New(doc)
	require.NoError(t, err)

	assert.False(t, reg.Active("engagement_score_v2", "A"))
}

func TestTTL_FallsBackToDefault(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)

	assert.Equal(t, 300, int(reg.TTL("nonexistent_feature").Seconds()))
}

func TestTTL_UsesFeatureSpecificOverride(t *testing.T) {
	doc := fiftyFiftyDoc()
	doc.Cache.FeatureTTLs = map[string]int{"hour_of_day": 60}
	reg, err := New(doc)
	require.NoError(t, err)

	assert.Equal(t, 60, int(reg.TTL("hour_of_day").Seconds()))
}

func TestVersion_ReflectsConfiguredFeatureVersion(t *testing.T) {
	reg, err := New(fiftyFiftyDoc())
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Version())
}
