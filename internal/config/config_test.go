package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
feature_version: v2
features:
  temporal:
    - name: hour_of_day
      version: v1
cache:
  default_ttl_seconds: 300
  feature_ttls:
    hour_of_day: 60
ab_testing:
  enabled: true
  variants:
    - id: A
      traffic_percentage: 50
      features_version: v1
    - id: B
      traffic_percentage: 50
      features_version: v2
drift_detection:
  enabled: true
  thresholds:
    engagement_score:
      mean_shift: 10
      std_shift: 5
`

func TestParse_ValidDocument(t *testing.T) {
	doc, err := Parse([]byte(validDoc))
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.FeatureVersion)
	assert.Equal(t, 60, doc.Cache.FeatureTTLs["hour_of_day"])
	assert.Len(t, doc.ABTesting.Variants, 2)
	assert.Equal(t, 10.0, doc.DriftDetection.Thresholds["engagement_score"].MeanShift)
}

func TestParse_RejectsPercentagesNotSummingTo100(t *testing.T) {
	bad := `
ab_testing:
  enabled: true
  variants:
    - id: A
      traffic_percentage: 40
    - id: B
      traffic_percentage: 40
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParse_RejectsNegativePercentage(t *testing.T) {
	bad := `
ab_testing:
  enabled: true
  variants:
    - id: A
      traffic_percentage: -10
    - id: B
      traffic_percentage: 110
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParse_DisabledABTestingSkipsPercentageValidation(t *testing.T) {
	doc, err := Parse([]byte(`ab_testing: {enabled: false}`))
	require.NoError(t, err)
	assert.False(t, doc.ABTesting.Enabled)
}

func TestParse_DefaultsFeatureVersionAndTTL(t *testing.T) {
	doc, err := Parse([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.FeatureVersion)
	assert.Equal(t, 300, doc.Cache.DefaultTTLSeconds)
}
