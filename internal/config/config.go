// Package config parses the declarative feature-registry document that
// drives the registry, cache TTLs, A/B assignment, and drift thresholds.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeatureDefinition is one entry under a category in the features document.
type FeatureDefinition struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Category   string `yaml:"category,omitempty"`
	TTLSeconds *int   `yaml:"ttl_seconds,omitempty"`
}

// CacheConfig holds the default and per-feature TTLs used by the registry.
type CacheConfig struct {
	DefaultTTLSeconds int            `yaml:"default_ttl_seconds"`
	FeatureTTLs       map[string]int `yaml:"feature_ttls"`
}

// Variant is one entry of the A/B variant table.
type Variant struct {
	ID                string `yaml:"id"`
	TrafficPercentage int    `yaml:"traffic_percentage"`
	FeaturesVersion   string `yaml:"features_version"`
}

// ABTestingConfig is the ordered variant table plus an enable switch.
type ABTestingConfig struct {
	Enabled  bool      `yaml:"enabled"`
	Variants []Variant `yaml:"variants"`
}

// DriftThreshold bounds the acceptable mean/std shift for one feature.
type DriftThreshold struct {
	MeanShift float64 `yaml:"mean_shift"`
	StdShift  float64 `yaml:"std_shift"`
}

// DriftDetectionConfig is the enable switch plus per-feature thresholds.
type DriftDetectionConfig struct {
	Enabled    bool                      `yaml:"enabled"`
	Thresholds map[string]DriftThreshold `yaml:"thresholds"`
}

// Document is the full parsed feature-registry configuration.
type Document struct {
	FeatureVersion string                         `yaml:"feature_version"`
	Features       map[string][]FeatureDefinition `yaml:"features"`
	Cache          CacheConfig                    `yaml:"cache"`
	ABTesting      ABTestingConfig                `yaml:"ab_testing"`
	DriftDetection DriftDetectionConfig           `yaml:"drift_detection"`
}

// Load reads and parses the document at path, validating it well enough
// that a malformed config fails fast at startup rather than surfacing as a
// confusing runtime error later.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and unmarshals a feature-registry document from raw bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing document: %w", err)
	}
	if doc.FeatureVersion == "" {
		doc.FeatureVersion = "v1"
	}
	if doc.Cache.DefaultTTLSeconds <= 0 {
		doc.Cache.DefaultTTLSeconds = 300
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	if !d.ABTesting.Enabled {
		return nil
	}
	if len(d.ABTesting.Variants) == 0 {
		return fmt.Errorf("config: ab_testing.enabled is true but no variants are configured")
	}
	total := 0
	for _, v := range d.ABTesting.Variants {
		if v.ID == "" {
			return fmt.Errorf("config: variant with empty id")
		}
		if v.TrafficPercentage < 0 {
			return fmt.Errorf("config: variant %s has negative traffic_percentage", v.ID)
		}
		total += v.TrafficPercentage
	}
	if total != 100 {
		return fmt.Errorf("config: variant traffic_percentage sums to %d, want 100", total)
	}
	return nil
}
