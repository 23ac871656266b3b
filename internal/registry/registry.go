// Package registry implements the feature registry: the declarative
// source of truth for feature names, versions, TTLs, and A/B variant
// assignment.
package registry

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/featurepipeline/featurepipeline/internal/config"
)

const defaultVariantID = "A"

// superVersion is the A/B feature-version designated to be a superset of
// every other version — a variant pinned to it computes every feature
// regardless of that feature's own declared version.
const superVersion = "v2"

// activeCacheSize bounds the (variant, feature) → bool cache that Active
// fills on first lookup.
// A handful of variants times a few dozen features never comes close to
// this, so eviction in practice never happens.
const activeCacheSize = 4096

// Registry answers the questions the rest of the pipeline needs about
// feature definitions and variant assignment, computed once at startup
// from a parsed configuration document.
type Registry struct {
	doc         *config.Document
	byName      map[string]config.FeatureDefinition
	variantByID map[string]config.Variant
	activeCache *lru.ARCCache
}

// New builds a Registry from a parsed configuration document. Malformed
// configuration should already have been rejected by config.Parse; New
// only fails if the ARC cache cannot be allocated.
func New(doc *config.Document) (*Registry, error) {
	cache, err := lru.NewARC(activeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("registry: allocating active-set cache: %w", err)
	}

	byName := make(map[string]config.FeatureDefinition)
	for _, defs := range doc.Features {
		for _, def := range defs {
			byName[def.Name] = def
		}
	}

	variantByID := make(map[string]config.Variant, len(doc.ABTesting.Variants))
	for _, v := range doc.ABTesting.Variants {
		variantByID[v.ID] = v
	}

	return &Registry{
		doc:         doc,
		byName:      byName,
		variantByID: variantByID,
		activeCache: cache,
	}, nil
}

// Version returns the global feature-set version.
func (r *Registry) Version() string {
	return r.doc.FeatureVersion
}

// FeatureNames returns every feature name known to the registry, sorted,
// for startup logging.
func (r *Registry) FeatureNames() []string {
	names := maps.Keys(r.byName)
	slices.Sort(names)
	return names
}

// TTL returns the feature-specific cache TTL, falling back to the
// configured default (or 300s if that too is unset) for unknown names.
func (r *Registry) TTL(name string) time.Duration {
	if secs, ok := r.doc.Cache.FeatureTTLs[name]; ok {
		return time.Duration(secs) * time.Second
	}
	if def, ok := r.byName[name]; ok && def.TTLSeconds != nil {
		return time.Duration(*def.TTLSeconds) * time.Second
	}
	def := r.doc.Cache.DefaultTTLSeconds
	if def <= 0 {
		def = 300
	}
	return time.Duration(def) * time.Second
}

// Variant deterministically assigns a user id to a variant id: a stable
// 128-bit digest of user_id reduced mod 100 walks the variant table's
// cumulative traffic_percentage, returning the first id whose cumulative
// bound strictly exceeds the bucket. When A/B testing is disabled, the
// first configured variant id is returned (or "A" if none is configured).
func (r *Registry) Variant(userID string) string {
	if !r.doc.ABTesting.Enabled {
		if len(r.doc.ABTesting.Variants) > 0 {
			return r.doc.ABTesting.Variants[0].ID
		}
		return defaultVariantID
	}

	bucket := bucketOf(userID)
	cumulative := 0
	for _, v := range r.doc.ABTesting.Variants {
		cumulative += v.TrafficPercentage
		if bucket < cumulative {
			return v.ID
		}
	}
	return defaultVariantID
}

// bucketOf reduces a stable 128-bit digest of s to [0, 100).
func bucketOf(s string) int {
	h := xxh3.Hash128Seed([]byte(s), 0)
	// 2^64 mod 100 == 16; combine the two 64-bit limbs mod 100 without
	// needing a big.Int for a modulus this small.
	return int((h.Hi%100*16 + h.Lo%100) % 100)
}

// Active reports whether featureName should be computed for variantID: a
// feature unknown to the registry is always active (forward-compat with
// computed extras the registry doesn't enumerate). A known feature is
// active when its declared version matches the variant's features_version,
// or when the variant's features_version is the superset version.
func (r *Registry) Active(featureName, variantID string) bool {
	cacheKey := variantID + "\x00" + featureName
	if v, ok := r.activeCache.Get(cacheKey); ok {
		return v.(bool)
	}
	active := r.computeActive(featureName, variantID)
	r.activeCache.Add(cacheKey, active)
	return active
}

func (r *Registry) computeActive(featureName, variantID string) bool {
	def, known := r.byName[featureName]
	if !known {
		return true
	}
	variant, ok := r.variantByID[variantID]
	if !ok {
		return true
	}
	featureVersion := def.Version
	if featureVersion == "" {
		featureVersion = "v1"
	}
	variantVersion := variant.FeaturesVersion
	if variantVersion == "" {
		variantVersion = "v1"
	}
	return featureVersion == variantVersion || variantVersion == superVersion
}
