// Package drift maintains online per-feature statistics and raises an
// alert when the current rolling hour diverges from the prior one beyond
// configured thresholds.
package drift

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/config"
	"github.com/featurepipeline/featurepipeline/internal/metrics"
)

const statsTTL = time.Hour
const valuesWindow = time.Hour

// keyValueStore is the slice of *cache.Cache that the detector needs.
// Depending on this narrow interface, rather than the concrete cache
// type, lets tests substitute an in-memory fake instead of a live Redis.
type keyValueStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, bool)
	HSetAll(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration)
	ZAdd(ctx context.Context, key string, score float64, member string, minScore float64)
}

// Detector records feature values into a rolling online-statistics model
// and compares it against a passively-rotated baseline.
type Detector struct {
	cache      keyValueStore
	enabled    bool
	thresholds map[string]config.DriftThreshold
	now        func() time.Time
}

// New builds a Detector from the drift_detection section of the
// configuration document.
func New(c keyValueStore, cfg config.DriftDetectionConfig) *Detector {
	return &Detector{
		cache:      c,
		enabled:    cfg.Enabled,
		thresholds: cfg.Thresholds,
		now:        time.Now,
	}
}

// Record folds value into the rolling stats for featureName, trims the
// values sorted set to the last hour, and checks for drift against the
// baseline. A NaN/Inf value or a disabled detector is a silent no-op.
func (d *Detector) Record(ctx context.Context, featureName string, value float64) {
	if !d.enabled || math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	now := d.now()
	ts := float64(now.UnixNano()) / 1e9
	member := fmt.Sprintf("%s:%s", formatFloat(ts), formatFloat(value))
	d.cache.ZAdd(ctx, "drift:values:"+featureName, ts, member, ts-valuesWindow.Seconds())

	current := d.loadStats(ctx, featureName).Update(value)
	d.saveStats(ctx, featureName, current)

	d.checkDrift(ctx, featureName, current)
}

func (d *Detector) loadStats(ctx context.Context, featureName string) Stats {
	fields, ok := d.cache.HGetAll(ctx, "drift:stats:"+featureName)
	if !ok {
		return Stats{}
	}
	return parseStats(fields)
}

func (d *Detector) saveStats(ctx context.Context, featureName string, s Stats) {
	d.cache.HSetAll(ctx, "drift:stats:"+featureName, statsFields(s), statsTTL)
}

func (d *Detector) checkDrift(ctx context.Context, featureName string, current Stats) {
	threshold, hasThreshold := d.thresholds[featureName]
	if !hasThreshold {
		return
	}

	baselineFields, ok := d.cache.HGetAll(ctx, "drift:baseline:"+featureName)
	if !ok {
		// No baseline yet, or the previous one expired: this sample starts
		// the next rolling hour's comparison point.
		d.cache.HSetAll(ctx, "drift:baseline:"+featureName, statsFields(current), statsTTL)
		return
	}
	baseline := parseStats(baselineFields)

	meanShift := math.Abs(current.Mean - baseline.Mean)
	stdShift := math.Abs(current.Std - baseline.Std)

	if meanShift > threshold.MeanShift || stdShift > threshold.StdShift {
		zap.S().Warnw("feature drift detected",
			"feature_name", featureName, "mean_shift", meanShift, "std_shift", stdShift)
		metrics.FeatureDriftAlerts.WithLabelValues(featureName).Inc()
	}
}

func statsFields(s Stats) map[string]interface{} {
	return map[string]interface{}{
		"count": s.Count,
		"mean":  formatFloat(s.Mean),
		"m2":    formatFloat(s.M2),
		"std":   formatFloat(s.Std),
	}
}

func parseStats(fields map[string]string) Stats {
	return Stats{
		Count: parseInt(fields["count"]),
		Mean:  parseFloat(fields["mean"]),
		M2:    parseFloat(fields["m2"]),
		Std:   parseFloat(fields["std"]),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
