// Package compute implements the feature computer (C3): given one raw
// event, it resolves the caller's A/B variant, computes every feature the
// registry says is active for that variant, and returns the completed
// record ready for the feature store and the outbound topic.
package compute

import (
	"context"
	"time"

	"github.com/featurepipeline/featurepipeline/internal/feature"
	"github.com/featurepipeline/featurepipeline/internal/metrics"
)

// registry is the slice of registry.Registry the computer depends on.
type registry interface {
	Version() string
	Variant(userID string) string
	Active(featureName, variantID string) bool
	TTL(featureName string) time.Duration
}

// windowCounter is the slice of counterstore.Store the computer depends on.
type windowCounter interface {
	BumpWindow(ctx context.Context, userID string, window, ttl time.Duration) int64
	BumpEventTypeFreq(ctx context.Context, userID, eventType string) int64
	ReadEventTypeFreq(ctx context.Context, userID, eventType string) int64
}

// sessionCache is the slice of cache.Cache the computer needs for the
// last-seen and first-seen session markers.
type sessionCache interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)
}

// driftRecorder is the slice of drift.Detector the computer feeds.
type driftRecorder interface {
	Record(ctx context.Context, featureName string, value float64)
}

const (
	lastEventTTL  = 24 * time.Hour
	firstEventTTL = 7 * 24 * time.Hour
	sessionGap    = 30 * time.Minute
	newUserWindow = 24 * time.Hour
)

var windows = []struct {
	name    string
	seconds int
}{
	{"activity_count_1h", 3600},
	{"activity_count_6h", 21600},
	{"activity_count_24h", 86400},
	{"activity_count_7d", 604800},
}

// Computer is the feature computer (C3).
type Computer struct {
	registry registry
	counters windowCounter
	cache    sessionCache
	drift    driftRecorder
	now      func() time.Time
}

// New builds a Computer over its collaborators. now defaults to time.Now
// and is overridable for deterministic tests.
func New(reg registry, counters windowCounter, cache sessionCache, drift driftRecorder) *Computer {
	return &Computer{registry: reg, counters: counters, cache: cache, drift: drift, now: time.Now}
}

// Compute runs the full pipeline (spec §4.3) over one raw event and
// returns the completed feature record.
func (c *Computer) Compute(ctx context.Context, raw []byte) (*feature.Record, error) {
	timer := prometheusTimer()
	defer timer()

	event, err := ParseEvent(raw)
	if err != nil {
		// The caller (internal/pipeline) owns events_failed_total: it counts
		// every terminal per-event failure exactly once, whether compute
		// aborted here or the store rejected the row later.
		return nil, err
	}

	now := c.now()
	ts, ok := ParseTimestamp(event.IngestedAt, now)
	if !ok {
		metrics.TimestampParseFailures.Inc()
	}

	variant := c.registry.Variant(event.UserID)
	metrics.ABVariantAssignments.WithLabelValues(variant).Inc()

	record := feature.NewRecord(event.UserID, event.EventType, ts, now, c.registry.Version(), variant, event.Raw)

	if ok {
		c.computeTemporal(record, ts, variant)
	}
	c.computeCategorical(record, event, variant)
	c.computeWindowed(ctx, record, event, variant)

	secondsSinceLast, hadPrior := c.touchLastEvent(ctx, event.UserID, ts)
	if c.registry.Active("is_active_session", variant) {
		active := true
		if hadPrior {
			active = secondsSinceLast < sessionGap.Seconds()
		}
		record.Set("is_active_session", feature.Bool(active))
	}
	if secondsSinceLast >= 0 {
		record.Set("seconds_since_last_event", feature.Float(secondsSinceLast))
	}

	if c.registry.Active("is_new_user", variant) {
		record.Set("is_new_user", feature.Bool(c.touchFirstEvent(ctx, event.UserID, ts)))
	}

	c.computeRatios(ctx, record, event.UserID, variant)

	score := c.computeEngagement(record, variant)
	if variant == "B" {
		record.Set("engagement_score_v2", feature.Float(score))
	} else {
		record.Set("engagement_score", feature.Float(score))
	}

	c.drift.Record(ctx, "engagement_score", score)
	if v, ok := record.Get("activity_count_1h"); ok {
		if f, ok := v.AsFloat64(); ok {
			c.drift.Record(ctx, "activity_count_1h", f)
		}
	}
	metrics.FeatureValueDistribution.WithLabelValues("engagement_score").Observe(score)
	metrics.EventsProcessed.Inc()

	return record, nil
}

// computeTemporal is only invoked when the event's own timestamp parsed
// successfully: a parse failure omits hour_of_day, day_of_week, and
// is_weekend together, per §4.3's temporal step.
func (c *Computer) computeTemporal(record *feature.Record, dt time.Time, variant string) {
	if c.registry.Active("hour_of_day", variant) {
		record.Set("hour_of_day", feature.Int(int64(dt.Hour())))
	}
	if c.registry.Active("day_of_week", variant) {
		record.Set("day_of_week", feature.Int(int64(mondayZeroWeekday(dt))))
	}
	if c.registry.Active("is_weekend", variant) {
		wd := mondayZeroWeekday(dt)
		record.Set("is_weekend", feature.Bool(wd >= 5))
	}
}

// mondayZeroWeekday converts Go's Sunday=0 weekday numbering to the
// Monday=0..Sunday=6 numbering the registry and its consumers use.
func mondayZeroWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

var eventTypes = []string{"login", "logout", "purchase", "view", "click", "search"}
var deviceTypes = []string{"mobile", "desktop", "tablet"}

func (c *Computer) computeCategorical(record *feature.Record, event Event, variant string) {
	if c.registry.Active("event_type_encoded", variant) {
		for _, et := range eventTypes {
			v := int64(0)
			if event.EventType == et {
				v = 1
			}
			record.Set("event_type_"+et, feature.Int(v))
		}
	}
	if c.registry.Active("device_type_encoded", variant) {
		device := event.DeviceType
		if device == "" {
			device = "unknown"
		}
		for _, dt := range deviceTypes {
			v := int64(0)
			if device == dt {
				v = 1
			}
			record.Set("device_type_"+dt, feature.Int(v))
		}
	}
}

func (c *Computer) computeWindowed(ctx context.Context, record *feature.Record, event Event, variant string) {
	for _, w := range windows {
		if !c.registry.Active(w.name, variant) {
			continue
		}
		ttl := c.registry.TTL(w.name)
		count := c.counters.BumpWindow(ctx, event.UserID, time.Duration(w.seconds)*time.Second, ttl)
		record.Set(w.name, feature.Int(count))
	}

	if c.registry.Active("event_type_frequency_24h", variant) {
		count := c.counters.BumpEventTypeFreq(ctx, event.UserID, event.EventType)
		record.Set("event_type_frequency_24h", feature.Int(count))
	}
}

// touchLastEvent reads and refreshes last_event:{user_id}. It returns the
// elapsed seconds since the previous event and whether a previous event
// existed and parsed cleanly.
func (c *Computer) touchLastEvent(ctx context.Context, userID string, ts time.Time) (float64, bool) {
	key := "last_event:" + userID
	prior, had := c.cache.GetString(ctx, key)
	c.cache.SetString(ctx, key, ts.Format(time.RFC3339Nano), lastEventTTL)

	if !had {
		return -1, false
	}
	priorTime, err := time.Parse(time.RFC3339Nano, prior)
	if err != nil {
		return -1, false
	}
	return ts.Sub(priorTime).Seconds(), true
}

// touchFirstEvent reads and, on first sight, sets first_event:{user_id}.
// It returns whether the user is still within the new-user window.
func (c *Computer) touchFirstEvent(ctx context.Context, userID string, ts time.Time) bool {
	key := "first_event:" + userID
	first, had := c.cache.GetString(ctx, key)
	if !had {
		c.cache.SetString(ctx, key, ts.Format(time.RFC3339Nano), firstEventTTL)
		return true
	}
	firstTime, err := time.Parse(time.RFC3339Nano, first)
	if err != nil {
		return false
	}
	return ts.Sub(firstTime) < newUserWindow
}

func (c *Computer) computeRatios(ctx context.Context, record *feature.Record, userID, variant string) {
	if c.registry.Active("activity_trend", variant) {
		countHour, _ := getInt(record, "activity_count_1h")
		count24h, ok24 := getInt(record, "activity_count_24h")
		if !ok24 {
			count24h = 1
		}
		if count24h < 1 {
			count24h = 1
		}
		record.Set("activity_trend", feature.Float(float64(countHour)/float64(count24h)))
	}

	if c.registry.Active("purchase_rate_24h", variant) {
		purchases := c.counters.ReadEventTypeFreq(ctx, userID, "purchase")
		views := c.counters.ReadEventTypeFreq(ctx, userID, "view")
		if views < 1 {
			views = 1
		}
		record.Set("purchase_rate_24h", feature.Float(float64(purchases)/float64(views)))
	}
}

func getInt(record *feature.Record, name string) (int64, bool) {
	v, ok := record.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.Int()
	return i, ok
}

func (c *Computer) computeEngagement(record *feature.Record, variant string) float64 {
	countHour, _ := getInt(record, "activity_count_1h")
	count24h, _ := getInt(record, "activity_count_24h")
	activeSession := false
	if v, ok := record.Get("is_active_session"); ok {
		activeSession, _ = v.Bool()
	}

	if variant == "B" {
		trend := 0.0
		if v, ok := record.Get("activity_trend"); ok {
			trend, _ = v.AsFloat64()
		}
		purchaseRate := 0.0
		if v, ok := record.Get("purchase_rate_24h"); ok {
			purchaseRate, _ = v.AsFloat64()
		}
		return engagementScoreV2(countHour, count24h, activeSession, trend, purchaseRate)
	}

	eventFreq, _ := getInt(record, "event_type_frequency_24h")
	return engagementScoreV1(countHour, activeSession, eventFreq)
}

func prometheusTimer() func() {
	start := time.Now()
	return func() {
		metrics.FeatureComputationSeconds.Observe(time.Since(start).Seconds())
	}
}
