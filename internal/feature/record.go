package feature

import (
	"encoding/json"
	"time"
)

// Record is the per-event output tuple: identity fields that are always
// present, plus a registry-gated set of named feature values, plus the
// verbatim raw event.
type Record struct {
	UserID         string
	EventType      string
	Timestamp      time.Time
	ComputedAt     time.Time
	FeatureVersion string
	ABVariant      string
	RawEvent       json.RawMessage

	// Values holds every optional feature this record carries, keyed by
	// name. A feature the registry gated off for this variant is simply
	// absent from the map, never present with a zero value.
	Values map[string]Value
}

// NewRecord seeds the always-present identity fields.
func NewRecord(userID, eventType string, timestamp, computedAt time.Time, version, variant string, rawEvent json.RawMessage) *Record {
	return &Record{
		UserID:         userID,
		EventType:      eventType,
		Timestamp:      timestamp,
		ComputedAt:     computedAt,
		FeatureVersion: version,
		ABVariant:      variant,
		RawEvent:       rawEvent,
		Values:         make(map[string]Value),
	}
}

// Set records a named feature value. Callers are expected to have already
// checked registry.Active before calling Set — Record itself does not gate.
func (r *Record) Set(name string, v Value) {
	r.Values[name] = v
}

// Get returns a named feature value and whether it was present.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.Values[name]
	return v, ok
}

func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Values)+8)
	for k, v := range r.Values {
		out[k] = v
	}
	out["user_id"] = r.UserID
	out["event_type"] = r.EventType
	out["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339)
	out["computed_at"] = r.ComputedAt.UTC().Format(time.RFC3339)
	out["feature_version"] = r.FeatureVersion
	out["ab_variant"] = r.ABVariant
	out["raw_event"] = json.RawMessage(r.RawEvent)
	return json.Marshal(out)
}
