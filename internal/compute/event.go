package compute

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the parsed shape of an inbound raw event (spec §3): identity
// fields the computer needs, plus the untouched original bytes so they
// can be attached verbatim as raw_event or forwarded to the dead-letter
// sink unmodified.
type Event struct {
	UserID     string
	EventType  string
	IngestedAt string
	DeviceType string
	Raw        json.RawMessage
}

type rawEventFields struct {
	UserID     string `json:"user_id"`
	EventType  string `json:"event_type"`
	IngestedAt string `json:"ingested_at"`
	DeviceType string `json:"device_type"`
}

// ParseEvent unmarshals raw as an Event. A failure here means the message
// is not well-formed JSON, or one of the fields above holds a non-string
// JSON value — a total parse failure, distinct from the
// field-level defaults ParseTimestamp/§4.3 step 1 apply once the envelope
// is known to be valid JSON.
func ParseEvent(raw []byte) (Event, error) {
	var fields rawEventFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Event{}, fmt.Errorf("compute: malformed event JSON: %w", err)
	}
	userID := fields.UserID
	if userID == "" {
		userID = "unknown"
	}
	eventType := fields.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	return Event{
		UserID:     userID,
		EventType:  eventType,
		IngestedAt: fields.IngestedAt,
		DeviceType: fields.DeviceType,
		Raw:        json.RawMessage(raw),
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp, tolerating a trailing "Z".
// The bool result is false when parsing failed and now was substituted.
func ParseTimestamp(raw string, now time.Time) (time.Time, bool) {
	if raw == "" {
		return now, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	return now, false
}
