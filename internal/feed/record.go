// Package feed groups a user's wardrobe activity into day-labeled buckets for display.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the category of an activity record.
type Kind string

const (
	KindOutfitLogged  Kind = "outfit_logged"
	KindStreakReached Kind = "streak_reached"
	KindItemAdded     Kind = "item_added"
	KindOutfitDeleted Kind = "outfit_deleted"
)

// Kinds lists the known activity kinds.
var Kinds = []Kind{KindOutfitLogged, KindStreakReached, KindItemAdded, KindOutfitDeleted}

// Known reports whether k is one of the known kinds.
func (k Kind) Known() bool {
	switch k {
	case KindOutfitLogged, KindStreakReached, KindItemAdded, KindOutfitDeleted:
		return true
	}
	return false
}

// ErrMalformedTimestamp is returned when a record timestamp cannot be parsed.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Record is one activity event as delivered by the backend.
type Record struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// UnmarshalJSON accepts both the current field names and the legacy
// `_id`, `type` and `date` names still sent by older clients.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          string `json:"id"`
		LegacyID    string `json:"_id"`
		Kind        Kind   `json:"kind"`
		LegacyType  Kind   `json:"type"`
		Description string `json:"description"`
		Timestamp   string `json:"timestamp"`
		LegacyDate  string `json:"date"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Record{
		ID:          firstNonEmpty(wire.ID, wire.LegacyID),
		Kind:        Kind(firstNonEmpty(string(wire.Kind), string(wire.LegacyType))),
		Description: wire.Description,
		Timestamp:   firstNonEmpty(wire.Timestamp, wire.LegacyDate),
	}
	return nil
}

// Time parses the record timestamp, interpreting zone-less values in loc.
func (r Record) Time(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(r.Timestamp, loc)
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values carrying a zone or
// offset keep it; values without one are read as wall-clock time in loc.
// That includes date-only values, which become midnight in loc rather than
// midnight UTC as JavaScript's Date would read them.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
}

// FromTime builds a Record with its timestamp rendered as RFC 3339.
func FromTime(id string, kind Kind, description string, at time.Time) Record {
	return Record{
		ID:          id,
		Kind:        kind,
		Description: description,
		Timestamp:   at.Format(time.RFC3339Nano),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
