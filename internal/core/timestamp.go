package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// CanonicalLayout is the layout every normalized timestamp is rendered in.
// Fractional seconds are kept only when present.
const CanonicalLayout = "2006-01-02T15:04:05.999999999"

// timestampLayouts lists the accepted string layouts in priority order.
// The first successful parse wins.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02 15:04",
	"January 2, 2006, 3:04 PM",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// epochMillisThreshold separates unix seconds from unix milliseconds.
// Seconds values stay below it until the year 33658.
const epochMillisThreshold = 1e12

// ParseTimestamp converts v into a time value. It accepts time.Time,
// *time.Time, strings in any of the supported layouts and numbers holding
// unix seconds or milliseconds. Zoned values are converted to UTC.
//
// It never fails loudly: unparseable input yields the zero time and false,
// which sorts before every real timestamp.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return toUTC(t), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return toUTC(*t), true
	case string:
		return parseTimestampString(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f)
		}
		return parseTimestampString(t.String())
	case float64:
		return fromEpoch(t)
	case float32:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case int32:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case uint64:
		return fromEpoch(float64(t))
	}
	return time.Time{}, false
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return toUTC(t), true
		}
	}
	// Numeric strings are epoch values handed through by SQL drivers.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// toUTC converts zoned times to UTC. Times parsed without a zone are
// already UTC and pass through unchanged.
func toUTC(t time.Time) time.Time {
	return t.UTC()
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(CanonicalLayout)
}

// NormalizeTimestamp returns the canonical string for v, or "" when v does
// not parse. Normalizing a canonical string returns it unchanged.
func NormalizeTimestamp(v any) string {
	t, ok := ParseTimestamp(v)
	if !ok {
		return ""
	}
	return FormatTimestamp(t)
}
