package analytics

import (
	"strconv"
	"strings"
	"time"
)

// Layouts the bot has written last_active in over time. Layouts without a zone
// are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads an ISO-8601 timestamp or a unix time in seconds.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
		whole := int64(seconds)
		nanos := int64((seconds - float64(whole)) * float64(time.Second))
		return time.Unix(whole, nanos).UTC(), true
	}
	return time.Time{}, false
}
