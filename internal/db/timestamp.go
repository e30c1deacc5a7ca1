package db

import (
	"fmt"
	"time"
)

// timestampLayouts are the text forms SQLite's CURRENT_TIMESTAMP and the
// drivers' own time formatting produce.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// parseTimestamp converts a created_at column value to UTC. Depending on the
// driver and column declaration the value arrives as time.Time, text, or
// unix seconds. NULL yields nil.
func parseTimestamp(v interface{}) (*time.Time, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := t.UTC()
		return &u, nil
	case int64:
		u := time.Unix(t, 0).UTC()
		return &u, nil
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			u := parsed.UTC()
			return &u, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}
