package dreaming

import "time"

// rowTime coerces a repository-scanned field value into a time.Time,
// tolerating both the time.Time the postgres/mysql drivers usually return
// for TIMESTAMP columns and the RFC3339 string the JSON-roundtrip path in
// pkg/repository can produce for decoded JSON fields.
func rowTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// rowString type-asserts a repository field to string, defaulting to "".
func rowString(v any) string {
	s, _ := v.(string)
	return s
}
