package utils

import "time"

// ISOMillis matches the layout browsers produce for Date.toISOString.
const ISOMillis = "2006-01-02T15:04:05.000Z07:00"

func NowUTC() time.Time {
	return time.Now().UTC()
}

func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOMillis)
}

// ParseISO accepts RFC 3339 timestamps with or without fractional seconds.
func ParseISO(val string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, val)
}
