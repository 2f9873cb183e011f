package utils

import "time"

// GetDayStart returns the start of the current UTC day (00:00:00).
func GetDayStart() time.Time { return GetDayStartFrom(time.Now().UTC()) }

// GetDayStartFrom returns the start of t's UTC day.
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd returns the end of the current UTC day.
func GetDayEnd() time.Time { return GetDayEndFrom(time.Now().UTC()) }

// GetDayEndFrom returns the end of t's UTC day.
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetWeekStart returns the start of the current ISO week (Monday 00:00:00 UTC).
func GetWeekStart() time.Time { return GetWeekStartFrom(time.Now().UTC()) }

// GetWeekStartFrom returns the Monday 00:00:00 UTC of t's week.
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetMonthStart returns the start of the current UTC month.
func GetMonthStart() time.Time { return GetMonthStartFrom(time.Now().UTC()) }

// GetMonthStartFrom returns the 1st of t's UTC month, 00:00:00.
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TimeRange is an inclusive [Start, End] window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns the range's length.
func (tr TimeRange) Duration() time.Duration { return tr.End.Sub(tr.Start) }

// GetLastNDays returns the range covering the last n days including today,
// used by bronze retention sweeps (§6.3, 90-day retention) and dashboard
// stats windows.
func GetLastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   GetDayEndFrom(now),
	}
}

// FormatDuration renders d in a short human form ("45s", "5m30s", "2h15m0s").
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return (time.Duration(days*24+hours) * time.Hour).String()
	case hours > 0:
		return (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute).String()
	default:
		return d.Round(time.Second).String()
	}
}

// UnixMillis returns the current Unix time in milliseconds, matching the
// transport's `timestampMs` field (§6.1).
func UnixMillis() int64 { return time.Now().UnixMilli() }

// FromUnixMillis converts a transport timestampMs into a UTC time.Time.
func FromUnixMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ToLocation converts t into loc, returning t unchanged if loc is nil —
// used by TimeRule.Window.Contains when a group has no explicit timezone.
func ToLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
