package utils

import (
	"time"
)

// time.go - time-handling utilities
//
// Purpose:
// Helper functions for time operations, used for aggregating statistics
// by period and for filtering data.
//
// Functions:
// - GetDayStart: start of the current day (00:00:00)
// - GetWeekStart: start of the current week (Monday 00:00:00)
// - GetMonthStart: start of the current month (1st, 00:00:00)
// - GetYearStart: start of the year (January 1, 00:00:00)
//
// Usage:
// - Aggregating statistics by period (day/week/month)
// - Filtering data by time range
// - Cleaning up stale rows

// ============================================================
// Core period-boundary functions
// ============================================================

// GetDayStart returns the start of the current day (00:00:00) in UTC.
//
// Example:
//
//	// Now: 2024-01-15 14:30:45 UTC
//	start := GetDayStart()
//	// start: 2024-01-15 00:00:00 UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom returns the start of the day for the given time, in UTC.
//
// Parameters:
//   - t: the source time
//
// Returns: the start of the day (00:00:00 UTC) for that date.
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd returns the end of the current day (23:59:59.999999999) in UTC.
//
// Example:
//
//	// Now: 2024-01-15 14:30:45 UTC
//	end := GetDayEnd()
//	// end: 2024-01-15 23:59:59.999999999 UTC
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom returns the end of the day for the given time.
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetWeekStart returns the start of the current week (Monday 00:00:00) in UTC.
//
// The week starts on Monday (ISO 8601).
//
// Example:
//
//	// Now: Wednesday 2024-01-17 14:30:45 UTC
//	start := GetWeekStart()
//	// start: Monday 2024-01-15 00:00:00 UTC
func GetWeekStart() time.Time {
	return GetWeekStartFrom(time.Now().UTC())
}

// GetWeekStartFrom returns the start of the week for the given time.
//
// Parameters:
//   - t: the source time
//
// Returns: Monday 00:00:00 UTC of the week containing t.
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()

	// Day of week (0=Sunday, 1=Monday, ..., 6=Saturday)
	weekday := int(t.Weekday())

	// Convert to ISO 8601 (1=Monday, ..., 7=Sunday)
	if weekday == 0 {
		weekday = 7
	}

	// Days back to Monday
	daysBack := weekday - 1

	monday := t.AddDate(0, 0, -daysBack)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetWeekEnd returns the end of the current week (Sunday 23:59:59.999999999) in UTC.
func GetWeekEnd() time.Time {
	return GetWeekEndFrom(time.Now().UTC())
}

// GetWeekEndFrom returns the end of the week for the given time.
func GetWeekEndFrom(t time.Time) time.Time {
	// Find the start of the week and add 6 days
	weekStart := GetWeekStartFrom(t)
	sunday := weekStart.AddDate(0, 0, 6)
	return time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetMonthStart returns the start of the current month (1st, 00:00:00) in UTC.
//
// Example:
//
//	// Now: 2024-01-15 14:30:45 UTC
//	start := GetMonthStart()
//	// start: 2024-01-01 00:00:00 UTC
func GetMonthStart() time.Time {
	return GetMonthStartFrom(time.Now().UTC())
}

// GetMonthStartFrom returns the start of the month for the given time.
//
// Parameters:
//   - t: the source time
//
// Returns: the 1st of the month, 00:00:00 UTC.
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetMonthEnd returns the end of the current month in UTC.
func GetMonthEnd() time.Time {
	return GetMonthEndFrom(time.Now().UTC())
}

// GetMonthEndFrom returns the end of the month for the given time.
func GetMonthEndFrom(t time.Time) time.Time {
	t = t.UTC()
	// Move to the 1st of the next month and subtract a nanosecond
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNextMonth.Add(-time.Nanosecond)
}

// GetYearStart returns the start of the current year (January 1, 00:00:00) in UTC.
//
// Example:
//
//	// Now: 2024-01-15 14:30:45 UTC
//	start := GetYearStart()
//	// start: 2024-01-01 00:00:00 UTC
func GetYearStart() time.Time {
	return GetYearStartFrom(time.Now().UTC())
}

// GetYearStartFrom returns the start of the year for the given time.
func GetYearStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// GetYearEnd returns the end of the current year in UTC.
func GetYearEnd() time.Time {
	return GetYearEndFrom(time.Now().UTC())
}

// GetYearEndFrom returns the end of the year for the given time.
func GetYearEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.December, 31, 23, 59, 59, 999999999, time.UTC)
}

// ============================================================
// Helper functions
// ============================================================

// GetPreviousDayStart returns the start of the previous day.
func GetPreviousDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC().AddDate(0, 0, -1))
}

// GetPreviousWeekStart returns the start of the previous week.
func GetPreviousWeekStart() time.Time {
	return GetWeekStartFrom(time.Now().UTC().AddDate(0, 0, -7))
}

// GetPreviousMonthStart returns the start of the previous month.
func GetPreviousMonthStart() time.Time {
	return GetMonthStartFrom(time.Now().UTC().AddDate(0, -1, 0))
}

// ============================================================
// Range helpers
// ============================================================

// TimeRange represents a time range.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns the length of the range.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetDayRange returns the range of the current day.
func GetDayRange() TimeRange {
	return TimeRange{
		Start: GetDayStart(),
		End:   GetDayEnd(),
	}
}

// GetWeekRange returns the range of the current week.
func GetWeekRange() TimeRange {
	return TimeRange{
		Start: GetWeekStart(),
		End:   GetWeekEnd(),
	}
}

// GetMonthRange returns the range of the current month.
func GetMonthRange() TimeRange {
	return TimeRange{
		Start: GetMonthStart(),
		End:   GetMonthEnd(),
	}
}

// GetYearRange returns the range of the current year.
func GetYearRange() TimeRange {
	return TimeRange{
		Start: GetYearStart(),
		End:   GetYearEnd(),
	}
}

// GetLastNDays returns the range of the last n days (including today).
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

// GetLastNHours returns the range of the last n hours.
func GetLastNHours(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: now.Add(-time.Duration(n) * time.Hour),
		End:   now,
	}
}

// ============================================================
// Duration formatting
// ============================================================

// FormatDuration formats a duration in a human-readable form.
//
// Examples:
//   - 45s -> "45s"
//   - 5m30s -> "5m30s"
//   - 2h15m -> "2h15m0s"
//   - 3 days 5 hours -> "77h0m0s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		if hours > 0 {
			return (time.Duration(days*24+hours) * time.Hour).String()
		}
		return (time.Duration(days*24) * time.Hour).String()
	}

	if hours > 0 {
		if minutes > 0 {
			return (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute).String()
		}
		return (time.Duration(hours) * time.Hour).String()
	}

	if minutes > 0 {
		if seconds > 0 {
			return (time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second).String()
		}
		return (time.Duration(minutes) * time.Minute).String()
	}

	return (time.Duration(seconds) * time.Second).String()
}

// ============================================================
// Timestamp utilities
// ============================================================

// UnixMillis returns the current time in Unix milliseconds.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis converts Unix milliseconds to time.Time.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// UnixMicros returns the current time in Unix microseconds.
func UnixMicros() int64 {
	return time.Now().UnixMicro()
}

// FromUnixMicros converts Unix microseconds to time.Time.
func FromUnixMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// ============================================================
// Statistics-period helpers
// ============================================================

// PeriodType names a statistics aggregation period.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodAll   PeriodType = "all"
)

// GetPeriodStart returns the start of the given period type.
func GetPeriodStart(period PeriodType) time.Time {
	switch period {
	case PeriodDay:
		return GetDayStart()
	case PeriodWeek:
		return GetWeekStart()
	case PeriodMonth:
		return GetMonthStart()
	case PeriodYear:
		return GetYearStart()
	case PeriodAll:
		return time.Time{} // zero time
	default:
		return GetDayStart()
	}
}

// GetPeriodRange returns the range for the given period type.
func GetPeriodRange(period PeriodType) TimeRange {
	switch period {
	case PeriodDay:
		return GetDayRange()
	case PeriodWeek:
		return GetWeekRange()
	case PeriodMonth:
		return GetMonthRange()
	case PeriodYear:
		return GetYearRange()
	case PeriodAll:
		return TimeRange{
			Start: time.Time{},
			End:   time.Now().UTC(),
		}
	default:
		return GetDayRange()
	}
}

// IsInPeriod reports whether t falls within the given period.
func IsInPeriod(t time.Time, period PeriodType) bool {
	return GetPeriodRange(period).Contains(t)
}

// ============================================================
// Timezone helpers
// ============================================================

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ToLocation converts a time to the given timezone.
func ToLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

// ParseInLocation parses a time in the given timezone.
func ParseInLocation(layout, value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(layout, value, loc)
}
