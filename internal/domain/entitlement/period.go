package entitlement

import "time"

// PeriodFunc returns the key of the current accounting period. Counters
// are scoped to a period key; a counter observed under a stale key reads
// as zero and is reset before the next increment.
type PeriodFunc func() string

// MonthKey returns the monthly period key for the given instant, in UTC
// (e.g. "2026-08").
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthlyPeriod returns a PeriodFunc producing monthly buckets from the
// given clock. Pass time.Now for production use; tests inject a fixed or
// advancing clock to exercise rollover.
func MonthlyPeriod(now func() time.Time) PeriodFunc {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return MonthKey(now())
	}
}

// EndOfMonth returns the first instant of the month following t, in UTC.
// Used by period-scoped stores to compute key expiry.
func EndOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
