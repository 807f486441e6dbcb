// Package activity implements the Activity Tracker (C4): the set of calendar
// dates on which any user-facing operation registered activity, used to
// compute active-usage days for the decay scorer. Modeled as a single-
// threaded actor guarding its own state with a mutex, in the style of the
// teacher's in-process stores (agent/memory/evolving.go).
package activity

import (
	"sync"
	"time"
)

// Tracker maintains recorded active dates and the most recent activity
// timestamp.
type Tracker struct {
	mu                  sync.Mutex
	dates               map[string]struct{} // "YYYY-MM-DD" in UTC
	lastActivity        time.Time
	inactivityThreshold time.Duration
	now                 func() time.Time
}

// New returns a Tracker with the default 24h inactivity threshold.
func New() *Tracker {
	return &Tracker{
		dates:               make(map[string]struct{}),
		inactivityThreshold: 24 * time.Hour,
		now:                 time.Now,
	}
}

// WithInactivityThreshold overrides the default threshold used by Active().
func (t *Tracker) WithInactivityThreshold(d time.Duration) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inactivityThreshold = d
	return t
}

func dateKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// RegisterActivity inserts today (UTC) and updates the last-activity stamp.
func (t *Tracker) RegisterActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.dates[dateKey(now)] = struct{}{}
	t.lastActivity = now
}

// Seed reconstructs state on startup from distinct dates (e.g. the
// last_accessed_at column of engrams), per spec.md §4.4.
func (t *Tracker) Seed(timestamps []time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ts := range timestamps {
		if ts.IsZero() {
			continue
		}
		t.dates[dateKey(ts)] = struct{}{}
		if ts.After(t.lastActivity) {
			t.lastActivity = ts
		}
	}
}

// ActiveDaysSince returns the count of recorded active dates in
// [date(from), today] minus 1, plus a fractional part equal to
// seconds_since_midnight_utc/86400 iff today is active. Result is clamped to
// be non-negative.
func (t *Tracker) ActiveDaysSince(from time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeDaysSinceLocked(from)
}

func (t *Tracker) activeDaysSinceLocked(from time.Time) float64 {
	now := t.now()
	fromDate := from.UTC().Truncate(24 * time.Hour)
	todayDate := now.UTC().Truncate(24 * time.Hour)

	count := 0
	for d := fromDate; !d.After(todayDate); d = d.Add(24 * time.Hour) {
		if _, ok := t.dates[dateKey(d)]; ok {
			count++
		}
	}

	result := float64(count) - 1
	if _, todayActive := t.dates[dateKey(now)]; todayActive {
		secondsSinceMidnight := now.UTC().Sub(todayDate).Seconds()
		result += secondsSinceMidnight / 86400
	}
	if result < 0 {
		result = 0
	}
	return result
}

// Active reports whether now - last_activity < inactivity threshold.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastActivity.IsZero() {
		return false
	}
	return t.now().Sub(t.lastActivity) < t.inactivityThreshold
}

// LastActivity returns the timestamp of the most recent registered activity.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}
