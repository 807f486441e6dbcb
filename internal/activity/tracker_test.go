package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActiveDaysLinearity(t *testing.T) {
	tr := New()
	fixedNow := time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixedNow }

	start := fixedNow.AddDate(0, 0, -5)
	for d := start; !d.After(fixedNow); d = d.Add(24 * time.Hour) {
		tr.dates[dateKey(d)] = struct{}{}
	}
	tr.lastActivity = fixedNow

	got := tr.ActiveDaysSince(start)
	wantWholeDays := fixedNow.Sub(start).Hours() / 24
	fractionalToday := fixedNow.Sub(fixedNow.Truncate(24*time.Hour)).Seconds() / 86400
	want := wantWholeDays - 1 + fractionalToday
	assert.InDelta(t, want, got, 1e-9)
}

func TestActiveReportsInactivity(t *testing.T) {
	tr := New()
	assert.False(t, tr.Active())
	tr.RegisterActivity()
	assert.True(t, tr.Active())
}

func TestSeedReconstructsFromTimestamps(t *testing.T) {
	tr := New()
	now := time.Now().UTC()
	tr.Seed([]time.Time{now.AddDate(0, 0, -2), now.AddDate(0, 0, -1), now})
	assert.True(t, tr.Active())
}
