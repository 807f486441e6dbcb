// Package decay implements the Decay Scorer (C3): a pure function from an
// engram's decay-relevant fields and the current clock to an effective
// relevance score, grounded on the exponential-decay relevance math in
// agent/memory/evolving.go's smart pruning (teacher repo).
package decay

import (
	"math"
	"time"

	"memnexus/internal/engram"
)

// DefaultThreshold is the default forgetting threshold θ.
const DefaultThreshold = 0.1

// ActiveDaysSource supplies active-usage days, normally backed by C4 (the
// Activity Tracker). When nil, Score falls back to calendar days.
type ActiveDaysSource interface {
	ActiveDaysSince(t time.Time) float64
}

// Score computes the effective relevance score:
//
//	score = clamp(importance * exp(-decay_rate*active_days) * (1 + 0.1*ln(1+access_count)), 0, 1)
//
// active_days is supplied by activeDays (C4) when non-nil; otherwise it falls
// back to calendar days computed from LastAccessedAt (or InsertedAt if the
// engram was never accessed).
func Score(e *engram.Engram, now time.Time, activeDays ActiveDaysSource) float64 {
	anchor := e.LastAccessedAt
	if anchor.IsZero() {
		anchor = e.InsertedAt
	}

	var days float64
	if activeDays != nil {
		days = activeDays.ActiveDaysSince(anchor)
	} else {
		days = now.Sub(anchor).Hours() / 24
	}
	if days < 0 {
		days = 0
	}

	accessBoost := 1 + 0.1*math.Log(1+float64(e.AccessCount))
	raw := e.Importance * math.Exp(-e.DecayRate*days) * accessBoost
	return engram.Clamp01(raw)
}

// ShouldForget reports should_forget(engram, θ) = (not protected) AND score < θ.
func ShouldForget(e *engram.Engram, now time.Time, activeDays ActiveDaysSource, threshold float64) bool {
	if e.Protected {
		return false
	}
	return Score(e, now, activeDays) < threshold
}

// PredictForgetting solves the decay formula for the active-days axis and
// returns the wall-clock instant at which the score is predicted to cross
// threshold, or nil if the engram is protected, has importance >= 0.95, or a
// zero decay rate (i.e. it never decays below threshold).
func PredictForgetting(e *engram.Engram, now time.Time, threshold float64) *time.Time {
	if e.Protected || e.Importance >= 0.95 || e.DecayRate == 0 {
		return nil
	}
	accessBoost := 1 + 0.1*math.Log(1+float64(e.AccessCount))
	num := e.Importance * accessBoost
	if num <= 0 || threshold <= 0 || threshold >= num {
		// Already below threshold, or threshold unreachable from above.
		return nil
	}
	// threshold = importance * exp(-decay_rate*days) * accessBoost
	// days = ln(num/threshold) / decay_rate
	days := math.Log(num/threshold) / e.DecayRate
	if days < 0 || math.IsInf(days, 0) || math.IsNaN(days) {
		return nil
	}
	anchor := e.LastAccessedAt
	if anchor.IsZero() {
		anchor = e.InsertedAt
	}
	t := anchor.Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}
