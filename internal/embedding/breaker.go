package embedding

import (
	"sync"
	"time"

	"memnexus/internal/config"
)

// breaker is a per-provider circuit breaker: after FailureThreshold
// consecutive failures within WindowSeconds, it opens for CooldownSeconds
// before allowing another attempt. No pack library offers a circuit
// breaker primitive (see DESIGN.md); this is a direct implementation of
// the simple consecutive-failure/cooldown contract spec.md §4.2 describes.
type breaker struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	cooldown  time.Duration

	failures  int
	windowEnd time.Time
	openUntil time.Time

	now func() time.Time
}

func newBreaker(cfg config.CircuitBreakerConfig) *breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	window := cfg.WindowSeconds
	if window <= 0 {
		window = 60
	}
	cooldown := cfg.CooldownSeconds
	if cooldown <= 0 {
		cooldown = 30
	}
	return &breaker{
		threshold: threshold,
		window:    time.Duration(window * float64(time.Second)),
		cooldown:  time.Duration(cooldown * float64(time.Second)),
		now:       time.Now,
	}
}

// allow reports whether a call may proceed; false means the breaker is open.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	if b.now().After(b.openUntil) {
		// Cooldown elapsed: half-open, let one probe through by resetting state.
		b.openUntil = time.Time{}
		b.failures = 0
		return true
	}
	return false
}

// recordSuccess clears the failure streak.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.windowEnd = time.Time{}
	b.openUntil = time.Time{}
}

// recordFailure tracks a failure and opens the breaker once the consecutive
// count within the rolling window reaches threshold.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.windowEnd.IsZero() || now.After(b.windowEnd) {
		b.failures = 0
		b.windowEnd = now.Add(b.window)
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
	}
}
