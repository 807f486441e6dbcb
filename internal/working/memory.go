// Package working implements the Working Memory (C6): a bounded, TTL-expired,
// in-RAM buffer keyed for ordered eviction, modeled as a single actor
// guarding its own state behind a mutex, in the style of the teacher's
// in-memory reference stores (persistence/databases/memory_vector.go).
package working

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the default max item count before oldest-by-expiry eviction.
const DefaultCapacity = 100

// DefaultTTL is the default per-item time-to-live.
const DefaultTTL = 600 * time.Second

// Item is a working-memory entry.
type Item struct {
	ID                    string
	SessionID             string
	Content               string
	Metadata              map[string]any
	CreatedAt             time.Time
	AccessedAt            time.Time
	ExpiresAt             time.Time
	MarkedForConsolidation bool
}

// Stats summarises the buffer for diagnostics/telemetry.
type Stats struct {
	Count               int
	Capacity            int
	MarkedForConsolidation int
	OldestExpiresAt     time.Time
	NewestExpiresAt     time.Time
}

// Memory is the bounded TTL buffer.
type Memory struct {
	mu       sync.Mutex
	items    map[string]*Item
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New constructs a Memory with the default capacity and TTL.
func New() *Memory {
	return &Memory{
		items:    make(map[string]*Item),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// WithCapacity overrides the default capacity.
func (m *Memory) WithCapacity(n int) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacity = n
	return m
}

// WithTTL overrides the default TTL.
func (m *Memory) WithTTL(d time.Duration) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = d
	return m
}

// Store inserts content and returns the new item. ttl <= 0 uses the
// buffer's default TTL. Evicts the oldest-by-expiry item on overflow.
func (m *Memory) Store(sessionID, content string, metadata map[string]any, ttl time.Duration) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()

	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()
	it := &Item{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  now,
		AccessedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.items[it.ID] = it

	if len(m.items) > m.capacity {
		m.evictOldestLocked()
	}
	return it
}

// evictOldestLocked removes the item with the earliest ExpiresAt.
func (m *Memory) evictOldestLocked() {
	var oldestID string
	var oldestExpiry time.Time
	first := true
	for id, it := range m.items {
		if first || it.ExpiresAt.Before(oldestExpiry) {
			oldestID, oldestExpiry, first = id, it.ExpiresAt, false
		}
	}
	if oldestID != "" {
		delete(m.items, oldestID)
	}
}

// Get returns the item by id, updating AccessedAt. Returns nil, false if
// absent or expired (expired items are lazily cleared).
func (m *Memory) Get(id string) (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()

	it, ok := m.items[id]
	if !ok {
		return nil, false
	}
	it.AccessedAt = m.now()
	cp := *it
	return &cp, true
}

// Search returns items whose content contains query, case-insensitively.
func (m *Memory) Search(query string, limit int) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()

	q := strings.ToLower(query)
	var out []Item
	for _, it := range m.items {
		if strings.Contains(strings.ToLower(it.Content), q) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetRecent returns up to limit items ordered newest-created first.
func (m *Memory) GetRecent(limit int) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()

	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MarkForConsolidation flags an item as a consolidation candidate.
func (m *Memory) MarkForConsolidation(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return false
	}
	it.MarkedForConsolidation = true
	return true
}

// GetConsolidationCandidates returns marked items whose age (time since
// CreatedAt) is at least minAge, newest-last so callers process in
// insertion order.
func (m *Memory) GetConsolidationCandidates(minAge time.Duration, limit int) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()

	now := m.now()
	var out []Item
	for _, it := range m.items {
		if it.MarkedForConsolidation && now.Sub(it.CreatedAt) >= minAge {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delete removes an item by id.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// ClearSession removes all items belonging to sessionID.
func (m *Memory) ClearSession(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, it := range m.items {
		if it.SessionID == sessionID {
			delete(m.items, id)
			n++
		}
	}
	return n
}

// ClearExpired removes all expired items and returns the count removed. Safe
// to call on a timer.
func (m *Memory) ClearExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearExpiredLocked()
}

func (m *Memory) clearExpiredLocked() int {
	now := m.now()
	n := 0
	for id, it := range m.items {
		if !it.ExpiresAt.After(now) {
			delete(m.items, id)
			n++
		}
	}
	return n
}

// Stats reports buffer occupancy for telemetry/diagnostics.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Count: len(m.items), Capacity: m.capacity}
	first := true
	for _, it := range m.items {
		if it.MarkedForConsolidation {
			s.MarkedForConsolidation++
		}
		if first || it.ExpiresAt.Before(s.OldestExpiresAt) {
			s.OldestExpiresAt = it.ExpiresAt
		}
		if first || it.ExpiresAt.After(s.NewestExpiresAt) {
			s.NewestExpiresAt = it.ExpiresAt
		}
		first = false
	}
	return s
}
