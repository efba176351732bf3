// Package registry holds the liveness countdown for every client that has
// ever completed a heartbeat.
//
// Each name maps to a tick counter in [0, max]. A valid heartbeat resets the
// counter to max; a patrol tick decrements it, saturating at zero. The
// transitions reported by Touch and Tick are edge-triggered: a name reported
// expired by Tick is not reported again until a heartbeat revives it.
package registry

import (
	"sort"
	"sync"
	"time"
)

// State is the derived liveness of a tracked name.
type State string

const (
	StateAlive   State = "alive"
	StateExpired State = "expired"
)

type entry struct {
	ticks     uint16
	firstSeen time.Time
	lastSeen  time.Time
}

// Entry is a point-in-time copy of one tracked name.
type Entry struct {
	Name      string
	Ticks     uint16
	State     State
	FirstSeen time.Time
	LastSeen  time.Time
}

// Registry tracks remaining ticks per client name.
// Entries are never removed for the lifetime of the Registry.
type Registry struct {
	mu      sync.Mutex
	max     uint16
	entries map[string]*entry
	expired int
	now     func() time.Time
}

// New creates a Registry whose counters reset to max on every heartbeat.
func New(max uint16) *Registry {
	return &Registry{
		max:     max,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Max returns the value counters are reset to.
func (r *Registry) Max() uint16 { return r.max }

// Touch resets name's counter to max and reports whether the name was
// previously known and expired. A name seen for the first time is never
// reported as expired.
func (r *Registry) Touch(name string) (wasExpired bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		r.entries[name] = &entry{ticks: r.max, firstSeen: now, lastSeen: now}
		return false
	}
	wasExpired = e.ticks == 0
	if wasExpired {
		r.expired--
	}
	e.ticks = r.max
	e.lastSeen = now
	return wasExpired
}

// Tick decrements every live counter by one and returns the names whose
// counter reached zero during this call. Already expired names are skipped.
func (r *Registry) Tick() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for name, e := range r.entries {
		if e.ticks == 0 {
			continue
		}
		e.ticks--
		if e.ticks == 0 {
			expired = append(expired, name)
		}
	}
	r.expired += len(expired)
	return expired
}

// Ticks returns the current counter for name and whether it is tracked.
func (r *Registry) Ticks(name string) (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return e.ticks, true
}

// Snapshot returns a copy of all entries sorted by name.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	result := make([]Entry, 0, len(r.entries))
	for name, e := range r.entries {
		state := StateAlive
		if e.ticks == 0 {
			state = StateExpired
		}
		result = append(result, Entry{
			Name:      name,
			Ticks:     e.ticks,
			State:     state,
			FirstSeen: e.firstSeen,
			LastSeen:  e.lastSeen,
		})
	}
	r.mu.Unlock()

	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result
}

// Count returns the number of tracked names.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Expired returns the number of tracked names whose counter is zero.
func (r *Registry) Expired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// Counts returns the tracked and expired totals from one critical section.
func (r *Registry) Counts() (total, expired int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), r.expired
}
