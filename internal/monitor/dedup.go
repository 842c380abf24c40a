package monitor

import (
	"context"
	"sync"
	"time"
)

// Tracker defaults.
const (
	DefaultMaxSeen        = 1_000_000
	DefaultSweepInterval  = 5 * time.Minute
	DefaultMaxInFlightAge = 10 * time.Minute
)

// Tracker performs per-venue signature deduplication. The first
// ShouldProcess call for a signature records it in the seen set and the
// time-stamped in-flight map atomically; later calls return false.
//
// The seen set is bounded: once it reaches capacity the oldest entries are
// evicted in insertion order. Eviction of an in-flight signature removes it
// from the in-flight map too, so in-flight is always a subset of seen.
type Tracker struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string // insertion order for eviction
	head     int      // index of the oldest live entry in order
	inflight map[string]time.Time

	maxSeen       int
	sweepInterval time.Duration
	maxAge        time.Duration
	now           func() time.Time
}

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	MaxSeen        int           // seen-set capacity; 0 means DefaultMaxSeen
	SweepInterval  time.Duration // in-flight sweep period; 0 means DefaultSweepInterval
	MaxInFlightAge time.Duration // in-flight entry lifetime; 0 means DefaultMaxInFlightAge
}

// NewTracker creates a dedup tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	maxSeen := opts.MaxSeen
	if maxSeen <= 0 {
		maxSeen = DefaultMaxSeen
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	maxAge := opts.MaxInFlightAge
	if maxAge <= 0 {
		maxAge = DefaultMaxInFlightAge
	}
	return &Tracker{
		seen:          make(map[string]struct{}),
		inflight:      make(map[string]time.Time),
		maxSeen:       maxSeen,
		sweepInterval: sweepInterval,
		maxAge:        maxAge,
		now:           time.Now,
	}
}

// ShouldProcess returns true exactly once per signature. A true result
// means the signature is now marked seen and in-flight.
func (t *Tracker) ShouldProcess(signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[signature]; dup {
		return false
	}

	t.seen[signature] = struct{}{}
	t.order = append(t.order, signature)
	t.inflight[signature] = t.now()
	t.evictLocked()
	return true
}

// Done removes a signature from the in-flight map once its record has been
// written. The seen set keeps it.
func (t *Tracker) Done(signature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, signature)
}

// SeenCount returns the current seen-set size.
func (t *Tracker) SeenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// InFlightCount returns the current in-flight map size.
func (t *Tracker) InFlightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Sweep removes in-flight entries older than the configured age. This
// bounds memory during long outages or stuck resolutions; it never touches
// the seen set. Returns the number of entries removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.maxAge)
	removed := 0
	for sig, started := range t.inflight {
		if started.Before(cutoff) {
			delete(t.inflight, sig)
			removed++
		}
	}
	return removed
}

// Run sweeps the in-flight map on the configured interval until the
// context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// evictLocked drops oldest seen entries past capacity. Caller holds t.mu.
func (t *Tracker) evictLocked() {
	for len(t.seen) > t.maxSeen && t.head < len(t.order) {
		oldest := t.order[t.head]
		t.head++
		delete(t.seen, oldest)
		delete(t.inflight, oldest)
	}

	// Compact the order slice once the dead prefix dominates.
	if t.head > 1024 && t.head*2 > len(t.order) {
		t.order = append([]string(nil), t.order[t.head:]...)
		t.head = 0
	}
}
