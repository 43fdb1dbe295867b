// Package dedupe tracks seen moment IDs for at-most-once scoring.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen moment IDs so a replayed feed event scores at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set, allowing it to be retried.
	// Used when a moment was recorded but never made it onto the queue.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// memoryDeduper implements Deduper with a map plus an insertion-order ring.
// Bounded mode (maxSize > 0) overwrites the oldest slot once the ring wraps,
// so memory stays fixed. Unbounded mode (maxSize <= 0) keeps every ID.
type memoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string // fixed-size insertion ring, bounded mode only
	cursor  int      // next ring slot to overwrite
	maxSize int
	size    atomic.Int64
}

// NewMemoryDeduper creates a new in-memory deduper with configuration options.
func NewMemoryDeduper(opts ...Option) Deduper {
	d := &memoryDeduper{
		maxSize: 50000, // default max size
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}

	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *memoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 {
		// Reclaim the slot about to be overwritten. The slot may hold a
		// tombstone left by Unrecord, in which case there is nothing to evict.
		if old := d.ring[d.cursor]; old != "" {
			if _, exists := d.seen[old]; exists {
				delete(d.seen, old)
				d.size.Add(-1)
			}
		}
		d.ring[d.cursor] = id
		d.cursor = (d.cursor + 1) % d.maxSize
	}

	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord removes an ID from the seen set, allowing it to be retried.
// The ring slot is left in place and reclaimed when the cursor reaches it.
func (d *memoryDeduper) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Size returns the current number of recorded IDs.
func (d *memoryDeduper) Size() int64 {
	return d.size.Load()
}
