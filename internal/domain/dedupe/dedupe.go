// Package dedupe tracks vote ids for idempotent ballot handling.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// defaultMaxSize bounds the tracker when no option overrides it.
const defaultMaxSize = 50000

// Deduper records seen vote IDs to ensure each ballot is applied at most
// once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	// This is the ONLY method for deduplication - thread-safe and atomic.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// This should only be used when a vote was marked as seen but failed to
	// be applied (e.g., queue backpressure).
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// entry is one recorded id in arrival order. The sequence ties it to the
// live map record so an Unrecord followed by a re-record cannot be evicted
// through its stale predecessor.
type entry struct {
	id  string
	seq uint64
}

// inMemoryDeduper implements Deduper with a map plus a FIFO queue.
// Bounded mode (maxSize > 0) evicts the oldest live id once the map is
// full; stale queue entries left behind by Unrecord are skipped lazily.
// Unbounded mode (maxSize <= 0) keeps the map alone and never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> sequence of its live queue entry
	queue   []entry           // oldest first, may hold stale entries
	maxSize int
	nextSeq uint64
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory deduper with configuration
// options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
// Returns true if id was already seen, false if it was newly recorded.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize && d.evictOldest() {
		}
		d.nextSeq++
		d.queue = append(d.queue, entry{id: id, seq: d.nextSeq})
		d.seen[id] = d.nextSeq
	} else {
		d.seen[id] = 0
	}
	d.size.Add(1)
	return false
}

// Unrecord removes an ID from the seen list, allowing it to be retried.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// evictOldest pops queue entries until one still matches its live map
// record, then drops that id. Must be called with d.mu held. Reports
// whether an id was evicted.
func (d *inMemoryDeduper) evictOldest() bool {
	for len(d.queue) > 0 {
		head := d.queue[0]
		d.queue = d.queue[1:]
		if seq, live := d.seen[head.id]; live && seq == head.seq {
			delete(d.seen, head.id)
			d.size.Add(-1)
			return true
		}
	}
	return false
}

// Size returns the current number of tracked ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
