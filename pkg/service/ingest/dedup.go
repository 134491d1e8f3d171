package ingest

import "sync"

const (
	defaultDedupCapacity = 10000
	defaultEvictBatch    = 1000
)

// Deduper tracks processed event ids. Seen marks the id and reports
// whether it had been seen before.
type Deduper interface {
	Seen(id string) bool
}

// RingDeduper is a bounded insert-ordered set. When the capacity is
// exceeded, the oldest batch of ids is evicted at once. The bound makes
// idempotency approximate over long horizons: an id older than the
// window is treated as new again. Single process only; a multi-instance
// deployment needs a shared backing store instead.
type RingDeduper struct {
	mu         sync.Mutex
	capacity   int
	evictBatch int
	order      []string
	seen       map[string]struct{}
}

// NewRingDeduper creates a deduper holding up to capacity ids,
// evicting evictBatch oldest ids on overflow. Non-positive arguments
// fall back to 10000/1000.
func NewRingDeduper(capacity, evictBatch int) *RingDeduper {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	if evictBatch <= 0 || evictBatch > capacity {
		evictBatch = defaultEvictBatch
		if evictBatch > capacity {
			evictBatch = capacity
		}
	}
	return &RingDeduper{
		capacity:   capacity,
		evictBatch: evictBatch,
		seen:       make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id was already processed, recording it if not
func (d *RingDeduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if len(d.order) >= d.capacity {
		for _, old := range d.order[:d.evictBatch] {
			delete(d.seen, old)
		}
		d.order = append(d.order[:0], d.order[d.evictBatch:]...)
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	return false
}

// Len returns the number of ids currently tracked
func (d *RingDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
