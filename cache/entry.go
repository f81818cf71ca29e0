package cache

import (
	"sync/atomic"
	"time"
)

// Entry is an immutable snapshot of the records cached under one key.
//
// Ledgers pin the entries they borrow. Pinning does not keep anything alive
// that the garbage collector would not; it lets the store report how many
// superseded entries are still in use by running requests.
type Entry[K comparable, R any] struct {
	key      K
	records  []R
	loadedAt time.Time

	pins    atomic.Int64
	retired atomic.Bool
	drained atomic.Bool
	gauge   *atomic.Int64 // store's RetiredPinned counter
}

func newEntry[K comparable, R any](k K, records []R, now time.Time, gauge *atomic.Int64) *Entry[K, R] {
	if records == nil {
		records = []R{}
	}
	return &Entry[K, R]{key: k, records: records, loadedAt: now, gauge: gauge}
}

// Key returns the cache key of the entry.
func (e *Entry[K, R]) Key() K { return e.key }

// Records returns the cached records in load order. The slice is shared by
// every reader and must not be modified; its capacity is clipped so that an
// append by a careless caller reallocates instead of writing into the entry.
func (e *Entry[K, R]) Records() []R { return e.records[:len(e.records):len(e.records)] }

// Len returns the number of records.
func (e *Entry[K, R]) Len() int { return len(e.records) }

// LoadedAt returns when the entry was published.
func (e *Entry[K, R]) LoadedAt() time.Time { return e.loadedAt }

// Pin records one more borrower.
func (e *Entry[K, R]) Pin() { e.pins.Add(1) }

// Unpin releases one borrower.
func (e *Entry[K, R]) Unpin() {
	if e.pins.Add(-1) == 0 && e.retired.Load() {
		e.drain()
	}
}

// Pins returns the number of current borrowers.
func (e *Entry[K, R]) Pins() int64 { return e.pins.Load() }

// Retired reports whether the store no longer serves this entry.
func (e *Entry[K, R]) Retired() bool { return e.retired.Load() }

// retire is called by the store when the entry stops being resident.
func (e *Entry[K, R]) retire() {
	if e.retired.Swap(true) {
		return
	}
	e.gauge.Add(1)
	if e.pins.Load() == 0 {
		e.drain()
	}
}

func (e *Entry[K, R]) drain() {
	if e.drained.CompareAndSwap(false, true) {
		e.gauge.Add(-1)
	}
}
