package cache

import "context"

// Store is the shared keyed record cache for one record type: each key maps
// to an immutable *Entry holding the records the backing store returned for
// it. All methods are safe for concurrent use by multiple goroutines.
//
// Entries are never modified after publication. Invalidation and reloads
// replace the whole entry, so a caller still holding the old one keeps
// reading consistent data.
type Store[K comparable, R any] interface {
	// Get returns the entry for k, filling it from Options.Loader on a miss.
	// Concurrent misses for the same key share one load. An empty result is
	// cached like any other. A failed load publishes nothing.
	Get(ctx context.Context, k K) (*Entry[K, R], error)

	// Peek returns the resident entry for k without loading or promoting it.
	Peek(k K) (*Entry[K, R], bool)

	// Put publishes records under k, replacing any resident entry. Used for
	// bulk pre-population. records must not be modified afterwards.
	Put(k K, records []R) *Entry[K, R]

	// Invalidate drops the entry for k so that the next Get reloads it.
	// Returns true if an entry was resident.
	Invalidate(k K) bool

	// InvalidateIf drops every entry whose key satisfies match and returns
	// how many were dropped.
	InvalidateIf(match func(K) bool) int

	// Clear drops every entry and returns how many were dropped.
	Clear() int

	// Keys returns a snapshot of the resident keys.
	Keys() []K

	// Len returns the number of resident entries.
	Len() int

	// Stats returns a point-in-time snapshot of store counters.
	Stats() Stats

	// Close marks the store closed; later calls fail with ErrClosed or no-op.
	Close() error
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries int64
	Records int64
	Hits    int64
	Misses  int64
	Loads   int64
	// Stale is the number of invalidated entries retained for degraded mode.
	Stale int
	// RetiredPinned counts replaced or dropped entries that some ledger
	// still borrows. It returns to zero once those ledgers are released.
	RetiredPinned int64
}
