package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/policy"
)

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictPolicy: chosen by the eviction policy or the entry-count limit.
	EvictPolicy EvictReason = iota
	// EvictCapacity: dropped to satisfy the record budget (MaxRecords).
	EvictCapacity
	// EvictInvalidate: dropped by Invalidate, InvalidateIf or Clear.
	EvictInvalidate
)

// Metrics receives store-level observability signals. NoopMetrics is used
// when none is configured.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int64, records int64)
	Load(d time.Duration, err error)
	StaleServed()
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Now reads c, falling back to the wall clock when c is nil.
func Now(c Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return time.Unix(0, c.NowUnixNano())
}

// Loader fetches every record for one key from the backing store. It must
// return either a complete result or an error; partial results returned
// alongside an error are discarded.
type Loader[K comparable, R any] func(ctx context.Context, k K) ([]R, error)

// Options configures a Store. Zero values are safe; New applies defaults:
//   - Capacity <= 0 => unbounded entry count
//   - Shards <= 0   => auto (power of two)
//   - nil Policy    => LRU
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => zap.NewNop()
type Options[K comparable, R any] struct {
	// Name identifies the record type in logs and errors.
	Name string

	// Capacity limits the number of resident entries.
	Capacity int
	// Shards is the number of independently locked partitions.
	Shards int
	// Policy picks eviction victims; see policy/lru and policy/twoq.
	Policy policy.Policy[K]
	// MaxRecords limits the total number of cached records (0 = no limit).
	MaxRecords int64

	// Loader fills misses. Without one, Get fails on a miss with ErrNoLoader.
	Loader Loader[K, R]
	// LoadTimeout bounds one backing-store load (0 = no bound). A stalled
	// load no longer blocks every reader of the key past this deadline.
	LoadTimeout time.Duration
	// KeepStale retains invalidated entries as a fallback. If the reload of
	// such a key fails, the stale entry is served instead of the error.
	KeepStale bool

	Metrics Metrics
	Logger  *zap.Logger
	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}
