// Package cache provides the shared record store behind every fare data
// accessor: a sharded, generic, in-memory map from a cache key to an
// immutable snapshot of the versioned records the backing store returned for
// that key.
//
// Design
//
//   - Concurrency: the store is split into shards, each protected by its own
//     mutex. The shard count is a power of two picked by a heuristic
//     (util.ReasonableShardCount) unless configured.
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. A node keeps its place across
//     reloads; only the *Entry it points to is swapped.
//
//   - Snapshots: an *Entry is fully built before it is published and never
//     modified afterwards. Invalidate and reload replace the whole entry, so
//     a request that borrowed the old one keeps reading it unchanged.
//
//   - Fill on miss: Get coalesces concurrent misses for a key into one
//     Loader call (single-flight). Empty results are cached (negative
//     caching). A failed load publishes nothing.
//
//   - Timeouts and degraded mode: Options.LoadTimeout bounds a load. With
//     Options.KeepStale an invalidated entry is retained and served if its
//     reload fails.
//
//   - Invalidation races: a load that started before an Invalidate of its
//     key (or a Put, or a Clear) is returned to its callers but not
//     published, so the store never resurrects data older than the change
//     notification.
//
//   - Limits: Capacity bounds the entry count and MaxRecords the total record
//     count; both are split across shards. Eviction order comes from the
//     policy package (LRU by default, 2Q for historical record types).
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Load/StaleServed
//     signals. NoopMetrics is the default; metrics/prom exports them.
//
// Basic usage
//
//	s := cache.New(cache.Options[string, Rule]{
//	    Name:     "tax_rule",
//	    Capacity: 50_000,
//	    Loader: func(ctx context.Context, k string) ([]Rule, error) {
//	        return db.RulesFor(ctx, k)
//	    },
//	    LoadTimeout: 2 * time.Second,
//	})
//	e, err := s.Get(ctx, "US|XY")
//	if err != nil {
//	    return err
//	}
//	for _, r := range e.Records() {
//	    _ = r
//	}
//
// All methods on Store are safe for concurrent use.
package cache
