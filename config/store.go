package config

import (
	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/internal/util"
	"github.com/IvanBrykalov/farecache/policy"
	"github.com/IvanBrykalov/farecache/policy/lru"
	"github.com/IvanBrykalov/farecache/policy/twoq"
)

// StoreOptions translates rt into cache.Options for a store named name.
// Loader, Metrics and Clock are left for the caller.
func StoreOptions[K comparable, R any](name string, rt RecordType, log *zap.Logger) cache.Options[K, R] {
	return cache.Options[K, R]{
		Name:        name,
		Capacity:    rt.Capacity,
		Shards:      rt.Shards,
		Policy:      Policy[K](rt),
		MaxRecords:  rt.MaxRecords,
		LoadTimeout: rt.LoadTimeout.D(),
		KeepStale:   rt.KeepStale,
		Logger:      log,
	}
}

// Policy returns the eviction policy for rt. 2Q sizes its probation queue at
// a quarter of a shard and its ghost list at half. Without a capacity the
// store never evicts, so 2Q has nothing to size against and LRU is used.
func Policy[K comparable](rt RecordType) policy.Policy[K] {
	if rt.Policy != Policy2Q || rt.Capacity <= 0 {
		return lru.New[K]()
	}
	sh := util.ShardCount(rt.Shards)
	perShard := (rt.Capacity + sh - 1) / sh
	return twoq.New[K](perShard/4, perShard/2)
}
