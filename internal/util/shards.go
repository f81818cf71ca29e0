package util

import "runtime"

// ReasonableShardCount picks a default shard count for a record store:
// nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > 256 {
		n = 256
	}
	return n
}

// ShardCount normalizes a configured shard count. Non-positive values pick
// ReasonableShardCount; anything else is rounded up to a power of two.
func ShardCount(configured int) int {
	if configured <= 0 {
		return ReasonableShardCount()
	}
	return int(NextPow2(uint64(configured)))
}

// ShardIndex maps a 64-bit hash to a shard index. shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
