// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "hash/maphash"

// seed is shared by every Store in the process; shard placement only needs
// to be stable for the lifetime of the process.
var seed = maphash.MakeSeed()

// Hash returns a 64-bit hash for any comparable cache key.
// Strings and integer codes take an allocation-free FNV-1a path. Structured
// record keys (vendor+carrier+tariff+rule, market pairs, historical bucket
// keys) fall back to maphash.Comparable, which hashes the key structurally.
func Hash[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return fnv64aFromString(v)
	case int:
		return fnv64aFromUint64(uint64(v))
	case int32:
		return fnv64aFromUint64(uint64(uint32(v)))
	case int64:
		return fnv64aFromUint64(uint64(v))
	case uint32:
		return fnv64aFromUint64(uint64(v))
	case uint64:
		return fnv64aFromUint64(v)
	default:
		return maphash.Comparable(seed, k)
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnv64aFromString(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

func fnv64aFromUint64(u uint64) uint64 {
	// Hash the 8 little-endian bytes of u without allocating.
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
