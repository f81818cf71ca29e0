package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a Get/Invalidate mix against a warm store. Misses
// go through the single-flight fill path with an in-memory loader.
func benchmarkMix(b *testing.B, readsPct int) {
	s := New(Options[string, int]{
		Capacity: 100_000,
		Loader: func(context.Context, string) ([]int, error) {
			return []int{1, 2, 3}, nil
		},
	})
	b.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 50_000; i++ {
		s.Put("k:"+strconv.Itoa(i), []int{1, 2, 3})
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		ctx := context.Background()
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				_, _ = s.Get(ctx, k)
			} else {
				s.Invalidate(k)
			}
			i++
		}
	})
}

func BenchmarkStore_99r1i(b *testing.B)  { benchmarkMix(b, 99) }
func BenchmarkStore_90r10i(b *testing.B) { benchmarkMix(b, 90) }

// benchmarkHitStruct measures the hit path with a structured key, which
// hashes through maphash.Comparable.
func BenchmarkStore_StructKeyHits(b *testing.B) {
	type fareKey struct {
		Vendor, Carrier string
		Tariff          int
		Rule            string
	}
	s := New(Options[fareKey, int]{Capacity: 10_000})
	b.Cleanup(func() { _ = s.Close() })

	keys := make([]fareKey, 1024)
	for i := range keys {
		keys[i] = fareKey{Vendor: "ATP", Carrier: "AA", Tariff: i, Rule: "R1"}
		s.Put(keys[i], []int{i})
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		i := 0
		for pb.Next() {
			_, _ = s.Get(ctx, keys[i&1023])
			i++
		}
	})
}
