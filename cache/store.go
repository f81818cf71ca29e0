package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/internal/singleflight"
	"github.com/IvanBrykalov/farecache/internal/util"
	"github.com/IvanBrykalov/farecache/policy/lru"
)

// store is the sharded Store implementation.
type store[K comparable, R any] struct {
	shards []*shard[K, R]
	closed atomic.Bool

	opt Options[K, R]
	log *zap.Logger

	// sf coalesces concurrent fills for the same key.
	sf singleflight.Group[K, *Entry[K, R]]

	entries       atomic.Int64
	records       atomic.Int64
	loads         atomic.Int64
	retiredPinned atomic.Int64
}

// New constructs a Store with the provided Options.
// Capacity and MaxRecords are split evenly (ceil) across shards.
func New[K comparable, R any](opt Options[K, R]) Store[K, R] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K]()
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	sh := util.ShardCount(opt.Shards)
	perShardCap := 0
	if opt.Capacity > 0 {
		perShardCap = (opt.Capacity + sh - 1) / sh
	}
	var perShardRec int64
	if opt.MaxRecords > 0 {
		perShardRec = (opt.MaxRecords + int64(sh) - 1) / int64(sh)
	}

	s := &store[K, R]{
		opt: opt,
		log: opt.Logger.With(zap.String("type", opt.Name)),
	}
	s.shards = make([]*shard[K, R], sh)
	for i := range s.shards {
		s.shards[i] = newShard[K, R](perShardCap, perShardRec, opt.Policy, s)
	}
	return s
}

var _ Store[string, int] = (*store[string, int])(nil)

// ---- Store[K,R] implementation ----

func (c *store[K, R]) Get(ctx context.Context, k K) (*Entry[K, R], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	s := c.shardFor(k)
	if e, ok := s.get(k); ok {
		c.opt.Metrics.Hit()
		return e, nil
	}
	c.opt.Metrics.Miss()
	if c.opt.Loader == nil {
		return nil, ErrNoLoader
	}

	// ctx bounds this caller's wait only; the fill runs detached from it.
	e, err, _ := c.sf.Do(ctx, k, func() (*Entry[K, R], error) {
		return c.fill(ctx, s, k)
	})
	return e, err
}

func (c *store[K, R]) Peek(k K) (*Entry[K, R], bool) {
	if c.closed.Load() {
		return nil, false
	}
	return c.shardFor(k).peek(k)
}

// Put returns nil after Close.
func (c *store[K, R]) Put(k K, records []R) *Entry[K, R] {
	if c.closed.Load() {
		return nil
	}
	e := newEntry(k, records, Now(c.opt.Clock), &c.retiredPinned)
	c.shardFor(k).put(e)
	return e
}

func (c *store[K, R]) Invalidate(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).invalidate(k)
}

func (c *store[K, R]) InvalidateIf(match func(K) bool) int {
	if c.closed.Load() {
		return 0
	}
	n := 0
	for _, s := range c.shards {
		n += s.invalidateIf(match)
	}
	return n
}

// Clear drops every resident entry together with any retained stale ones.
func (c *store[K, R]) Clear() int {
	if c.closed.Load() {
		return 0
	}
	n := 0
	for _, s := range c.shards {
		n += s.clear()
	}
	return n
}

func (c *store[K, R]) Keys() []K {
	out := make([]K, 0, c.entries.Load())
	for _, s := range c.shards {
		out = s.keys(out)
	}
	return out
}

func (c *store[K, R]) Len() int { return int(c.entries.Load()) }

func (c *store[K, R]) Stats() Stats {
	st := Stats{
		Entries:       c.entries.Load(),
		Records:       c.records.Load(),
		Loads:         c.loads.Load(),
		RetiredPinned: c.retiredPinned.Load(),
	}
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Stale += s.staleLen()
	}
	return st
}

// Close marks the store closed. In-flight loads finish but later calls fail
// or no-op. Resident entries stay readable through existing references.
func (c *store[K, R]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *store[K, R]) shardFor(k K) *shard[K, R] {
	return c.shards[util.ShardIndex(util.Hash(k), len(c.shards))]
}

func (c *store[K, R]) reportSize() {
	c.opt.Metrics.Size(c.entries.Load(), c.records.Load())
}

// fill runs once per key per flight. It double-checks residency, loads, and
// publishes unless an invalidation raced with the load.
func (c *store[K, R]) fill(ctx context.Context, s *shard[K, R], k K) (*Entry[K, R], error) {
	if e, ok := s.peek(k); ok {
		return e, nil
	}
	gen := s.generation()

	start := time.Now()
	records, err := c.load(context.WithoutCancel(ctx), k)
	d := time.Since(start)
	c.loads.Add(1)
	c.opt.Metrics.Load(d, err)

	if err != nil {
		if old, ok := s.staleEntry(k); ok {
			c.opt.Metrics.StaleServed()
			c.log.Warn("serving stale entry after failed load",
				zap.Any("key", k), zap.Duration("took", d), zap.Error(err))
			return old, nil
		}
		c.log.Warn("backing-store load failed",
			zap.Any("key", k), zap.Duration("took", d), zap.Error(err))
		return nil, &LoadError[K]{Type: c.opt.Name, Key: k, Err: err}
	}

	e := newEntry(k, records, Now(c.opt.Clock), &c.retiredPinned)
	if !s.publish(e, gen) {
		// Handed to the waiting callers only; the next Get reloads.
		e.retire()
		c.log.Debug("load superseded by invalidation, not published", zap.Any("key", k))
	}
	return e, nil
}

type loadResult[R any] struct {
	records []R
	err     error
}

// load calls the Loader, bounded by LoadTimeout when set. A loader that
// ignores its context is abandoned at the deadline; its late result is
// dropped.
func (c *store[K, R]) load(ctx context.Context, k K) ([]R, error) {
	if c.opt.LoadTimeout <= 0 {
		return c.opt.Loader(ctx, k)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opt.LoadTimeout)
	defer cancel()

	ch := make(chan loadResult[R], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- loadResult[R]{err: fmt.Errorf("panic in loader: %v", r)}
			}
		}()
		records, err := c.opt.Loader(ctx, k)
		ch <- loadResult[R]{records: records, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w after %s: %w", ErrLoadTimeout, c.opt.LoadTimeout, r.err)
		}
		return r.records, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrLoadTimeout, c.opt.LoadTimeout)
	}
}
