package accessor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/effectivity"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/ledger"
)

// Config configures a Current accessor.
type Config[K comparable, R effectivity.Versioned] struct {
	// Name identifies the record type in logs and metrics.
	Name  string
	Store cache.Store[K, R]
	Codec keycodec.Codec[K]
	// SkipCopy enables the no-copy fast path: when every record of an entry
	// passes the filter, the shared entry is returned instead of a copy.
	SkipCopy bool
	Metrics  Metrics
	Logger   *zap.Logger
}

// Current is the accessor for current-data queries of one record type.
type Current[K comparable, R effectivity.Versioned] struct {
	name     string
	store    cache.Store[K, R]
	codec    keycodec.Codec[K]
	skipCopy bool
	metrics  Metrics
	log      *zap.Logger
	pool     ledger.SlicePool[R]

	mu        sync.RWMutex
	listeners []func()
}

// NewCurrent builds a Current accessor. Store and Codec are required.
func NewCurrent[K comparable, R effectivity.Versioned](cfg Config[K, R]) *Current[K, R] {
	if cfg.Store == nil || cfg.Codec == nil {
		panic("accessor: Store and Codec are required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Current[K, R]{
		name:     cfg.Name,
		store:    cfg.Store,
		codec:    cfg.Codec,
		skipCopy: cfg.SkipCopy,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With(zap.String("type", cfg.Name)),
	}
}

// Name returns the record type name.
func (c *Current[K, R]) Name() string { return c.name }

// Store exposes the underlying record store (warm loading, stats).
func (c *Current[K, R]) Store() cache.Store[K, R] { return c.store }

// Get returns every cached record for k in load order. The slice is the
// shared entry, borrowed by l.
func (c *Current[K, R]) Get(ctx context.Context, l *ledger.Ledger, k K) ([]R, error) {
	c.metrics.Call(OpGet)
	e, err := c.entry(ctx, l, k)
	if err != nil {
		return nil, err
	}
	return e.Records(), nil
}

// GetEffective returns the records for k effective on date and not expired
// as of today.
func (c *Current[K, R]) GetEffective(ctx context.Context, l *ledger.Ledger, k K, date, today time.Time) ([]R, error) {
	c.metrics.Call(OpEffective)
	e, err := c.entry(ctx, l, k)
	if err != nil {
		return nil, err
	}
	return filter(l, &c.pool, c.skipCopy, c.metrics, e.Records(), effectivity.Effective[R](date, today)), nil
}

// GetWinner returns the effective record with the latest CreateDate.
func (c *Current[K, R]) GetWinner(ctx context.Context, l *ledger.Ledger, k K, date, today time.Time) (R, bool, error) {
	c.metrics.Call(OpWinner)
	e, err := c.entry(ctx, l, k)
	if err != nil {
		var zero R
		return zero, false, err
	}
	w, ok := effectivity.CurrentWinner(e.Records(), date, today)
	return w, ok, nil
}

// Invalidate translates a change notification and drops the matching entry.
// It returns the number of entries dropped; a key that cannot be translated
// is reported as an error wrapping keycodec.ErrIncompleteKey.
func (c *Current[K, R]) Invalidate(o keycodec.ObjectKey) (int, error) {
	k, err := c.codec.Decode(o)
	if err != nil {
		c.log.Error("translate failed", zap.Stringer("object_key", o), zap.Error(err))
		c.metrics.Invalidate(InvalidateBadKey, 0)
		return 0, err
	}
	n := 0
	if c.store.Invalidate(k) {
		n = 1
	}
	c.report(o, n)
	return n, nil
}

// Clear drops every entry and returns how many were dropped.
func (c *Current[K, R]) Clear() int {
	n := c.store.Clear()
	c.log.Info("cache cleared", zap.Int("dropped", n))
	c.notify()
	return n
}

// OnInvalidate registers fn to run after every translated notification and
// every Clear, whether or not an entry was resident. Derived caches
// (hot-path slots, child lookups) reset themselves through it.
func (c *Current[K, R]) OnInvalidate(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Current[K, R]) entry(ctx context.Context, l *ledger.Ledger, k K) (*cache.Entry[K, R], error) {
	e, err := c.store.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	l.Borrow(e)
	return e, nil
}

func (c *Current[K, R]) report(o keycodec.ObjectKey, n int) {
	// Derived caches may hold the key even when the entry itself is gone.
	children := c.notify()
	if n == 0 {
		c.log.Warn("invalidate failed (likely empty cache after startup)",
			zap.Stringer("object_key", o), zap.Int("children_cleared", children))
		c.metrics.Invalidate(InvalidateEmpty, 0)
		return
	}
	c.log.Info("key invalidated",
		zap.Stringer("object_key", o), zap.Int("dropped", n), zap.Int("children_cleared", children))
	c.metrics.Invalidate(InvalidateDropped, n)
}

func (c *Current[K, R]) notify() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.listeners {
		fn()
	}
	return len(c.listeners)
}

// filter applies keep to records. The result is either a pooled copy owned
// by l or, with skipCopy and every record passing, the shared slice itself.
func filter[R effectivity.Versioned](l *ledger.Ledger, pool *ledger.SlicePool[R], skipCopy bool, m Metrics, records []R, keep effectivity.Predicate[R]) []R {
	if skipCopy && effectivity.All(records, keep) {
		m.Copy(false)
		return records
	}
	m.Copy(true)
	dst := pool.Own(l, len(records))
	return effectivity.RemoveMatching(dst, records, keep.Not())
}
