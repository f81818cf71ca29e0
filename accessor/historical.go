package accessor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/bucket"
	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/effectivity"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/ledger"
)

// Date fields carried by historical change notifications.
const (
	FieldStartDate = "STARTDATE"
	FieldEndDate   = "ENDDATE"
)

// HistoricalConfig configures a Historical accessor.
type HistoricalConfig[K comparable, R effectivity.Versioned] struct {
	Name string
	// Store is keyed by bucket; its Loader must return every record that
	// may apply to any ticketing date inside the key's [Start, End).
	Store    cache.Store[bucket.HistoricalKey[K], R]
	Codec    keycodec.Codec[K]
	Bucketer bucket.Bucketer
	SkipCopy bool
	Metrics  Metrics
	Logger   *zap.Logger
}

// Historical is the accessor for as-of-ticketing-date queries of one record
// type.
type Historical[K comparable, R effectivity.Versioned] struct {
	name     string
	store    cache.Store[bucket.HistoricalKey[K], R]
	codec    keycodec.Codec[K]
	bucketer bucket.Bucketer
	skipCopy bool
	metrics  Metrics
	log      *zap.Logger
	pool     ledger.SlicePool[R]

	mu        sync.RWMutex
	listeners []func()
}

// NewHistorical builds a Historical accessor. Store and Codec are required.
func NewHistorical[K comparable, R effectivity.Versioned](cfg HistoricalConfig[K, R]) *Historical[K, R] {
	if cfg.Store == nil || cfg.Codec == nil {
		panic("accessor: Store and Codec are required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Historical[K, R]{
		name:     cfg.Name,
		store:    cfg.Store,
		codec:    cfg.Codec,
		bucketer: cfg.Bucketer,
		skipCopy: cfg.SkipCopy,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With(zap.String("type", cfg.Name), zap.Stringer("granularity", cfg.Bucketer.Granularity)),
	}
}

func (h *Historical[K, R]) Name() string { return h.name }

func (h *Historical[K, R]) Store() cache.Store[bucket.HistoricalKey[K], R] { return h.store }

func (h *Historical[K, R]) Bucketer() bucket.Bucketer { return h.bucketer }

// Key returns the bucketed cache key for k at ticket.
func (h *Historical[K, R]) Key(k K, ticket time.Time) bucket.HistoricalKey[K] {
	return bucket.Key(h.bucketer, k, ticket)
}

// Get returns every record cached in the bucket of ticket, borrowed by l.
func (h *Historical[K, R]) Get(ctx context.Context, l *ledger.Ledger, k K, ticket time.Time) ([]R, error) {
	h.metrics.Call(OpGet)
	e, err := h.entry(ctx, l, k, ticket)
	if err != nil {
		return nil, err
	}
	return e.Records(), nil
}

// GetEffective returns the records effective on travel as known on ticket.
func (h *Historical[K, R]) GetEffective(ctx context.Context, l *ledger.Ledger, k K, travel, ticket time.Time) ([]R, error) {
	h.metrics.Call(OpEffective)
	e, err := h.entry(ctx, l, k, ticket)
	if err != nil {
		return nil, err
	}
	return filter(l, &h.pool, h.skipCopy, h.metrics, e.Records(), effectivity.EffectiveHistorical[R](travel, ticket)), nil
}

// GetWinner returns the latest version effective on travel as known on
// ticket.
func (h *Historical[K, R]) GetWinner(ctx context.Context, l *ledger.Ledger, k K, travel, ticket time.Time) (R, bool, error) {
	h.metrics.Call(OpWinner)
	e, err := h.entry(ctx, l, k, ticket)
	if err != nil {
		var zero R
		return zero, false, err
	}
	w, ok := effectivity.HistoricalWinner(e.Records(), travel, ticket)
	return w, ok, nil
}

// Invalidate translates a change notification. With STARTDATE and ENDDATE
// present only the buckets overlapping that range are dropped; without them
// every bucket of the logical key is.
func (h *Historical[K, R]) Invalidate(o keycodec.ObjectKey) (int, error) {
	k, err := h.codec.Decode(o)
	if err != nil {
		h.log.Error("translate failed", zap.Stringer("object_key", o), zap.Error(err))
		h.metrics.Invalidate(InvalidateBadKey, 0)
		return 0, err
	}

	start, okStart := o.GetDate(FieldStartDate)
	end, okEnd := o.GetDate(FieldEndDate)
	ranged := okStart && okEnd && h.bucketer.Granularity != bucket.NoDates

	n := h.store.InvalidateIf(func(hk bucket.HistoricalKey[K]) bool {
		if hk.Base != k {
			return false
		}
		if !ranged {
			return true
		}
		// [hk.Start, hk.End) overlaps [start, end)
		return hk.Start.Before(end) && start.Before(hk.End)
	})

	children := h.notify()
	if n == 0 {
		h.log.Warn("invalidate failed (likely empty cache after startup)",
			zap.Stringer("object_key", o), zap.Int("children_cleared", children))
		h.metrics.Invalidate(InvalidateEmpty, 0)
		return 0, nil
	}
	h.log.Info("key invalidated",
		zap.Stringer("object_key", o), zap.Int("dropped", n), zap.Int("children_cleared", children))
	h.metrics.Invalidate(InvalidateDropped, n)
	return n, nil
}

// Clear drops every bucket of every key.
func (h *Historical[K, R]) Clear() int {
	n := h.store.Clear()
	h.log.Info("cache cleared", zap.Int("dropped", n))
	h.notify()
	return n
}

// OnInvalidate registers fn to run after every translated notification and
// every Clear.
func (h *Historical[K, R]) OnInvalidate(fn func()) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// EncodeKey renders a historical key for the change feed, bucket bounds
// included.
func (h *Historical[K, R]) EncodeKey(hk bucket.HistoricalKey[K]) keycodec.ObjectKey {
	o := h.codec.Encode(hk.Base)
	o.SetDate(FieldStartDate, hk.Start)
	o.SetDate(FieldEndDate, hk.End)
	return o
}

func (h *Historical[K, R]) entry(ctx context.Context, l *ledger.Ledger, k K, ticket time.Time) (*cache.Entry[bucket.HistoricalKey[K], R], error) {
	e, err := h.store.Get(ctx, h.Key(k, ticket))
	if err != nil {
		return nil, err
	}
	l.Borrow(e)
	return e, nil
}

func (h *Historical[K, R]) notify() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.listeners {
		fn()
	}
	return len(h.listeners)
}
