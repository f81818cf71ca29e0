// Package fares instantiates the cache layer for concrete fare-data record
// types: tax rules, currencies and multi-transport city mappings.
//
// Each type is built from an Env, exposes query methods taking a
// session.Handle, and registers itself with a registry.Registry so that the
// change feed, warm loads and the historical switch reach it.
package fares

import (
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/accessor"
	"github.com/IvanBrykalov/farecache/backing"
	"github.com/IvanBrykalov/farecache/bucket"
	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/config"
	"github.com/IvanBrykalov/farecache/effectivity"
	"github.com/IvanBrykalov/farecache/hotpath"
	"github.com/IvanBrykalov/farecache/keycodec"
)

// Record type names, as used in config, metrics and the change feed.
const (
	TypeTaxRule        = "tax_rule"
	TypeCurrency       = "currency"
	TypeMultiTransport = "multi_transport"
)

// Infinity stands in for open-ended (NULL) disc and expire dates.
var Infinity = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// MetricsFactory hands out per-type observers. metrics/prom implements it.
type MetricsFactory interface {
	Store(typ string) cache.Metrics
	Accessor(typ string) accessor.Metrics
	HotPath(typ string) hotpath.Metrics
}

type noopMetrics struct{}

func (noopMetrics) Store(string) cache.Metrics       { return cache.NoopMetrics{} }
func (noopMetrics) Accessor(string) accessor.Metrics { return accessor.NoopMetrics{} }
func (noopMetrics) HotPath(string) hotpath.Metrics   { return hotpath.NoopMetrics{} }

// Env is what every record type is built from.
type Env struct {
	Source  backing.Source
	Config  *config.Config
	Metrics MetricsFactory
	Logger  *zap.Logger
	Clock   cache.Clock
	// Anchor anchors "nodates" historical buckets; zero means now.
	Anchor time.Time
}

func (e Env) withDefaults() Env {
	if e.Config == nil {
		e.Config = config.DefaultConfig()
	}
	if e.Metrics == nil {
		e.Metrics = noopMetrics{}
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Anchor.IsZero() {
		e.Anchor = cache.Now(e.Clock)
	}
	return e
}

// historicalName is the store name of the historical side of typ.
func historicalName(typ string) string { return typ + "_historical" }

// dualSpec describes a record type with a current and a historical store,
// both filled from the backing store by key.
type dualSpec[K comparable, R effectivity.Versioned] struct {
	typ        string
	codec      keycodec.Codec[K]
	current    backing.KeyQuery[K]
	historical backing.KeyQuery[bucket.HistoricalKey[K]]
	scan       backing.Scanner[R]
}

// newDual builds the accessor pair of s as configured in env.
func newDual[K comparable, R effectivity.Versioned](env Env, s dualSpec[K, R]) accessor.Dual[K, R] {
	rt := env.Config.RecordType(s.typ)

	curOpt := config.StoreOptions[K, R](s.typ, rt, env.Logger)
	curOpt.Loader = backing.KeyLoader(env.Source, s.current, s.scan)
	curOpt.Metrics = env.Metrics.Store(s.typ)
	curOpt.Clock = env.Clock

	hname := historicalName(s.typ)
	histOpt := config.StoreOptions[bucket.HistoricalKey[K], R](hname, rt, env.Logger)
	histOpt.Loader = backing.KeyLoader(env.Source, s.historical, s.scan)
	histOpt.Metrics = env.Metrics.Store(hname)
	histOpt.Clock = env.Clock

	return accessor.Dual[K, R]{
		Current: accessor.NewCurrent(accessor.Config[K, R]{
			Name:     s.typ,
			Store:    cache.New(curOpt),
			Codec:    s.codec,
			SkipCopy: rt.SkipCopy,
			Metrics:  env.Metrics.Accessor(s.typ),
			Logger:   env.Logger,
		}),
		Historical: accessor.NewHistorical(accessor.HistoricalConfig[K, R]{
			Name:     hname,
			Store:    cache.New(histOpt),
			Codec:    s.codec,
			Bucketer: rt.Bucketer(env.Anchor),
			SkipCopy: rt.SkipCopy,
			Metrics:  env.Metrics.Accessor(hname),
			Logger:   env.Logger,
		}),
	}
}

// dualStats sums the counters of both stores of d.
func dualStats[K comparable, R effectivity.Versioned](d accessor.Dual[K, R]) func() cache.Stats {
	return func() cache.Stats {
		a := d.Current.Store().Stats()
		b := d.Historical.Store().Stats()
		return cache.Stats{
			Entries:       a.Entries + b.Entries,
			Records:       a.Records + b.Records,
			Hits:          a.Hits + b.Hits,
			Misses:        a.Misses + b.Misses,
			Loads:         a.Loads + b.Loads,
			Stale:         a.Stale + b.Stale,
			RetiredPinned: a.RetiredPinned + b.RetiredPinned,
		}
	}
}

// sqlDate renders t as a bind value comparable with stored date text.
func sqlDate(t time.Time) string { return t.UTC().Format(time.DateTime) }

// nullDate is sqlDate with open-ended dates stored as NULL.
func nullDate(t time.Time) any {
	if t.IsZero() || !t.Before(Infinity) {
		return nil
	}
	return sqlDate(t)
}

// dates scans the four versioning columns.
type dates struct {
	create, eff, disc, expire backing.Date
}

func (d *dates) targets() []any { return []any{&d.create, &d.eff, &d.disc, &d.expire} }
