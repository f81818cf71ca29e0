// Package prom exports cache layer signals to Prometheus. One Collector
// serves every record type; each type gets a *Type labelled with its name
// that implements cache.Metrics, accessor.Metrics and hotpath.Metrics.
package prom

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/farecache/accessor"
	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/hotpath"
)

// Collector owns the metric vectors. Safe for concurrent use.
type Collector struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	evicts      *prometheus.CounterVec
	sizeEntries *prometheus.GaugeVec
	sizeRecords *prometheus.GaugeVec
	loads       *prometheus.HistogramVec
	loadErrors  *prometheus.CounterVec
	staleServed *prometheus.CounterVec

	calls       *prometheus.CounterVec
	filters     *prometheus.CounterVec
	invalidates *prometheus.CounterVec
	dropped     *prometheus.CounterVec

	hotLookups *prometheus.CounterVec
	hotPublish *prometheus.CounterVec
	hotResets  *prometheus.CounterVec

	mu    sync.Mutex
	types map[string]*Type
}

// New registers the cache metrics under namespace ns with reg
// (nil => prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer, ns string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(sub, name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help,
		}, append([]string{"type"}, labels...))
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "store", Name: name, Help: help,
		}, []string{"type"})
	}

	c := &Collector{
		hits:        counter("store", "hits_total", "Record store hits"),
		misses:      counter("store", "misses_total", "Record store misses"),
		evicts:      counter("store", "evictions_total", "Entries dropped by reason", "reason"),
		sizeEntries: gauge("size_entries", "Resident entries"),
		sizeRecords: gauge("size_records", "Resident records across all entries"),
		loads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "store", Name: "load_duration_seconds",
			Help:    "Backing-store load latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"type"}),
		loadErrors:  counter("store", "load_errors_total", "Failed backing-store loads"),
		staleServed: counter("store", "stale_served_total", "Stale entries served after a failed reload"),

		calls:       counter("accessor", "calls_total", "Accessor queries by shape", "op"),
		filters:     counter("accessor", "filter_results_total", "Filtered results by copy mode", "copied"),
		invalidates: counter("accessor", "invalidations_total", "Change notifications by outcome", "result"),
		dropped:     counter("accessor", "invalidated_entries_total", "Entries dropped by change notifications"),

		hotLookups: counter("hotpath", "lookups_total", "Micro cache lookups by state", "state"),
		hotPublish: counter("hotpath", "publish_total", "Micro cache publish attempts", "result"),
		hotResets:  counter("hotpath", "resets_total", "Micro cache resets"),

		types: make(map[string]*Type),
	}
	reg.MustRegister(
		c.hits, c.misses, c.evicts, c.sizeEntries, c.sizeRecords, c.loads, c.loadErrors, c.staleServed,
		c.calls, c.filters, c.invalidates, c.dropped,
		c.hotLookups, c.hotPublish, c.hotResets,
	)
	return c
}

// For returns the metrics of record type typ, creating them once.
func (c *Collector) For(typ string) *Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.types[typ]; ok {
		return t
	}
	t := &Type{
		hits:        c.hits.WithLabelValues(typ),
		misses:      c.misses.WithLabelValues(typ),
		evicts:      c.evicts.MustCurryWith(prometheus.Labels{"type": typ}),
		sizeEntries: c.sizeEntries.WithLabelValues(typ),
		sizeRecords: c.sizeRecords.WithLabelValues(typ),
		loads:       c.loads.WithLabelValues(typ),
		loadErrors:  c.loadErrors.WithLabelValues(typ),
		staleServed: c.staleServed.WithLabelValues(typ),
		calls:       c.calls.MustCurryWith(prometheus.Labels{"type": typ}),
		filters:     c.filters.MustCurryWith(prometheus.Labels{"type": typ}),
		invalidates: c.invalidates.MustCurryWith(prometheus.Labels{"type": typ}),
		dropped:     c.dropped.WithLabelValues(typ),
		hotLookups:  c.hotLookups.MustCurryWith(prometheus.Labels{"type": typ}),
		hotPublish:  c.hotPublish.MustCurryWith(prometheus.Labels{"type": typ}),
		hotResets:   c.hotResets.WithLabelValues(typ),
	}
	c.types[typ] = t
	return t
}

// Store, Accessor and HotPath hand out For(typ) under the narrower
// interfaces record types are built with.
func (c *Collector) Store(typ string) cache.Metrics       { return c.For(typ) }
func (c *Collector) Accessor(typ string) accessor.Metrics { return c.For(typ) }
func (c *Collector) HotPath(typ string) hotpath.Metrics   { return c.For(typ) }

// Type is the metrics of one record type.
type Type struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evicts      *prometheus.CounterVec
	sizeEntries prometheus.Gauge
	sizeRecords prometheus.Gauge
	loads       prometheus.Observer
	loadErrors  prometheus.Counter
	staleServed prometheus.Counter

	calls       *prometheus.CounterVec
	filters     *prometheus.CounterVec
	invalidates *prometheus.CounterVec
	dropped     prometheus.Counter

	hotLookups *prometheus.CounterVec
	hotPublish *prometheus.CounterVec
	hotResets  prometheus.Counter
}

// ---- cache.Metrics ----

func (t *Type) Hit()  { t.hits.Inc() }
func (t *Type) Miss() { t.misses.Inc() }

func (t *Type) Evict(r cache.EvictReason) {
	t.evicts.WithLabelValues(reason(r)).Inc()
}

func (t *Type) Size(entries, records int64) {
	t.sizeEntries.Set(float64(entries))
	t.sizeRecords.Set(float64(records))
}

func (t *Type) Load(d time.Duration, err error) {
	t.loads.Observe(d.Seconds())
	if err != nil {
		t.loadErrors.Inc()
	}
}

func (t *Type) StaleServed() { t.staleServed.Inc() }

// ---- accessor.Metrics ----

func (t *Type) Call(op accessor.Op) { t.calls.WithLabelValues(string(op)).Inc() }

func (t *Type) Copy(copied bool) {
	t.filters.WithLabelValues(strconv.FormatBool(copied)).Inc()
}

func (t *Type) Invalidate(r accessor.InvalidateResult, dropped int) {
	t.invalidates.WithLabelValues(string(r)).Inc()
	t.dropped.Add(float64(dropped))
}

// ---- hotpath.Metrics ----

func (t *Type) Lookup(s hotpath.State) { t.hotLookups.WithLabelValues(s.String()).Inc() }

func (t *Type) Publish(ok bool) {
	res := "rejected"
	if ok {
		res = "published"
	}
	t.hotPublish.WithLabelValues(res).Inc()
}

func (t *Type) Reset() { t.hotResets.Inc() }

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictCapacity:
		return "capacity"
	case cache.EvictInvalidate:
		return "invalidate"
	default:
		return "policy"
	}
}

var (
	_ cache.Metrics    = (*Type)(nil)
	_ accessor.Metrics = (*Type)(nil)
	_ hotpath.Metrics  = (*Type)(nil)
)
