// Package registry holds every record type of a process explicitly: the
// change feed routes invalidations through it by type name, startup warm
// loads run from it, and it owns the historical switch new sessions read.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/cache"
	"github.com/IvanBrykalov/farecache/keycodec"
	"github.com/IvanBrykalov/farecache/session"
	"github.com/IvanBrykalov/farecache/warmload"
)

var (
	// ErrUnknownType is returned for a notification naming no registered type.
	ErrUnknownType = errors.New("registry: unknown record type")
	// ErrDuplicate is returned when a type name is registered twice.
	ErrDuplicate = errors.New("registry: record type already registered")
)

// Invalidator is implemented by accessor.Current, accessor.Historical and
// accessor.Dual.
type Invalidator interface {
	Invalidate(keycodec.ObjectKey) (int, error)
	Clear() int
}

// Type describes one registered record type.
type Type struct {
	Name        string
	Invalidator Invalidator
	// Warm are the startup loaders of the type; empty means on-demand only.
	Warm []warmload.Loader
	// Stats reports the counters of the type's stores; optional.
	Stats func() cache.Stats
}

// Options configures a Registry.
type Options struct {
	HistoricalEnabled bool
	// LedgerSize pre-sizes the ledger of each new session.
	LedgerSize int
	Logger     *zap.Logger
	Clock      cache.Clock
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type

	historical atomic.Bool
	opt        Options
	log        *zap.Logger
}

// New returns an empty registry.
func New(opt Options) *Registry {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	r := &Registry{
		types: make(map[string]*Type),
		opt:   opt,
		log:   opt.Logger,
	}
	r.historical.Store(opt.HistoricalEnabled)
	return r
}

// Register adds t. Names are unique.
func (r *Registry) Register(t Type) error {
	if t.Name == "" || t.Invalidator == nil {
		return errors.New("registry: type needs a name and an invalidator")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Name)
	}
	r.types[t.Name] = &t
	return nil
}

// MustRegister is Register that panics on error; for process wiring.
func (r *Registry) MustRegister(t Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Invalidate routes one change notification to the type named typ.
func (r *Registry) Invalidate(typ string, o keycodec.ObjectKey) (int, error) {
	t, err := r.lookup(typ)
	if err != nil {
		r.log.Error("invalidate for unknown type", zap.String("type", typ), zap.Stringer("object_key", o))
		return 0, err
	}
	return t.Invalidator.Invalidate(o)
}

// Clear drops every entry of the type named typ.
func (r *Registry) Clear(typ string) (int, error) {
	t, err := r.lookup(typ)
	if err != nil {
		return 0, err
	}
	return t.Invalidator.Clear(), nil
}

// ClearAll drops every entry of every type and returns the total.
func (r *Registry) ClearAll() int {
	n := 0
	for _, name := range r.Names() {
		t, err := r.lookup(name)
		if err != nil {
			continue
		}
		n += t.Invalidator.Clear()
	}
	r.log.Info("all caches cleared", zap.Int("dropped", n))
	return n
}

// Stats returns the counters of every type that reports them.
func (r *Registry) Stats() map[string]cache.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]cache.Stats, len(r.types))
	for name, t := range r.types {
		if t.Stats != nil {
			out[name] = t.Stats()
		}
	}
	return out
}

// Warm runs the startup loaders of every type through runner.
func (r *Registry) Warm(ctx context.Context, runner warmload.Runner) error {
	var loaders []warmload.Loader
	for _, name := range r.Names() {
		t, err := r.lookup(name)
		if err != nil {
			continue
		}
		loaders = append(loaders, t.Warm...)
	}
	if runner.Logger == nil {
		runner.Logger = r.log
	}
	return runner.Run(ctx, loaders...)
}

// SetHistorical flips the historical switch. Sessions opened afterwards see
// the new value; open ones keep theirs.
func (r *Registry) SetHistorical(enabled bool) {
	if r.historical.Swap(enabled) != enabled {
		r.log.Info("historical switch changed", zap.Bool("enabled", enabled))
	}
}

// HistoricalEnabled reports the current switch value.
func (r *Registry) HistoricalEnabled() bool { return r.historical.Load() }

// NewSession opens a transaction handle ticketed at ticketDate (zero means
// now).
func (r *Registry) NewSession(ticketDate time.Time) *session.Handle {
	return session.New(ticketDate, session.Options{
		HistoricalEnabled: r.historical.Load(),
		LedgerSize:        r.opt.LedgerSize,
		Logger:            r.log,
		Clock:             r.opt.Clock,
	})
}
