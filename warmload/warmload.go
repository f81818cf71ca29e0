// Package warmload pre-populates record stores at process start.
//
// Only record types whose full table is enumerable get an eager load; every
// other type fills on demand. A bulk load reads one key-ordered query and
// publishes each run of rows sharing a key as one entry as soon as the key
// changes. If the query fails midway the partial group is dropped and every
// entry this run published is invalidated again, so readers fall back to
// on-demand loads instead of seeing half a table.
package warmload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/farecache/backing"
	"github.com/IvanBrykalov/farecache/bucket"
	"github.com/IvanBrykalov/farecache/cache"
)

// Loader is one record type's startup load.
type Loader interface {
	Name() string
	Load(ctx context.Context) (Result, error)
}

// Result summarizes one load.
type Result struct {
	Rows int
	Keys int
	// Skipped is set when the loader was disabled (historical switch off).
	Skipped bool
}

// ErrUnordered is returned when a bulk query yields a key again after a
// different key; the query must be ordered by key.
var ErrUnordered = errors.New("warmload: rows not ordered by key")

// Bulk streams a key-ordered table into a store.
type Bulk[K comparable, R any] struct {
	Type   string
	Store  cache.Store[K, R]
	Source backing.Source
	// SQL selects the whole table ordered by key, then by date.
	SQL   string
	Args  []any
	Scan  backing.Scanner[R]
	KeyOf func(R) K
}

func (b *Bulk[K, R]) Name() string { return b.Type }

func (b *Bulk[K, R]) Load(ctx context.Context) (Result, error) {
	return load(ctx, b.Source, b.SQL, b.Args, b.Scan, b.KeyOf, b.Store)
}

// HistoricalBulk preloads the bucket containing At (zero means now) of a
// historical store. It is a no-op when Enabled is false; historical queries
// then fill on demand.
type HistoricalBulk[K comparable, R any] struct {
	Type     string
	Enabled  bool
	Store    cache.Store[bucket.HistoricalKey[K], R]
	Bucketer bucket.Bucketer
	At       time.Time
	Source   backing.Source
	SQL      string
	// Args returns placeholder values for the bucket bounds.
	Args  func(start, end time.Time) []any
	Scan  backing.Scanner[R]
	KeyOf func(R) K
}

func (h *HistoricalBulk[K, R]) Name() string { return h.Type }

func (h *HistoricalBulk[K, R]) Load(ctx context.Context) (Result, error) {
	if !h.Enabled {
		return Result{Skipped: true}, nil
	}
	at := h.At
	if at.IsZero() {
		at = time.Now()
	}
	start, end := h.Bucketer.Range(at)
	var args []any
	if h.Args != nil {
		args = h.Args(start, end)
	}
	keyOf := func(r R) bucket.HistoricalKey[K] {
		return bucket.HistoricalKey[K]{Base: h.KeyOf(r), Start: start, End: end}
	}
	return load(ctx, h.Source, h.SQL, args, h.Scan, keyOf, h.Store)
}

// Static seeds a store from data that needs no backing store.
type Static[K comparable, R any] struct {
	Type  string
	Store cache.Store[K, R]
	Build func(ctx context.Context) (map[K][]R, error)
}

func (s *Static[K, R]) Name() string { return s.Type }

func (s *Static[K, R]) Load(ctx context.Context) (Result, error) {
	data, err := s.Build(ctx)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for k, records := range data {
		s.Store.Put(k, records)
		res.Keys++
		res.Rows += len(records)
	}
	return res, nil
}

// load runs the grouped publish shared by Bulk and HistoricalBulk.
func load[K comparable, R any](ctx context.Context, src backing.Source, query string, args []any,
	scan backing.Scanner[R], keyOf func(R) K, store cache.Store[K, R]) (Result, error) {

	var (
		res       Result
		cur       K
		group     []R
		published []K
		seen      = make(map[K]struct{})
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		store.Put(cur, group)
		published = append(published, cur)
		res.Keys++
		group = nil
	}

	rows, err := backing.Stream(ctx, src, query, args, scan, func(r R) error {
		k := keyOf(r)
		if len(group) > 0 && k != cur {
			flush()
		}
		if len(group) == 0 {
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w: key %v", ErrUnordered, k)
			}
			seen[k] = struct{}{}
			cur = k
		}
		group = append(group, r)
		return nil
	})
	res.Rows = rows
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for _, k := range published {
			store.Invalidate(k)
		}
		return Result{Rows: rows}, err
	}
	flush()
	return res, nil
}

// Runner executes loaders at startup.
type Runner struct {
	// Parallelism bounds concurrent loads (<= 0 means one at a time).
	Parallelism int
	// Timeout bounds the whole startup load (0 = none).
	Timeout time.Duration
	Logger  *zap.Logger
}

// Run executes every loader. The first failure cancels the rest and is
// returned.
func (r Runner) Run(ctx context.Context, loaders ...Loader) error {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	limit := r.Parallelism
	if limit <= 0 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, l := range loaders {
		g.Go(func() error {
			start := time.Now()
			res, err := l.Load(ctx)
			took := time.Since(start)
			if err != nil {
				log.Error("warm load failed",
					zap.String("type", l.Name()), zap.Duration("took", took), zap.Error(err))
				return fmt.Errorf("warm load %s: %w", l.Name(), err)
			}
			if res.Skipped {
				log.Info("warm load skipped", zap.String("type", l.Name()))
				return nil
			}
			log.Info("warm load done",
				zap.String("type", l.Name()),
				zap.Int("rows", res.Rows),
				zap.Int("keys", res.Keys),
				zap.Duration("took", took))
			return nil
		})
	}
	return g.Wait()
}
