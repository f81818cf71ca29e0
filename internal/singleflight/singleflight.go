// Package singleflight coalesces concurrent backing-store fills for the same
// cache key so a burst of misses issues exactly one load.
package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group coalesces concurrent calls for the same key K. The first caller for a
// key becomes the leader and runs fn; followers wait for the leader's result.
//
// Concurrency notes:
//   - Publishing (val, err) happens-before close(c.done), so followers that
//     return after <-done observe the final values.
//   - A caller whose ctx ends stops waiting and returns ctx.Err(). This holds
//     for the leader too: fn keeps running in the background and its result
//     still reaches the other waiters. Bounding fn itself is fn's job.
//   - A panic inside fn is converted into an error for every waiter so that a
//     misbehaving loader cannot wedge the key forever.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int
}

// Do runs fn once for key. shared reports whether the result was handed to
// more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.waiters++
		done := c.done
		g.mu.Unlock()

		select {
		case <-done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	if ctx.Done() == nil {
		g.run(key, c, fn)
	} else {
		go g.run(key, c, fn)
		select {
		case <-c.done:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), false
		}
	}

	g.mu.Lock()
	shared = c.waiters > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// InFlight reports whether a call for key is currently running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("singleflight: panic in load: %v", r)
		}
		// Released before done closes so that a returning caller never
		// observes its own finished call as in flight.
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
