// Package hotpath is a lock-free micro cache for one query shape keyed by a
// 3-letter code (A-Z): 26³ slots, each a single atomic word packing a
// 3-byte answer with a 1-byte generation.
//
// A slot is valid only while its generation equals the cache's current
// generation. Reset bumps the generation, which makes every slot unknown at
// once, then sweeps the array so that no stale slot can match again after
// the 8-bit counter wraps. Lookups never block; writers publish with a
// single compare-and-swap.
package hotpath

import (
	"sync"
	"sync/atomic"
)

// Slots is the number of 3-letter codes.
const Slots = 26 * 26 * 26

const (
	answerMask  = 0x00FF_FFFF
	genShift    = 24
	uncacheable = answerMask // reserved answer
)

// Code is a 3-byte answer or key.
type Code [3]byte

// ParseCode converts s to a Code. It reports false unless len(s) == 3.
func ParseCode(s string) (Code, bool) {
	if len(s) != 3 {
		return Code{}, false
	}
	return Code{s[0], s[1], s[2]}, true
}

func (c Code) String() string { return string(c[:]) }

func (c Code) pack() uint32 { return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2]) }

func unpack(w uint32) Code { return Code{byte(w >> 16), byte(w >> 8), byte(w)} }

// State is the outcome of a lookup.
type State uint8

const (
	// Unknown: the slot holds nothing for the current generation.
	Unknown State = iota
	// Hit: the slot holds a cached answer.
	Hit
	// Uncacheable: the answer for this code is known not to be stable; go
	// to the record store.
	Uncacheable
	// NotIndexable: the key is not three letters A-Z.
	NotIndexable
)

func (s State) String() string {
	switch s {
	case Hit:
		return "hit"
	case Uncacheable:
		return "uncacheable"
	case NotIndexable:
		return "not_indexable"
	default:
		return "unknown"
	}
}

// Metrics receives micro-cache signals.
type Metrics interface {
	Lookup(State)
	Publish(ok bool)
	Reset()
}

// NoopMetrics is the default Metrics implementation; it does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Lookup(State) {}
func (NoopMetrics) Publish(bool) {}
func (NoopMetrics) Reset()       {}

// Gen is a generation snapshot taken by Lookup and handed back to Publish.
type Gen uint8

// Cache is the micro cache. The zero value is not usable; call New.
type Cache struct {
	gen     atomic.Uint32 // low 8 bits significant
	slots   []atomic.Uint32
	metrics Metrics

	resetMu sync.Mutex
}

// New returns an empty cache. All slots start unknown.
func New(m Metrics) *Cache {
	if m == nil {
		m = NoopMetrics{}
	}
	c := &Cache{slots: make([]atomic.Uint32, Slots), metrics: m}
	// Fresh slots carry generation 0; start at 1 so they read as unknown.
	c.gen.Store(1)
	return c
}

// Index is the perfect hash of a 3-letter code.
func Index(key string) (int, bool) {
	if len(key) != 3 {
		return 0, false
	}
	i := 0
	for j := 0; j < 3; j++ {
		ch := key[j]
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		i = i*26 + int(ch-'A')
	}
	return i, true
}

// Generation returns the current generation.
func (c *Cache) Generation() Gen { return Gen(c.gen.Load()) }

// Lookup reads the slot for key. The returned Gen must be passed to Publish
// when the caller computes the answer after an Unknown result; it is read
// before the slot so that an answer computed from pre-reset data can never
// be published under the post-reset generation.
func (c *Cache) Lookup(key string) (Code, State, Gen) {
	g := c.Generation()
	i, ok := Index(key)
	if !ok {
		c.metrics.Lookup(NotIndexable)
		return Code{}, NotIndexable, g
	}
	w := c.slots[i].Load()
	if Gen(w>>genShift) != g {
		c.metrics.Lookup(Unknown)
		return Code{}, Unknown, g
	}
	if w&answerMask == uncacheable {
		c.metrics.Lookup(Uncacheable)
		return Code{}, Uncacheable, g
	}
	c.metrics.Lookup(Hit)
	return unpack(w), Hit, g
}

// Publish stores answer for key under generation g. It fails if a reset
// happened since g was read, if the slot was already filled for g, or if
// answer collides with the reserved sentinel.
func (c *Cache) Publish(key string, g Gen, answer Code) bool {
	a := answer.pack()
	if a == uncacheable {
		c.metrics.Publish(false)
		return false
	}
	ok := c.publish(key, g, a)
	c.metrics.Publish(ok)
	return ok
}

// MarkUncacheable records that key must always go to the record store
// (until the next reset).
func (c *Cache) MarkUncacheable(key string, g Gen) bool {
	ok := c.publish(key, g, uncacheable)
	c.metrics.Publish(ok)
	return ok
}

func (c *Cache) publish(key string, g Gen, a uint32) bool {
	i, ok := Index(key)
	if !ok || c.Generation() != g {
		return false
	}
	old := c.slots[i].Load()
	if Gen(old>>genShift) == g {
		return false
	}
	return c.slots[i].CompareAndSwap(old, uint32(g)<<genShift|a)
}

// Reset invalidates every slot. It is O(Slots) but lookups and publishes
// continue lock-free while it runs; only concurrent resets serialize.
func (c *Cache) Reset() {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	g := Gen(c.gen.Add(1))
	stale := uint32(g-1) << genShift
	for i := range c.slots {
		s := &c.slots[i]
		for {
			old := s.Load()
			if Gen(old>>genShift) == g {
				break // published after the bump
			}
			nw := old&answerMask | stale
			if nw == old || s.CompareAndSwap(old, nw) {
				break
			}
		}
	}
	c.metrics.Reset()
}

// Len counts the slots valid in the current generation (diagnostics).
func (c *Cache) Len() int {
	g := c.Generation()
	n := 0
	for i := range c.slots {
		if Gen(c.slots[i].Load()>>genShift) == g {
			n++
		}
	}
	return n
}
