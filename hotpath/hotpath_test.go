package hotpath

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestIndex_PerfectHash(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool, Slots)
	for a := byte('A'); a <= 'Z'; a++ {
		for b := byte('A'); b <= 'Z'; b++ {
			for c := byte('A'); c <= 'Z'; c++ {
				i, ok := Index(string([]byte{a, b, c}))
				require.True(t, ok)
				require.False(t, seen[i], "collision at %d", i)
				require.True(t, i >= 0 && i < Slots)
				seen[i] = true
			}
		}
	}
	assert.Len(t, seen, Slots)

	for _, bad := range []string{"", "AB", "ABCD", "abc", "A1C", "ÄBC"} {
		_, ok := Index(bad)
		assert.False(t, ok, bad)
	}
}

func TestCache_PublishLookupReset(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, st, g := c.Lookup("JFK")
	require.Equal(t, Unknown, st)

	nyc, _ := ParseCode("NYC")
	require.True(t, c.Publish("JFK", g, nyc))
	require.False(t, c.Publish("JFK", g, nyc), "slot already filled for this generation")

	got, st, _ := c.Lookup("JFK")
	require.Equal(t, Hit, st)
	assert.Equal(t, "NYC", got.String())

	_, st, g = c.Lookup("LHR")
	require.Equal(t, Unknown, st)
	require.True(t, c.MarkUncacheable("LHR", g))
	_, st, _ = c.Lookup("LHR")
	assert.Equal(t, Uncacheable, st)
	assert.Equal(t, 2, c.Len())

	c.Reset()
	_, st, _ = c.Lookup("JFK")
	assert.Equal(t, Unknown, st)
	_, st, _ = c.Lookup("LHR")
	assert.Equal(t, Unknown, st)
	assert.Equal(t, 0, c.Len())

	// A generation read before the reset cannot publish.
	assert.False(t, c.Publish("JFK", g, nyc))

	_, st, _ = c.Lookup("jfk")
	assert.Equal(t, NotIndexable, st)
}

func TestCache_SentinelAnswerRejected(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, _, g := c.Lookup("AAA")
	assert.False(t, c.Publish("AAA", g, Code{0xFF, 0xFF, 0xFF}))
}

// Slots untouched for more than 256 resets must not come back to life when
// the 8-bit generation wraps.
func TestCache_GenerationWrap(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, _, g := c.Lookup("ABC")
	require.True(t, c.Publish("ABC", g, Code{'X', 'Y', 'Z'}))

	for i := 0; i < 600; i++ {
		c.Reset()
		_, st, _ := c.Lookup("ABC")
		require.Equal(t, Unknown, st, "reset %d", i)
	}
}

type counting struct {
	hits, resets atomic.Int64
}

func (m *counting) Lookup(s State) {
	if s == Hit {
		m.hits.Add(1)
	}
}
func (m *counting) Publish(bool) {}
func (m *counting) Reset()       { m.resets.Add(1) }

// Concurrent readers, writers and resets: every hit must return the answer
// that belongs to its key, never a torn or foreign word.
func TestCache_ConcurrentReadersAndReset(t *testing.T) {
	m := &counting{}
	c := New(m)
	answerFor := func(k string) Code { return Code{k[2], k[1], k[0]} }
	keys := []string{"AAA", "JFK", "LHR", "NYC", "ZZZ", "CDG", "ORD", "SFO"}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; ctx.Err() == nil; i++ {
				k := keys[i%len(keys)]
				ans, st, gen := c.Lookup(k)
				switch st {
				case Hit:
					if ans != answerFor(k) {
						t.Errorf("key %s: torn or foreign answer %q", k, ans)
						return nil
					}
				case Unknown:
					c.Publish(k, gen, answerFor(k))
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for ctx.Err() == nil {
			c.Reset()
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	require.NoError(t, g.Wait())

	assert.Positive(t, m.resets.Load())
	assert.Positive(t, m.hits.Load())
}

func BenchmarkCache_LookupHit(b *testing.B) {
	c := New(nil)
	_, _, g := c.Lookup("JFK")
	c.Publish("JFK", g, Code{'N', 'Y', 'C'})
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Lookup("JFK")
		}
	})
}
