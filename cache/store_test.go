package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/farecache/policy/twoq"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// countingLoader returns n records per key and counts calls.
func countingLoader(calls *atomic.Int64, n int) Loader[string, int] {
	return func(_ context.Context, k string) ([]int, error) {
		calls.Add(1)
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
}

func TestStore_GetLoadsOnceThenHits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s := New(Options[string, int]{Loader: countingLoader(&calls, 3)})
	t.Cleanup(func() { _ = s.Close() })

	e1, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Fatal("second Get must return the published entry")
	}
	if e1.Len() != 3 || e1.Key() != "a" {
		t.Fatalf("unexpected entry: key=%q len=%d", e1.Key(), e1.Len())
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("loader calls: want 1, got %d", got)
	}
	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Loads != 1 || st.Entries != 1 || st.Records != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

// An empty result is cached like any other.
func TestStore_NegativeCaching(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s := New(Options[string, int]{Loader: countingLoader(&calls, 0)})

	for i := 0; i < 2; i++ {
		e, err := s.Get(context.Background(), "nothing")
		if err != nil {
			t.Fatal(err)
		}
		if e.Len() != 0 || e.Records() == nil {
			t.Fatalf("want empty non-nil records, got %v", e.Records())
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("empty result must be cached; loader calls = %d", got)
	}
}

func TestStore_FailedLoadPublishesNothing(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	var calls atomic.Int64
	s := New(Options[string, int]{
		Name: "fare",
		Loader: func(context.Context, string) ([]int, error) {
			calls.Add(1)
			return []int{1, 2}, boom
		},
	})

	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped backing error, got %v", err)
	}
	var le *LoadError[string]
	if !errors.As(err, &le) || le.Key != "k" || le.Type != "fare" {
		t.Fatalf("want *LoadError for k, got %#v", err)
	}
	if _, ok := s.Peek("k"); ok {
		t.Fatal("failed load must not publish")
	}
	_, _ = s.Get(context.Background(), "k")
	if got := calls.Load(); got != 2 {
		t.Fatalf("failures are not cached; loader calls = %d", got)
	}
}

func TestStore_NoLoaderAndClosed(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{})
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
	s.Put("x", []int{1})
	if e, err := s.Get(context.Background(), "x"); err != nil || e.Len() != 1 {
		t.Fatalf("seeded entry must be served without a loader: %v", err)
	}

	_ = s.Close()
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if s.Put("y", nil) != nil {
		t.Fatal("Put after Close must be a no-op")
	}
}

// Readers holding the old entry keep seeing it unchanged after invalidate.
func TestStore_InvalidateKeepsBorrowedSnapshot(t *testing.T) {
	t.Parallel()

	var version atomic.Int64
	s := New(Options[string, int64]{
		Loader: func(context.Context, string) ([]int64, error) {
			return []int64{version.Add(1)}, nil
		},
	})

	old, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	old.Pin()

	if !s.Invalidate("k") {
		t.Fatal("Invalidate must report a resident entry")
	}
	if s.Invalidate("k") {
		t.Fatal("second Invalidate must report nothing dropped")
	}
	if !old.Retired() {
		t.Fatal("dropped entry must be marked retired")
	}
	if got := s.Stats().RetiredPinned; got != 1 {
		t.Fatalf("RetiredPinned: want 1, got %d", got)
	}

	fresh, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if old.Records()[0] != 1 || fresh.Records()[0] != 2 {
		t.Fatalf("old=%v fresh=%v", old.Records(), fresh.Records())
	}

	old.Unpin()
	if got := s.Stats().RetiredPinned; got != 0 {
		t.Fatalf("RetiredPinned after release: want 0, got %d", got)
	}
}

func TestStore_InvalidateIfAndClear(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{Shards: 4})
	for i := 0; i < 10; i++ {
		s.Put("k"+strconv.Itoa(i), []int{i})
	}
	n := s.InvalidateIf(func(k string) bool { return k == "k1" || k == "k2" })
	if n != 2 || s.Len() != 8 {
		t.Fatalf("InvalidateIf dropped %d, len %d", n, s.Len())
	}
	if got := len(s.Keys()); got != 8 {
		t.Fatalf("Keys: want 8, got %d", got)
	}
	if n := s.Clear(); n != 8 || s.Len() != 0 {
		t.Fatalf("Clear dropped %d, len %d", n, s.Len())
	}
	if st := s.Stats(); st.Records != 0 || st.Entries != 0 {
		t.Fatalf("stats after Clear: %+v", st)
	}
}

// Deterministic LRU eviction: single shard, small capacity.
func TestStore_EvictionLRU(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{Capacity: 2, Shards: 1})
	s.Put("a", []int{1})
	s.Put("b", []int{2})
	if _, err := s.Get(context.Background(), "a"); err != nil { // promote a
		t.Fatal(err)
	}
	s.Put("c", []int{3})

	if _, ok := s.Peek("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := s.Peek("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if _, ok := s.Peek("c"); !ok {
		t.Fatal("c must be present")
	}
}

func TestStore_MaxRecordsBudget(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{MaxRecords: 5, Shards: 1})
	s.Put("a", []int{1, 2, 3})
	s.Put("b", []int{1, 2, 3})
	if _, ok := s.Peek("a"); ok {
		t.Fatal("a must be evicted to respect the record budget")
	}
	if st := s.Stats(); st.Records != 3 {
		t.Fatalf("records: want 3, got %d", st.Records)
	}

	// A single entry larger than the budget stays resident.
	s.Put("huge", make([]int, 10))
	if _, ok := s.Peek("huge"); !ok {
		t.Fatal("oversized entry must stay resident")
	}
	if s.Len() != 1 {
		t.Fatalf("len: want 1, got %d", s.Len())
	}
}

// One-off keys under 2Q do not push out an entry that was read twice.
func TestStore_TwoQKeepsHotEntry(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{Capacity: 4, Shards: 1, Policy: twoq.New[string](1, 4)})
	s.Put("hot", []int{1})
	if _, err := s.Get(context.Background(), "hot"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		s.Put("scan"+strconv.Itoa(i), []int{i})
	}
	if _, ok := s.Peek("hot"); !ok {
		t.Fatal("promoted entry must survive a scan")
	}
}

func TestStore_LoadTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	s := New(Options[string, int]{
		LoadTimeout: 20 * time.Millisecond,
		Loader: func(context.Context, string) ([]int, error) {
			<-release // ignores ctx
			return []int{1}, nil
		},
	})

	start := time.Now()
	_, err := s.Get(context.Background(), "slow")
	if !errors.Is(err, ErrLoadTimeout) {
		t.Fatalf("want ErrLoadTimeout, got %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("timeout not enforced: took %s", d)
	}
	if _, ok := s.Peek("slow"); ok {
		t.Fatal("timed out load must not publish")
	}
}

// A caller that leads the fill still returns at its own deadline; the load
// carries on and publishes for later readers.
func TestStore_LeaderHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := New(Options[string, int]{
		Loader: func(ctx context.Context, _ string) ([]int, error) {
			select {
			case <-release:
				return []int{1}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.Get(ctx, "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context.DeadlineExceeded, got %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("Get blocked %s past a 50ms deadline", d)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if e, ok := s.Peek("k"); ok {
			if e.Records()[0] != 1 {
				t.Fatalf("published %v", e.Records())
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("detached load was never published")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStore_KeepStaleServesOnFailure(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	var staleServed atomic.Int64
	s := New(Options[string, int]{
		KeepStale: true,
		Metrics:   staleCounter{n: &staleServed},
		Loader: func(context.Context, string) ([]int, error) {
			if fail.Load() {
				return nil, errors.New("unavailable")
			}
			return []int{7}, nil
		},
	})

	first, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	s.Invalidate("k")
	if got := s.Stats().Stale; got != 1 {
		t.Fatalf("stale retained: want 1, got %d", got)
	}

	fail.Store(true)
	got, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("stale entry must be served, got %v", err)
	}
	if got != first || staleServed.Load() != 1 {
		t.Fatalf("want stale entry served once, served=%d", staleServed.Load())
	}

	fail.Store(false)
	fresh, err := s.Get(context.Background(), "k")
	if err != nil || fresh == first {
		t.Fatalf("successful reload must replace stale entry: %v", err)
	}
	if got := s.Stats().Stale; got != 0 {
		t.Fatalf("stale entry must be dropped after reload, got %d", got)
	}
}

type staleCounter struct {
	NoopMetrics
	n *atomic.Int64
}

func (m staleCounter) StaleServed() { m.n.Add(1) }

// A load that started before Invalidate is handed to its callers but not
// published.
func TestStore_InvalidateDuringLoadDoesNotPublish(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var calls atomic.Int64
	s := New(Options[string, int]{
		Loader: func(context.Context, string) ([]int, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-proceed
				return []int{1}, nil
			}
			return []int{2}, nil
		},
	})

	var g errgroup.Group
	g.Go(func() error {
		e, err := s.Get(context.Background(), "k")
		if err != nil {
			return err
		}
		if e.Records()[0] != 1 {
			return fmt.Errorf("leader got %v", e.Records())
		}
		return nil
	})

	<-entered
	s.Invalidate("k")
	close(proceed)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Peek("k"); ok {
		t.Fatal("superseded load must not be published")
	}
	e, err := s.Get(context.Background(), "k")
	if err != nil || e.Records()[0] != 2 {
		t.Fatalf("next Get must reload: %v %v", e, err)
	}
}

// Concurrent Get calls for the same key trigger the Loader exactly once.
func TestStore_GetSingleflight(t *testing.T) {
	var calls atomic.Int64

	s := New(Options[string, string]{
		Loader: func(_ context.Context, k string) ([]string, error) {
			calls.Add(1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return []string{"v:" + k}, nil
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			e, err := s.Get(ctx, "k")
			if err != nil {
				return err
			}
			if got := e.Records()[0]; got != "v:k" {
				return fmt.Errorf("got %q", got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}
}

func TestStore_LoadedAtUsesClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixNano()}
	s := New(Options[string, int]{Clock: clk})
	e := s.Put("a", nil)
	clk.add(time.Hour)
	e2 := s.Put("b", nil)
	if e2.LoadedAt().Sub(e.LoadedAt()) != time.Hour {
		t.Fatalf("LoadedAt must follow the configured clock: %s vs %s", e.LoadedAt(), e2.LoadedAt())
	}
}

func TestEntry_RecordsAreClipped(t *testing.T) {
	t.Parallel()

	s := New(Options[string, int]{})
	src := make([]int, 2, 8)
	e := s.Put("k", src)
	grown := append(e.Records(), 99)
	_ = grown
	if got := e.Records(); len(got) != 2 || cap(got) != 2 {
		t.Fatalf("append must not reach into the entry: len=%d cap=%d", len(got), cap(got))
	}
	if src[:3][2] == 99 {
		t.Fatal("append wrote into the entry's backing array")
	}
}
