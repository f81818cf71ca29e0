package cache

import (
	"sync"

	"github.com/IvanBrykalov/farecache/internal/util"
	"github.com/IvanBrykalov/farecache/policy"
)

// shard is an independent partition of a store with its own lock, key map,
// and intrusive MRU/LRU list (head=MRU, tail=LRU).
type shard[K comparable, R any] struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[K]*node[K, R]
	stale   map[K]*Entry[K, R] // invalidated entries kept for degraded mode
	head    *node[K, R]
	tail    *node[K, R]
	len     int
	records int64
	cap     int
	maxRec  int64
	// gen is bumped by every invalidation. A load that started under an older
	// generation returns its result to its callers but does not publish it.
	gen uint64

	pol policy.ShardPolicy[K]
	st  *store[K, R]

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

func newShard[K comparable, R any](capacity int, maxRec int64, pol policy.Policy[K], st *store[K, R]) *shard[K, R] {
	s := &shard[K, R]{
		m:      make(map[K]*node[K, R]),
		cap:    capacity,
		maxRec: maxRec,
		st:     st,
	}
	if st.opt.KeepStale {
		s.stale = make(map[K]*Entry[K, R])
	}
	s.pol = pol.New(shardHooks[K, R]{s: s})
	return s
}

// get returns the resident entry and promotes it.
func (s *shard[K, R]) get(k K) (*Entry[K, R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	s.pol.OnGet(n)
	s.hits.Add(1)
	return n.entry, true
}

// peek returns the resident entry without promotion.
func (s *shard[K, R]) peek(k K) (*Entry[K, R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.m[k]; ok {
		return n.entry, true
	}
	return nil, false
}

func (s *shard[K, R]) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// publish stores e under its key unless an invalidation happened since gen
// was read. Returns whether e became resident.
func (s *shard[K, R]) publish(e *Entry[K, R], gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.putLocked(e)
	return true
}

// put stores e unconditionally. It also bumps gen so that a load started
// before the seed cannot overwrite it.
func (s *shard[K, R]) put(e *Entry[K, R]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.putLocked(e)
}

// clear drops every resident and stale entry.
func (s *shard[K, R]) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	dropped := len(s.m)
	for _, n := range s.m {
		s.pol.OnRemove(n)
		s.removeNode(n)
		delete(s.m, n.key)
		s.st.entries.Add(-1)
		s.st.opt.Metrics.Evict(EvictInvalidate)
		n.entry.retire()
	}
	for k, e := range s.stale {
		delete(s.stale, k)
		e.retire()
	}
	s.st.reportSize()
	return dropped
}

// staleEntry returns the retained fallback for k, if any.
func (s *shard[K, R]) staleEntry(k K) (*Entry[K, R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stale[k]
	return e, ok
}

func (s *shard[K, R]) invalidate(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.dropLocked(n, EvictInvalidate)
	s.st.reportSize()
	return true
}

func (s *shard[K, R]) invalidateIf(match func(K) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	dropped := 0
	for k, n := range s.m {
		if match(k) {
			s.dropLocked(n, EvictInvalidate)
			dropped++
		}
	}
	if dropped > 0 {
		s.st.reportSize()
	}
	return dropped
}

func (s *shard[K, R]) keys(dst []K) []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.m {
		dst = append(dst, k)
	}
	return dst
}

func (s *shard[K, R]) staleLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stale)
}

// -------------------- internals (mu held) --------------------

func (s *shard[K, R]) putLocked(e *Entry[K, R]) {
	w := int64(e.Len())
	if old := s.stale[e.key]; old != nil {
		delete(s.stale, e.key)
		old.retire()
	}

	if n, ok := s.m[e.key]; ok {
		prev := n.entry
		n.entry = e
		s.records += w - n.weight
		s.st.records.Add(w - n.weight)
		n.weight = w
		prev.retire()
		s.pol.OnReplace(n)
		s.enforceLimitsLocked()
		return
	}

	n := &node[K, R]{key: e.key, entry: e, weight: w}
	s.m[e.key] = n
	s.st.entries.Add(1)
	if ev := s.pol.OnAdd(n); ev != nil {
		s.dropLocked(ev.(*node[K, R]), EvictPolicy)
	}
	s.enforceLimitsLocked()
}

// dropLocked removes n from the shard and retires (or parks) its entry.
func (s *shard[K, R]) dropLocked(n *node[K, R], reason EvictReason) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.st.entries.Add(-1)
	s.st.opt.Metrics.Evict(reason)

	if reason == EvictInvalidate && s.stale != nil {
		if old := s.stale[n.key]; old != nil {
			old.retire()
		}
		s.stale[n.key] = n.entry
		return
	}
	n.entry.retire()
}

func (s *shard[K, R]) enforceLimitsLocked() {
	for s.cap > 0 && s.len > s.cap {
		tail := s.tail
		if tail == nil {
			break
		}
		s.dropLocked(tail, EvictPolicy)
	}
	// Never evict the last entry for the record budget: an entry larger than
	// the whole budget would otherwise be dropped the moment it is published.
	for s.maxRec > 0 && s.records > s.maxRec && s.len > 1 {
		s.dropLocked(s.tail, EvictCapacity)
	}
	s.st.reportSize()
}

func (s *shard[K, R]) insertFront(n *node[K, R]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.records += n.weight
	s.st.records.Add(n.weight)
}

func (s *shard[K, R]) moveToFront(n *node[K, R]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
}

func (s *shard[K, R]) removeNode(n *node[K, R]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.records -= n.weight
	s.st.records.Add(-n.weight)
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[K comparable, R any] struct{ s *shard[K, R] }

func (h shardHooks[K, R]) MoveToFront(x policy.Node[K]) { h.s.moveToFront(x.(*node[K, R])) }
func (h shardHooks[K, R]) PushFront(x policy.Node[K])   { h.s.insertFront(x.(*node[K, R])) }
func (h shardHooks[K, R]) Remove(x policy.Node[K])      { h.s.removeNode(x.(*node[K, R])) }
func (h shardHooks[K, R]) Len() int                     { return h.s.len }
func (h shardHooks[K, R]) Back() policy.Node[K] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
