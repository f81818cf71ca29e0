// Package twoq implements the 2Q eviction policy for record store shards.
//
// Historical lookups tend to touch a bucket once (one old ticketing date,
// one re-price) and never again. Under plain LRU such one-off buckets push
// the hot current entries out. 2Q admits new keys into a probation queue
// (A1in) and only promotes them to the main queue (Am) on a second read, so
// a scan over old buckets evicts other probationers first.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/farecache/policy"
)

// twoQ is called exclusively under the shard lock.
//
//   - A1in: probation queue with its own list and index.
//   - Am: every resident node not in A1in; ordering is the shard list.
//   - A1out: ghost keys recently evicted from A1in. A ghost hit on admission
//     skips probation.
type twoQ[K comparable] struct {
	h policy.Hooks[K]

	capIn    int
	capGhost int

	inList *list.List // MRU at Front
	inIdx  map[policy.Node[K]]*list.Element

	ghostList *list.List // element.Value is K
	ghostIdx  map[K]*list.Element
}

// New constructs a 2Q policy factory. Sizes are per shard; a probation
// queue of about a quarter of the shard and a ghost list of about half
// works well for mixed current/historical traffic.
func New[K comparable](capIn, capGhost int) policy.Policy[K] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy[K]{capIn: capIn, capGhost: capGhost}
}

type twoQPolicy[K comparable] struct {
	capIn    int
	capGhost int
}

func (p twoQPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] {
	return &twoQ[K]{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[K]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// OnAdd admits a ghost directly to Am; everything else enters A1in. When
// A1in overflows its LRU member is proposed for eviction.
func (q *twoQ[K]) OnAdd(n policy.Node[K]) (evict policy.Node[K]) {
	k := n.Key()
	q.h.PushFront(n)

	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		return nil
	}

	q.inIdx[n] = q.inList.PushFront(n)
	if q.inList.Len() > q.capIn {
		if tail := q.inList.Back(); tail != nil {
			return tail.Value.(policy.Node[K])
		}
	}
	return nil
}

// OnGet promotes a probationer to Am and moves the node to MRU.
func (q *twoQ[K]) OnGet(n policy.Node[K]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnReplace refreshes the node without promoting it: a reload after
// invalidation is not evidence of reuse.
func (q *twoQ[K]) OnReplace(n policy.Node[K]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.MoveToFront(el)
	}
	q.h.MoveToFront(n)
}

// OnRemove turns evicted probationers into ghosts. Removals from Am leave
// no ghost.
func (q *twoQ[K]) OnRemove(n policy.Node[K]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}
