// Package lru implements move-to-front eviction for record store shards.
package lru

import "github.com/IvanBrykalov/farecache/policy"

type lru[K comparable] struct {
	h policy.Hooks[K]
}

type lruPolicy[K comparable] struct{}

// New returns a Policy factory that constructs per-shard LRU instances.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

func (lruPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] {
	return &lru[K]{h: h}
}

// OnAdd places the new entry at MRU. The shard itself enforces limits.
func (p *lru[K]) OnAdd(n policy.Node[K]) (evict policy.Node[K]) {
	p.h.PushFront(n)
	return nil
}

func (p *lru[K]) OnGet(n policy.Node[K]) { p.h.MoveToFront(n) }

// OnReplace promotes a reloaded or re-seeded entry.
func (p *lru[K]) OnReplace(n policy.Node[K]) { p.h.MoveToFront(n) }

func (p *lru[K]) OnRemove(policy.Node[K]) {}
