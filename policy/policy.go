// Package policy defines the pluggable eviction contract used by record
// store shards. A store holds one entry per cache key; a policy decides which
// entry leaves when a shard exceeds its entry or record budget.
package policy

// Node is the view of a resident entry that a policy may inspect.
type Node[K comparable] interface {
	Key() K
	// Weight is the number of records the entry holds.
	Weight() int
}

// Hooks expose O(1) list operations on the shard's intrusive MRU/LRU list.
// All hook calls happen under the shard lock; the shard owns the key map.
type Hooks[K comparable] interface {
	MoveToFront(Node[K])
	PushFront(Node[K])
	Remove(Node[K])
	// Back returns the LRU node, or nil if the shard is empty.
	Back() Node[K]
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd may return an eviction candidate; the shard evicts it and then
//     calls OnRemove for it.
//   - OnGet/OnReplace usually promote the node.
//   - OnRemove notifies the policy that the shard dropped the node.
type ShardPolicy[K comparable] interface {
	OnAdd(Node[K]) (evict Node[K])
	OnGet(Node[K])
	OnReplace(Node[K])
	OnRemove(Node[K])
}

// Policy creates shard-local instances.
type Policy[K comparable] interface {
	New(Hooks[K]) ShardPolicy[K]
}
