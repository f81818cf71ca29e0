package cache

// node is an intrusive doubly linked list element owned by a shard. It keeps
// its identity across reloads: replacing a key swaps entry in place so that
// the eviction policy sees the same node.
type node[K comparable, R any] struct {
	key   K
	entry *Entry[K, R]

	prev *node[K, R]
	next *node[K, R]

	// weight is the record count accounted in the shard at insertion time.
	weight int64
}

// Key implements policy.Node.
func (n *node[K, R]) Key() K { return n.key }

// Weight implements policy.Node.
func (n *node[K, R]) Weight() int { return int(n.weight) }
