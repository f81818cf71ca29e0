package ledger

// Memoize returns the value memoized in l under (ns, key), computing it with
// fn on first use. Errors are not memoized. Memoized values live until the
// ledger is released, which scopes derived answers (resolved codes,
// precomputed lookups) to one transaction.
func Memoize[K comparable, V any](l *Ledger, ns string, key K, fn func() (V, error)) (V, error) {
	mk := memoKey{ns: ns, key: key}
	if v, ok := l.memo[mk]; ok {
		return v.(V), nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	if l.memo == nil {
		l.memo = make(map[memoKey]any)
	}
	l.memo[mk] = v
	return v, nil
}

// Forget drops one memoized value.
func Forget[K comparable](l *Ledger, ns string, key K) {
	delete(l.memo, memoKey{ns: ns, key: key})
}
