// Package ledger tracks what one pricing transaction took from the shared
// record stores.
//
// A Ledger has two kinds of entries. Borrowed entries are shared cache
// snapshots the transaction holds references into; the ledger pins them so
// the store can account for superseded entries that are still in use.
// Owned entries are request-exclusive resources (typically filtered copies
// backed by pooled buffers) that the ledger alone releases.
//
// A Ledger belongs to a single transaction and is not safe for concurrent
// use. Data obtained through it stays valid until Release.
package ledger

// Pinner is a shared snapshot a ledger can borrow. *cache.Entry implements it.
type Pinner interface {
	Pin()
	Unpin()
}

// Releaser is an owned resource freed when the ledger is released.
type Releaser interface {
	Release()
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() { f() }

type memoKey struct {
	ns  string
	key any
}

// Ledger is the per-transaction ownership scope. The zero value is ready
// to use.
type Ledger struct {
	borrowed map[Pinner]struct{}
	owned    []Releaser
	memo     map[memoKey]any
}

// New returns an empty ledger. sizeHint pre-sizes the borrowed set.
func New(sizeHint int) *Ledger {
	return &Ledger{borrowed: make(map[Pinner]struct{}, sizeHint)}
}

// Borrow pins p for the lifetime of the ledger. Borrowing the same snapshot
// twice is a no-op; it reports whether p was newly borrowed.
func (l *Ledger) Borrow(p Pinner) bool {
	if l.borrowed == nil {
		l.borrowed = make(map[Pinner]struct{})
	}
	if _, ok := l.borrowed[p]; ok {
		return false
	}
	p.Pin()
	l.borrowed[p] = struct{}{}
	return true
}

// Adopt hands r to the ledger; it is released by Release.
func (l *Ledger) Adopt(r Releaser) {
	l.owned = append(l.owned, r)
}

// Import moves everything child holds into l. child is left empty and may
// be reused. Memoized values are not carried over.
func (l *Ledger) Import(child *Ledger) {
	if child == nil || child == l {
		return
	}
	for p := range child.borrowed {
		if l.borrowed == nil {
			l.borrowed = make(map[Pinner]struct{}, len(child.borrowed))
		}
		if _, dup := l.borrowed[p]; dup {
			p.Unpin() // l already holds its own pin
			continue
		}
		l.borrowed[p] = struct{}{}
	}
	clear(child.borrowed)
	l.owned = append(l.owned, child.owned...)
	clear(child.owned)
	child.owned = child.owned[:0]
	clear(child.memo)
}

// Release frees owned resources in reverse adoption order, unpins borrowed
// snapshots and forgets memoized values. It is idempotent, and the ledger is
// reusable afterwards.
func (l *Ledger) Release() {
	for i := len(l.owned) - 1; i >= 0; i-- {
		l.owned[i].Release()
		l.owned[i] = nil
	}
	l.owned = l.owned[:0]
	for p := range l.borrowed {
		p.Unpin()
	}
	clear(l.borrowed)
	clear(l.memo)
}

// Borrowed returns the number of distinct borrowed snapshots.
func (l *Ledger) Borrowed() int { return len(l.borrowed) }

// Owned returns the number of owned resources.
func (l *Ledger) Owned() int { return len(l.owned) }
