package ledger

import "sync"

// SlicePool recycles the backing arrays of owned filtered copies. A buffer
// obtained with Own is returned to the pool when the ledger is released, so
// callers must size it for the largest result they will append.
type SlicePool[T any] struct {
	p sync.Pool
	// MaxCap bounds the capacity of buffers kept for reuse (0 = 4096).
	MaxCap int
}

// Own returns an empty slice with at least capacity n, owned by l.
func (sp *SlicePool[T]) Own(l *Ledger, n int) []T {
	var buf *[]T
	if v := sp.p.Get(); v != nil {
		buf = v.(*[]T)
	}
	if buf == nil || cap(*buf) < n {
		s := make([]T, 0, n)
		buf = &s
	}
	l.Adopt(ReleaseFunc(func() { sp.put(buf) }))
	return (*buf)[:0]
}

func (sp *SlicePool[T]) put(buf *[]T) {
	limit := sp.MaxCap
	if limit == 0 {
		limit = 4096
	}
	if cap(*buf) > limit {
		return
	}
	clear((*buf)[:cap(*buf)])
	*buf = (*buf)[:0]
	sp.p.Put(buf)
}
