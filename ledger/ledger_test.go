package ledger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/farecache/ledger"
)

type pin struct{ n int }

func (p *pin) Pin()   { p.n++ }
func (p *pin) Unpin() { p.n-- }

func TestLedger_BorrowDedupAndRelease(t *testing.T) {
	t.Parallel()

	l := ledger.New(4)
	a, b := &pin{}, &pin{}

	assert.True(t, l.Borrow(a))
	assert.False(t, l.Borrow(a), "second borrow of the same snapshot")
	assert.True(t, l.Borrow(b))
	assert.Equal(t, 2, l.Borrowed())
	assert.Equal(t, 1, a.n)

	l.Release()
	assert.Equal(t, 0, a.n)
	assert.Equal(t, 0, b.n)
	assert.Equal(t, 0, l.Borrowed())

	l.Release() // idempotent
	assert.Equal(t, 0, a.n)
}

func TestLedger_OwnedReleasedInReverseOrder(t *testing.T) {
	t.Parallel()

	var l ledger.Ledger // zero value is usable
	var order []int
	for i := 1; i <= 3; i++ {
		l.Adopt(ledger.ReleaseFunc(func() { order = append(order, i) }))
	}
	require.Equal(t, 3, l.Owned())

	l.Release()
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Equal(t, 0, l.Owned())

	l.Release()
	assert.Len(t, order, 3, "owned resources are released once")
}

func TestLedger_Import(t *testing.T) {
	t.Parallel()

	parent, child := ledger.New(0), ledger.New(0)
	shared, own := &pin{}, &pin{}

	parent.Borrow(shared)
	child.Borrow(shared)
	child.Borrow(own)
	released := 0
	child.Adopt(ledger.ReleaseFunc(func() { released++ }))

	parent.Import(child)
	assert.Equal(t, 0, child.Borrowed())
	assert.Equal(t, 0, child.Owned())
	assert.Equal(t, 2, parent.Borrowed())
	assert.Equal(t, 1, shared.n, "duplicate pin dropped on import")

	child.Release()
	assert.Equal(t, 0, released, "child no longer owns anything")

	parent.Release()
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, shared.n)
	assert.Equal(t, 0, own.n)
}

func TestMemoize_ScopedToLedger(t *testing.T) {
	t.Parallel()

	l := ledger.New(0)
	calls := 0
	get := func() (string, error) {
		calls++
		return "NYC", nil
	}

	v, err := ledger.Memoize(l, "city", "JFK", get)
	require.NoError(t, err)
	assert.Equal(t, "NYC", v)
	v, _ = ledger.Memoize(l, "city", "JFK", get)
	assert.Equal(t, "NYC", v)
	assert.Equal(t, 1, calls)

	// Same key, other namespace.
	_, _ = ledger.Memoize(l, "group", "JFK", get)
	assert.Equal(t, 2, calls)

	ledger.Forget(l, "city", "JFK")
	_, _ = ledger.Memoize(l, "city", "JFK", get)
	assert.Equal(t, 3, calls)

	l.Release()
	_, _ = ledger.Memoize(l, "city", "JFK", get)
	assert.Equal(t, 4, calls, "memo does not survive Release")
}

func TestMemoize_ErrorsNotCached(t *testing.T) {
	t.Parallel()

	l := ledger.New(0)
	boom := errors.New("boom")
	calls := 0
	fn := func() (int, error) {
		calls++
		return 0, boom
	}
	_, err := ledger.Memoize(l, "n", 1, fn)
	require.ErrorIs(t, err, boom)
	_, err = ledger.Memoize(l, "n", 1, fn)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestSlicePool_OwnRecyclesOnRelease(t *testing.T) {
	t.Parallel()

	var sp ledger.SlicePool[int]
	l := ledger.New(0)

	buf := sp.Own(l, 8)
	assert.Len(t, buf, 0)
	assert.GreaterOrEqual(t, cap(buf), 8)
	assert.Equal(t, 1, l.Owned())

	buf = append(buf, 1, 2, 3)
	assert.Equal(t, []int{1, 2, 3}, buf)

	l.Release()
	assert.Equal(t, 0, l.Owned())

	again := sp.Own(l, 2)
	assert.Len(t, again, 0)
	l.Release()
}
