package lru

import (
	"testing"

	"github.com/IvanBrykalov/farecache/policy"
)

type testNode struct {
	k string
	w int
}

func (n *testNode) Key() string { return n.k }
func (n *testNode) Weight() int { return n.w }

type mockHooks struct {
	pushFrontCnt   int
	moveToFrontCnt int
	removeCnt      int

	lastPush policy.Node[string]
	lastMove policy.Node[string]
}

func (h *mockHooks) MoveToFront(n policy.Node[string]) { h.moveToFrontCnt++; h.lastMove = n }
func (h *mockHooks) PushFront(n policy.Node[string])   { h.pushFrontCnt++; h.lastPush = n }
func (h *mockHooks) Remove(policy.Node[string])        { h.removeCnt++ }
func (h *mockHooks) Back() policy.Node[string]         { return nil }
func (h *mockHooks) Len() int                          { return 0 }

func TestLRU_OnAdd_PushFrontAndNoEvict(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New[string]().New(h)

	n := &testNode{k: "US|D", w: 3}
	if ev := p.OnAdd(n); ev != nil {
		t.Fatalf("OnAdd must not return evict candidate for LRU, got %v", ev)
	}
	if h.pushFrontCnt != 1 || h.lastPush != n {
		t.Fatalf("OnAdd must call PushFront exactly once with the node")
	}
	if h.moveToFrontCnt != 0 || h.removeCnt != 0 {
		t.Fatalf("OnAdd must not call MoveToFront/Remove")
	}
}

func TestLRU_OnGetAndReplace_Promote(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	p := New[string]().New(h)

	n := &testNode{k: "GB|A"}
	p.OnGet(n)
	p.OnReplace(n)

	if h.moveToFrontCnt != 2 || h.lastMove != n {
		t.Fatalf("OnGet and OnReplace must promote, got %d moves", h.moveToFrontCnt)
	}
	if h.pushFrontCnt != 0 {
		t.Fatalf("promotion must not push")
	}
}

func TestLRU_OnRemove_NoOp(t *testing.T) {
	t.Parallel()

	h := &mockHooks{}
	New[string]().New(h).OnRemove(&testNode{k: "x"})

	if h.pushFrontCnt+h.moveToFrontCnt+h.removeCnt != 0 {
		t.Fatalf("OnRemove for LRU must not touch hooks")
	}
}
