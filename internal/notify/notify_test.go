package notify

import (
	"testing"

	"github.com/tjmonk/varserverd/internal/store"
)

func TestRegistryExclusiveReplace(t *testing.T) {
	r := NewRegistry()
	if _, replaced := r.Subscribe(1, 10, Calc); replaced {
		t.Fatal("first subscribe should not report a replacement")
	}
	prev, replaced := r.Subscribe(2, 10, Calc)
	if !replaced || prev != 1 {
		t.Fatalf("expected session 1 to be replaced, got %v %v", prev, replaced)
	}
	if sid, ok := r.Exclusive(10, Calc); !ok || sid != 2 {
		t.Fatalf("expected session 2 to hold CALC, got %v %v", sid, ok)
	}
	// The bumped session's subscription bookkeeping must be gone too.
	if removed := r.RemoveSession(1); len(removed) != 0 {
		t.Fatalf("expected session 1 to have no subscriptions left, got %+v", removed)
	}
}

func TestRegistryFanout(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, 10, Modified)
	r.Subscribe(2, 10, Modified)
	targets := r.FanoutTargets(10, Modified)
	if len(targets) != 2 {
		t.Fatalf("expected 2 fanout targets, got %d", len(targets))
	}
}

func TestRegistryRemoveSession(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, 10, Modified)
	r.Subscribe(1, 20, Calc)
	removed := r.RemoveSession(1)
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed subscriptions, got %d", len(removed))
	}
	if targets := r.FanoutTargets(10, Modified); len(targets) != 0 {
		t.Fatal("fanout subscription should be gone")
	}
	if _, ok := r.Exclusive(20, Calc); ok {
		t.Fatal("exclusive subscription should be gone")
	}
}

func TestRegistryCancelReleasesExclusive(t *testing.T) {
	r := NewRegistry()
	r.Subscribe(1, 10, Validate)
	r.Cancel(1, 10, Validate)
	if _, replaced := r.Subscribe(2, 10, Validate); replaced {
		t.Fatal("expected no replacement once the slot was freed by cancel")
	}
}

func TestBlockListTakeBySession(t *testing.T) {
	b := NewBlockList()
	b.Add(Waiter{Session: 5, Kind: Validate, Handle: 1})
	b.Add(Waiter{Session: 5, Kind: Calc, Handle: 2})
	b.Add(Waiter{Session: 6, Kind: Calc, Handle: 2})
	matched := b.TakeBySession(5)
	if len(matched) != 2 {
		t.Fatalf("expected 2 waiters for session 5, got %d", len(matched))
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 waiter left, got %d", b.Len())
	}
}

func TestTransactionTableLifecycle(t *testing.T) {
	tt := NewTransactionTable()
	id := tt.New(1, 10, Validate, nil)
	if id == 0 {
		t.Fatal("transaction id must be non-zero")
	}
	if err := tt.SetResponder(id, 2); err != nil {
		t.Fatalf("set responder: %v", err)
	}
	txn, err := tt.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if txn.Responder != 2 {
		t.Fatalf("expected responder 2, got %d", txn.Responder)
	}
	byResp := tt.FindByResponder(2)
	if len(byResp) != 1 {
		t.Fatalf("expected 1 transaction for responder, got %d", len(byResp))
	}
	tt.Remove(id)
	if _, err := tt.Get(id); err != ErrNoSuchTransaction {
		t.Fatalf("expected ErrNoSuchTransaction after remove, got %v", err)
	}
}

func TestTransactionTableFindByRequester(t *testing.T) {
	tt := NewTransactionTable()
	tt.New(3, 10, Calc, nil)
	tt.New(3, 20, Calc, nil)
	tt.New(4, 30, Calc, nil)
	if got := tt.FindByRequester(3); len(got) != 2 {
		t.Fatalf("expected 2 transactions for requester 3, got %d", len(got))
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Enqueue(QueueMessage{Handle: 1}) {
		t.Fatal("first enqueue should succeed")
	}
	if !q.Enqueue(QueueMessage{Handle: 2}) {
		t.Fatal("second enqueue should succeed")
	}
	if q.Enqueue(QueueMessage{Handle: 3}) {
		t.Fatal("third enqueue should be dropped")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped message, got %d", q.Dropped())
	}
	msg, ok := q.Dequeue()
	if !ok || msg.Handle != 1 {
		t.Fatalf("expected to dequeue handle 1 first, got %+v %v", msg, ok)
	}
}

func TestQueueManagerLazyCreate(t *testing.T) {
	m := NewQueueManager()
	if _, ok := m.Get(1); ok {
		t.Fatal("queue should not exist before Ensure")
	}
	q := m.Ensure(1, 5)
	q.Enqueue(QueueMessage{Handle: 1})
	again := m.Ensure(1, 5)
	if again.Len() != 1 {
		t.Fatal("Ensure should return the same queue on repeat calls")
	}
	m.Remove(1)
	if _, ok := m.Get(1); ok {
		t.Fatal("queue should be gone after Remove")
	}
}

func TestCursorIteratesInOrderAndFilters(t *testing.T) {
	st := store.New(64, 8)
	h1, _ := st.Create(store.Info{Name: "a.temp", Type: store.TypeUint32})
	st.Create(store.Info{Name: "b.other", Type: store.TypeUint32})
	h3, _ := st.Create(store.Info{Name: "c.temp", Type: store.TypeUint32})

	re, err := st.CompileNamePattern(`\.temp$`)
	if err != nil {
		t.Fatalf("compile pattern: %v", err)
	}
	cur := NewCursor(Descriptor{NamePattern: `\.temp$`}, re, st.Snapshot())

	first, ok := cur.Next(st)
	if !ok || first != h1 {
		t.Fatalf("expected first match %d, got %d %v", h1, first, ok)
	}
	second, ok := cur.Next(st)
	if !ok || second != h3 {
		t.Fatalf("expected second match %d, got %d %v", h3, second, ok)
	}
	if _, ok := cur.Next(st); ok {
		t.Fatal("expected no further matches")
	}
}
