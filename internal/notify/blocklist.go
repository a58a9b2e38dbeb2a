package notify

import (
	"sync"

	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
)

// Waiter is one entry on the block list (spec.md C8): a session parked
// on a two-party exchange for a given variable and notification kind.
type Waiter struct {
	Session session.ID
	Kind    Kind
	Handle  store.Handle
}

// BlockList is the append-only list of waiters spec.md C8 describes.
// Resolution of a given wait is always driven by its transaction id
// (this package's TransactionTable, looked up per-txnID from
// OPEN_PRINT_SESSION/CLOSE_PRINT_SESSION/SEND_VALIDATION_RESPONSE), so
// BlockList itself is only ever queried by session id: to drop the
// requester's waiter once its transaction resolves or expires, and to
// drop a session's waiters on CLOSE or a GC reap — it never decides
// who to satisfy. Lookups are a linear scan — the component's
// own section accepts O(N) here since blocked requests are rare
// relative to reads/writes.
type BlockList struct {
	mu      sync.Mutex
	waiters []Waiter
}

// NewBlockList builds an empty BlockList.
func NewBlockList() *BlockList {
	return &BlockList{}
}

// Add parks w on the list.
func (b *BlockList) Add(w Waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiters = append(b.waiters, w)
}

// TakeBySession removes and returns every waiter belonging to sid.
// It is used when a requester's transaction resolves or expires, and
// on CLOSE and GC reaping of a dead session — the now-orphaned
// waiters must still be dropped from the list even though nothing
// will ever satisfy them.
func (b *BlockList) TakeBySession(sid session.ID) []Waiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched, remaining []Waiter
	for _, w := range b.waiters {
		if w.Session == sid {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	b.waiters = remaining
	return matched
}

// Len reports how many waiters are currently parked.
func (b *BlockList) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}
