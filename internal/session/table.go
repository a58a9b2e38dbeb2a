package session

import (
	"errors"
	"sync"
)

// ErrTableFull is returned by Table.Allocate when no slot is free.
var ErrTableFull = errors.New("session: client table full")

// ErrNoSuchSession is returned by Table.Get for an unknown or freed id.
var ErrNoSuchSession = errors.New("session: no such session")

// Table is the fixed-capacity client table (spec.md C4). Slot 0 is
// reserved and never allocated, matching the teacher's pattern of
// treating the protocol's own sentinel id (store.InvalidHandle here,
// "slot 0" there) as an untouchable constant rather than a dynamic
// value (spec.md §9).
type Table struct {
	mu       sync.Mutex
	slots    []*Session // index 0 always nil
	capacity int
}

// NewTable builds a Table with room for capacity live sessions, plus
// the reserved slot 0.
func NewTable(capacity int) *Table {
	return &Table{
		slots:    make([]*Session, capacity+1),
		capacity: capacity,
	}
}

// Allocate reserves the lowest free slot ≥ 1 and returns its Session.
func (t *Table) Allocate() (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i] == nil {
			s := newSession(ID(i))
			t.slots[i] = s
			return s, nil
		}
	}
	return nil, ErrTableFull
}

// Get returns the session at id, or ErrNoSuchSession.
func (t *Table) Get(id ID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) <= 0 || int(id) >= len(t.slots) || t.slots[id] == nil {
		return nil, ErrNoSuchSession
	}
	return t.slots[id], nil
}

// Free clears id's slot. Callers are responsible for tearing down the
// session's notifications/waiters/transactions first (internal/notify)
// — Table itself only owns slot lifecycle, per spec.md §9's stable-id
// design (no component owns another's cleanup implicitly).
func (t *Table) Free(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) > 0 && int(id) < len(t.slots) {
		t.slots[id] = nil
	}
}

// Live returns every currently allocated session, for GC's sweep.
func (t *Table) Live() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.slots))
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
