package notify

import (
	"errors"
	"sync"

	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
)

// ErrNoSuchTransaction is returned by Get/SetResponder for an unknown or
// already-completed id.
var ErrNoSuchTransaction = errors.New("notify: no such transaction")

// Transaction binds together the two sessions involved in a
// CALC/VALIDATE/PRINT rendezvous (spec.md C9): the requester that
// triggered the exchange, and — once a responder claims it — the
// subscriber that will finish it.
type Transaction struct {
	ID           uint32
	Requester    session.ID
	Handle       store.Handle
	Kind         Kind
	Responder    session.ID // zero until claimed
	hasResponder bool

	// Opaque carries whatever the owning package needs to finish the
	// exchange later — internal/dispatch stores the requester's
	// connection and original request header here so it can write the
	// deferred reply without this package needing to know about the
	// transport layer (spec.md C9: "opaque payload pointer").
	Opaque interface{}
}

// TransactionTable allocates and tracks in-flight transactions. IDs
// are 32-bit and wrap, matching spec.md's wire transaction_id field;
// wraparound collisions are avoided by skipping any id still in use.
type TransactionTable struct {
	mu      sync.Mutex
	byID    map[uint32]*Transaction
	next    uint32
}

// NewTransactionTable builds an empty TransactionTable.
func NewTransactionTable() *TransactionTable {
	return &TransactionTable{byID: make(map[uint32]*Transaction)}
}

// New allocates a transaction for a CALC/VALIDATE/PRINT dispatch and
// returns its id. opaque is stored verbatim for the caller to recover
// via Get/FindByRequester later.
func (t *TransactionTable) New(requester session.ID, handle store.Handle, kind Kind, opaque interface{}) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		t.next++
		if t.next == 0 {
			continue // 0 is reserved, matches the client-table convention
		}
		if _, exists := t.byID[t.next]; !exists {
			break
		}
	}
	id := t.next
	t.byID[id] = &Transaction{ID: id, Requester: requester, Handle: handle, Kind: kind, Opaque: opaque}
	return id
}

// Get returns the transaction for id.
func (t *TransactionTable) Get(id uint32) (Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.byID[id]
	if !ok {
		return Transaction{}, ErrNoSuchTransaction
	}
	return *txn, nil
}

// SetResponder records which session claimed the transaction (the
// CALC/VALIDATE/PRINT subscriber that will answer it).
func (t *TransactionTable) SetResponder(id uint32, responder session.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.byID[id]
	if !ok {
		return ErrNoSuchTransaction
	}
	txn.Responder = responder
	txn.hasResponder = true
	return nil
}

// Remove discards a completed or abandoned transaction.
func (t *TransactionTable) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// FindByRequester returns every open transaction whose requester is
// sid, used on CLOSE and by GC when reaping a dead requester: such
// transactions are removed rather than left to rot, and the responder
// is sent nothing, since it is not blocked on them.
func (t *TransactionTable) FindByRequester(sid session.ID) []Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Transaction
	for _, txn := range t.byID {
		if txn.Requester == sid {
			out = append(out, *txn)
		}
	}
	return out
}

// FindByResponder returns every open transaction claimed by sid, used
// by GC when reaping a dead CALC/VALIDATE/PRINT subscriber.
func (t *TransactionTable) FindByResponder(sid session.ID) []Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Transaction
	for _, txn := range t.byID {
		if txn.hasResponder && txn.Responder == sid {
			out = append(out, *txn)
		}
	}
	return out
}
