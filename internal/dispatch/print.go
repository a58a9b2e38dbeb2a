package dispatch

import (
	"time"

	"github.com/tjmonk/varserverd/internal/notify"
	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/transport"
	"github.com/tjmonk/varserverd/internal/wire"
)

// printAcceptTimeout is the responder's budget to complete the whole
// fd rendezvous, measured from OPEN_PRINT_SESSION until
// CLOSE_PRINT_SESSION: the time the responder spends rendering to the
// received fd counts toward it, not only the accept. The actual fd
// transfer happens client-to-client over internal/printxfer, off the
// server's request path entirely; the server only times the window and
// forwards the eventual outcome to the blocked requester.
const printAcceptTimeout = 200 * time.Millisecond

// handlePrint either renders the value directly (no PRINT subscriber)
// or hands the request off to the OOB fd-passing rendezvous described
// in spec.md §4.10, replying PEER_TAKING_OVER immediately so the
// requester can dial the responder's per-pid socket itself.
func handlePrint(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	h := argHandle(req)
	rec, err := d.Store.Record(h)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	if !d.Checker.CanRead(sess.Credentials(), aclOf(rec)) {
		return reply(req, wire.ErrDenied, 0, nil)
	}

	responder, ok := d.Registry.Exclusive(h, notify.Print)
	if !ok || responder == sess.ID {
		return reply(req, wire.OK, 0, wire.EncodeValue(rec.Value()))
	}
	respSess, err := d.Sessions.Get(responder)
	if err != nil {
		// subscriber record is stale; fall back to direct rendering
		// rather than leaving the caller blocked on a dead peer.
		return reply(req, wire.OK, 0, wire.EncodeValue(rec.Value()))
	}

	txnID := d.Txns.New(sess.ID, h, notify.Print, replySink{req.Conn, req.Header})
	d.Txns.SetResponder(txnID, responder)
	d.Blocks.Add(notify.Waiter{Session: sess.ID, Kind: notify.Print, Handle: h})
	d.pushSignal(responder, notify.Print, h, txnID, nil)

	return reply(req, wire.ErrPeerTakingOver, respSess.PID, nil)
}

// handleOpenPrintSession marks the start of the responder's 200ms
// accept window; the responder does the actual Listen/Accept/
// Recvmsg dance against internal/printxfer entirely in its own
// process, never routing the fd through varserverd.
func handleOpenPrintSession(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	txnID := req.Header.TransactionID
	txn, err := d.Txns.Get(txnID)
	if err != nil || txn.Kind != notify.Print || txn.Responder != sess.ID {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	d.printTimers[txnID] = time.AfterFunc(printAcceptTimeout, func() {
		select {
		case d.printTimeouts <- txnID:
		default:
		}
	})
	return reply(req, wire.OK, 0, nil)
}

// handleClosePrintSession completes the rendezvous: the responder has
// finished rendering to the fd it received, so the original PRINT
// caller can finally be unblocked (spec.md §4.10 step 4).
func handleClosePrintSession(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	txnID := req.Header.TransactionID
	txn, err := d.Txns.Get(txnID)
	if err != nil || txn.Kind != notify.Print || txn.Responder != sess.ID {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	d.stopPrintTimer(txnID)
	d.Blocks.TakeBySession(txn.Requester)
	d.Txns.Remove(txnID)
	if sink, ok := txn.Opaque.(replySink); ok {
		d.writeDeferred(sink, wire.OK, int32(txn.Handle), nil)
	}
	return reply(req, wire.OK, 0, nil)
}

// expirePrintTransaction fires on the dispatch goroutine when a
// responder's accept window lapses without a matching
// CLOSE_PRINT_SESSION. A txn that is already gone (closed in time, or
// the session was torn down) is simply ignored.
func (d *Dispatcher) expirePrintTransaction(txnID uint32) {
	delete(d.printTimers, txnID)
	txn, err := d.Txns.Get(txnID)
	if err != nil || txn.Kind != notify.Print {
		return
	}
	d.Blocks.TakeBySession(txn.Requester)
	d.Txns.Remove(txnID)
	if sink, ok := txn.Opaque.(replySink); ok {
		d.writeDeferred(sink, wire.ErrPrintTimeout, 0, nil)
	}
}

func (d *Dispatcher) stopPrintTimer(txnID uint32) {
	if t, ok := d.printTimers[txnID]; ok {
		t.Stop()
		delete(d.printTimers, txnID)
	}
}
