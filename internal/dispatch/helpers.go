package dispatch

import (
	"errors"

	"github.com/tjmonk/varserverd/internal/notify"
	"github.com/tjmonk/varserverd/internal/security"
	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
	"github.com/tjmonk/varserverd/internal/wire"
)

func aclOf(rec *store.Record) security.ACL {
	p := rec.Permissions()
	return security.ACL{ReadGIDs: p.ReadGIDs, WriteGIDs: p.WriteGIDs}
}

// mapStoreErr translates a store-level error into its wire result.
func mapStoreErr(err error) wire.Result {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return wire.ErrNotFound
	case errors.Is(err, store.ErrNameExists):
		return wire.ErrNameExists
	case errors.Is(err, store.ErrValueTooLarge):
		return wire.ErrValueTooLarge
	case errors.Is(err, store.ErrReadOnly):
		return wire.ErrDenied
	case errors.Is(err, store.ErrAliasOfAlias):
		return wire.ErrInvalid
	default:
		return wire.ErrInvalid
	}
}

// pushSignal writes an unsolicited frame onto sid's own connection —
// the "real-time signal" spec.md §4.7 describes for CALC/VALIDATE/
// PRINT/MODIFIED delivery. The push always carries wire.KindNotify;
// Arg1 disambiguates which notify.Kind fired and Arg2 carries the
// variable handle, so one wire opcode serves every async delivery
// instead of growing the closed request-kind set for server-initiated
// traffic.
func (d *Dispatcher) pushSignal(sid session.ID, what notify.Kind, h store.Handle, txnID uint32, payload []byte) bool {
	conn, ok := d.sessionConns[sid]
	if !ok {
		return false
	}
	hdr := wire.Header{
		Magic:         wire.Magic,
		Version:       wire.Version,
		ClientID:      uint32(sid),
		TransactionID: txnID,
		Kind:          wire.KindNotify,
		Arg1:          int32(what),
		Arg2:          int32(h),
	}
	if err := conn.WriteFrame(hdr, payload); err != nil {
		d.Log.Warn("push signal to session %d failed: %v", sid, err)
		return false
	}
	return true
}

// deliverModified fans a successful SET out to MODIFIED and
// MODIFIED_QUEUE subscribers (spec.md §4.7).
func (d *Dispatcher) deliverModified(h store.Handle) {
	if d.OnModified != nil {
		d.OnModified(h)
	}

	for _, sid := range d.Registry.FanoutTargets(h, notify.Modified) {
		if d.pushSignal(sid, notify.Modified, h, 0, nil) {
			d.Stats.RecordNotification()
		}
	}

	targets := d.Registry.FanoutTargets(h, notify.ModifiedQueue)
	if len(targets) == 0 {
		return
	}
	rec, err := d.Store.Record(h)
	if err != nil {
		return
	}
	val := rec.Value()
	msg := notify.QueueMessage{Handle: h, Type: val.Type, Payload: wire.EncodeValue(val)}
	for _, sid := range targets {
		q := d.Queues.Ensure(sid, notify.DefaultQueueDepth)
		if q.Enqueue(msg) {
			d.Stats.RecordNotification()
		} else {
			d.Stats.RecordQueueDrop()
		}
	}
}

// writeDeferred sends the actual reply for a blocked-until-peer
// request once its transaction is satisfied, mirroring the original
// request's client/transaction/kind the same way reply() does for a
// request handled inline.
func (d *Dispatcher) writeDeferred(sink replySink, result wire.Result, arg2 int32, payload []byte) {
	hdr := wire.Header{
		Magic:         wire.Magic,
		Version:       wire.Version,
		ClientID:      sink.Header.ClientID,
		TransactionID: sink.Header.TransactionID,
		Kind:          sink.Header.Kind,
		Arg1:          int32(result),
		Arg2:          arg2,
	}
	if err := sink.Conn.WriteFrame(hdr, payload); err != nil {
		d.Log.Warn("deferred reply for %s failed: %v", sink.Header.Kind, err)
	}
}

// resolvePendingCalc completes any CALC transactions that sess, as the
// handle's CALC subscriber, just answered by SETting its new value
// (spec.md has no distinct calc-response wire kind, so the responder's
// own SET is the signal: "GET on a CALC-subscribed variable" blocks
// until the subscriber computes and writes the value).
func (d *Dispatcher) resolvePendingCalc(responder session.ID, h store.Handle, v store.Value) {
	for _, txn := range d.Txns.FindByResponder(responder) {
		if txn.Kind != notify.Calc || txn.Handle != h {
			continue
		}
		d.Blocks.TakeBySession(txn.Requester)
		d.Txns.Remove(txn.ID)
		if sink, ok := txn.Opaque.(replySink); ok {
			d.writeDeferred(sink, wire.OK, int32(h), wire.EncodeValue(v))
		}
	}
}

// encodeInfo renders a variable's full metadata for the INFO handler.
func encodeInfo(rec *store.Record, tags *store.TagRegistry) []byte {
	w := &writer{}
	w.str(rec.Name)
	w.uint8(uint8(rec.Value().Type))
	w.uint32(uint32(rec.Value().Cap))
	w.uint32(uint32(rec.Flags()))
	w.str(rec.Format())
	w.uint32(rec.InstanceID)
	w.uint32(rec.GUID)
	perms := rec.Permissions()
	w.gidList(perms.ReadGIDs)
	w.gidList(perms.WriteGIDs)
	names := make([]string, 0, len(rec.Tags()))
	for _, id := range rec.Tags() {
		if n, ok := tags.Name(id); ok {
			names = append(names, n)
		}
	}
	w.tagNames(names)
	return w.buf
}
