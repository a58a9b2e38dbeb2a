package dispatch

import (
	"github.com/tjmonk/varserverd/internal/notify"
	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
	"github.com/tjmonk/varserverd/internal/transport"
	"github.com/tjmonk/varserverd/internal/wire"
)

func argHandle(req transport.Request) store.Handle {
	return store.Handle(uint32(req.Header.Arg1))
}

func handleClose(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	d.teardownConn(req.Conn)
	return reply(req, wire.OK, 0, nil)
}

func handleEcho(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	return reply(req, wire.OK, req.Header.Arg2, req.Payload)
}

func handleNew(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	info, err := newInfoFromPayload(req.Payload, d.Store.Tags)
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	if len(info.Tags) > d.MaxTagsPerVariable {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	h, err := d.Store.CreateWithCreator(info, sess.UID)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, int32(h), nil)
}

func handleAlias(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	r := newReader(req.Payload)
	name, err := r.str()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	guid, err := r.uint32()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	instanceID, err := r.uint32()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	ah, err := d.Store.Alias(argHandle(req), name, guid, instanceID)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, int32(ah), nil)
}

func handleGetAliases(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	w := &writer{}
	aliases := rec.Aliases()
	w.uint16(uint16(len(aliases)))
	for _, h := range aliases {
		w.uint32(uint32(h))
	}
	return reply(req, wire.OK, int32(len(aliases)), w.buf)
}

func handleFind(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	r := newReader(req.Payload)
	name, err := r.str()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	h, err := d.Store.Find(name)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	rec, err := d.Store.Record(h)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	if rec.Flags().Has(store.FlagHidden) && !d.Checker.CanRead(sess.Credentials(), aclOf(rec)) {
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	return reply(req, wire.OK, int32(h), nil)
}

func handleGet(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	h := argHandle(req)
	rec, err := d.Store.Record(h)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	if !d.Checker.CanRead(sess.Credentials(), aclOf(rec)) {
		return reply(req, wire.ErrDenied, 0, nil)
	}

	if responder, ok := d.Registry.Exclusive(h, notify.Calc); ok && responder != sess.ID {
		txnID := d.Txns.New(sess.ID, h, notify.Calc, replySink{req.Conn, req.Header})
		d.Txns.SetResponder(txnID, responder)
		d.Blocks.Add(notify.Waiter{Session: sess.ID, Kind: notify.Calc, Handle: h})
		d.pushSignal(responder, notify.Calc, h, txnID, nil)
		return nil
	}

	return reply(req, wire.OK, 0, wire.EncodeValue(rec.Value()))
}

func handleSet(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	h := argHandle(req)
	rec, err := d.Store.Record(h)
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	if !d.Checker.CanWrite(sess.Credentials(), aclOf(rec)) {
		return reply(req, wire.ErrDenied, 0, nil)
	}
	v, err := wire.DecodeValue(rec.Value().Type, rec.Value().Cap, req.Payload)
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}

	if responder, ok := d.Registry.Exclusive(h, notify.Validate); ok && responder != sess.ID {
		txnID := d.Txns.New(sess.ID, h, notify.Validate, replySink{req.Conn, req.Header})
		d.Txns.SetResponder(txnID, responder)
		d.Blocks.Add(notify.Waiter{Session: sess.ID, Kind: notify.Validate, Handle: h})
		d.pendingValidation[txnID] = pendingValue{Value: v, CallerUID: sess.UID}
		d.pushSignal(responder, notify.Validate, h, txnID, nil)
		return nil
	}

	if err := d.Store.Set(h, v, sess.UID); err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	d.deliverModified(h)
	d.resolvePendingCalc(sess.ID, h, v)
	return reply(req, wire.OK, 0, nil)
}

func handleType(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, int32(rec.Value().Type), nil)
}

func handleName(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	w := &writer{}
	w.str(rec.Name)
	return reply(req, wire.OK, 0, w.buf)
}

func handleLength(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, int32(rec.Value().Cap), nil)
}

func handleFlags(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, int32(rec.Flags()), nil)
}

func handleInfo(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	rec, err := d.Store.Record(argHandle(req))
	if err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, 0, encodeInfo(rec, d.Store.Tags))
}

func handleSetFlags(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	r := newReader(req.Payload)
	mask, err := r.uint32()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	if err := d.Store.SetFlags(argHandle(req), store.Flags(mask)); err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, 0, nil)
}

func handleClearFlags(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	r := newReader(req.Payload)
	mask, err := r.uint32()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	if err := d.Store.ClearFlags(argHandle(req), store.Flags(mask)); err != nil {
		return reply(req, mapStoreErr(err), 0, nil)
	}
	return reply(req, wire.OK, 0, nil)
}

func handleNotify(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	h := argHandle(req)
	r := newReader(req.Payload)
	kb, err := r.uint8()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	kind := notify.Kind(kb)
	if replaced, wasReplaced := d.Registry.Subscribe(sess.ID, h, kind); wasReplaced {
		d.Log.Warn("session %d replaced session %d as the %s subscriber for handle %d", sess.ID, replaced, kind, h)
	}
	return reply(req, wire.OK, 0, nil)
}

func handleNotifyCancel(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	h := argHandle(req)
	r := newReader(req.Payload)
	kb, err := r.uint8()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	d.Registry.Cancel(sess.ID, h, notify.Kind(kb))
	return reply(req, wire.OK, 0, nil)
}

func handleGetValidationRequest(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	txnID := req.Header.TransactionID
	txn, err := d.Txns.Get(txnID)
	if err != nil || txn.Kind != notify.Validate || txn.Responder != sess.ID {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	pv, ok := d.pendingValidation[txnID]
	if !ok {
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	return reply(req, wire.OK, int32(txn.Handle), wire.EncodeValue(pv.Value))
}

func handleSendValidationResponse(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	txnID := req.Header.TransactionID
	txn, err := d.Txns.Get(txnID)
	if err != nil || txn.Kind != notify.Validate || txn.Responder != sess.ID {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	r := newReader(req.Payload)
	approved, err := r.uint8()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}

	pv, hadValue := d.pendingValidation[txnID]
	delete(d.pendingValidation, txnID)
	d.Blocks.TakeBySession(txn.Requester)
	d.Txns.Remove(txnID)

	result := wire.ErrDenied
	if approved != 0 && hadValue {
		if err := d.Store.Set(txn.Handle, pv.Value, pv.CallerUID); err != nil {
			result = mapStoreErr(err)
		} else {
			result = wire.OK
			d.deliverModified(txn.Handle)
		}
	}
	if result != wire.OK {
		d.Stats.RecordValidationFailure()
	}

	if sink, ok := txn.Opaque.(replySink); ok {
		d.writeDeferred(sink, result, int32(txn.Handle), nil)
	}
	return reply(req, wire.OK, 0, nil)
}

func handleGetFirst(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	desc, err := decodeDescriptor(req.Payload, d.Store.Tags)
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	re, err := compilePattern(d.Store, desc.NamePattern)
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	cur := notify.NewCursor(desc, re, d.Store.Snapshot())
	sess.QueryCursor = cur
	h, ok := cur.Next(d.Store)
	if !ok {
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	return reply(req, wire.OK, int32(h), nil)
}

func handleGetNext(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	cur, ok := sess.QueryCursor.(*notify.Cursor)
	if !ok || cur == nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	h, ok := cur.Next(d.Store)
	if !ok {
		sess.QueryCursor = nil
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	return reply(req, wire.OK, int32(h), nil)
}

func handleGetFromQueue(d *Dispatcher, sess *session.Session, req transport.Request) *response {
	q, ok := d.Queues.Get(sess.ID)
	if !ok {
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	msg, ok := q.Dequeue()
	if !ok {
		return reply(req, wire.ErrNotFound, 0, nil)
	}
	w := &writer{}
	w.uint32(uint32(msg.Handle))
	w.uint8(uint8(msg.Type))
	w.bytes(msg.Payload)
	return reply(req, wire.OK, int32(msg.Handle), w.buf)
}
