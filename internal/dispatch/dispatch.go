// Package dispatch implements the request dispatcher (spec.md C6):
// session-state enforcement, a per-kind handler table, and the three
// response patterns spec.md §4.6 describes (synchronous reply,
// blocked-until-peer, queued delivery).
package dispatch

import (
	"os"
	"time"

	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/notify"
	"github.com/tjmonk/varserverd/internal/printxfer"
	"github.com/tjmonk/varserverd/internal/security"
	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/stats"
	"github.com/tjmonk/varserverd/internal/store"
	"github.com/tjmonk/varserverd/internal/transport"
	"github.com/tjmonk/varserverd/internal/wire"
)

// Dispatcher wires C1–C13's pieces together and owns the one logical
// processing loop spec.md §5 calls for: every request, from every
// connection, is handled one at a time in the order it was enqueued
// by internal/transport, so mutation ordering is total across clients.
type Dispatcher struct {
	Store    *store.Store
	Checker  security.Checker
	Sessions *session.Table
	Registry *notify.Registry
	Blocks   *notify.BlockList
	Txns     *notify.TransactionTable
	Queues   *notify.QueueManager
	Stats    *stats.Stats
	Log      logging.Log

	PrintBaseDir              string
	DefaultWorkingBufferSize  int
	MaxWorkingBufferSize      int
	MaxTagsPerVariable        int
	TrustTCPCredentials       bool

	// connSessions maps a transport connection to its session, so
	// CLOSE and connection teardown can find the right slot without
	// round-tripping the wire client id (which a misbehaving client
	// could lie about on a request it never OPENed).
	connSessions map[*transport.Conn]session.ID

	// sessionConns is connSessions' inverse, used to push an
	// unsolicited notification frame onto a subscriber's own
	// connection (spec.md §4.7's "real-time signal").
	sessionConns map[session.ID]*transport.Conn

	// pendingValidation holds the proposed value for an in-flight
	// VALIDATE transaction, keyed by transaction id, until
	// GET_VALIDATION_REQUEST retrieves it.
	pendingValidation map[uint32]pendingValue

	// printTimeouts carries a transaction id whose 200ms PRINT
	// rendezvous budget (spec.md §4.10) has elapsed. Fed by a
	// time.AfterFunc timer started in handleOpenPrintSession and
	// drained by the same goroutine that runs dispatch, so the timer
	// callback never touches Txns/Blocks/sessionConns directly.
	printTimeouts chan uint32

	// printTimers holds the live accept-window timer for each
	// in-flight PRINT transaction, keyed by transaction id, so
	// CLOSE_PRINT_SESSION can cancel it once the rendezvous finishes
	// on time.
	printTimers map[uint32]*time.Timer

	// reap carries session ids internal/gc has determined are dead,
	// so closeSession only ever runs on the dispatch goroutine.
	reap chan session.ID

	// OnModified, if set, is called synchronously from the dispatch
	// goroutine on every successful SET, independent of the MODIFIED/
	// MODIFIED_QUEUE subscriber fan-out — internal/adminhttp sets this
	// to feed its websocket stream without becoming a wire session.
	OnModified func(store.Handle)
}

// pendingValue is a SET's proposed value parked for a VALIDATE
// subscriber, plus the original caller's uid so the eventual write
// (on approval) still enforces the READONLY-except-creator rule.
type pendingValue struct {
	Value     store.Value
	CallerUID uint32
}

// replySink is the opaque payload stored on a notify.Transaction: the
// requester's connection and original request header, kept around so
// whichever handler eventually satisfies the transaction can write
// the deferred reply (spec.md §4.6 pattern 2).
type replySink struct {
	Conn   *transport.Conn
	Header wire.Header
}

// New builds a Dispatcher over already-constructed components.
func New(st *store.Store, checker security.Checker, sessions *session.Table, log logging.Log) *Dispatcher {
	return &Dispatcher{
		Store:                    st,
		Checker:                  checker,
		Sessions:                 sessions,
		Registry:                 notify.NewRegistry(),
		Blocks:                   notify.NewBlockList(),
		Txns:                     notify.NewTransactionTable(),
		Queues:                   notify.NewQueueManager(),
		Stats:                    stats.New(0),
		Log:                      log,
		DefaultWorkingBufferSize: 4096,
		MaxWorkingBufferSize:     1 << 20,
		MaxTagsPerVariable:       8,
		connSessions:             make(map[*transport.Conn]session.ID),
		sessionConns:             make(map[session.ID]*transport.Conn),
		pendingValidation:        make(map[uint32]pendingValue),
		printTimeouts:            make(chan uint32, 16),
		printTimers:              make(map[uint32]*time.Timer),
		reap:                     make(chan session.ID, 64),
	}
}

// Reap marks sid for cleanup by the dispatch goroutine. Called by
// internal/gc from its own sweep goroutine; non-blocking since a
// session that doesn't fit this tick's buffer will be found dead again
// on the next sweep.
func (d *Dispatcher) Reap(sid session.ID) {
	select {
	case d.reap <- sid:
	default:
	}
}

// Attach wires the dispatcher into mux and returns a function the
// caller should run in its own goroutine to drive dispatch. Both
// requests and connection-close notifications are funneled through
// this one goroutine — connSessions is otherwise unsynchronized, and
// transport's CloseHook fires from a different goroutine than the
// reader that produced the connection's requests.
func (d *Dispatcher) Attach(mux *transport.Multiplexer) func() {
	closed := make(chan *transport.Conn, 64)
	mux.CloseHook = func(c *transport.Conn, err error) {
		closed <- c
	}
	return func() {
		for {
			select {
			case req, ok := <-mux.Requests:
				if !ok {
					return
				}
				d.handleOne(req)
			case c := <-closed:
				d.teardownConn(c)
			case txnID := <-d.printTimeouts:
				d.expirePrintTransaction(txnID)
			case sid := <-d.reap:
				d.closeSession(sid)
				d.Stats.RecordGCReap()
			}
		}
	}
}

func (d *Dispatcher) teardownConn(c *transport.Conn) {
	sid, ok := d.connSessions[c]
	if !ok {
		return
	}
	delete(d.connSessions, c)
	d.closeSession(sid)
}

// closeSession releases a session's notifications, blocks, and
// transactions (spec.md §4.6: "CLOSE releases all of the session's
// notifications, blocks, and transactions, then closes the
// connection").
func (d *Dispatcher) closeSession(sid session.ID) {
	d.Registry.RemoveSession(sid)
	d.Blocks.TakeBySession(sid) // no peer left to notify; just drop them
	for _, txn := range d.Txns.FindByRequester(sid) {
		d.stopPrintTimer(txn.ID)
		d.Txns.Remove(txn.ID)
		delete(d.pendingValidation, txn.ID)
	}
	for _, txn := range d.Txns.FindByResponder(sid) {
		d.stopPrintTimer(txn.ID)
		d.Txns.Remove(txn.ID)
		delete(d.pendingValidation, txn.ID)
		// The responder died mid-exchange; the requester is still
		// blocked on its connection and must be told rather than
		// left waiting forever (spec.md's GC reap rule, applied here
		// for a responder that closed cleanly rather than going dead).
		if sink, ok := txn.Opaque.(replySink); ok {
			d.writeDeferred(sink, wire.ErrPeerGone, 0, nil)
		}
	}
	d.Queues.Remove(sid)
	delete(d.sessionConns, sid)
	// Drop any print-transfer endpoint the session's process left behind.
	if s, err := d.Sessions.Get(sid); err == nil && s.PID > 0 {
		_ = os.Remove(printxfer.SocketPath(d.printBaseDir(), s.PID))
	}
	d.Sessions.Free(sid)
}

func (d *Dispatcher) handleOne(req transport.Request) {
	start := time.Now()
	kind := req.Header.Kind
	resp := d.dispatch(req)
	d.Stats.RecordRequest(kind.String(), time.Since(start))
	if resp == nil {
		return // blocked-until-peer: reply deferred to whatever satisfies it
	}
	if err := req.Conn.WriteFrame(resp.Header, resp.Payload); err != nil {
		d.Log.Warn("write response for %s failed: %v", kind, err)
	}
	if kind == wire.KindClose {
		req.Conn.Close()
	}
}

// response is a fully-formed reply frame, or nil when the handler
// took the blocked-until-peer path and the reply is deferred.
type response struct {
	Header  wire.Header
	Payload []byte
}

func reply(req transport.Request, result wire.Result, arg2 int32, payload []byte) *response {
	return &response{
		Header: wire.Header{
			Magic:         wire.Magic,
			Version:       wire.Version,
			ClientID:      req.Header.ClientID,
			TransactionID: req.Header.TransactionID,
			Kind:          req.Header.Kind,
			Arg1:          int32(result),
			Arg2:          arg2,
		},
		Payload: payload,
	}
}

// dispatch enforces the OPEN-first rule and routes everything else to
// its handler.
func (d *Dispatcher) dispatch(req transport.Request) *response {
	if req.Header.Kind == wire.KindOpen {
		return d.handleOpen(req)
	}

	sid, ok := d.connSessions[req.Conn]
	if !ok {
		return reply(req, wire.ErrNotOpen, 0, nil)
	}
	sess, err := d.Sessions.Get(sid)
	if err != nil {
		return reply(req, wire.ErrNotOpen, 0, nil)
	}

	handler, ok := handlers[req.Header.Kind]
	if !ok {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	return handler(d, sess, req)
}

// handlerFunc implements one request kind. A nil return means the
// request took the blocked-until-peer path (spec.md §4.6 pattern 2);
// the eventual reply is sent by whatever satisfies the block.
type handlerFunc func(d *Dispatcher, sess *session.Session, req transport.Request) *response

var handlers map[wire.Kind]handlerFunc

func init() {
	handlers = map[wire.Kind]handlerFunc{
		wire.KindClose:                  handleClose,
		wire.KindEcho:                   handleEcho,
		wire.KindNew:                    handleNew,
		wire.KindAlias:                  handleAlias,
		wire.KindGetAliases:             handleGetAliases,
		wire.KindFind:                   handleFind,
		wire.KindGet:                    handleGet,
		wire.KindPrint:                  handlePrint,
		wire.KindSet:                    handleSet,
		wire.KindType:                   handleType,
		wire.KindName:                   handleName,
		wire.KindLength:                 handleLength,
		wire.KindFlags:                  handleFlags,
		wire.KindInfo:                   handleInfo,
		wire.KindNotify:                 handleNotify,
		wire.KindNotifyCancel:           handleNotifyCancel,
		wire.KindGetValidationRequest:   handleGetValidationRequest,
		wire.KindSendValidationResponse: handleSendValidationResponse,
		wire.KindOpenPrintSession:       handleOpenPrintSession,
		wire.KindClosePrintSession:      handleClosePrintSession,
		wire.KindGetFirst:               handleGetFirst,
		wire.KindGetNext:                handleGetNext,
		wire.KindSetFlags:               handleSetFlags,
		wire.KindClearFlags:             handleClearFlags,
		wire.KindGetFromQueue:           handleGetFromQueue,
	}
}

// printBaseDir returns the configured print transfer directory,
// defaulting to "/tmp" per spec.md §6.
func (d *Dispatcher) printBaseDir() string {
	if d.PrintBaseDir != "" {
		return d.PrintBaseDir
	}
	return "/tmp"
}
