// Package varclient implements an in-process Go client for
// varserverd's wire protocol that drives the daemon the way a real
// client would — over an actual net.Conn, never a mock — for any Go
// program that wants a native client without shelling out.
package varclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tjmonk/varserverd/internal/store"
	"github.com/tjmonk/varserverd/internal/wire"
)

// Client is one open session against a varserverd daemon.
type Client struct {
	conn net.Conn

	mu       sync.Mutex
	clientID uint32
	nextTxn  uint32

	// unsolicited buffers any server-pushed wire.KindNotify frame
	// received while waiting on a request's own reply, so a blocking
	// CALC/VALIDATE/PRINT responder flow can still read its signal
	// frame with Next.
	unsolicited chan wire.Frame
}

// Dial connects to a varserverd daemon over network/addr ("unix",
// path) or ("tcp", host:port)) and sends OPEN with the requested
// working buffer size (0 asks for the daemon's default).
func Dial(ctx context.Context, network, addr string, bufSize int) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, unsolicited: make(chan wire.Frame, 16)}

	w := &encoder{}
	w.uint32(uint32(bufSize))
	resp, err := c.roundTrip(wire.KindOpen, 0, 0, w.bytes())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if wire.Result(resp.Header.Arg1) != wire.OK {
		conn.Close()
		return nil, fmt.Errorf("varclient: OPEN failed: %s", wire.Result(resp.Header.Arg1))
	}
	c.clientID = resp.Header.ClientID
	return c, nil
}

// Close sends CLOSE and closes the underlying connection.
func (c *Client) Close() error {
	_, _ = c.roundTrip(wire.KindClose, 0, 0, nil)
	return c.conn.Close()
}

// roundTrip writes one request frame and reads frames until it finds
// the matching reply, stashing any unsolicited wire.KindNotify push
// it sees along the way (spec.md §4.7's real-time signal can arrive
// interleaved with an ordinary reply on the same connection).
func (c *Client) roundTrip(kind wire.Kind, arg1, arg2 int32, payload []byte) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextTxn++
	txn := c.nextTxn
	hdr := wire.Header{
		Magic:         wire.Magic,
		Version:       wire.Version,
		ClientID:      c.clientID,
		TransactionID: txn,
		Kind:          kind,
		Arg1:          arg1,
		Arg2:          arg2,
	}
	if err := wire.WriteFrame(c.conn, hdr, payload); err != nil {
		return wire.Frame{}, err
	}

	for {
		f, err := wire.ReadFrame(c.conn)
		if err != nil {
			return wire.Frame{}, err
		}
		if f.Header.Kind == wire.KindNotify && f.Header.TransactionID != txn {
			select {
			case c.unsolicited <- f:
			default:
			}
			continue
		}
		return f, nil
	}
}

// Next blocks for the next unsolicited server push (a CALC/VALIDATE/
// PRINT signal, or a MODIFIED push for a directly-subscribed handle),
// with an optional deadline.
func (c *Client) Next(timeout time.Duration) (wire.Frame, error) {
	if timeout <= 0 {
		return <-c.unsolicited, nil
	}
	select {
	case f := <-c.unsolicited:
		return f, nil
	case <-time.After(timeout):
		return wire.Frame{}, fmt.Errorf("varclient: timed out waiting for a server push")
	}
}

// New creates a variable and returns its handle.
func (c *Client) New(info store.Info, tagNames []string) (store.Handle, error) {
	w := &encoder{}
	w.str(info.Name)
	w.uint8(uint8(info.Type))
	w.uint32(uint32(info.Cap))
	w.uint32(uint32(info.Flags))
	w.str(info.Format)
	w.uint32(info.InstanceID)
	w.uint32(info.GUID)
	w.gidList(info.Permissions.ReadGIDs)
	w.gidList(info.Permissions.WriteGIDs)
	w.tagNames(tagNames)

	resp, err := c.roundTrip(wire.KindNew, 0, 0, w.bytes())
	if err != nil {
		return store.InvalidHandle, err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return store.InvalidHandle, fmt.Errorf("varclient: NEW failed: %s", res)
	}
	return store.Handle(uint32(resp.Header.Arg2)), nil
}

// Find resolves a variable name to its handle.
func (c *Client) Find(name string) (store.Handle, error) {
	w := &encoder{}
	w.str(name)
	resp, err := c.roundTrip(wire.KindFind, 0, 0, w.bytes())
	if err != nil {
		return store.InvalidHandle, err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return store.InvalidHandle, fmt.Errorf("varclient: FIND failed: %s", res)
	}
	return store.Handle(uint32(resp.Header.Arg2)), nil
}

// Get reads h's current value. A CALC-subscribed handle blocks until
// the subscriber answers, per spec.md §4.7 — the round trip here
// simply waits for the daemon's deferred reply, same as any client.
func (c *Client) Get(h store.Handle, t store.Type, cap int) (store.Value, error) {
	resp, err := c.roundTrip(wire.KindGet, int32(h), 0, nil)
	if err != nil {
		return store.Value{}, err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return store.Value{}, fmt.Errorf("varclient: GET failed: %s", res)
	}
	return wire.DecodeValue(t, cap, resp.Payload)
}

// Set writes h's value. A VALIDATE-subscribed handle blocks until the
// subscriber approves or rejects it.
func (c *Client) Set(h store.Handle, v store.Value) error {
	resp, err := c.roundTrip(wire.KindSet, int32(h), 0, wire.EncodeValue(v))
	if err != nil {
		return err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: SET failed: %s", res)
	}
	return nil
}

// Notify subscribes to kind-notifications on h.
func (c *Client) Notify(h store.Handle, kind uint8) error {
	w := &encoder{}
	w.uint8(kind)
	resp, err := c.roundTrip(wire.KindNotify, int32(h), 0, w.bytes())
	if err != nil {
		return err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: NOTIFY failed: %s", res)
	}
	return nil
}

// NotifyCancel cancels a prior Notify subscription.
func (c *Client) NotifyCancel(h store.Handle, kind uint8) error {
	w := &encoder{}
	w.uint8(kind)
	resp, err := c.roundTrip(wire.KindNotifyCancel, int32(h), 0, w.bytes())
	if err != nil {
		return err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: NOTIFY_CANCEL failed: %s", res)
	}
	return nil
}

// GetValidationRequest fetches the proposed value for a VALIDATE
// transaction the caller was signalled about.
func (c *Client) GetValidationRequest(txnID uint32, t store.Type, cap int) (store.Handle, store.Value, error) {
	f, err := c.txnRoundTrip(wire.KindGetValidationRequest, txnID, 0, 0, nil)
	if err != nil {
		return store.InvalidHandle, store.Value{}, err
	}
	if res := wire.Result(f.Header.Arg1); res != wire.OK {
		return store.InvalidHandle, store.Value{}, fmt.Errorf("varclient: GET_VALIDATION_REQUEST failed: %s", res)
	}
	v, err := wire.DecodeValue(t, cap, f.Payload)
	return store.Handle(uint32(f.Header.Arg2)), v, err
}

// SendValidationResponse approves or rejects a pending VALIDATE.
func (c *Client) SendValidationResponse(txnID uint32, approved bool) error {
	w := &encoder{}
	if approved {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
	f, err := c.txnRoundTrip(wire.KindSendValidationResponse, txnID, 0, 0, w.bytes())
	if err != nil {
		return err
	}
	if res := wire.Result(f.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: SEND_VALIDATION_RESPONSE failed: %s", res)
	}
	return nil
}

// OpenPrintSession starts the responder's accept window for a PRINT
// rendezvous transaction.
func (c *Client) OpenPrintSession(txnID uint32) error {
	f, err := c.txnRoundTrip(wire.KindOpenPrintSession, txnID, 0, 0, nil)
	if err != nil {
		return err
	}
	if res := wire.Result(f.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: OPEN_PRINT_SESSION failed: %s", res)
	}
	return nil
}

// ClosePrintSession completes a PRINT rendezvous, unblocking the
// original requester.
func (c *Client) ClosePrintSession(txnID uint32) error {
	f, err := c.txnRoundTrip(wire.KindClosePrintSession, txnID, 0, 0, nil)
	if err != nil {
		return err
	}
	if res := wire.Result(f.Header.Arg1); res != wire.OK {
		return fmt.Errorf("varclient: CLOSE_PRINT_SESSION failed: %s", res)
	}
	return nil
}

// GetFromQueue dequeues one MODIFIED_QUEUE delivery.
func (c *Client) GetFromQueue() (store.Handle, store.Type, []byte, error) {
	resp, err := c.roundTrip(wire.KindGetFromQueue, 0, 0, nil)
	if err != nil {
		return store.InvalidHandle, store.TypeInvalid, nil, err
	}
	if res := wire.Result(resp.Header.Arg1); res != wire.OK {
		return store.InvalidHandle, store.TypeInvalid, nil, fmt.Errorf("varclient: GET_FROM_QUEUE failed: %s", res)
	}
	r := &decoder{buf: resp.Payload}
	h, err := r.uint32()
	if err != nil {
		return store.InvalidHandle, store.TypeInvalid, nil, err
	}
	t, err := r.uint8()
	if err != nil {
		return store.InvalidHandle, store.TypeInvalid, nil, err
	}
	return store.Handle(h), store.Type(t), resp.Payload[r.pos:], nil
}

// txnRoundTrip is roundTrip for requests that carry a specific
// transaction id rather than the client's own monotonically
// increasing counter — GET_VALIDATION_REQUEST and the print-session
// handlers answer a transaction the daemon opened, not one of ours.
func (c *Client) txnRoundTrip(kind wire.Kind, txnID uint32, arg1, arg2 int32, payload []byte) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hdr := wire.Header{
		Magic:         wire.Magic,
		Version:       wire.Version,
		ClientID:      c.clientID,
		TransactionID: txnID,
		Kind:          kind,
		Arg1:          arg1,
		Arg2:          arg2,
	}
	if err := wire.WriteFrame(c.conn, hdr, payload); err != nil {
		return wire.Frame{}, err
	}
	for {
		f, err := wire.ReadFrame(c.conn)
		if err != nil {
			return wire.Frame{}, err
		}
		if f.Header.Kind == wire.KindNotify && f.Header.TransactionID != txnID {
			select {
			case c.unsolicited <- f:
			default:
			}
			continue
		}
		return f, nil
	}
}
