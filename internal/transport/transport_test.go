package transport

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/wire"
)

func TestServeLocalRoundTrip(t *testing.T) {
	log := logging.New("test")
	log.Mute(true)
	mux := NewMultiplexer(8, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "varserver.sock")
	errCh := make(chan error, 1)
	go func() { errCh <- mux.ServeLocal(ctx, path, 0o770, -1) }()

	// Give the listener a moment to bind.
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reqHeader := wire.Header{
		Magic:   wire.Magic,
		Version: wire.Version,
		Kind:    wire.KindEcho,
	}
	if err := wire.WriteFrame(conn, reqHeader, []byte("hello")); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case req := <-mux.Requests:
		if req.Header.Kind != wire.KindEcho {
			t.Fatalf("got kind %v want ECHO", req.Header.Kind)
		}
		if string(req.Payload) != "hello" {
			t.Fatalf("got payload %q want %q", req.Payload, "hello")
		}
		if err := req.Conn.WriteFrame(wire.Header{
			Magic: wire.Magic, Version: wire.Version, Kind: wire.KindEcho,
		}, []byte("hello")); err != nil {
			t.Fatalf("write response: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
	}

	reply, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply.Payload) != "hello" {
		t.Fatalf("got reply %q want %q", reply.Payload, "hello")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ServeLocal returned: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ServeLocal did not return after cancel")
	}
}

func TestProtocolMismatchClosesSession(t *testing.T) {
	log := logging.New("test")
	log.Mute(true)
	mux := NewMultiplexer(8, log)

	var closeErr error
	closed := make(chan struct{})
	mux.CloseHook = func(_ *Conn, err error) {
		closeErr = err
		close(closed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "varserver.sock")
	go mux.ServeLocal(ctx, path, 0o770, -1)

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	badHeader := wire.Header{Magic: 0xDEADBEEF, Version: wire.Version, Kind: wire.KindEcho}
	if err := wire.WriteFrame(conn, badHeader, nil); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	select {
	case <-closed:
		if closeErr != ErrProtocolMismatch {
			t.Fatalf("got close err %v want %v", closeErr, ErrProtocolMismatch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection was never closed")
	}
}
