package printxfer

import (
	"io"
	"os"
	"testing"
	"time"
)

func TestAcceptTimesOutWithNoDialer(t *testing.T) {
	dir := t.TempDir()
	sess, err := Listen(dir, 999999)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Accept(20 * time.Millisecond); err != ErrAcceptTimeout {
		t.Fatalf("expected ErrAcceptTimeout, got %v", err)
	}
}

func TestFDRoundTrip(t *testing.T) {
	dir := t.TempDir()
	const pid = 424242

	sess, err := Listen(dir, pid)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer sess.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	type result struct {
		f   *os.File
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := sess.Accept(2 * time.Second)
		done <- result{f, err}
	}()

	conn, err := Dial(dir, pid, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := SendFD(conn, w); err != nil {
		t.Fatalf("send fd: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("accept: %v", res.err)
	}
	defer res.f.Close()

	const msg = "rendered output"
	go func() {
		io.WriteString(w, msg)
		w.Close()
	}()

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(res.f, buf); err != nil {
		t.Fatalf("read transferred fd: %v", err)
	}
	if string(buf) != msg {
		t.Fatalf("got %q want %q", buf, msg)
	}
}
