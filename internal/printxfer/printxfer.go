// Package printxfer implements the print-session transfer (spec.md
// C10): handing a requester's open output stream to a PRINT
// subscriber over a local socket, using SCM_RIGHTS ancillary messages
// to pass the file descriptor itself rather than its bytes.
package printxfer

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// AcceptTimeout is the budget the responder's accept uses before the
// rendezvous fails PRINT_TIMEOUT (spec.md §4.10).
const AcceptTimeout = 200 * time.Millisecond

// ErrAcceptTimeout is returned by Session.Accept when no requester
// connects within the accept budget.
var ErrAcceptTimeout = errors.New("printxfer: accept timed out")

// SocketPath returns the well-known per-pid local path a PRINT
// responder listens on (spec.md §6: "transient local path
// /<tmp>/client_<pid>").
func SocketPath(baseDir string, pid int32) string {
	return fmt.Sprintf("%s/client_%d", baseDir, pid)
}

// Session is a responder's listening endpoint for one print
// rendezvous. It is unlinked on Close — by the responder finishing
// normally, or by GC reaping a dead responder (spec.md §4.10, §4.12).
type Session struct {
	path     string
	listener *net.UnixListener
}

// Listen opens the per-pid endpoint for pid under baseDir, removing
// any stale socket left by a crashed prior instance first.
func Listen(baseDir string, pid int32) (*Session, error) {
	path := SocketPath(baseDir, pid)
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &Session{path: path, listener: ln}, nil
}

// Path returns the endpoint's filesystem path.
func (s *Session) Path() string { return s.path }

// Accept waits up to timeout (AcceptTimeout if zero) for the
// requester to connect and pass its output stream fd, returning it as
// an *os.File the responder can write rendered text to.
func (s *Session) Accept(timeout time.Duration) (*os.File, error) {
	if timeout <= 0 {
		timeout = AcceptTimeout
	}
	if err := s.listener.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	conn, err := s.listener.Accept()
	if err != nil {
		return nil, ErrAcceptTimeout
	}
	defer conn.Close()
	return receiveFD(conn.(*net.UnixConn))
}

// Close tears down the listener and unlinks its socket path.
func (s *Session) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

// receiveFD reads one SCM_RIGHTS control message off uc and wraps the
// single fd it carries as an *os.File.
func receiveFD(uc *net.UnixConn) (*os.File, error) {
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}

	oob := make([]byte, unix.CmsgSpace(4))
	dummy := make([]byte, 1)
	var oobn int
	var recvErr error

	ctrlErr := raw.Read(func(fd uintptr) bool {
		_, oobn, _, _, recvErr = unix.Recvmsg(int(fd), dummy, oob, 0)
		return true
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if recvErr != nil {
		return nil, recvErr
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if len(scms) == 0 {
		return nil, errors.New("printxfer: no control message received")
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, err
	}
	if len(fds) == 0 {
		return nil, errors.New("printxfer: no file descriptor received")
	}
	return os.NewFile(uintptr(fds[0]), "printxfer-stream"), nil
}

// Dial connects to a responder's print-session endpoint as the
// requester side of the rendezvous.
func Dial(baseDir string, responderPID int32, timeout time.Duration) (*net.UnixConn, error) {
	path := SocketPath(baseDir, responderPID)
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}

// SendFD passes f's descriptor to the responder over conn via
// SCM_RIGHTS, the requester-side half of the rendezvous Accept serves.
func SendFD(conn *net.UnixConn, f *os.File) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	rights := unix.UnixRights(int(f.Fd()))
	var sendErr error
	ctrlErr := raw.Write(func(fd uintptr) bool {
		sendErr = unix.Sendmsg(int(fd), []byte{0}, rights, nil, 0)
		return true
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sendErr
}
