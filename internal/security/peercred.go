//go:build linux

package security

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads the kernel-verified uid/gid/pid of the peer on
// the other end of a Unix-domain stream connection via SO_PEERCRED.
// This is the only credential source the local transport trusts
// (spec.md §9, §4.3): a client's OPEN payload is never consulted for
// uid/gid on this path.
func PeerCredentials(conn *net.UnixConn) (uid, gid uint32, pid int32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, 0, err
	}
	var ucred *unix.Ucred
	var sockErr error
	ctlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil {
		return 0, 0, 0, ctlErr
	}
	if sockErr != nil {
		return 0, 0, 0, sockErr
	}
	return ucred.Uid, ucred.Gid, ucred.Pid, nil
}
