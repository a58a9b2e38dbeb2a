package dispatch

import (
	"math"

	"github.com/tjmonk/varserverd/internal/security"
	"github.com/tjmonk/varserverd/internal/transport"
	"github.com/tjmonk/varserverd/internal/wire"
)

// untrustedSentinelUID/GID mark a TCP session whose declared
// credentials are not trusted (SPEC_FULL.md REDESIGN FLAGS): they
// satisfy only ACL entries with no gid restriction at all, since no
// real account uses the max uint32 value.
const (
	untrustedSentinelUID uint32 = math.MaxUint32
	untrustedSentinelGID uint32 = math.MaxUint32
)

// handleOpen is the one handler not routed through the normal table:
// it runs before a session exists (spec.md §4.6: "the first request
// on a session must be OPEN"), so it alone decides the session's
// client id rather than reading one from the request header.
func (d *Dispatcher) handleOpen(req transport.Request) *response {
	r := newReader(req.Payload)
	declaredBufSize, err := r.uint32()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}

	isTCP := req.Conn.PeerPID == 0 && req.Conn.PeerUID == 0 && req.Conn.PeerGID == 0
	var uid, gid uint32
	var pid int32
	var supGIDs []uint32

	if !isTCP {
		uid, gid, pid = req.Conn.PeerUID, req.Conn.PeerGID, req.Conn.PeerPID
		if groups, err := security.SupplementaryGroups(uid, security.MaxSupplementaryGIDs); err == nil {
			supGIDs = groups
		}
	} else if d.TrustTCPCredentials {
		declUID, err1 := r.uint32()
		declGID, err2 := r.uint32()
		if err1 == nil && err2 == nil {
			uid, gid = declUID, declGID
		} else {
			uid, gid = untrustedSentinelUID, untrustedSentinelGID
		}
	} else {
		uid, gid = untrustedSentinelUID, untrustedSentinelGID
	}

	sess, err := d.Sessions.Allocate()
	if err != nil {
		return reply(req, wire.ErrInvalid, 0, nil)
	}
	sess.PID = pid
	sess.UID = uid
	sess.GID = gid
	sess.SupplementaryGID = supGIDs

	bufSize := int(declaredBufSize)
	if bufSize <= 0 {
		bufSize = d.DefaultWorkingBufferSize
	}
	if bufSize > d.MaxWorkingBufferSize {
		bufSize = d.MaxWorkingBufferSize
	}
	sess.WorkingBufferSize = bufSize

	d.connSessions[req.Conn] = sess.ID
	d.sessionConns[sess.ID] = req.Conn

	return &response{
		Header: wire.Header{
			Magic:    wire.Magic,
			Version:  wire.Version,
			ClientID: uint32(sess.ID),
			Kind:     wire.KindOpen,
			Arg1:     int32(wire.OK),
			Arg2:     int32(bufSize),
		},
	}
}
