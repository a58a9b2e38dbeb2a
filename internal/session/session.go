// Package session implements the client table (spec.md C4): a
// fixed-capacity vector of client sessions, slot 0 reserved, lowest-
// free-slot allocation. Sessions reference no other component
// directly — spec.md §9 calls for stable ids instead of owning
// handles, so a Session only carries its ID; internal/notify and
// internal/dispatch look sessions up in the Table when they need to
// act on one.
package session

import (
	"github.com/tjmonk/varserverd/internal/security"
)

// ID is a client-table slot index and the wire protocol's client_id.
type ID uint32

// Session is the server-side state for one connected client
// (spec.md §3 "Client session"). A blocked two-party exchange (CALC,
// VALIDATE, PRINT) is never parked on the Session itself — the
// dispatcher defers the reply on the requester's own transport
// connection via internal/dispatch's replySink and resumes it by
// transaction id from internal/notify's transaction table, so a
// session carries no wake/block state of its own.
type Session struct {
	ID ID

	PID              int32
	UID              uint32
	GID              uint32
	SupplementaryGID []uint32

	WorkingBufferSize int

	// QueryCursor holds the in-progress GET_FIRST/GET_NEXT iteration
	// state for this session (spec.md §4.7); nil when no query is open.
	QueryCursor interface{}
}

func newSession(id ID) *Session {
	return &Session{ID: id}
}

// Credentials returns the session's credential set for permission
// checks (internal/security).
func (s *Session) Credentials() security.Credentials {
	return security.Credentials{
		UID:              s.UID,
		GID:              s.GID,
		SupplementaryGID: s.SupplementaryGID,
	}
}
