package wire

// Result is the small closed error domain carried in a response's
// Arg1 slot (ResponseVal), per spec.md §7.
type Result int32

const (
	OK Result = iota
	ErrInvalid
	ErrNotFound
	ErrDenied
	ErrValueTooLarge
	ErrNameExists
	ErrProtocolError
	ErrPeerTakingOver
	ErrPrintTimeout
	ErrCancelled
	ErrPeerGone
	ErrNotOpen
)

var resultNames = map[Result]string{
	OK:                "OK",
	ErrInvalid:        "INVALID",
	ErrNotFound:       "NOT_FOUND",
	ErrDenied:         "DENIED",
	ErrValueTooLarge:  "VALUE_TOO_LARGE",
	ErrNameExists:     "NAME_EXISTS",
	ErrProtocolError:  "PROTOCOL_ERROR",
	ErrPeerTakingOver: "PEER_TAKING_OVER",
	ErrPrintTimeout:   "PRINT_TIMEOUT",
	ErrCancelled:      "CANCELLED",
	ErrPeerGone:       "PEER_GONE",
	ErrNotOpen:        "NOT_OPEN",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "UNKNOWN"
}

// Terminal reports whether r ends a request's lifecycle on the wire
// (as opposed to PEER_TAKING_OVER, which invites the caller into the
// print OOB rendezvous rather than concluding the request).
func (r Result) Terminal() bool {
	return r != ErrPeerTakingOver
}
