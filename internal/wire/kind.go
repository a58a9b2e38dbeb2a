package wire

// Kind is a request's opcode, the wire set closed in spec.md §4.6.
type Kind uint32

// The canonical request kinds. OPEN must be the first request on any
// session; every other kind is rejected NotOpen until OPEN succeeds.
const (
	KindInvalid Kind = iota
	KindOpen
	KindClose
	KindEcho
	KindNew
	KindAlias
	KindGetAliases
	KindFind
	KindGet
	KindPrint
	KindSet
	KindType
	KindName
	KindLength
	KindFlags
	KindInfo
	KindNotify
	KindNotifyCancel
	KindGetValidationRequest
	KindSendValidationResponse
	KindOpenPrintSession
	KindClosePrintSession
	KindGetFirst
	KindGetNext
	KindSetFlags
	KindClearFlags
	KindGetFromQueue
)

var kindNames = map[Kind]string{
	KindInvalid:                "INVALID",
	KindOpen:                   "OPEN",
	KindClose:                  "CLOSE",
	KindEcho:                   "ECHO",
	KindNew:                    "NEW",
	KindAlias:                  "ALIAS",
	KindGetAliases:             "GET_ALIASES",
	KindFind:                   "FIND",
	KindGet:                    "GET",
	KindPrint:                  "PRINT",
	KindSet:                    "SET",
	KindType:                   "TYPE",
	KindName:                   "NAME",
	KindLength:                 "LENGTH",
	KindFlags:                  "FLAGS",
	KindInfo:                   "INFO",
	KindNotify:                 "NOTIFY",
	KindNotifyCancel:           "NOTIFY_CANCEL",
	KindGetValidationRequest:   "GET_VALIDATION_REQUEST",
	KindSendValidationResponse: "SEND_VALIDATION_RESPONSE",
	KindOpenPrintSession:       "OPEN_PRINT_SESSION",
	KindClosePrintSession:      "CLOSE_PRINT_SESSION",
	KindGetFirst:               "GET_FIRST",
	KindGetNext:                "GET_NEXT",
	KindSetFlags:               "SET_FLAGS",
	KindClearFlags:             "CLEAR_FLAGS",
	KindGetFromQueue:           "GET_FROM_QUEUE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsValid reports whether k is a recognised request kind.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok && k != KindInvalid
}
