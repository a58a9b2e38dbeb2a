// Package wire defines the on-the-wire request/response frame for
// varserverd: a fixed-size header, little-endian on every host,
// followed by a payload. Every other package that touches raw protocol bytes goes
// through this one, the same way cs104's APCI framing in the teacher
// protocol is the sole owner of its header layout.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a varserverd frame; a mismatch is a protocol error.
const Magic uint32 = 0x56415253 // "VARS"

// Version is the only protocol version this daemon speaks.
const Version uint16 = 1

// HeaderSize is the fixed byte length of a request or response header.
const HeaderSize = 4 + 2 + 4 + 4 + 4 + 4 + 4 + 8

// MaxPayload bounds a single frame's payload to guard against a
// hostile or confused peer declaring an enormous length.
const MaxPayload = 1 << 20

// Header is the fixed layout shared by requests and responses.
// For a request, Arg1/Arg2 carry handler-specific arguments; for a
// response, the same two slots carry ResponseVal/ResponseVal2 as
// spec'd — the wire shape does not change, only how callers read it.
type Header struct {
	Magic         uint32
	Version       uint16
	ClientID      uint32
	TransactionID uint32
	Kind          Kind
	Arg1          int32
	Arg2          int32
	PayloadLen    uint64
}

// Encode writes the header in host-independent (little-endian) order.
func (h Header) Encode(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint32(buf[6:10], h.ClientID)
	binary.LittleEndian.PutUint32(buf[10:14], h.TransactionID)
	binary.LittleEndian.PutUint32(buf[14:18], uint32(h.Kind))
	binary.LittleEndian.PutUint32(buf[18:22], uint32(h.Arg1))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(h.Arg2))
	binary.LittleEndian.PutUint64(buf[26:34], h.PayloadLen)
	_, err := writeFull(w, buf)
	return err
}

// DecodeHeader reads and validates a header's fixed fields. It does
// not check Magic/Version; callers decide whether a mismatch is fatal
// (request path closes the session per spec.md §4.5/§6).
func DecodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if err := readFull(r, buf); err != nil {
		return Header{}, err
	}
	h := Header{
		Magic:         binary.LittleEndian.Uint32(buf[0:4]),
		Version:       binary.LittleEndian.Uint16(buf[4:6]),
		ClientID:      binary.LittleEndian.Uint32(buf[6:10]),
		TransactionID: binary.LittleEndian.Uint32(buf[10:14]),
		Kind:          Kind(binary.LittleEndian.Uint32(buf[14:18])),
		Arg1:          int32(binary.LittleEndian.Uint32(buf[18:22])),
		Arg2:          int32(binary.LittleEndian.Uint32(buf[22:26])),
		PayloadLen:    binary.LittleEndian.Uint64(buf[26:34]),
	}
	if h.PayloadLen > MaxPayload {
		return Header{}, fmt.Errorf("wire: payload length %d exceeds max %d", h.PayloadLen, MaxPayload)
	}
	return h, nil
}

// Frame is a decoded header plus its payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// ReadFrame decodes a header and its declared payload in one call.
func ReadFrame(r io.Reader) (Frame, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return Frame{}, err
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if err := readFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame encodes a header followed by its payload, fixing up
// PayloadLen to the actual slice length so callers cannot desync it.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	h.PayloadLen = uint64(len(payload))
	if err := h.Encode(w); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := writeFull(w, payload)
	return err
}

// readFull loops over EINTR-style short reads until buf is full or an
// error (including io.EOF on the first byte) occurs.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// writeFull loops over short writes until buf is fully written.
func writeFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
