package varclient

import (
	"encoding/binary"
	"fmt"
)

// encoder builds a request payload in the same wire layout
// internal/dispatch/codec.go's writer uses server-side: uint8-prefixed
// strings, uint16-prefixed gid and tag-name lists. Kept as its own
// type here since dispatch's reader/writer are unexported.
type encoder struct {
	buf []byte
}

func (w *encoder) uint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *encoder) uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *encoder) uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *encoder) str(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.uint8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *encoder) gidList(gids []uint32) {
	w.uint16(uint16(len(gids)))
	for _, g := range gids {
		w.uint32(g)
	}
}

func (w *encoder) tagNames(names []string) {
	w.uint16(uint16(len(names)))
	for _, n := range names {
		w.str(n)
	}
}

func (w *encoder) bytes() []byte { return w.buf }

// decoder walks a reply payload field by field, the inverse of encoder.
type decoder struct {
	buf []byte
	pos int
}

func (r *decoder) remaining() int { return len(r.buf) - r.pos }

func (r *decoder) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("varclient: short payload, want %d bytes have %d", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *decoder) uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *decoder) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *decoder) str() (string, error) {
	n, err := r.uint8()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
