package dispatch

import (
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/tjmonk/varserverd/internal/notify"
	"github.com/tjmonk/varserverd/internal/store"
)

// reader walks a request payload field by field. Every per-kind
// decoder below uses it instead of hand-rolled offset arithmetic, the
// same way wire.Header centralises the frame's own layout.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("dispatch: short payload, want %d bytes have %d", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// str reads a length-prefixed (uint8) string, the layout used for
// every name/format field in the per-kind payloads below.
func (r *reader) str() (string, error) {
	n, err := r.uint8()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// gidList reads a uint16-prefixed list of uint32 gids.
func (r *reader) gidList() ([]uint32, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], err = r.uint32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// tagList reads a uint16-prefixed list of length-prefixed tag names.
func (r *reader) tagList() ([]string, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = r.str()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writer builds a response payload with the inverse layout.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) str(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.uint8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) gidList(gids []uint32) {
	w.uint16(uint16(len(gids)))
	for _, g := range gids {
		w.uint32(g)
	}
}

func (w *writer) tagNames(names []string) {
	w.uint16(uint16(len(names)))
	for _, n := range names {
		w.str(n)
	}
}

// newInfoFromPayload decodes a NEW request's payload into a
// store.Info, interning any declared tag names against reg.
func newInfoFromPayload(payload []byte, reg *store.TagRegistry) (store.Info, error) {
	r := newReader(payload)

	name, err := r.str()
	if err != nil {
		return store.Info{}, err
	}
	typeByte, err := r.uint8()
	if err != nil {
		return store.Info{}, err
	}
	capField, err := r.uint32()
	if err != nil {
		return store.Info{}, err
	}
	flagsField, err := r.uint32()
	if err != nil {
		return store.Info{}, err
	}
	format, err := r.str()
	if err != nil {
		return store.Info{}, err
	}
	instanceID, err := r.uint32()
	if err != nil {
		return store.Info{}, err
	}
	guid, err := r.uint32()
	if err != nil {
		return store.Info{}, err
	}
	readGIDs, err := r.gidList()
	if err != nil {
		return store.Info{}, err
	}
	writeGIDs, err := r.gidList()
	if err != nil {
		return store.Info{}, err
	}
	tagNames, err := r.tagList()
	if err != nil {
		return store.Info{}, err
	}

	tags := make([]store.TagID, 0, len(tagNames))
	for _, n := range tagNames {
		id, err := reg.Intern(n)
		if err != nil {
			return store.Info{}, err
		}
		tags = append(tags, id)
	}

	return store.Info{
		Name:        name,
		InstanceID:  instanceID,
		GUID:        guid,
		Type:        store.Type(typeByte),
		Cap:         int(capField),
		Flags:       store.Flags(flagsField),
		Tags:        tags,
		Format:      format,
		Permissions: store.Permissions{ReadGIDs: readGIDs, WriteGIDs: writeGIDs},
	}, nil
}

// decodeDescriptor decodes a GET_FIRST query payload into a
// notify.Descriptor, interning any named tags against reg.
func decodeDescriptor(payload []byte, reg *store.TagRegistry) (notify.Descriptor, error) {
	r := newReader(payload)

	namePattern, err := r.str()
	if err != nil {
		return notify.Descriptor{}, err
	}
	hasInstance, err := r.uint8()
	if err != nil {
		return notify.Descriptor{}, err
	}
	instanceID, err := r.uint32()
	if err != nil {
		return notify.Descriptor{}, err
	}
	flags, err := r.uint32()
	if err != nil {
		return notify.Descriptor{}, err
	}
	tagNames, err := r.tagList()
	if err != nil {
		return notify.Descriptor{}, err
	}

	tags := make([]store.TagID, 0, len(tagNames))
	for _, n := range tagNames {
		id, err := reg.Intern(n)
		if err != nil {
			return notify.Descriptor{}, err
		}
		tags = append(tags, id)
	}

	return notify.Descriptor{
		NamePattern: namePattern,
		InstanceID:  instanceID,
		HasInstance: hasInstance != 0,
		Flags:       store.Flags(flags),
		Tags:        tags,
	}, nil
}

// compilePattern compiles a non-empty name pattern via the store's
// shared regex cache, returning a nil *regexp.Regexp for an empty
// pattern (matches everything, per notify.Cursor.matches).
func compilePattern(st *store.Store, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return st.CompileNamePattern(pattern)
}
