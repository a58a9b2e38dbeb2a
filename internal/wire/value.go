package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tjmonk/varserverd/internal/store"
)

// EncodeValue renders v as request/response payload bytes: numeric
// types as 8 raw little-endian bytes, String/Blob as their bytes
// verbatim (their length is already the frame's PayloadLen).
func EncodeValue(v store.Value) []byte {
	switch v.Type {
	case store.TypeString:
		return []byte(v.String2())
	case store.TypeBlob:
		return v.Bytes()
	default:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v.Raw())
		return buf
	}
}

// DecodeValue is EncodeValue's inverse: given the variable's declared
// type and capacity, rebuild a store.Value from payload bytes.
func DecodeValue(t store.Type, cap int, data []byte) (store.Value, error) {
	switch t {
	case store.TypeString:
		return store.NewString(string(data), cap), nil
	case store.TypeBlob:
		return store.NewBlob(data, cap), nil
	case store.TypeInvalid:
		return store.Value{}, fmt.Errorf("wire: cannot decode value of invalid type")
	default:
		if len(data) != 8 {
			return store.Value{}, fmt.Errorf("wire: numeric value payload must be 8 bytes, got %d", len(data))
		}
		return store.FromRaw(t, binary.LittleEndian.Uint64(data), cap), nil
	}
}
