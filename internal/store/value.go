package store

import "fmt"

// Type identifies a variable's tagged value kind, per spec.md §3.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeUint64
	TypeInt64
	TypeFloat
	TypeString
	TypeBlob
)

var typeNames = map[Type]string{
	TypeUint16: "uint16",
	TypeInt16:  "int16",
	TypeUint32: "uint32",
	TypeInt32:  "int32",
	TypeUint64: "uint64",
	TypeInt64:  "int64",
	TypeFloat:  "float",
	TypeString: "string",
	TypeBlob:   "blob",
}

var nameTypes = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, n := range typeNames {
		m[n] = t
	}
	return m
}()

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "invalid"
}

// TypeByName resolves a type name to its enum, the inverse of
// Type.String. Round-trips for every recognised name, per spec.md §8.
func TypeByName(name string) (Type, error) {
	if t, ok := nameTypes[name]; ok {
		return t, nil
	}
	return TypeInvalid, fmt.Errorf("store: unknown type %q", name)
}

// Value holds a variable's current typed payload. Numeric kinds share
// a single raw-bits field the way the teacher's asdu codec keeps one
// byte slice and reinterprets it per accessor; String/Blob carry a
// declared Cap that Set() must never exceed (spec.md §3, §4.1).
type Value struct {
	Type Type
	num  uint64
	str  string
	blob []byte
	// Cap is the declared capacity for String/Blob values: the
	// maximum length Set() may write, not the current length.
	Cap int
}

// ZeroValue returns the initial value for a freshly created variable
// of type t, honoring cap for String/Blob (spec.md §8: "NEW followed
// by GET returns the initial typed zero value").
func ZeroValue(t Type, cap int) Value {
	v := Value{Type: t, Cap: cap}
	if t == TypeBlob {
		v.blob = []byte{}
	}
	return v
}

// Raw returns a numeric value's underlying bit pattern, for wire
// encoding; Type determines how a decoder should reinterpret it.
func (v Value) Raw() uint64 { return v.num }

// FromRaw rebuilds a numeric Value from a wire-decoded bit pattern.
// t must be a numeric type; String/Blob use NewString/NewBlob instead.
func FromRaw(t Type, raw uint64, cap int) Value {
	return Value{Type: t, num: raw, Cap: cap}
}

func (v Value) Uint16() uint16    { return uint16(v.num) }
func (v Value) Int16() int16      { return int16(v.num) }
func (v Value) Uint32() uint32    { return uint32(v.num) }
func (v Value) Int32() int32      { return int32(v.num) }
func (v Value) Uint64() uint64    { return v.num }
func (v Value) Int64() int64      { return int64(v.num) }
func (v Value) Float32() float32  { return float32frombits(uint32(v.num)) }
func (v Value) String2() string   { return v.str }
func (v Value) Bytes() []byte     { return v.blob }

// Len returns the effective length of a String/Blob value, or 0 for
// numeric types.
func (v Value) Len() int {
	switch v.Type {
	case TypeString:
		return len(v.str)
	case TypeBlob:
		return len(v.blob)
	default:
		return 0
	}
}

func NewUint16(v uint16) Value   { return Value{Type: TypeUint16, num: uint64(v)} }
func NewInt16(v int16) Value     { return Value{Type: TypeInt16, num: uint64(uint16(v))} }
func NewUint32(v uint32) Value   { return Value{Type: TypeUint32, num: uint64(v)} }
func NewInt32(v int32) Value     { return Value{Type: TypeInt32, num: uint64(uint32(v))} }
func NewUint64(v uint64) Value   { return Value{Type: TypeUint64, num: v} }
func NewInt64(v int64) Value     { return Value{Type: TypeInt64, num: uint64(v)} }
func NewFloat32(v float32) Value { return Value{Type: TypeFloat, num: uint64(float32bits(v))} }

// NewString builds a String value, recording cap as its declared
// capacity (defaults to len(s) when cap < len(s)).
func NewString(s string, cap int) Value {
	if cap < len(s) {
		cap = len(s)
	}
	return Value{Type: TypeString, str: s, Cap: cap}
}

// NewBlob builds a Blob value, same capacity semantics as NewString.
func NewBlob(b []byte, cap int) Value {
	if cap < len(b) {
		cap = len(b)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Type: TypeBlob, blob: cp, Cap: cap}
}

// fitsCapacity reports whether next respects declaredCap, the
// declared capacity of the value it would replace (spec.md §4.1, §8).
func fitsCapacity(declaredCap int, next Value) bool {
	switch next.Type {
	case TypeString:
		return len(next.str) <= declaredCap
	case TypeBlob:
		return len(next.blob) <= declaredCap
	default:
		return true
	}
}
