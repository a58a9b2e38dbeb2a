package wire

import (
	"testing"

	"github.com/tjmonk/varserverd/internal/store"
)

func TestEncodeDecodeValueNumeric(t *testing.T) {
	v := store.NewUint32(424242)
	data := EncodeValue(v)
	got, err := DecodeValue(store.TypeUint32, 0, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Uint32() != 424242 {
		t.Fatalf("got %d want 424242", got.Uint32())
	}
}

func TestEncodeDecodeValueString(t *testing.T) {
	v := store.NewString("hello", 16)
	data := EncodeValue(v)
	got, err := DecodeValue(store.TypeString, 16, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.String2() != "hello" {
		t.Fatalf("got %q want %q", got.String2(), "hello")
	}
}

func TestDecodeValueRejectsShortNumericPayload(t *testing.T) {
	if _, err := DecodeValue(store.TypeUint32, 0, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short numeric payload")
	}
}
