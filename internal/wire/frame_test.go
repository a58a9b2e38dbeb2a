package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:         Magic,
		Version:       Version,
		ClientID:      7,
		TransactionID: 99,
		Kind:          KindSet,
		Arg1:          -1,
		Arg2:          42,
		PayloadLen:    5,
	}
	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeHeader(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, h)
	}
}

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello")
	h := Header{Magic: Magic, Version: Version, Kind: KindGet}
	if err := WriteFrame(&buf, h, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", f.Payload, payload)
	}
	if f.Header.PayloadLen != uint64(len(payload)) {
		t.Fatalf("payload_len %d != %d", f.Header.PayloadLen, len(payload))
	}
}

func TestDecodeHeaderRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Magic: Magic, Version: Version, PayloadLen: MaxPayload + 1}
	if err := h.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeHeader(&buf); err == nil {
		t.Fatal("expected error for oversized payload_len")
	}
}

func TestKindStringAndValid(t *testing.T) {
	if !KindOpen.IsValid() {
		t.Fatal("KindOpen should be valid")
	}
	if KindInvalid.IsValid() {
		t.Fatal("KindInvalid should not be valid")
	}
	if Kind(9999).String() != "UNKNOWN" {
		t.Fatal("unknown kind should stringify to UNKNOWN")
	}
}

func TestResultString(t *testing.T) {
	if OK.String() != "OK" {
		t.Fatalf("OK.String() = %q", OK.String())
	}
	if !ErrDenied.Terminal() {
		t.Fatal("ErrDenied should be terminal")
	}
	if ErrPeerTakingOver.Terminal() {
		t.Fatal("ErrPeerTakingOver should not be terminal")
	}
}
