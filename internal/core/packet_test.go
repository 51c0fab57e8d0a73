package core

import "testing"

// TestHopLoggerCounts covers scenario S1.
func TestHopLoggerCounts(t *testing.T) {
	hl := NewHopLogger()
	id := TxID{0x01}
	other := TxID{0x02}

	hl.Record(id)
	hl.Record(id)
	hl.Record(id)

	n, ok := hl.Count(id)
	if !ok || n != 3 {
		t.Fatalf("expected count 3, got %d (ok=%v)", n, ok)
	}
	if _, ok := hl.Count(other); ok {
		t.Fatalf("expected no count recorded for unseen id")
	}
}

// TestDecrementTTLV2 covers scenario S2.
func TestDecrementTTLV2(t *testing.T) {
	h := HeaderV2{TTL: 3, FeePerHop: 0, TxHash: [32]byte{}}
	p := append(h.Encode(), 0xFF, 0xFF)

	out, err := DecrementTTLV2(p)
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	decoded, err := DecodeHeaderV2(out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.TTL != 2 {
		t.Fatalf("expected ttl 2, got %d", decoded.TTL)
	}
	if p[1] != 3 {
		t.Fatalf("original buffer must be left unchanged, got ttl %d", p[1])
	}
	if len(out) != len(p) || out[len(out)-1] != 0xFF {
		t.Fatalf("body bytes must be preserved")
	}

	zeroHeader := HeaderV2{TTL: 0}
	if _, err := DecrementTTLV2(zeroHeader.Encode()); err != ErrTtlExpired {
		t.Fatalf("expected ErrTtlExpired, got %v", err)
	}

	if _, err := DecrementTTLV2(make([]byte, 4)); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}

	badVersion := h.Encode()
	badVersion[0] = 0x09
	if _, err := DecrementTTLV2(badVersion); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

// TestHeaderV2RoundTrip covers scenario S4.
func TestHeaderV2RoundTrip(t *testing.T) {
	h := HeaderV2{TTL: 7, FeePerHop: 123_456, TxHash: [32]byte{}}
	for i := range h.TxHash {
		h.TxHash[i] = 0xAB
	}
	enc := h.Encode()
	if len(enc) != HeaderV2Len {
		t.Fatalf("expected length %d, got %d", HeaderV2Len, len(enc))
	}
	decoded, err := DecodeHeaderV2(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, h)
	}

	corrupted := append([]byte(nil), enc...)
	corrupted[0] = 0x99
	if _, err := DecodeHeaderV2(corrupted); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestHeaderV3RoundTrip(t *testing.T) {
	h := HeaderV3{TTL: 4, FeePerHop: 999, TxHash: [32]byte{0x01}, PowDifficulty: 3, PowNonce: 42, PowHash: [32]byte{0x02}}
	enc := h.Encode()
	if len(enc) != HeaderV3Len {
		t.Fatalf("expected length %d, got %d", HeaderV3Len, len(enc))
	}
	decoded, err := DecodeHeaderV3(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != h {
		t.Fatalf("round trip mismatch")
	}

	v2 := HeaderV2{TTL: 4, FeePerHop: 999, TxHash: [32]byte{0x01}}
	v3 := v2.ToV3()
	if v3.PowDifficulty != 0 || v3.PowNonce != 0 || v3.PowHash != [32]byte{} {
		t.Fatalf("v2-to-v3 upgrade must zero PoW fields")
	}
}

func TestDecodeHeaderV3ShortBuffer(t *testing.T) {
	if _, err := DecodeHeaderV3(make([]byte, 10)); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}
