package core

import (
	"encoding/binary"
	"errors"
	"sync"
)

// Packet header version tags (spec §3).
const (
	HeaderVersionV2 byte = 0x02
	HeaderVersionV3 byte = 0x03

	HeaderV2Len = 1 + 1 + 4 + 32
	HeaderV3Len = HeaderV2Len + 1 + 8 + 32
)

// Packet-level decode errors (scenario S2/S4).
var (
	ErrTooShort   = errors.New("packet: buffer too short")
	ErrBadVersion = errors.New("packet: unexpected version byte")
	ErrTtlExpired = errors.New("packet: ttl expired")
)

// HeaderV2 is the 38-byte packet header used when no proof-of-work fields
// are present.
type HeaderV2 struct {
	TTL       uint8
	FeePerHop uint32
	TxHash    [32]byte
}

// Encode renders the 38-byte wire form: version || ttl || fee_per_hop (4 LE)
// || tx_hash.
func (h HeaderV2) Encode() []byte {
	buf := make([]byte, HeaderV2Len)
	buf[0] = HeaderVersionV2
	buf[1] = h.TTL
	binary.LittleEndian.PutUint32(buf[2:6], h.FeePerHop)
	copy(buf[6:38], h.TxHash[:])
	return buf
}

// DecodeHeaderV2 parses a 38-byte v2 header. It rejects short buffers and
// buffers whose version byte is not 0x02.
func DecodeHeaderV2(b []byte) (HeaderV2, error) {
	if len(b) < HeaderV2Len {
		return HeaderV2{}, ErrTooShort
	}
	if b[0] != HeaderVersionV2 {
		return HeaderV2{}, ErrBadVersion
	}
	var h HeaderV2
	h.TTL = b[1]
	h.FeePerHop = binary.LittleEndian.Uint32(b[2:6])
	copy(h.TxHash[:], b[6:38])
	return h, nil
}

// HeaderV3 extends HeaderV2 with proof-of-work fields. PowDifficulty == 0
// means no PoW is required for this packet.
type HeaderV3 struct {
	TTL           uint8
	FeePerHop     uint32
	TxHash        [32]byte
	PowDifficulty uint8
	PowNonce      uint64
	PowHash       [32]byte
}

// ToV3 upgrades a v2 header to v3 with zeroed PoW fields, per spec §3.
func (h HeaderV2) ToV3() HeaderV3 {
	return HeaderV3{TTL: h.TTL, FeePerHop: h.FeePerHop, TxHash: h.TxHash}
}

// Encode renders the 79-byte wire form.
func (h HeaderV3) Encode() []byte {
	buf := make([]byte, HeaderV3Len)
	buf[0] = HeaderVersionV3
	buf[1] = h.TTL
	binary.LittleEndian.PutUint32(buf[2:6], h.FeePerHop)
	copy(buf[6:38], h.TxHash[:])
	buf[38] = h.PowDifficulty
	binary.LittleEndian.PutUint64(buf[39:47], h.PowNonce)
	copy(buf[47:79], h.PowHash[:])
	return buf
}

// DecodeHeaderV3 parses a 79-byte v3 header, rejecting short buffers and a
// mismatched version byte.
func DecodeHeaderV3(b []byte) (HeaderV3, error) {
	if len(b) < HeaderV3Len {
		return HeaderV3{}, ErrTooShort
	}
	if b[0] != HeaderVersionV3 {
		return HeaderV3{}, ErrBadVersion
	}
	var h HeaderV3
	h.TTL = b[1]
	h.FeePerHop = binary.LittleEndian.Uint32(b[2:6])
	copy(h.TxHash[:], b[6:38])
	h.PowDifficulty = b[38]
	h.PowNonce = binary.LittleEndian.Uint64(b[39:47])
	copy(h.PowHash[:], b[47:79])
	return h, nil
}

// DecrementTTLV2 returns a copy of a wire-encoded v2 header buffer with ttl
// decremented by one, leaving the input buffer untouched (scenario S2). It
// fails with ErrTtlExpired if the header's current ttl is already zero,
// ErrTooShort for undersized buffers, and ErrBadVersion for a mismatched
// version byte. The body bytes following the header, if any, are preserved
// unchanged in the returned copy.
func DecrementTTLV2(p []byte) ([]byte, error) {
	if len(p) < HeaderV2Len {
		return nil, ErrTooShort
	}
	if p[0] != HeaderVersionV2 {
		return nil, ErrBadVersion
	}
	if p[1] == 0 {
		return nil, ErrTtlExpired
	}
	out := make([]byte, len(p))
	copy(out, p)
	out[1]--
	return out, nil
}

// HopLogger records how many times each transaction id has been observed in
// transit, for the relay-path accounting described by scenario S1. It is
// safe for concurrent use.
type HopLogger struct {
	mu     sync.Mutex
	counts map[TxID]int
}

// NewHopLogger constructs an empty HopLogger.
func NewHopLogger() *HopLogger {
	return &HopLogger{counts: make(map[TxID]int)}
}

// Record increments the hop count for id.
func (hl *HopLogger) Record(id TxID) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.counts[id]++
}

// Count returns the number of times id has been recorded and whether it has
// been recorded at all.
func (hl *HopLogger) Count(id TxID) (int, bool) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	n, ok := hl.counts[id]
	return n, ok
}
