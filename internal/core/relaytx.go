package core

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
)

const (
	// RelayTxEncodedLen is the size in bytes of a canonically encoded RelayTx.
	RelayTxEncodedLen = 32 + 32 + 4 + 32

	// SignedRelayTxEncodedLen adds the trailing Ed25519 signature.
	SignedRelayTxEncodedLen = RelayTxEncodedLen + ed25519.SignatureSize

	// MaxFeePerHop is the admission-time ceiling on fee_per_hop, in µRLT.
	MaxFeePerHop = 1_000_000
)

// TxID is the content address of a RelayTx: SHA-256 over its canonical
// encoding (sans signature).
type TxID [32]byte

// ZeroDigest is the all-zero 32-byte parent digest used by the genesis
// transaction.
var ZeroDigest [32]byte

// RelayTx is the content-addressed relay transaction described in spec §3.
// Parent order is significant: encoding parents[0] before parents[1] means
// swapping them changes the derived id.
type RelayTx struct {
	Parents    [2]TxID
	FeePerHop  uint32
	SenderPub  [32]byte
}

// SignedRelayTx pairs a RelayTx with the Ed25519 signature over its id.
type SignedRelayTx struct {
	RelayTx
	Signature [64]byte
}

// Encode renders the canonical 100-byte binary form:
// parents[0] || parents[1] || fee_per_hop (4 LE) || sender_pub.
func (tx RelayTx) Encode() []byte {
	buf := make([]byte, RelayTxEncodedLen)
	copy(buf[0:32], tx.Parents[0][:])
	copy(buf[32:64], tx.Parents[1][:])
	binary.LittleEndian.PutUint32(buf[64:68], tx.FeePerHop)
	copy(buf[68:100], tx.SenderPub[:])
	return buf
}

// DecodeRelayTx parses the canonical 100-byte encoding produced by Encode.
func DecodeRelayTx(b []byte) (RelayTx, error) {
	if len(b) != RelayTxEncodedLen {
		return RelayTx{}, ErrInvalidData
	}
	var tx RelayTx
	copy(tx.Parents[0][:], b[0:32])
	copy(tx.Parents[1][:], b[32:64])
	tx.FeePerHop = binary.LittleEndian.Uint32(b[64:68])
	copy(tx.SenderPub[:], b[68:100])
	return tx, nil
}

// ID computes the content address of tx: SHA-256 over its canonical encoding.
func (tx RelayTx) ID() TxID {
	return sha256.Sum256(tx.Encode())
}

// IsGenesisShape reports whether tx has the structural shape of a genesis
// transaction: both parents are the zero digest. The caller still needs to
// check the derived id against GenesisTxID for a full identity match.
func (tx RelayTx) IsGenesisShape() bool {
	return tx.Parents[0] == TxID(ZeroDigest) && tx.Parents[1] == TxID(ZeroDigest)
}

// Sign derives the id of tx, signs it with priv, and returns the resulting
// SignedRelayTx. The caller is responsible for ensuring priv corresponds to
// tx.SenderPub.
func (tx RelayTx) Sign(priv ed25519.PrivateKey) SignedRelayTx {
	id := tx.ID()
	sig := ed25519.Sign(priv, id[:])
	var out SignedRelayTx
	out.RelayTx = tx
	copy(out.Signature[:], sig)
	return out
}

// Verify checks that Signature is a valid Ed25519 signature over ID() by
// SenderPub.
func (stx SignedRelayTx) Verify() bool {
	id := stx.RelayTx.ID()
	return ed25519.Verify(stx.SenderPub[:], id[:], stx.Signature[:])
}

// Encode renders the canonical 164-byte wire form: RelayTx.Encode() ||
// signature.
func (stx SignedRelayTx) Encode() []byte {
	buf := make([]byte, SignedRelayTxEncodedLen)
	copy(buf[:RelayTxEncodedLen], stx.RelayTx.Encode())
	copy(buf[RelayTxEncodedLen:], stx.Signature[:])
	return buf
}

// DecodeSignedRelayTx parses the canonical 164-byte encoding produced by
// Encode.
func DecodeSignedRelayTx(b []byte) (SignedRelayTx, error) {
	if len(b) != SignedRelayTxEncodedLen {
		return SignedRelayTx{}, ErrInvalidData
	}
	tx, err := DecodeRelayTx(b[:RelayTxEncodedLen])
	if err != nil {
		return SignedRelayTx{}, err
	}
	var out SignedRelayTx
	out.RelayTx = tx
	copy(out.Signature[:], b[RelayTxEncodedLen:])
	return out, nil
}

// Equal reports whether two SignedRelayTx values are byte-identical,
// including signature.
func (stx SignedRelayTx) Equal(other SignedRelayTx) bool {
	return bytes.Equal(stx.Encode(), other.Encode())
}

// genesisSeed is the deterministic all-0x01 Ed25519 seed used to bootstrap
// the genesis transaction. It is not a secret: the genesis signer is public
// by construction so every node can independently reconstruct genesis.
var genesisSeed = bytes.Repeat([]byte{0x01}, ed25519.SeedSize)

// GenesisKey derives the deterministic Ed25519 key pair used to sign the
// genesis transaction.
func GenesisKey() (ed25519.PublicKey, ed25519.PrivateKey) {
	priv := ed25519.NewKeyFromSeed(genesisSeed)
	return priv.Public().(ed25519.PublicKey), priv
}

// NewGenesisTx builds and signs the deterministic genesis transaction:
// zero-digest parents, zero fee, the deterministic genesis key.
func NewGenesisTx() SignedRelayTx {
	pub, priv := GenesisKey()
	var spub [32]byte
	copy(spub[:], pub)
	tx := RelayTx{
		Parents:   [2]TxID{TxID(ZeroDigest), TxID(ZeroDigest)},
		FeePerHop: 0,
		SenderPub: spub,
	}
	return tx.Sign(priv)
}

// GenesisTxID is the fixed id of the genesis transaction under the current
// curve and hash choices.
var GenesisTxID = NewGenesisTx().ID()
