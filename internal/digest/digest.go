// Package digest computes the integrity digest of an ordered batch of
// transactions.
//
// Every transaction is framed with an 8-byte big-endian length prefix before
// its canonical bytes are fed to SHA3-256, so concatenation boundaries cannot
// be shifted: ["ab", "c"] and ["a", "bc"] produce different digests. An empty
// batch digests to SHA3-256 of the empty input.
package digest

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a Digest in bytes.
const Size = 32

// Transaction is anything with a stable, deterministic serialization.
//
// CanonicalBytes must return the same bytes for equal values on every call and
// on every process; the digest is only as deterministic as this encoding.
type Transaction interface {
	CanonicalBytes() []byte
}

// Raw is a Transaction whose canonical form is the byte slice itself.
type Raw []byte

// CanonicalBytes returns r unchanged.
func (r Raw) CanonicalBytes() []byte {
	return r
}

// Digest is a fixed-length SHA3-256 fingerprint of a batch.
type Digest [Size]byte

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equal compares two digests in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// MarshalText encodes d as hex, so digests serialize as JSON strings.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest produced by MarshalText.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// Parse decodes a hex-encoded digest.
func Parse(s string) (Digest, error) {
	var d Digest

	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest encoding: %w", err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("invalid digest length: got %d bytes, want %d", len(b), Size)
	}

	copy(d[:], b)
	return d, nil
}

// Hasher accumulates transactions into a digest one at a time.
// The zero value is not usable; call New.
type Hasher struct {
	h      hash.Hash
	prefix [8]byte
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{h: sha3.New256()}
}

// Add appends one transaction's canonical bytes to the digest input.
func (h *Hasher) Add(tx Transaction) {
	b := tx.CanonicalBytes()

	binary.BigEndian.PutUint64(h.prefix[:], uint64(len(b)))
	h.h.Write(h.prefix[:])
	h.h.Write(b)
}

// Sum returns the digest of everything added so far. It does not change the
// Hasher state, so more transactions may be added afterwards.
func (h *Hasher) Sum() Digest {
	var d Digest
	h.h.Sum(d[:0])
	return d
}

// Compute returns the digest of txs in order.
func Compute[T Transaction](txs []T) Digest {
	h := New()
	for _, tx := range txs {
		h.Add(tx)
	}
	return h.Sum()
}
