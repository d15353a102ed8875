// Copyright 2025 Certen Protocol
//
// Package digest provides the fixed-width digest algebra shared by the
// ledger store, the Merkle fold, and the anchoring client: a 32-byte
// SHA-256 digest type, the concatenation hash H(a‖b), and a hex codec.

package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// Size is the fixed width of every digest in the system.
const Size = 32

// ErrWrongLength is returned when decoding a value that is not exactly
// Size bytes long.
var ErrWrongLength = errors.New("digest: value must be 32 bytes")

// D is a 32-byte digest. It is comparable and usable as a map key.
type D [Size]byte

// Zero reports whether d is the zero-value digest (no transaction ID or
// leaf digest has been assigned to a pending slot yet).
func (d D) Zero() bool {
	return d == D{}
}

// Hex returns the lowercase hex encoding of d.
func (d D) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer.
func (d D) String() string {
	return d.Hex()
}

// Bytes returns a copy of the digest's bytes.
func (d D) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, d[:])
	return b
}

// FromBytes copies b into a digest. b must be exactly Size bytes.
func FromBytes(b []byte) (D, error) {
	var d D
	if len(b) != Size {
		return d, ErrWrongLength
	}
	copy(d[:], b)
	return d, nil
}

// FromHex decodes a hex string into a digest.
func FromHex(s string) (D, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return D{}, err
	}
	return FromBytes(b)
}

// Pair computes H(left‖right), the concatenation hash used for every
// leaf and branch node in the tree.
func Pair(left, right D) D {
	var buf [2 * Size]byte
	copy(buf[:Size], left[:])
	copy(buf[Size:], right[:])
	return sha256.Sum256(buf[:])
}

// MarshalJSON encodes d as a hex string, not a JSON array of bytes.
func (d D) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Hex())
}

// UnmarshalJSON decodes a hex string into d. An empty string decodes to
// the zero digest, so checkpoint fields can be omitted when unset.
func (d *D) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = D{}
		return nil
	}
	v, err := FromHex(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Of hashes arbitrary data into a digest. Used for test fixtures and for
// any caller that needs to turn opaque bytes into a 32-byte transaction
// ID (the core itself only ever accepts transaction IDs that are already
// fixed-width).
func Of(data []byte) D {
	return sha256.Sum256(data)
}
