// Copyright 2025 Certen Protocol
//
// Portable Merkle Receipt Implementation
// Provides cryptographically verifiable Merkle proof structures
// that can be independently re-verified without trusting any intermediary.

package merkle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

// Receipt is the portable form of a verify() result: the queried leaf, the
// root it anchors to, the block height that root was confirmed at, and the
// sibling path connecting the two.
//
// Verification invariants (fail-closed):
// 1. Start must be exactly 32 bytes.
// 2. Anchor must be exactly 32 bytes.
// 3. Each Entry.Hash must be exactly 32 bytes.
// 4. Recomposing Start through Entries must equal Anchor.
type Receipt struct {
	// Start is the leaf hash being proven (32 bytes, hex-encoded).
	Start string `json:"start"`

	// Anchor is the root hash reached by applying the proof (32 bytes, hex-encoded).
	Anchor string `json:"anchor"`

	// BlockHeight is the anchoring-chain block height the root was confirmed at.
	BlockHeight int64 `json:"block_height"`

	// Entries is the sibling path from Start to Anchor.
	Entries []ReceiptEntry `json:"entries"`
}

// ReceiptEntry is a single step in a Receipt's sibling path.
type ReceiptEntry struct {
	// Hash is the sibling digest at this level (32 bytes, hex-encoded).
	Hash string `json:"hash"`

	// Right reports the position of the running digest relative to Hash:
	// true means the running digest is on the left (compute H(current‖sibling));
	// false means it is on the right (compute H(sibling‖current)).
	Right bool `json:"right"`
}

// Validate verifies the receipt's structure and recomputes the path,
// failing closed on any malformed field or mismatch.
func (r *Receipt) Validate() error {
	start, err := mustDigest(r.Start, "receipt.start")
	if err != nil {
		return err
	}
	anchor, err := mustDigest(r.Anchor, "receipt.anchor")
	if err != nil {
		return err
	}

	path := make([]PathStep, len(r.Entries))
	for i, e := range r.Entries {
		sibling, err := mustDigest(e.Hash, fmt.Sprintf("receipt.entries[%d].hash", i))
		if err != nil {
			return err
		}
		pos := PositionRight
		if e.Right {
			pos = PositionLeft
		}
		path[i] = PathStep{Position: pos, Sibling: sibling}
	}

	if !VerifyPath(start, path, anchor) {
		return fmt.Errorf("merkle recomputation mismatch: path does not reach anchor %s", r.Anchor)
	}
	return nil
}

// ToJSON serializes the receipt.
func (r *Receipt) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ReceiptFromJSON deserializes a receipt.
func ReceiptFromJSON(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func mustDigest(s string, label string) (digest.D, error) {
	if s == "" {
		return digest.D{}, fmt.Errorf("%s: empty", label)
	}
	if len(s) != 2*digest.Size {
		return digest.D{}, fmt.Errorf("%s: expected %d hex chars (%d bytes), got len=%d", label, 2*digest.Size, digest.Size, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return digest.D{}, fmt.Errorf("%s: invalid hex: %w", label, err)
	}
	return digest.FromHex(s)
}
