// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

func TestReceipt_ValidateRoundTrip(t *testing.T) {
	t1, t2 := leafOf(1), leafOf(2)
	root := digest.Pair(t1, t2)

	r := &Receipt{
		Start:       t1.Hex(),
		Anchor:      root.Hex(),
		BlockHeight: 42,
		Entries:     []ReceiptEntry{{Hash: t2.Hex(), Right: true}},
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	data, err := r.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := ReceiptFromJSON(data)
	if err != nil {
		t.Fatalf("ReceiptFromJSON: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("Validate after round trip: %v", err)
	}
}

func TestReceipt_ValidateRejectsTamperedEntry(t *testing.T) {
	t1, t2 := leafOf(1), leafOf(2)
	root := digest.Pair(t1, t2)

	r := &Receipt{
		Start:       t1.Hex(),
		Anchor:      root.Hex(),
		BlockHeight: 1,
		Entries:     []ReceiptEntry{{Hash: leafOf(9).Hex(), Right: true}},
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for tampered sibling")
	}
}

func TestReceipt_ValidateRejectsMalformedHash(t *testing.T) {
	r := &Receipt{Start: "not-hex", Anchor: leafOf(1).Hex()}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for malformed start")
	}
}
