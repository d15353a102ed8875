// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

func leafOf(b byte) digest.D {
	return digest.Of([]byte{b})
}

func TestFold_SingleLeafIsItsOwnRoot(t *testing.T) {
	l1 := leafOf(1)
	root, err := Fold([]digest.D{l1}, func(n, l, r digest.D) error {
		t.Fatalf("unexpected branch emit for single-leaf fold")
		return nil
	})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if root != l1 {
		t.Errorf("root = %x, want %x", root, l1)
	}
}

func TestFold_TwoLeavesOnePairingWritesTopBranch(t *testing.T) {
	l1, l2 := leafOf(1), leafOf(2)
	var branches []digest.D
	root, err := Fold([]digest.D{l1, l2}, func(n, l, r digest.D) error {
		branches = append(branches, n)
		return nil
	})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	want := digest.Pair(l1, l2)
	if len(branches) != 1 || branches[0] != want {
		t.Fatalf("branches = %x, want [%x]", branches, want)
	}
	if root != want {
		t.Errorf("root = %x, want %x", root, want)
	}
}

func TestFold_FourLeavesWritesLeafPairsAndTopBranch(t *testing.T) {
	l1, l2, l3, l4 := leafOf(1), leafOf(2), leafOf(3), leafOf(4)
	var branches []digest.D
	root, err := Fold([]digest.D{l1, l2, l3, l4}, func(n, l, r digest.D) error {
		branches = append(branches, n)
		return nil
	})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	b1 := digest.Pair(l1, l2)
	b2 := digest.Pair(l3, l4)
	want := digest.Pair(b1, b2)
	if len(branches) != 3 || branches[0] != b1 || branches[1] != b2 || branches[2] != want {
		t.Fatalf("branches = %x, want [%x %x %x]", branches, b1, b2, want)
	}
	if root != want {
		t.Errorf("root = %x, want %x", root, want)
	}
}

func TestFold_OddTrailingElementDuplicatedAtEveryLevel(t *testing.T) {
	l1, l2, l3 := leafOf(1), leafOf(2), leafOf(3)
	var branches []digest.D
	root, err := Fold([]digest.D{l1, l2, l3}, func(n, l, r digest.D) error {
		branches = append(branches, n)
		return nil
	})
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	b1 := digest.Pair(l1, l2)
	b2 := digest.Pair(l3, l3)
	want := digest.Pair(b1, b2)
	if len(branches) != 3 || branches[0] != b1 || branches[1] != b2 || branches[2] != want {
		t.Fatalf("branches = %x, want [%x %x %x]", branches, b1, b2, want)
	}
	if root != want {
		t.Errorf("root = %x, want %x", root, want)
	}
}

func TestFold_EmptyBaseErrors(t *testing.T) {
	if _, err := Fold(nil, nil); err != ErrEmptyBase {
		t.Errorf("err = %v, want ErrEmptyBase", err)
	}
}

func TestVerifyPath_S2Scenario(t *testing.T) {
	t1, t2, t3, t4 := leafOf(1), leafOf(2), leafOf(3), leafOf(4)
	l1 := digest.Pair(t1, t2)
	l2 := digest.Pair(t3, t4)
	root := digest.Pair(l1, l2)

	path := []PathStep{
		{Position: PositionLeft, Sibling: t4},
		{Position: PositionRight, Sibling: l1},
	}
	if !VerifyPath(t3, path, root) {
		t.Fatal("expected path to recompose to root")
	}

	path[1].Sibling = digest.Of([]byte("tampered"))
	if VerifyPath(t3, path, root) {
		t.Fatal("tampered sibling must not verify")
	}
}
