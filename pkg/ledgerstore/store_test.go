// Copyright 2025 Certen Protocol

package ledgerstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aux.sqlite3")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InsertAndLookupLeaf(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t1 := digest.Of([]byte("t1"))
	t2 := digest.Of([]byte("t2"))
	d := digest.Pair(t1, t2)

	if err := s.InsertLeaf(ctx, Leaf{Digest: d, Left: t1, Right: t2}); err != nil {
		t.Fatalf("InsertLeaf: %v", err)
	}

	got, err := s.LookupLeafByDigest(ctx, d)
	if err != nil {
		t.Fatalf("LookupLeafByDigest: %v", err)
	}
	if got == nil || got.Left != t1 || got.Right != t2 {
		t.Fatalf("got = %+v", got)
	}

	byChild, err := s.LookupLeafByChild(ctx, t2)
	if err != nil {
		t.Fatalf("LookupLeafByChild: %v", err)
	}
	if byChild == nil || byChild.Digest != d {
		t.Fatalf("byChild = %+v", byChild)
	}
}

func TestStore_LookupMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.LookupLeafByDigest(ctx, digest.Of([]byte("missing")))
	if err != nil {
		t.Fatalf("LookupLeafByDigest: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing leaf, got %+v", got)
	}
}

func TestStore_CollisionIsIgnoredNotErrored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t1 := digest.Of([]byte("t1"))
	t2 := digest.Of([]byte("t2"))
	d := digest.Pair(t1, t2)

	if err := s.InsertLeaf(ctx, Leaf{Digest: d, Left: t1, Right: t2}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	other := digest.Of([]byte("t3"))
	if err := s.InsertLeaf(ctx, Leaf{Digest: d, Left: t1, Right: other}); err != nil {
		t.Fatalf("colliding insert should not error: %v", err)
	}

	got, err := s.LookupLeafByDigest(ctx, d)
	if err != nil {
		t.Fatalf("LookupLeafByDigest: %v", err)
	}
	if got.Right != t2 {
		t.Fatalf("existing row should remain authoritative, got right=%x", got.Right)
	}
}

func TestStore_InsertAndLookupBranchAndRoot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l1 := digest.Of([]byte("l1"))
	l2 := digest.Of([]byte("l2"))
	b := digest.Pair(l1, l2)

	if err := s.InsertBranch(ctx, Branch{Digest: b, Left: l1, Right: l2}); err != nil {
		t.Fatalf("InsertBranch: %v", err)
	}
	gotBranch, err := s.LookupBranchByChild(ctx, l1)
	if err != nil {
		t.Fatalf("LookupBranchByChild: %v", err)
	}
	if gotBranch == nil || gotBranch.Digest != b {
		t.Fatalf("gotBranch = %+v", gotBranch)
	}

	spec := "ethereum:5:ledger:0xabc"
	if err := s.InsertRoot(ctx, Root{Root: b, Spec: spec}); err != nil {
		t.Fatalf("InsertRoot: %v", err)
	}
	gotRoot, err := s.LookupRoot(ctx, b)
	if err != nil {
		t.Fatalf("LookupRoot: %v", err)
	}
	if gotRoot == nil || gotRoot.Spec != spec {
		t.Fatalf("gotRoot = %+v", gotRoot)
	}
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
