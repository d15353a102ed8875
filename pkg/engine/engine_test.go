// Copyright 2025 Certen Protocol

package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/certen/ledgersubsystem/pkg/anchor"
	"github.com/certen/ledgersubsystem/pkg/checkpoint"
	"github.com/certen/ledgersubsystem/pkg/config"
	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/ledgerstore"
	"github.com/certen/ledgersubsystem/pkg/mailbox"
	"github.com/certen/ledgersubsystem/pkg/merkle"
	"github.com/certen/ledgersubsystem/pkg/timer"
)

func newTestEngine(t *testing.T, capacity int, fc *anchor.FakeClient) *Engine {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	store, err := ledgerstore.Open(ctx, filepath.Join(dir, "aux.sqlite3"))
	if err != nil {
		t.Fatalf("ledgerstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ckpt := checkpoint.Open(filepath.Join(dir, "checkpoint.json"))
	mbox := mailbox.New(32)
	tm := timer.New(time.Hour, mbox)

	cfg := &config.Config{
		LedgerSubsystem: config.LedgerSubsystemConfig{
			MaxTransactions: capacity,
			MaxSeconds:      3600,
			Subsystem:       "ethereum",
		},
		Ethereum: config.EthereumSettings{ContractAddress: "0xabc", ChainID: 1},
	}

	eng := New(cfg, mbox, store, ckpt, tm, func() (anchor.Client, error) { return fc, nil }, nil, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	go eng.Run(runCtx)
	t.Cleanup(cancel)

	if err := eng.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}
	return eng
}

// recompose applies a verify path the same way merkle.VerifyPath does,
// duplicated here so the test doesn't have to import mailbox.PathStep
// into merkle.PathStep for a one-off check.
func recompose(leaf digest.D, path []mailbox.PathStep) digest.D {
	cursor := leaf
	for _, step := range path {
		if step.Position == "left" {
			cursor = digest.Pair(cursor, step.Digest)
		} else {
			cursor = digest.Pair(step.Digest, cursor)
		}
	}
	return cursor
}

func TestEngine_SingleSubmissionTimerClose(t *testing.T) {
	fc := anchor.NewFakeClient(42)
	eng := newTestEngine(t, 1000, fc)

	tx1 := digest.Of([]byte("tx1"))
	eng.Register("ag-1", tx1)
	eng.mbox.Append(mailbox.TimerMessage())

	result, err := eng.Verify(context.Background(), "ag-1", tx1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Found {
		t.Fatal("expected tx1 to be found")
	}
	if len(result.Path) != 1 {
		t.Fatalf("path length = %d, want 1", len(result.Path))
	}
	wantRoot := digest.Pair(tx1, tx1)
	if got := recompose(tx1, result.Path); got != wantRoot {
		t.Errorf("recomposed root = %x, want %x", got, wantRoot)
	}
	if result.BlockHeight != 42 {
		t.Errorf("block height = %d, want 42", result.BlockHeight)
	}
}

func TestEngine_FourLeavesCapacityClose(t *testing.T) {
	fc := anchor.NewFakeClient(7)
	eng := newTestEngine(t, 4, fc)

	t1 := digest.Of([]byte("t1"))
	t2 := digest.Of([]byte("t2"))
	t3 := digest.Of([]byte("t3"))
	t4 := digest.Of([]byte("t4"))
	eng.Register("ag-1", t1)
	eng.Register("ag-1", t2)
	eng.Register("ag-1", t3)
	eng.Register("ag-1", t4)

	result, err := eng.Verify(context.Background(), "ag-1", t3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Found {
		t.Fatal("expected t3 to be found")
	}

	l1 := digest.Pair(t1, t2)
	l2 := digest.Pair(t3, t4)
	root := digest.Pair(l1, l2)

	if len(result.Path) != 2 {
		t.Fatalf("path length = %d, want 2", len(result.Path))
	}
	if result.Path[0].Position != "left" || result.Path[0].Digest != t4 {
		t.Errorf("path[0] = %+v, want {left %x}", result.Path[0], t4)
	}
	if result.Path[1].Position != "right" || result.Path[1].Digest != l1 {
		t.Errorf("path[1] = %+v, want {right %x}", result.Path[1], l1)
	}
	if got := recompose(t3, result.Path); got != root {
		t.Errorf("recomposed root = %x, want %x", got, root)
	}

	if result.Receipt == nil {
		t.Fatal("expected a receipt")
	}
	if result.Receipt.Anchor != root.Hex() {
		t.Errorf("receipt anchor = %s, want %s", result.Receipt.Anchor, root.Hex())
	}
	data, err := result.Receipt.ToJSON()
	if err != nil {
		t.Fatalf("receipt.ToJSON: %v", err)
	}
	roundTripped, err := merkle.ReceiptFromJSON(data)
	if err != nil {
		t.Fatalf("merkle.ReceiptFromJSON: %v", err)
	}
	if err := roundTripped.Validate(); err != nil {
		t.Errorf("round-tripped receipt failed validation: %v", err)
	}
}

func TestEngine_OddLeafCountDuplicatesTrailingLeafAtClose(t *testing.T) {
	fc := anchor.NewFakeClient(9)
	eng := newTestEngine(t, 1000, fc)

	t1 := digest.Of([]byte("o1"))
	t2 := digest.Of([]byte("o2"))
	t3 := digest.Of([]byte("o3"))
	eng.Register("ag-1", t1)
	eng.Register("ag-1", t2)
	eng.Register("ag-1", t3)
	eng.mbox.Append(mailbox.TimerMessage())

	result, err := eng.Verify(context.Background(), "ag-1", t3)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Found {
		t.Fatal("expected t3 to be found")
	}

	l1 := digest.Pair(t1, t2)
	l2 := digest.Pair(t3, t3)
	root := digest.Pair(l1, l2)
	if got := recompose(t3, result.Path); got != root {
		t.Errorf("recomposed root = %x, want %x", got, root)
	}
}

func TestEngine_UnregisteredTransactionNotFound(t *testing.T) {
	fc := anchor.NewFakeClient(1)
	eng := newTestEngine(t, 1000, fc)

	result, err := eng.Verify(context.Background(), "ag-1", digest.Of([]byte("never-registered")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Found {
		t.Fatal("expected not found")
	}
}

func TestEngine_DisabledRegisterAndVerifyAreNoops(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := ledgerstore.Open(ctx, filepath.Join(dir, "aux.sqlite3"))
	if err != nil {
		t.Fatalf("ledgerstore.Open: %v", err)
	}
	defer store.Close()

	ckpt := checkpoint.Open(filepath.Join(dir, "checkpoint.json"))
	mbox := mailbox.New(8)
	tm := timer.New(time.Hour, mbox)
	cfg := &config.Config{
		LedgerSubsystem: config.LedgerSubsystemConfig{MaxTransactions: 10, MaxSeconds: 3600, Subsystem: "ethereum"},
		Ethereum:        config.EthereumSettings{ContractAddress: "0xabc", ChainID: 1},
	}
	fc := anchor.NewFakeClient(1)
	eng := New(cfg, mbox, store, ckpt, tm, func() (anchor.Client, error) { return fc, nil }, nil, nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.Run(runCtx)

	// Never enabled: Register must not enqueue, Verify must return
	// immediately without reaching the engine loop.
	eng.Register("ag-1", digest.Of([]byte("ignored")))
	result, err := eng.Verify(ctx, "ag-1", digest.Of([]byte("ignored")))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Found {
		t.Fatal("expected disabled verify to report not found")
	}
}

func TestEngine_EnableRejectsUnsupportedSubsystem(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := ledgerstore.Open(ctx, filepath.Join(dir, "aux.sqlite3"))
	if err != nil {
		t.Fatalf("ledgerstore.Open: %v", err)
	}
	defer store.Close()

	ckpt := checkpoint.Open(filepath.Join(dir, "checkpoint.json"))
	mbox := mailbox.New(8)
	tm := timer.New(time.Hour, mbox)
	cfg := &config.Config{
		LedgerSubsystem: config.LedgerSubsystemConfig{MaxTransactions: 10, MaxSeconds: 3600, Subsystem: "bitcoin"},
	}
	eng := New(cfg, mbox, store, ckpt, tm, func() (anchor.Client, error) { return anchor.NewFakeClient(1), nil }, nil, nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go eng.Run(runCtx)

	if err := eng.Enable(ctx); err == nil {
		t.Fatal("expected enable to reject an unsupported subsystem")
	}
}
