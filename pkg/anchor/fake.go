// Copyright 2025 Certen Protocol

package anchor

import (
	"context"
	"sync"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

// FakeClient is an in-memory Client used by engine and verifier tests.
// It records every root handed to Anchor and reports a configurable
// block height for Lookup.
type FakeClient struct {
	mu          sync.Mutex
	anchored    []digest.D
	blockHeight int64
	err         error
}

// NewFakeClient returns a FakeClient that reports blockHeight for any
// anchored root.
func NewFakeClient(blockHeight int64) *FakeClient {
	return &FakeClient{blockHeight: blockHeight}
}

// SetErr makes subsequent Anchor calls fail with err.
func (f *FakeClient) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetBlockHeight changes the height Lookup reports.
func (f *FakeClient) SetBlockHeight(height int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockHeight = height
}

func (f *FakeClient) Anchor(ctx context.Context, root digest.D) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.anchored = append(f.anchored, root)
	return nil
}

func (f *FakeClient) Lookup(ctx context.Context, root digest.D) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.anchored {
		if r == root {
			return f.blockHeight, nil
		}
	}
	return 0, nil
}

// Anchored returns a copy of the roots submitted so far, in submission order.
func (f *FakeClient) Anchored() []digest.D {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]digest.D, len(f.anchored))
	copy(out, f.anchored)
	return out
}
