// Copyright 2025 Certen Protocol

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/ledgersubsystem/pkg/checkpoint"
	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/ledgerstore"
	"github.com/certen/ledgersubsystem/pkg/merkle"
)

// handleSubmit advances the open batch by one transaction ID. The first
// ID of a pair is held in Left; the second completes a leaf, which is
// written immediately and the batch's pending slots cleared. The
// checkpoint is rewritten after every mutation, matching the donor's
// write-before-react discipline.
func (e *Engine) handleSubmit(ctx context.Context, txID digest.D) error {
	b := e.batch

	if b.Left == (digest.D{}) {
		b.Left = txID
		e.batch = b
		return e.ckpt.Save(b)
	}

	b.Right = txID
	b.Digest = digest.Pair(b.Left, txID)
	if err := e.ckpt.Save(b); err != nil {
		return err
	}

	leaf := ledgerstore.Leaf{Digest: b.Digest, Left: b.Left, Right: txID, Prev: b.Prev}
	if err := e.store.InsertLeaf(ctx, leaf); err != nil {
		return err
	}
	e.metrics.LeavesTotal.Inc()

	b.Prev = b.Digest
	b.Digest = digest.D{}
	b.Left = digest.D{}
	b.Right = digest.D{}
	b.Count += 2
	if err := e.ckpt.Save(b); err != nil {
		return err
	}
	e.batch = b

	if b.Count >= e.capacity {
		return e.close(ctx)
	}
	return nil
}

// close implements the tree-closure procedure: finalize any odd tail,
// reset the checkpoint before any branch/root write, fold the batch's
// leaf chain into a root, and hand the root to the anchoring client. It
// runs unconditionally on a timer fire and conditionally when a pair
// push crosses capacity; a batch with nothing pending closes to nothing.
func (e *Engine) close(ctx context.Context) error {
	started := time.Now()
	defer func() { e.metrics.BatchCloseSecs.Observe(time.Since(started).Seconds()) }()

	e.tm.Arm()

	b := e.batch
	var initial digest.D
	haveInitial := true

	switch {
	case b.Left != (digest.D{}) && b.Right == (digest.D{}):
		d := digest.Pair(b.Left, b.Left)
		if err := e.store.InsertLeaf(ctx, ledgerstore.Leaf{Digest: d, Left: b.Left, Right: b.Left, Prev: b.Prev}); err != nil {
			return err
		}
		e.metrics.LeavesTotal.Inc()
		initial = d
	case b.Prev != (digest.D{}):
		initial = b.Prev
	default:
		haveInitial = false
	}

	e.batch = checkpoint.State{}
	if err := e.ckpt.Clear(); err != nil {
		return err
	}
	if !haveInitial {
		return nil
	}

	base, err := e.walkLeafChain(ctx, initial)
	if err != nil {
		return err
	}

	root, err := merkle.Fold(base, func(node, left, right digest.D) error {
		if err := e.store.InsertBranch(ctx, ledgerstore.Branch{Digest: node, Left: left, Right: right}); err != nil {
			return err
		}
		e.metrics.BranchesTotal.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	if e.subsystem != "ethereum" {
		return nil
	}

	spec := fmt.Sprintf("%s:%d:%s:%s", e.subsystem, e.chainID, contractName, e.contractAddr)
	if err := e.store.InsertRoot(ctx, ledgerstore.Root{Root: root, Spec: spec}); err != nil {
		return err
	}
	e.metrics.RootsTotal.Inc()

	if e.client == nil {
		return nil
	}
	// Anchoring failure is delegated to the client: the root row already
	// exists regardless of acknowledgement, so a failure here is logged
	// and the loop moves on rather than retrying or rolling anything back.
	if err := e.client.Anchor(ctx, root); err != nil {
		e.logger.WithError(err).Error("anchoring root failed", "root", root.Hex())
	}
	return nil
}

// walkLeafChain follows prev backward from initial, collecting leaf
// digests in submission order.
func (e *Engine) walkLeafChain(ctx context.Context, initial digest.D) ([]digest.D, error) {
	var base []digest.D
	cursor := initial
	for {
		leaf, err := e.store.LookupLeafByDigest(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if leaf == nil {
			break
		}
		base = append([]digest.D{cursor}, base...)
		cursor = leaf.Prev
	}
	return base, nil
}
