// Copyright 2025 Certen Protocol

package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/mailbox"
	"github.com/certen/ledgersubsystem/pkg/merkle"
)

// verify walks leaf -> branch -> root to assemble a sibling path for
// txID, then confirms the root is anchored before reporting success. Any
// missing link in the walk (unregistered transaction, orphaned branch
// chain, unanchored root) yields Found: false rather than an error.
func (e *Engine) verify(ctx context.Context, txID digest.D) (mailbox.VerifyResult, error) {
	leaf, err := e.store.LookupLeafByChild(ctx, txID)
	if err != nil {
		return mailbox.VerifyResult{}, err
	}
	if leaf == nil {
		return mailbox.VerifyResult{Found: false}, nil
	}

	var path []mailbox.PathStep
	sibling, pos := siblingOf(leaf.Left, leaf.Right, txID)
	path = append(path, mailbox.PathStep{Position: pos, Digest: sibling})

	cursor := leaf.Digest
	for {
		branch, err := e.store.LookupBranchByChild(ctx, cursor)
		if err != nil {
			return mailbox.VerifyResult{}, err
		}
		if branch == nil {
			break
		}
		sibling, pos := siblingOf(branch.Left, branch.Right, cursor)
		path = append(path, mailbox.PathStep{Position: pos, Digest: sibling})
		cursor = branch.Digest
	}

	root, err := e.store.LookupRoot(ctx, cursor)
	if err != nil {
		return mailbox.VerifyResult{}, err
	}
	if root == nil {
		e.logger.Warn("merkle root not found", "tx_id", txID.Hex())
		return mailbox.VerifyResult{Found: false}, nil
	}

	_, chainID, contractAddr, err := parseSpec(root.Spec)
	if err != nil {
		return mailbox.VerifyResult{}, err
	}

	var blockHeight int64
	if e.client != nil {
		blockHeight, err = e.client.Lookup(ctx, cursor)
		if err != nil {
			return mailbox.VerifyResult{}, err
		}
	}
	if blockHeight <= 0 {
		e.logger.Warn("merkle root not anchored", "root", cursor.Hex())
		return mailbox.VerifyResult{Found: false}, nil
	}

	receipt := &merkle.Receipt{
		Start:       txID.Hex(),
		Anchor:      cursor.Hex(),
		BlockHeight: blockHeight,
		Entries:     toReceiptEntries(path),
	}
	if err := receipt.Validate(); err != nil {
		return mailbox.VerifyResult{}, fmt.Errorf("engine: assembled receipt for %s does not recompose to its root: %w", txID.Hex(), err)
	}

	return mailbox.VerifyResult{
		Found:       true,
		Spec:        root.Spec,
		ChainID:     chainID,
		Contract:    contractAddr,
		BlockHeight: blockHeight,
		Path:        path,
		Receipt:     receipt,
	}, nil
}

// toReceiptEntries translates a sibling path into a Receipt's portable
// entry list; mailbox's "left" position (the queried digest sits on the
// left, so H(cursor‖sibling)) is merkle.ReceiptEntry.Right == true.
func toReceiptEntries(path []mailbox.PathStep) []merkle.ReceiptEntry {
	entries := make([]merkle.ReceiptEntry, len(path))
	for i, step := range path {
		entries[i] = merkle.ReceiptEntry{Hash: step.Digest.Hex(), Right: step.Position == "left"}
	}
	return entries
}

// siblingOf reports which side child occupies in a (left, right) pair and
// returns the other side as its sibling. The position returned names the
// side child itself sits on, matching merkle.VerifyPath's convention that
// "left" recomposes as H(cursor‖sibling).
func siblingOf(left, right, child digest.D) (sibling digest.D, position string) {
	if left == child {
		return right, "left"
	}
	return left, "right"
}

// parseSpec decomposes a root's spec string ("<subsystem>:<chain_id>:<contract>:<contract_address>").
func parseSpec(spec string) (subsystem string, chainID int64, contractAddr string, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return "", 0, "", fmt.Errorf("engine: malformed root spec %q", spec)
	}
	chainID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("engine: malformed chain id in spec %q: %w", spec, err)
	}
	return parts[0], chainID, parts[3], nil
}
