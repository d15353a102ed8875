// Copyright 2025 Certen Protocol
//
// Package merkle folds a batch's leaf-digest chain into a single root,
// and verifies a sibling path back up to a root. Leaves are produced
// elsewhere (the aggregation engine pairs transaction IDs two at a time);
// this package only knows how to reduce a list of digests to one root and
// how to recompose a path.
package merkle

import (
	"crypto/subtle"
	"errors"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

// ErrEmptyBase is returned by Fold when called with no leaves.
var ErrEmptyBase = errors.New("merkle: cannot fold an empty leaf list")

// BranchWriter receives one call per interior node created during Fold,
// including the final pairing when two elements remain at the top — the
// resulting digest is recorded in both the branch table (as that
// pairing's node) and the root table (as the batch's root), so a root's
// immediate children are always reachable by a verifier ascending
// through branch rows. A single surviving element needs no pairing at
// all and is returned as the root directly, with no BranchWriter call.
type BranchWriter func(node, left, right digest.D) error

// Fold reduces base (leaf digests in batch submission order) to a single
// root digest. At each level, elements are paired left-to-right and
// hashed with digest.Pair; a trailing unpaired element is duplicated
// against itself (left-leaning duplication, applied at every level, not
// just the leaves). Folding continues while more than two elements
// remain at the current level; when it exits, a lone survivor is the
// root outright, and exactly two survivors are combined with one last
// call to emit, whose result is the root.
func Fold(base []digest.D, emit BranchWriter) (digest.D, error) {
	if len(base) == 0 {
		return digest.D{}, ErrEmptyBase
	}

	level := base
	for len(level) > 2 {
		next, err := foldLevel(level, emit)
		if err != nil {
			return digest.D{}, err
		}
		level = next
	}

	if len(level) == 1 {
		return level[0], nil
	}
	root := digest.Pair(level[0], level[1])
	if emit != nil {
		if err := emit(root, level[0], level[1]); err != nil {
			return digest.D{}, err
		}
	}
	return root, nil
}

func foldLevel(level []digest.D, emit BranchWriter) ([]digest.D, error) {
	next := make([]digest.D, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		node := digest.Pair(left, right)
		if emit != nil {
			if err := emit(node, left, right); err != nil {
				return nil, err
			}
		}
		next = append(next, node)
	}
	return next, nil
}

// Position identifies which side of its parent a queried digest occupies
// while ascending a sibling path.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// PathStep is one step of a sibling path from a leaf child up to a root.
type PathStep struct {
	Position Position
	Sibling  digest.D
}

// VerifyPath recomposes leaf by applying each step's sibling in turn.
// Position names which side the running digest occupies in its parent:
// "left" means H(cursor‖sibling), "right" means H(sibling‖cursor). The
// result is compared against root using a constant-time comparison, the
// same discipline the donor tree package used for static proof
// recomputation.
func VerifyPath(leaf digest.D, path []PathStep, root digest.D) bool {
	cursor := leaf
	for _, step := range path {
		if step.Position == PositionLeft {
			cursor = digest.Pair(cursor, step.Sibling)
		} else {
			cursor = digest.Pair(step.Sibling, cursor)
		}
	}
	return subtle.ConstantTimeCompare(cursor[:], root[:]) == 1
}
