// Copyright 2025 Certen Protocol
//
// Package checkpoint persists the single open batch's state to a small
// file inside the working directory, written whole on every state
// change so a crash mid-batch leaves an exact, replayable record.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/ledgersubsystem/pkg/digest"
)

// State is the open batch's state as recorded on disk. A missing file is
// equivalent to the zero State: no open batch.
type State struct {
	Left  digest.D `json:"left,omitempty"`
	Right digest.D `json:"right,omitempty"`
	Digest digest.D `json:"digest,omitempty"`
	Prev  digest.D `json:"prev,omitempty"`
	Count int      `json:"count"`
}

// Empty reports whether s represents "no open batch".
func (s State) Empty() bool {
	return s == State{}
}

// File is the on-disk checkpoint, exclusive to one aggregation engine.
type File struct {
	path string
}

// Open returns a File bound to path. It does not read or create
// anything yet — call Load to read the current state.
func Open(path string) *File {
	return &File{path: path}
}

// Load reads the checkpoint. A missing file returns the zero State and a
// nil error: "no open batch" is the default, not a fault.
func (f *File) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("checkpoint: reading %s: %w", f.path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("checkpoint: parsing %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes state atomically: write to a temp file in the same
// directory, then rename over the target. A torn write can never be
// observed as a partially-written checkpoint because the rename is the
// only operation that makes the new content visible at path.
func (f *File) Save(s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("checkpoint: marshaling state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: creating directory for %s: %w", f.path, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: writing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: renaming %s to %s: %w", tmp, f.path, err)
	}
	return nil
}

// Clear resets the checkpoint to the empty state, as required before any
// branch/root write on close so a crash between closes cannot reopen a
// stale batch.
func (f *File) Clear() error {
	return f.Save(State{})
}
