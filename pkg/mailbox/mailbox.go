// Copyright 2025 Certen Protocol
//
// Package mailbox is the aggregation engine's sole ingress: a FIFO queue
// of tagged messages with an append that blocks only while the buffer is
// full and a blocking wait, realized as a buffered channel instead of the donor's condition
// variable so it composes with context.Context cancellation.
package mailbox

import (
	"context"

	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/merkle"
)

// Kind tags the payload carried by a Message.
type Kind int

const (
	// Submit carries a transaction ID to register.
	Submit Kind = iota
	// Timer is posted by the timer component on expiry.
	Timer
	// Verify carries a transaction ID to verify; Done is closed by the
	// engine once Result is populated.
	Verify
	// Control carries an internal enable/disable request. It is not one
	// of the three message shapes external callers produce, but serializes
	// enable/disable with Submit/Timer/Verify on the same loop so the
	// anchoring-client pointer is never read and written concurrently.
	Control
)

// ControlAction names a Control message's requested action.
type ControlAction int

const (
	EnableControl ControlAction = iota
	DisableControl
)

// VerifyResult is filled in by the engine and observed by the caller
// once Done is closed. Receipt is the same sibling path as Path, packaged
// as a portable merkle.Receipt a caller can serialize and hand to a third
// party for independent re-verification.
type VerifyResult struct {
	Found       bool
	Spec        string
	ChainID     int64
	Contract    string
	BlockHeight int64
	Path        []PathStep
	Receipt     *merkle.Receipt
}

// PathStep is one hop of a sibling path, from the queried leaf up to the root.
type PathStep struct {
	Position string // "left" or "right"
	Digest   digest.D
}

// Message is the single heterogeneous envelope the mailbox carries.
type Message struct {
	Kind Kind

	// Submit / Verify
	TxID digest.D

	// Verify only: the engine writes into *Result then closes Done.
	Result *VerifyResult
	Done   chan struct{}

	// Control only.
	Action ControlAction
	Err    *error
}

// Mailbox is a FIFO queue of Messages with a bounded buffer deep enough
// that Append never blocks in practice; Wait blocks until a message is
// available or ctx is cancelled.
type Mailbox struct {
	ch chan Message
}

// New creates a Mailbox with the given buffer depth.
func New(depth int) *Mailbox {
	if depth <= 0 {
		depth = 1
	}
	return &Mailbox{ch: make(chan Message, depth)}
}

// Append enqueues msg. It does not block under normal operation because
// the channel is buffered; if the buffer is full it blocks until space
// frees up, which back-pressures producers exactly like the donor's
// Queue.append under load.
func (m *Mailbox) Append(msg Message) {
	m.ch <- msg
}

// Len reports the number of messages currently buffered, for gauge
// metrics; it is a snapshot and may be stale by the time it is read.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Wait blocks until a message is available or ctx is done, returning
// (Message{}, false) in the latter case.
func (m *Mailbox) Wait(ctx context.Context) (Message, bool) {
	select {
	case msg := <-m.ch:
		return msg, true
	case <-ctx.Done():
		return Message{}, false
	}
}

// SubmitMessage builds a Submit message for txID.
func SubmitMessage(txID digest.D) Message {
	return Message{Kind: Submit, TxID: txID}
}

// TimerMessage builds a Timer message.
func TimerMessage() Message {
	return Message{Kind: Timer}
}

// NewVerifyMessage builds a Verify message together with the completion
// channel and result slot the caller should wait on.
func NewVerifyMessage(txID digest.D) (Message, *VerifyResult, chan struct{}) {
	result := &VerifyResult{}
	done := make(chan struct{})
	return Message{Kind: Verify, TxID: txID, Result: result, Done: done}, result, done
}

// NewControlMessage builds a Control message together with the
// completion channel and error slot the caller should wait on.
func NewControlMessage(action ControlAction) (Message, *error, chan struct{}) {
	var errSlot error
	done := make(chan struct{})
	return Message{Kind: Control, Action: action, Err: &errSlot, Done: done}, &errSlot, done
}
