// Copyright 2025 Certen Protocol
//
// Package timer implements the aggregation engine's recurring
// single-shot close timer: it posts one Timer message into the mailbox
// after a period of inactivity, then must be rearmed explicitly. Grounded
// on the donor batch scheduler's time.Timer + stop-channel pattern,
// narrowed to the single-shot rearm-on-fire contract the engine needs.
package timer

import (
	"sync"
	"time"

	"github.com/certen/ledgersubsystem/pkg/mailbox"
)

// Timer posts mailbox.TimerMessage() into a Mailbox after Period has
// elapsed since the last Arm call. Arm is idempotent: calling it while
// already armed simply restarts the countdown, matching "rearm on every
// tree close".
type Timer struct {
	mu     sync.Mutex
	period time.Duration
	mbox   *mailbox.Mailbox
	t      *time.Timer
	armed  bool
}

// New creates a Timer that posts into mbox after period of inactivity.
// It starts disarmed; call Arm to start the countdown.
func New(period time.Duration, mbox *mailbox.Mailbox) *Timer {
	return &Timer{period: period, mbox: mbox}
}

// Arm (re)starts the countdown. Safe to call repeatedly; each call
// cancels any pending fire and restarts the clock.
func (tm *Timer) Arm() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
	}
	tm.armed = true
	tm.t = time.AfterFunc(tm.period, tm.fire)
}

// Disarm cancels the pending fire. Cancellation is best-effort: a fire
// already in flight when Disarm is called may still post — the engine
// treats a Timer message that arrives while disabled as a no-op, per the
// donor's "late firing after disable" contract.
func (tm *Timer) Disarm() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
	}
	tm.armed = false
}

func (tm *Timer) fire() {
	tm.mu.Lock()
	armed := tm.armed
	tm.mu.Unlock()
	if !armed {
		return
	}
	tm.mbox.Append(mailbox.TimerMessage())
}
