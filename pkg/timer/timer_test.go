// Copyright 2025 Certen Protocol

package timer

import (
	"context"
	"testing"
	"time"

	"github.com/certen/ledgersubsystem/pkg/mailbox"
)

func TestTimer_FiresAfterPeriod(t *testing.T) {
	mb := mailbox.New(1)
	tm := New(10*time.Millisecond, mb)
	tm.Arm()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	msg, ok := mb.Wait(ctx)
	if !ok || msg.Kind != mailbox.Timer {
		t.Fatalf("expected a Timer message, got %+v ok=%v", msg, ok)
	}
}

func TestTimer_RearmRestartsCountdown(t *testing.T) {
	mb := mailbox.New(1)
	tm := New(40*time.Millisecond, mb)
	tm.Arm()

	time.Sleep(20 * time.Millisecond)
	tm.Arm() // restart before the first period elapses

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, ok := mb.Wait(ctx); ok {
		t.Fatal("timer should not have fired yet after rearm")
	}
}

func TestTimer_DisarmPreventsFire(t *testing.T) {
	mb := mailbox.New(1)
	tm := New(15*time.Millisecond, mb)
	tm.Arm()
	tm.Disarm()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, ok := mb.Wait(ctx); ok {
		t.Fatal("disarmed timer should not post")
	}
}
