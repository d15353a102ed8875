// Copyright 2025 Certen Protocol
//
// Package engine is the aggregation engine: a single goroutine that owns
// the open batch, the leaf/branch/root tables, and the anchoring client,
// and serializes every mutation through one mailbox. Grounded on the
// donor's subsystem_loop/Queue pair, narrowed from a free-threaded Python
// loop to a context-cancellable Go goroutine reading one channel.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/certen/ledgersubsystem/internal/logging"
	"github.com/certen/ledgersubsystem/pkg/anchor"
	"github.com/certen/ledgersubsystem/pkg/checkpoint"
	"github.com/certen/ledgersubsystem/pkg/config"
	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/ledgerstore"
	"github.com/certen/ledgersubsystem/pkg/mailbox"
	"github.com/certen/ledgersubsystem/pkg/timer"
)

// contractName is the fixed literal recorded in every root's spec string,
// narrowed from the donor's single hardcoded contract name to this
// subsystem's anchor contract.
const contractName = "LedgerAnchor"

// ClientFactory constructs the anchoring client used once Enable
// succeeds. It is called from the engine loop, never concurrently with
// itself, so implementations need not be goroutine-safe beyond that.
type ClientFactory func() (anchor.Client, error)

// Engine is the aggregation engine. Zero value is not usable; build one
// with New.
type Engine struct {
	mbox    *mailbox.Mailbox
	store   *ledgerstore.Store
	ckpt    *checkpoint.File
	tm      *timer.Timer
	logger  *logging.Logger
	metrics *Metrics

	capacity     int
	subsystem    string
	chainID      int64
	contractAddr string

	makeClient ClientFactory
	client     anchor.Client

	enabled atomic.Bool

	// batch is the in-memory mirror of the checkpoint; the engine loop is
	// the only reader/writer, so no lock is needed.
	batch checkpoint.State
}

// New builds an Engine. mbox, store and ckpt are owned by the caller and
// must outlive the engine. makeClient is invoked by Enable to construct
// the anchoring client from the currently configured credentials.
func New(cfg *config.Config, mbox *mailbox.Mailbox, store *ledgerstore.Store, ckpt *checkpoint.File, tm *timer.Timer, makeClient ClientFactory, logger *logging.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		mbox:         mbox,
		store:        store,
		ckpt:         ckpt,
		tm:           tm,
		logger:       logger.WithComponent("engine"),
		metrics:      metrics,
		capacity:     cfg.LedgerSubsystem.MaxTransactions,
		subsystem:    cfg.LedgerSubsystem.Subsystem,
		chainID:      cfg.Ethereum.ChainID,
		contractAddr: cfg.Ethereum.ContractAddress,
		makeClient:   makeClient,
	}
}

// Run loads the checkpoint and processes mailbox messages until ctx is
// done. It is meant to run in its own goroutine for the engine's
// lifetime; there is exactly one Run per Engine.
func (e *Engine) Run(ctx context.Context) error {
	b, err := e.ckpt.Load()
	if err != nil {
		return fmt.Errorf("engine: loading checkpoint: %w", err)
	}
	e.batch = b

	for {
		msg, ok := e.mbox.Wait(ctx)
		if !ok {
			return ctx.Err()
		}
		e.metrics.MailboxDepth.Set(float64(e.mbox.Len()))
		switch msg.Kind {
		case mailbox.Submit:
			if err := e.handleSubmit(ctx, msg.TxID); err != nil {
				e.logger.WithError(err).Error("submit failed", "tx_id", msg.TxID.Hex())
			}
		case mailbox.Timer:
			// A late fire that arrives after Disable is a no-op.
			if !e.enabled.Load() {
				break
			}
			if err := e.close(ctx); err != nil {
				e.logger.WithError(err).Error("timer-triggered close failed")
			}
		case mailbox.Verify:
			result, err := e.verify(ctx, msg.TxID)
			if err != nil {
				e.logger.WithError(err).Error("verify failed", "tx_id", msg.TxID.Hex())
			}
			if msg.Result != nil {
				*msg.Result = result
			}
			if msg.Done != nil {
				close(msg.Done)
			}
		case mailbox.Control:
			e.handleControl(ctx, msg)
		}
	}
}

func (e *Engine) handleControl(ctx context.Context, msg mailbox.Message) {
	var err error
	switch msg.Action {
	case mailbox.EnableControl:
		err = e.doEnable()
	case mailbox.DisableControl:
		e.doDisable()
	}
	if msg.Err != nil {
		*msg.Err = err
	}
	if msg.Done != nil {
		close(msg.Done)
	}
}

func (e *Engine) doEnable() error {
	if e.subsystem != "ethereum" {
		return fmt.Errorf("engine: unsupported ledger_subsystem.subsystem %q", e.subsystem)
	}
	client, err := e.makeClient()
	if err != nil {
		return fmt.Errorf("engine: constructing anchoring client: %w", err)
	}
	e.client = client
	e.tm.Arm()
	return nil
}

func (e *Engine) doDisable() {
	e.tm.Disarm()
	e.client = nil
}

// Register enqueues a transaction ID for inclusion in the next batch.
// assetGroupID is opaque to the engine — it is accepted only so callers
// have a single call matching the public register(asset_group_id, tx_id)
// operation and is carried no further than this log line. A call while
// disabled is logged and otherwise ignored, matching the donor's "ledger
// subsystem not enabled" warning.
func (e *Engine) Register(assetGroupID string, txID digest.D) {
	if !e.enabled.Load() {
		e.logger.Warn("register called while disabled", "asset_group_id", assetGroupID)
		return
	}
	e.mbox.Append(mailbox.SubmitMessage(txID))
}

// Verify asks the engine whether txID is anchored, blocking until the
// engine loop has produced a result or ctx is done. assetGroupID is
// opaque to the engine, accepted only to match the public
// verify(asset_group_id, tx_id) operation.
func (e *Engine) Verify(ctx context.Context, assetGroupID string, txID digest.D) (mailbox.VerifyResult, error) {
	if !e.enabled.Load() {
		e.logger.Warn("verify called while disabled", "asset_group_id", assetGroupID)
		return mailbox.VerifyResult{}, nil
	}
	msg, result, done := mailbox.NewVerifyMessage(txID)
	e.mbox.Append(msg)
	select {
	case <-done:
		return *result, nil
	case <-ctx.Done():
		return mailbox.VerifyResult{}, ctx.Err()
	}
}

// Enable constructs the anchoring client from the currently configured
// credentials and arms the close timer, blocking until the engine loop
// has completed the transition or ctx is done. The client is constructed
// on the engine loop itself so it is never read and written concurrently
// with Disable.
func (e *Engine) Enable(ctx context.Context) error {
	msg, errSlot, done := mailbox.NewControlMessage(mailbox.EnableControl)
	e.mbox.Append(msg)
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if *errSlot != nil {
		return *errSlot
	}
	e.enabled.Store(true)
	return nil
}

// Disable stops admitting new Register/Verify calls immediately, then
// disarms the timer and drops the anchoring client on the engine loop.
func (e *Engine) Disable(ctx context.Context) error {
	e.enabled.Store(false)
	msg, errSlot, done := mailbox.NewControlMessage(mailbox.DisableControl)
	e.mbox.Append(msg)
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return *errSlot
}
