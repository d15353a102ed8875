// Copyright 2025 Certen Protocol
//
// Package anchor defines the narrow anchoring-chain contract the
// aggregation engine depends on, and an Ethereum-backed implementation.
// Only one subsystem is supported today; design a new Client
// implementation rather than a plugin registry if a second one appears.
package anchor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/ledgersubsystem/internal/logging"
	"github.com/certen/ledgersubsystem/pkg/config"
	"github.com/certen/ledgersubsystem/pkg/digest"
	"github.com/certen/ledgersubsystem/pkg/ethereum"
)

// Client is the anchoring-chain contract the engine consumes: submit a
// root (blocking until confirmed) and look up the block height a
// previously submitted root was confirmed at.
type Client interface {
	Anchor(ctx context.Context, root digest.D) error
	Lookup(ctx context.Context, root digest.D) (blockHeight int64, err error)
}

// anchorABI is the fixed two-method contract surface the engine
// anchors roots against: one write method, one read method.
const anchorABI = `[
	{"inputs":[{"name":"root","type":"bytes32"}],"name":"anchorRoot","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"root","type":"bytes32"}],"name":"blockHeightOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const defaultGasLimit = 200_000
const defaultMaxRetries = 3

// EthereumClient anchors roots to a smart contract on an Ethereum-compatible
// chain via a single fixed ABI (anchorRoot/blockHeightOf), narrowed from the
// donor's cross-chain commitment-bundle ABI down to a single 32-byte-root
// contract.
type EthereumClient struct {
	eth             *ethereum.Client
	contractAddress common.Address
	signingKeyHex   string
	logger          *logging.Logger
}

// NewEthereumClient constructs an EthereumClient from configuration. The
// only supported subsystem value is "ethereum"; callers should validate
// that before calling this constructor (construction with an unsupported
// subsystem is a fatal error at enable time per the engine's contract).
func NewEthereumClient(cfg config.EthereumSettings, logger *logging.Logger) (*EthereumClient, error) {
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("anchor: ethereum.contract_address is required")
	}
	eth, err := ethereum.NewClient(cfg.URL, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("anchor: dialing ethereum client: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EthereumClient{
		eth:             eth,
		contractAddress: common.HexToAddress(cfg.ContractAddress),
		signingKeyHex:   cfg.Passphrase,
		logger:          logger.WithComponent("anchor"),
	}, nil
}

// Anchor submits root to the contract and blocks until the transaction
// is mined. It escalates gas price on the retryable send errors nodes
// report under mempool contention.
func (c *EthereumClient) Anchor(ctx context.Context, root digest.D) error {
	result, err := c.eth.SendContractTransactionWithRetry(
		ctx, c.contractAddress, anchorABI, c.signingKeyHex, "anchorRoot",
		defaultGasLimit, defaultMaxRetries, [32]byte(root),
	)
	if err != nil {
		return fmt.Errorf("anchor: submitting root %s: %w", root.Hex(), err)
	}
	if !result.Success {
		return fmt.Errorf("anchor: transaction %s for root %s reverted", result.TransactionHash, root.Hex())
	}
	c.logger.Info("root anchored", "root", root.Hex(), "tx", result.TransactionHash, "block", result.BlockNumber)
	return nil
}

// Lookup returns the block height root was confirmed at, or 0 if the
// contract has no record of it yet.
func (c *EthereumClient) Lookup(ctx context.Context, root digest.D) (int64, error) {
	outputs, err := c.eth.CallContract(ctx, c.contractAddress, anchorABI, "blockHeightOf", [32]byte(root))
	if err != nil {
		return 0, fmt.Errorf("anchor: looking up root %s: %w", root.Hex(), err)
	}
	if len(outputs) != 1 {
		return 0, fmt.Errorf("anchor: unexpected output count %d from blockHeightOf", len(outputs))
	}
	height, ok := outputs[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("anchor: unexpected output type %T from blockHeightOf", outputs[0])
	}
	return height.Int64(), nil
}
