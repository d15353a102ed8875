// Copyright 2025 Certen Protocol
//
// Package ethereum wraps go-ethereum's client for the two operations the
// anchoring client needs: submit a fixed ABI call carrying a 32-byte
// root and wait for it to be mined, with gas-price escalation on retry,
// and make a read-only contract call. It also offers a liveness check.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	goethereum "github.com/ethereum/go-ethereum"
)

// Client is a thin wrapper around ethclient.Client plus the chain ID
// needed to sign transactions.
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
	url     string
}

// NewClient dials url and returns a Client bound to chainID.
func NewClient(url string, chainID int64) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}
	return &Client{client: client, chainID: big.NewInt(chainID), url: url}, nil
}

// Health checks that the node is reachable.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("ethereum health check failed: %w", err)
	}
	return nil
}

// WaitForTransaction blocks until tx is mined and returns its receipt.
func (c *Client) WaitForTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for transaction: %w", err)
	}
	return receipt, nil
}

// CallContract makes a read-only contract call and unpacks methodName's
// outputs.
func (c *Client) CallContract(ctx context.Context, contractAddr common.Address, abiString string, methodName string, params ...interface{}) ([]interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(abiString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	callData, err := contractABI.Pack(methodName, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	result, err := c.client.CallContract(ctx, goethereum.CallMsg{
		To:   &contractAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(methodName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	return outputs, nil
}

// ContractCallResult is the outcome of a successful on-chain call.
type ContractCallResult struct {
	TransactionHash string
	BlockNumber     uint64
	BlockHash       string
	GasUsed         uint64
	GasCost         *big.Int
	Success         bool
	Timestamp       time.Time
}

// SendContractTransactionWithRetry packs methodName/params against
// abiString, signs with privateKeyHex, and sends to contractAddr,
// escalating gas price by 20% per attempt on the retryable errors nodes
// return under mempool contention (replacement underpriced, stale nonce,
// already-known transaction).
func (c *Client) SendContractTransactionWithRetry(ctx context.Context, contractAddr common.Address, abiString string, privateKeyHex string, methodName string, gasLimit uint64, maxRetries int, params ...interface{}) (*ContractCallResult, error) {
	contractABI, err := abi.JSON(strings.NewReader(abiString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	callData, err := contractABI.Pack(methodName, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	publicKeyECDSA := privateKey.Public().(*ecdsa.PublicKey)
	fromAddress := crypto.PubkeyToAddress(*publicKeyECDSA)

	minGasPrice := big.NewInt(5 * 1e9)

	for attempt := 0; attempt < maxRetries; attempt++ {
		nonce, err := c.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}

		baseGasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		if baseGasPrice.Cmp(minGasPrice) < 0 {
			baseGasPrice = minGasPrice
		}

		gasPrice := new(big.Int).Set(baseGasPrice)
		if attempt > 0 {
			multiplier := big.NewInt(int64(100 + (20 * attempt))) // 120%, 140%, ...
			gasPrice = gasPrice.Mul(gasPrice, multiplier)
			gasPrice = gasPrice.Div(gasPrice, big.NewInt(100))
		}

		tx := types.NewTransaction(nonce, contractAddr, big.NewInt(0), gasLimit, gasPrice, callData)
		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}

		if err := c.client.SendTransaction(ctx, signedTx); err != nil {
			errStr := err.Error()
			retryable := strings.Contains(errStr, "replacement transaction underpriced") ||
				strings.Contains(errStr, "nonce too low") ||
				strings.Contains(errStr, "already known")
			if retryable && attempt < maxRetries-1 {
				time.Sleep(2 * time.Second)
				continue
			}
			return nil, fmt.Errorf("failed to send transaction after %d attempts: %w", attempt+1, err)
		}

		receipt, err := c.WaitForTransaction(ctx, signedTx)
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		return &ContractCallResult{
			TransactionHash: signedTx.Hash().Hex(),
			BlockNumber:     receipt.BlockNumber.Uint64(),
			BlockHash:       receipt.BlockHash.Hex(),
			GasUsed:         receipt.GasUsed,
			GasCost:         new(big.Int).Mul(gasPrice, big.NewInt(int64(receipt.GasUsed))),
			Success:         receipt.Status == types.ReceiptStatusSuccessful,
			Timestamp:       time.Now(),
		}, nil
	}

	return nil, fmt.Errorf("failed to send transaction after %d attempts", maxRetries)
}

// GetBlockByNumber returns the block at blockNumber, or the latest block
// when blockNumber is nil.
func (c *Client) GetBlockByNumber(ctx context.Context, blockNumber *big.Int) (*types.Block, error) {
	block, err := c.client.BlockByNumber(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}
