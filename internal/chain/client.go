package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/txbuddy/internal/logging"
)

// EthClient abstracts the go-ethereum client for testing
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Client implements Reader over JSON-RPC.
type Client struct {
	eth    EthClient
	signer types.Signer
	logger *slog.Logger
}

var _ Reader = (*Client)(nil)

// Dial connects to rpcURL and checks the node's chain id against
// expectedChainID (skipped when zero).
func Dial(ctx context.Context, rpcURL string, expectedChainID int64, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if expectedChainID != 0 && chainID.Int64() != expectedChainID {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, configured %d", chainID, expectedChainID)
	}
	return New(eth, chainID, logger), nil
}

// New wraps an existing client. chainID selects the signer used to recover
// senders.
func New(eth EthClient, chainID *big.Int, logger *slog.Logger) *Client {
	return &Client{
		eth:    eth,
		signer: types.LatestSignerForChainID(chainID),
		logger: logging.OrDefault(logger),
	}
}

// CurrentBlock returns the chain head block number.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// GetTransaction returns ErrTxNotFound when the node does not know the hash.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	tx, pending, err := c.eth.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	out := &Transaction{
		Hash:     strings.ToLower(tx.Hash().Hex()),
		Value:    new(big.Int).Set(tx.Value()),
		Gas:      tx.Gas(),
		GasPrice: new(big.Int).Set(tx.GasPrice()),
		Input:    hexutil.Encode(tx.Data()),
		Nonce:    tx.Nonce(),
	}
	if to := tx.To(); to != nil {
		out.To = strings.ToLower(to.Hex())
	}
	if from, err := types.Sender(c.signer, tx); err == nil {
		out.From = strings.ToLower(from.Hex())
	} else {
		c.logger.Debug("could not recover sender", "tx", hash, "error", err)
	}
	if pending {
		c.logger.Debug("transaction still pending", "tx", hash)
	}
	return out, nil
}

// GetReceipt returns ErrReceiptNotFound for unknown or pending transactions.
func (c *Client) GetReceipt(ctx context.Context, hash string) (*Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", hash, err)
	}

	out := &Receipt{
		TxHash:   strings.ToLower(r.TxHash.Hex()),
		Status:   r.Status,
		GasUsed:  r.GasUsed,
		LogCount: len(r.Logs),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	if r.ContractAddress != (common.Address{}) {
		out.ContractAddress = strings.ToLower(r.ContractAddress.Hex())
	}
	return out, nil
}

// Ping is a health probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.CurrentBlock(ctx)
	return err
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
