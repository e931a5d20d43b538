// Package chain reads blocks, transactions and receipts from an EVM JSON-RPC
// node and converts them into the plain values the analysis pipeline uses.
package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	ErrTxNotFound      = errors.New("transaction not found")
	ErrReceiptNotFound = errors.New("transaction receipt not found")
)

// Receipt status values as reported by the node.
const (
	StatusFailed  uint64 = 0
	StatusSuccess uint64 = 1
)

// Transaction is the subset of a chain transaction the engine inspects.
type Transaction struct {
	Hash        string   `json:"hash"`
	From        string   `json:"from"`
	To          string   `json:"to,omitempty"` // empty for contract creation
	Value       *big.Int `json:"value"`        // wei
	Gas         uint64   `json:"gas"`          // gas limit
	GasPrice    *big.Int `json:"gasPrice"`     // wei
	Input       string   `json:"input"`        // 0x-prefixed hex
	Nonce       uint64   `json:"nonce"`
	BlockNumber uint64   `json:"blockNumber,omitempty"`
}

// IsContractCreation reports whether the transaction has no destination.
func (t *Transaction) IsContractCreation() bool {
	return t.To == ""
}

// Receipt is the subset of a transaction receipt the engine inspects.
type Receipt struct {
	TxHash            string   `json:"transactionHash"`
	Status            uint64   `json:"status"`
	GasUsed           uint64   `json:"gasUsed"`
	EffectiveGasPrice *big.Int `json:"effectiveGasPrice,omitempty"`
	BlockNumber       uint64   `json:"blockNumber"`
	LogCount          int      `json:"logCount"`
	ContractAddress   string   `json:"contractAddress,omitempty"`
}

// Succeeded reports whether the receipt status is success.
func (r *Receipt) Succeeded() bool {
	return r.Status == StatusSuccess
}

// PaidGasPrice is the price per gas the transaction actually paid: the
// receipt's effective price, or the transaction's own price when the receipt
// carries none. For dynamic-fee transactions tx.GasPrice is the fee cap.
// Returns nil when neither is known.
func PaidGasPrice(tx *Transaction, receipt *Receipt) *big.Int {
	if receipt != nil && receipt.EffectiveGasPrice != nil {
		return receipt.EffectiveGasPrice
	}
	if tx == nil {
		return nil
	}
	return tx.GasPrice
}

// Reader is the chain data the engine consumes.
type Reader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	GetTransaction(ctx context.Context, hash string) (*Transaction, error)
	GetReceipt(ctx context.Context, hash string) (*Receipt, error)
}
