// Package analysis runs the per-transaction pipeline: fetch, classify and
// explain in parallel, score complexity, persist the record and award XP.
package analysis

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txbuddy/internal/chain"
	"github.com/mbd888/txbuddy/internal/explainer"
	"github.com/mbd888/txbuddy/internal/explanations"
	"github.com/mbd888/txbuddy/internal/progress"
	"github.com/mbd888/txbuddy/internal/risk"
)

// ComplexGasLimit is the gas limit above which a transaction scores as
// gas-heavy.
const ComplexGasLimit = 100_000

// Transaction types.
const (
	TypeETHTransfer         = "ETH Transfer"
	TypeERC20Transfer       = "ERC20 Transfer"
	TypeERC20TransferFrom   = "ERC20 TransferFrom"
	TypeContractInteraction = "Contract Interaction"
)

const (
	selectorTransfer     = "0xa9059cbb"
	selectorTransferFrom = "0x23b872dd"
)

// Analysis is the pipeline output for one transaction.
type Analysis struct {
	Record   *explanations.Record `json:"record"`
	Progress *progress.Result     `json:"progress,omitempty"`
	Report   string               `json:"report"`
}

func hasInput(input string) bool {
	return input != "" && input != "0x"
}

// Complexity scores a transaction from 2 to 6: input data adds 2, value
// above 1 ETH adds 2 (else 1), gas limit above ComplexGasLimit adds 2
// (else 1).
func Complexity(tx *chain.Transaction) int {
	if tx == nil {
		return 0
	}
	score := 0
	if hasInput(tx.Input) {
		score += 2
	}
	if risk.WeiToETH(tx.Value).GreaterThan(risk.HighValueETH) {
		score += 2
	} else {
		score++
	}
	if tx.Gas > ComplexGasLimit {
		score += 2
	} else {
		score++
	}
	return score
}

// TxType classifies a transaction by its calldata selector.
func TxType(input string) string {
	input = strings.ToLower(input)
	switch {
	case !hasInput(input):
		return TypeETHTransfer
	case strings.HasPrefix(input, selectorTransfer):
		return TypeERC20Transfer
	case strings.HasPrefix(input, selectorTransferFrom):
		return TypeERC20TransferFrom
	default:
		return TypeContractInteraction
	}
}

// GasCost is gas used times the paid gas price, in ETH.
func GasCost(tx *chain.Transaction, receipt *chain.Receipt) decimal.Decimal {
	price := chain.PaidGasPrice(tx, receipt)
	if price == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
	return risk.WeiToETH(wei)
}

// BuildTxData summarizes a transaction for the explainer.
func BuildTxData(tx *chain.Transaction, receipt *chain.Receipt) explainer.TxData {
	methodID := ""
	if hasInput(tx.Input) && len(tx.Input) >= 10 {
		methodID = tx.Input[:10]
	}
	gasPrice := "0"
	if price := chain.PaidGasPrice(tx, receipt); price != nil {
		gasPrice = price.String()
	}
	return explainer.TxData{
		Value:       risk.WeiToETH(tx.Value).String(),
		GasCost:     GasCost(tx, receipt).String(),
		Status:      receipt.Status,
		To:          tx.To,
		From:        tx.From,
		Hash:        tx.Hash,
		Input:       tx.Input,
		GasUsed:     strconv.FormatUint(receipt.GasUsed, 10),
		Type:        TxType(tx.Input),
		BlockNumber: receipt.BlockNumber,
		GasPrice:    gasPrice,
		MethodID:    methodID,
		Nonce:       tx.Nonce,
		Success:     receipt.Succeeded(),
		EventCount:  receipt.LogCount,
	}
}

// ActionContext builds the progress context for an analyzed transaction.
func ActionContext(tx *chain.Transaction, v risk.Verdict, complexity int) progress.ActionContext {
	return progress.ActionContext{
		TransactionHash:      tx.Hash,
		Complexity:           complexity,
		RiskLevel:            string(v.Level),
		ComplexTransaction:   complexity >= 5,
		HighValueTransaction: risk.WeiToETH(tx.Value).GreaterThan(risk.HighValueETH),
	}
}

// FormatReport renders the user-facing summary of an analysis.
func FormatReport(rec *explanations.Record, isNew bool) string {
	header := "Transaction Analysis:"
	if isNew {
		header = "New Transaction Detected!"
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(rec.Explanation)
	b.WriteString("\n\n")
	b.WriteString(FormatRisk(rec.Risk))
	return b.String()
}

// FormatRisk renders a verdict block.
func FormatRisk(v risk.Verdict) string {
	return fmt.Sprintf("Risk Assessment:\nLevel: %s\n%s\n\nRecommendation: %s",
		strings.ToUpper(string(v.Level)), v.Reason, v.Recommendation)
}
