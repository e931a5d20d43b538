// Package risk classifies a transaction as safe, warning or danger using an
// ordered rule cascade: the first matching rule decides, nothing is summed.
package risk

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Level is the verdict severity.
type Level string

const (
	LevelSafe    Level = "safe"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Verdict is the classifier output shown to the user.
type Verdict struct {
	Level          Level  `json:"riskLevel"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`
}

// Thresholds used by the default rules.
var (
	HighValueETH      = decimal.NewFromInt(1)
	HighGasPriceWei   = new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000)) // 100 gwei
	ComplexInputChars = 138                                                        // hex chars incl. 0x; a plain ERC-20 transfer is 138
)

// Facts are the observable properties of a mined transaction.
type Facts struct {
	ValueETH         decimal.Decimal `json:"valueEth"`
	GasUsed          uint64          `json:"gasUsed"`
	GasLimit         uint64          `json:"gasLimit"`
	GasPriceWei      *big.Int        `json:"gasPriceWei"`
	InputLength      int             `json:"inputLength"` // length of the 0x-prefixed hex input
	MethodID         string          `json:"methodId"`
	Failed           bool            `json:"failed"`
	VerifiedContract bool            `json:"verifiedContract"` // false for contract creation
}

// HighValue reports value > 1 native unit.
func (f Facts) HighValue() bool { return f.ValueETH.GreaterThan(HighValueETH) }

// UnusualGas reports gas used above 80% of the limit.
func (f Facts) UnusualGas() bool { return f.GasUsed > f.GasLimit*8/10 }

// ComplexData reports an input longer than a simple transfer payload.
func (f Facts) ComplexData() bool { return f.InputLength > ComplexInputChars }

// HighGasPrice reports a gas price above 100 gwei.
func (f Facts) HighGasPrice() bool {
	return f.GasPriceWei != nil && f.GasPriceWei.Cmp(HighGasPriceWei) > 0
}

// Assessment is one audit record of a classification.
type Assessment struct {
	ID          string    `json:"id"`
	TxHash      string    `json:"txHash"`
	Address     string    `json:"address,omitempty"`
	Verdict     Verdict   `json:"verdict"`
	Facts       *Facts    `json:"facts,omitempty"` // nil when the facts could not be gathered
	Rule        string    `json:"rule"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Store persists assessments for the audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByTx(ctx context.Context, txHash string, limit int) ([]*Assessment, error)
}
