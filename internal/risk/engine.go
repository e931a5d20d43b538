package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txbuddy/internal/chain"
	"github.com/mbd888/txbuddy/internal/idgen"
	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
)

// VerificationChecker answers whether a contract's source is verified.
// Lookup failures must read as false.
type VerificationChecker interface {
	IsVerifiedContract(ctx context.Context, address string) bool
}

// Assessor gathers facts for a mined transaction, runs the cascade and
// keeps an audit record.
type Assessor struct {
	verifier VerificationChecker
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewAssessor creates an assessor. store may be nil to skip the audit trail.
func NewAssessor(verifier VerificationChecker, store Store, logger *slog.Logger) *Assessor {
	return &Assessor{
		verifier: verifier,
		store:    store,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
}

// FactsFrom derives Facts from a transaction and its receipt. verified is
// ignored for contract creations, which always count as unverified.
func FactsFrom(tx *chain.Transaction, receipt *chain.Receipt, verified bool) Facts {
	f := Facts{
		ValueETH:         WeiToETH(tx.Value),
		GasUsed:          receipt.GasUsed,
		GasLimit:         tx.Gas,
		GasPriceWei:      chain.PaidGasPrice(tx, receipt),
		InputLength:      len(tx.Input),
		Failed:           !receipt.Succeeded(),
		VerifiedContract: verified && !tx.IsContractCreation(),
	}
	if len(tx.Input) >= 10 {
		f.MethodID = tx.Input[:10]
	} else {
		f.MethodID = tx.Input
	}
	return f
}

// WeiToETH converts a wei amount to ETH. nil is zero.
func WeiToETH(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// Assess classifies tx. It never fails: missing inputs or a panic while
// gathering facts produce the fallback verdict.
func (a *Assessor) Assess(ctx context.Context, address string, tx *chain.Transaction, receipt *chain.Receipt) (v Verdict) {
	var (
		facts *Facts
		rule  = RuleFallback
	)
	v = Fallback()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in risk assessment", "panic", fmt.Sprint(r))
			v, rule, facts = Fallback(), RuleFallback, nil
		}
		metrics.RiskVerdictsTotal.WithLabelValues(string(v.Level)).Inc()
		hash := ""
		if tx != nil {
			hash = tx.Hash
		}
		a.record(ctx, &Assessment{
			ID:          idgen.WithPrefix("risk_"),
			TxHash:      hash,
			Address:     address,
			Verdict:     v,
			Facts:       facts,
			Rule:        rule,
			EvaluatedAt: a.now(),
		})
	}()

	if tx == nil || receipt == nil {
		a.logger.Warn("risk assessment without transaction data", "address", address)
		return v
	}

	verified := false
	if !tx.IsContractCreation() && a.verifier != nil {
		verified = a.verifier.IsVerifiedContract(ctx, tx.To)
	}
	f := FactsFrom(tx, receipt, verified)
	facts = &f
	v, rule = assess(f)
	return v
}

func (a *Assessor) record(ctx context.Context, as *Assessment) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.store.Record(ctx, as); err != nil {
		a.logger.Warn("failed to record risk assessment", "tx", as.TxHash, "error", err)
	}
}
