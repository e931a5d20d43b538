package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/txbuddy/internal/chain"
	"github.com/mbd888/txbuddy/internal/events"
	"github.com/mbd888/txbuddy/internal/explainer"
	"github.com/mbd888/txbuddy/internal/explanations"
	"github.com/mbd888/txbuddy/internal/idgen"
	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
	"github.com/mbd888/txbuddy/internal/progress"
	"github.com/mbd888/txbuddy/internal/retry"
	"github.com/mbd888/txbuddy/internal/risk"
	"github.com/mbd888/txbuddy/internal/traces"
)

// RiskAssessor classifies a mined transaction. It never fails.
type RiskAssessor interface {
	Assess(ctx context.Context, address string, tx *chain.Transaction, receipt *chain.Receipt) risk.Verdict
}

// ProgressApplier is the locked progress read-modify-write.
type ProgressApplier interface {
	Apply(ctx context.Context, address string, action progress.ActionKind, actx progress.ActionContext) (*progress.Result, error)
	Level(ctx context.Context, address string) int
}

// Pipeline processes one transaction at a time per call; callers run
// calls concurrently.
type Pipeline struct {
	chain     chain.Reader
	risk      RiskAssessor
	explainer explainer.Explainer
	records   explanations.Store
	progress  ProgressApplier
	publisher events.Publisher
	persist   retry.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline wires a pipeline. Persistence defaults to 3 attempts with a
// 1s base backoff.
func NewPipeline(reader chain.Reader, assessor RiskAssessor, expl explainer.Explainer,
	records explanations.Store, prog ProgressApplier, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		chain:     reader,
		risk:      assessor,
		explainer: expl,
		records:   records,
		progress:  prog,
		publisher: events.Nop{},
		persist:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Second},
		logger:    logging.OrDefault(logger),
		now:       time.Now,
	}
}

// WithPublisher sets the event publisher.
func (p *Pipeline) WithPublisher(pub events.Publisher) *Pipeline {
	if pub != nil {
		p.publisher = pub
	}
	return p
}

// WithPersistPolicy sets the retry policy for record writes.
func (p *Pipeline) WithPersistPolicy(policy retry.Policy) *Pipeline {
	p.persist = policy
	return p
}

// Process analyzes txHash for a monitored address, stores the record,
// awards TRANSACTION_ANALYZED and publishes the result. The user level is
// read from stored progress. A missing transaction or receipt aborts this
// transaction only.
func (p *Pipeline) Process(ctx context.Context, address, txHash string) (err error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "analysis.Process", traces.Address(address), traces.TxHash(txHash))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "aborted"
		}
		metrics.AnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		traces.End(span, err)
	}()

	log := logging.WithAddress(p.logger, address).With("tx", txHash)

	level := p.progress.Level(ctx, address)
	span.SetAttributes(traces.UserLevel(level))

	tx, rec, err := p.run(ctx, address, txHash, level)
	if err != nil {
		log.Warn("transaction analysis aborted", "error", err)
		return err
	}
	span.SetAttributes(traces.RiskLevel(string(rec.Risk.Level)))

	p.store(ctx, rec)

	res, err := p.progress.Apply(ctx, address, progress.ActionTransactionAnalyzed, ActionContext(tx, rec.Risk, rec.Complexity))
	if err != nil {
		// XP is lost for this transaction; the record is already stored.
		log.Error("failed to apply progress", "error", err)
	}

	ev := events.New(events.TypeTransactionAnalyzed, address, rec)
	ev.TxHash = rec.TxHash
	ev.RiskLevel = string(rec.Risk.Level)
	p.publisher.Publish(ctx, ev)

	gained := uint64(0)
	if res != nil {
		gained = res.XPGained
	}
	log.Info("transaction analyzed", "risk", rec.Risk.Level, "complexity", rec.Complexity, "type", rec.Type, "xp", gained)
	return nil
}

// Analyze runs the pipeline for an arbitrary transaction on demand. It
// stores the record but leaves progress untouched.
func (p *Pipeline) Analyze(ctx context.Context, txHash string, userLevel int) (a *Analysis, err error) {
	ctx, span := traces.StartSpan(ctx, "analysis.Analyze", traces.TxHash(txHash), traces.UserLevel(userLevel))
	defer func() { traces.End(span, err) }()

	_, rec, err := p.run(ctx, "", txHash, clampLevel(userLevel))
	if err != nil {
		return nil, err
	}
	p.store(ctx, rec)
	return &Analysis{Record: rec, Report: FormatReport(rec, false)}, nil
}

func (p *Pipeline) run(ctx context.Context, address, txHash string, level int) (*chain.Transaction, *explanations.Record, error) {
	level = clampLevel(level)

	tx, err := p.chain.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch transaction: %w", err)
	}
	receipt, err := p.chain.GetReceipt(ctx, txHash)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if address == "" {
		address = tx.From
	}

	var (
		verdict     risk.Verdict
		explanation string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		verdict = p.risk.Assess(gctx, address, tx, receipt)
		return nil
	})
	g.Go(func() error {
		explanation = p.explainer.Explain(gctx, BuildTxData(tx, receipt), level)
		return nil
	})
	_ = g.Wait()

	if explanation == "" {
		explanation = explainer.FailureText(explainer.ErrEmptyResponse)
	}

	return tx, &explanations.Record{
		ID:          idgen.WithPrefix("exp_"),
		TxHash:      txHash,
		Address:     address,
		UserLevel:   level,
		Explanation: explanation,
		Risk:        verdict,
		Complexity:  Complexity(tx),
		Type:        TxType(tx.Input),
		CreatedAt:   p.now(),
	}, nil
}

func (p *Pipeline) store(ctx context.Context, rec *explanations.Record) {
	wctx := context.WithoutCancel(ctx)
	err := p.persist.Do(wctx, func(ctx context.Context) error {
		err := p.records.Append(ctx, rec)
		if errors.Is(err, explanations.ErrInvalidRecord) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.PersistDroppedTotal.WithLabelValues("explanation").Inc()
		logging.WithAddress(p.logger, rec.Address).Error("explanation write dropped", "tx", rec.TxHash, "error", err)
	}
}

func clampLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > progress.MaxLevel:
		return progress.MaxLevel
	}
	return level
}
