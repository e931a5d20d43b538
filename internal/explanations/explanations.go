// Package explanations stores the per-transaction analysis record: the
// generated explanation, the risk verdict and the level it was written for.
package explanations

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/txbuddy/internal/pagination"
	"github.com/mbd888/txbuddy/internal/risk"
)

var (
	ErrExplanationNotFound = errors.New("explanation not found")
	ErrInvalidRecord       = errors.New("invalid explanation record")
)

// Record is one stored analysis.
type Record struct {
	ID          string       `json:"id"`
	TxHash      string       `json:"txHash"`
	Address     string       `json:"address"`
	UserLevel   int          `json:"userLevel"`
	Explanation string       `json:"explanation"`
	Risk        risk.Verdict `json:"riskAssessment"`
	Complexity  int          `json:"complexity"`
	Type        string       `json:"type"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Validate checks the fields every record must carry.
func (r *Record) Validate() error {
	switch {
	case r.TxHash == "":
		return errors.Join(ErrInvalidRecord, errors.New("txHash is required"))
	case r.Explanation == "":
		return errors.Join(ErrInvalidRecord, errors.New("explanation is required"))
	case r.UserLevel < 1 || r.UserLevel > 100:
		return errors.Join(ErrInvalidRecord, errors.New("userLevel must be between 1 and 100"))
	}
	return nil
}

// Filter narrows a ListByTx query. Zero UserLevel means any level.
type Filter struct {
	UserLevel int
	Limit     int
}

// Store persists explanation records. Records are append-only.
type Store interface {
	Append(ctx context.Context, r *Record) error
	ListByTx(ctx context.Context, txHash string, f Filter) ([]*Record, error)
	// ListByAddress returns records newest first, starting after before when set.
	ListByAddress(ctx context.Context, address string, limit int, before *pagination.Cursor) ([]*Record, error)
}

// RiskReason exposes the verdict reason to notification sinks.
func (r *Record) RiskReason() string { return r.Risk.Reason }
