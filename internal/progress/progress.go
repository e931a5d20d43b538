// Package progress tracks experience points, levels and achievements per
// address. The ledger functions are pure; Service adds per-address
// serialization and persistence.
package progress

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProgressNotFound = errors.New("progress not found")
	ErrUnknownAction    = errors.New("unknown action")
)

// MaxLevel caps the level curve.
const MaxLevel = 100

// ActionKind names an XP-earning action.
type ActionKind string

const (
	ActionTransactionAnalyzed ActionKind = "TRANSACTION_ANALYZED"
	ActionSafeTransaction     ActionKind = "SAFE_TRANSACTION"
	ActionComplexInteraction  ActionKind = "COMPLEX_INTERACTION"
	ActionFirstDefi           ActionKind = "FIRST_DEFI"
	ActionAchievementUnlocked ActionKind = "ACHIEVEMENT_UNLOCKED"
)

// XPAction is an entry of the XP table.
type XPAction struct {
	Label       string
	BaseXP      uint64
	Multiplier  float64
	Description string
	// CountsTransaction marks actions that increment transactionsAnalyzed.
	CountsTransaction bool
}

// XPTable is the base XP per action.
var XPTable = map[ActionKind]XPAction{
	ActionTransactionAnalyzed: {"Transaction Analysis", 10, 1.0, "Analyzed a transaction", true},
	ActionSafeTransaction:     {"Safe Transaction", 20, 1.2, "Completed a safe transaction", true},
	ActionComplexInteraction:  {"Complex Interaction", 30, 1.5, "Handled complex contract interaction", true},
	ActionFirstDefi:           {"DeFi Pioneer", 50, 2.0, "First DeFi interaction", true},
	ActionAchievementUnlocked: {"Achievement", 100, 1.0, "Unlocked new achievement", false},
}

// ActionContext carries what the caller knows about the triggering event.
// Zero values mean "not present".
type ActionContext struct {
	TransactionHash      string `json:"transactionHash,omitempty"`
	Complexity           int    `json:"complexity,omitempty"`
	ComplexTransaction   bool   `json:"complexTransaction,omitempty"`
	HighValueTransaction bool   `json:"highValueTransaction,omitempty"`
	RiskLevel            string `json:"riskLevel,omitempty"`
	ConsecutiveDays      int    `json:"consecutiveDays,omitempty"`
	UniqueContracts      int    `json:"uniqueContracts,omitempty"`
	DefiInteraction      bool   `json:"defiInteraction,omitempty"`
}

// Unlocked is an achievement held by a user.
type Unlocked struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	XPReward     uint64    `json:"xpReward"`
	DateUnlocked time.Time `json:"dateUnlocked"`
}

// UserProgress is the per-address gamification state.
type UserProgress struct {
	Address              string     `json:"address"`
	XP                   uint64     `json:"xp"`
	Level                int        `json:"level"`
	TransactionsAnalyzed uint64     `json:"transactionsAnalyzed"`
	Achievements         []Unlocked `json:"achievements"`
	LastUpdate           time.Time  `json:"lastUpdate"`
}

// Default is the progress of an address that has never been seen.
func Default(address string) *UserProgress {
	return &UserProgress{
		Address:      address,
		Level:        1,
		Achievements: []Unlocked{},
	}
}

// Has reports whether the achievement id is held.
func (p *UserProgress) Has(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// AchievementIDs lists held ids in unlock order.
func (p *UserProgress) AchievementIDs() []string {
	ids := make([]string, len(p.Achievements))
	for i, a := range p.Achievements {
		ids[i] = a.ID
	}
	return ids
}

// Clone returns a deep copy.
func (p *UserProgress) Clone() *UserProgress {
	c := *p
	c.Achievements = make([]Unlocked, len(p.Achievements))
	copy(c.Achievements, p.Achievements)
	return &c
}

// Store persists progress records.
type Store interface {
	// Get returns ErrProgressNotFound when the address has no record.
	Get(ctx context.Context, address string) (*UserProgress, error)
	// Put inserts or replaces the record.
	Put(ctx context.Context, p *UserProgress) error
}
