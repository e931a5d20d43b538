// Package monitor owns the address monitoring sessions.
//
// Each active session polls on a fixed interval: it reads the chain head,
// lists the address's transactions in (lastCheckedBlock, head], and hands
// every hash not already in flight to a bounded worker pool. The watermark
// advances as soon as the range is dispatched, so later ticks never wait
// on slow analyses; the per-session pending set keeps a hash from being
// processed twice at once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/txbuddy/internal/explorer"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPoolClosed      = errors.New("worker pool closed")
)

// HeadReader reads the chain head. chain.Client satisfies it.
type HeadReader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
}

// TxLister lists an address's transactions in an inclusive block range.
// explorer.Client satisfies it.
type TxLister interface {
	ListTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]explorer.TxRef, error)
}

// Processor analyzes one discovered transaction.
type Processor interface {
	Process(ctx context.Context, address, txHash string) error
}

// Result is the facade answer for start and stop.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func startedMsg(addr string) string { return fmt.Sprintf("Started monitoring address %s", addr) }
func alreadyMsg(addr string) string { return fmt.Sprintf("Address %s is already being monitored", addr) }
func stoppedMsg(addr string) string { return fmt.Sprintf("Stopped monitoring address %s", addr) }
func notMonitoredMsg(addr string) string { return fmt.Sprintf("Address %s is not being monitored", addr) }
func startFailedMsg(err error) string { return fmt.Sprintf("Error monitoring address: %s", err) }

// Session is a read-only view of a monitoring session.
type Session struct {
	Address             string    `json:"address"`
	LastCheckedBlock    uint64    `json:"lastCheckedBlock"`
	IsActive            bool      `json:"isActive"`
	LastUpdate          time.Time `json:"lastUpdate"`
	PendingTransactions int       `json:"pendingTransactions"`
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Address          string    `json:"address"`
	LastCheckedBlock uint64    `json:"lastCheckedBlock"`
	IsActive         bool      `json:"isActive"`
	LastUpdate       time.Time `json:"lastUpdate"`
}

// SessionStore keeps snapshots so sessions survive a restart.
type SessionStore interface {
	Save(ctx context.Context, s Snapshot) error
	Delete(ctx context.Context, address string) error
	List(ctx context.Context) ([]Snapshot, error)
}
