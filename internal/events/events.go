// Package events fans engine events out to optional sinks: the websocket
// hub, Kafka and Discord. Sink failures are counted and logged, never
// returned to the publisher.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
)

// Type names an event.
type Type string

const (
	TypeTransactionAnalyzed Type = "transaction_analyzed"
	TypeLevelUp             Type = "level_up"
	TypeAchievementUnlocked Type = "achievement_unlocked"
	TypeMonitoringStarted   Type = "monitoring_started"
	TypeMonitoringStopped   Type = "monitoring_stopped"
)

// Event is one engine occurrence.
type Event struct {
	Type      Type      `json:"type"`
	Address   string    `json:"address,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	RiskLevel string    `json:"riskLevel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(typ Type, address string, data any) *Event {
	return &Event{Type: typ, Address: address, Timestamp: time.Now(), Data: data}
}

// Publisher accepts events. Implementations must not block for long.
type Publisher interface {
	Publish(ctx context.Context, e *Event)
}

// Sink is a destination that can fail.
type Sink interface {
	Name() string
	Send(ctx context.Context, e *Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) {}

// DefaultQueueSize is the number of events a Bus buffers for delivery.
const DefaultQueueSize = 256

type queued struct {
	ctx context.Context
	e   *Event
}

// Bus delivers each event to every sink in order on its own goroutine.
// Publish only enqueues, so callers holding locks never wait on a slow
// sink. A full queue drops the event.
type Bus struct {
	mu      sync.RWMutex
	sinks   []Sink
	closed  bool
	queue   chan queued
	done    chan struct{}
	timeout time.Duration
	logger  *slog.Logger
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus and starts its delivery loop. Nil sinks are skipped.
func NewBus(logger *slog.Logger, sinks ...Sink) *Bus {
	return NewBusWithQueue(DefaultQueueSize, logger, sinks...)
}

// NewBusWithQueue is NewBus with an explicit queue size.
func NewBusWithQueue(size int, logger *slog.Logger, sinks ...Sink) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	b := &Bus{
		queue:   make(chan queued, size),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
		logger:  logging.OrDefault(logger),
	}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	go b.run()
	return b
}

// Add appends a sink.
func (b *Bus) Add(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Len is the number of attached sinks.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Publish enqueues e without blocking. The caller's context values travel
// with the event; its cancellation does not.
func (b *Bus) Publish(ctx context.Context, e *Event) {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		metrics.EventsDroppedTotal.Inc()
		return
	}
	select {
	case b.queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
	default:
		metrics.EventsDroppedTotal.Inc()
		b.logger.Warn("event queue full, dropping event", "type", e.Type, "address", e.Address)
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx ends.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for q := range b.queue {
		b.deliver(q.ctx, q.e)
	}
}

func (b *Bus) deliver(ctx context.Context, e *Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, b.timeout)
		err := s.Send(sctx, e)
		cancel()
		if err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			b.logger.Warn("event sink failed", "sink", s.Name(), "type", e.Type, "error", err)
		}
	}
}
