package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/txbuddy/internal/logging"
)

// Reaper periodically removes stale inactive sessions.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewReaper creates a reaper. The reference interval is one hour.
func NewReaper(manager *Manager, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{
		manager:  manager,
		interval: interval,
		logger:   logging.OrDefault(logger),
		stop:     make(chan struct{}),
	}
}

// Running reports whether the reaper loop is active.
func (r *Reaper) Running() bool {
	return r.running.Load()
}

// Start begins the reaper loop. Call in a goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeRun(ctx)
		}
	}
}

// Stop signals the reaper to stop.
func (r *Reaper) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

func (r *Reaper) safeRun(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in session reaper", "panic", fmt.Sprint(p))
		}
	}()
	r.manager.Reap(ctx)
}
