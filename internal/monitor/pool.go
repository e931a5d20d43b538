package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
)

// Pool is a fixed set of workers fed by a bounded queue. Submit blocks
// while the queue is full.
type Pool struct {
	jobs    chan func(context.Context)
	ctx     context.Context
	wg      sync.WaitGroup
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	once    sync.Once
}

// NewPool starts workers goroutines with a queue of the given capacity.
func NewPool(workers, queue int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		jobs:    make(chan func(context.Context), queue),
		ctx:     context.Background(),
		logger:  logging.OrDefault(logger),
		closing: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues job. It returns ErrPoolClosed after Drain has begun and
// ctx.Err() if ctx ends while waiting for queue space. Jobs run with a
// context that is not tied to ctx.
func (p *Pool) Submit(ctx context.Context, job func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Inc()
		return nil
	case <-p.closing:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting jobs and waits for queued and running jobs until
// ctx ends.
func (p *Pool) Drain(ctx context.Context) error {
	p.once.Do(func() {
		close(p.closing)
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %w", ctx.Err())
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.QueueDepth.Dec()
		p.run(job)
	}
}

func (p *Pool) run(job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in analysis worker", "panic", fmt.Sprint(r))
		}
	}()
	job(p.ctx)
}
