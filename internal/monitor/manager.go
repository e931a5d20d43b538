package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/txbuddy/internal/events"
	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
	"github.com/mbd888/txbuddy/internal/syncutil"
	"github.com/mbd888/txbuddy/internal/traces"
)

// Config tunes session timing.
type Config struct {
	PollInterval time.Duration // reference 30s
	Retention    time.Duration // inactive sessions older than this are reaped
}

type session struct {
	address string

	// tickMu serializes ticks of this session; mu guards the fields below
	// and is never held across I/O.
	tickMu sync.Mutex

	mu          sync.Mutex
	lastChecked uint64
	active      bool
	lastUpdate  time.Time
	pending     map[string]struct{}
	stop        func()
}

func (s *session) view() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		Address:             s.address,
		LastCheckedBlock:    s.lastChecked,
		IsActive:            s.active,
		LastUpdate:          s.lastUpdate,
		PendingTransactions: len(s.pending),
	}
}

func (s *session) snapshot() Snapshot {
	v := s.view()
	return Snapshot{Address: v.Address, LastCheckedBlock: v.LastCheckedBlock, IsActive: v.IsActive, LastUpdate: v.LastUpdate}
}

// Manager owns every session in the process.
type Manager struct {
	head      HeadReader
	lister    TxLister
	processor Processor
	pool      *Pool
	cfg       Config

	scheduler Scheduler
	store     SessionStore
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger

	locks    *syncutil.KeyedMutex // start/stop per address
	mu       sync.RWMutex
	sessions map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager. Sessions are not persisted unless
// WithStore is used.
func NewManager(head HeadReader, lister TxLister, processor Processor, pool *Pool, cfg Config, logger *slog.Logger) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		head:      head,
		lister:    lister,
		processor: processor,
		pool:      pool,
		cfg:       cfg,
		scheduler: TickerScheduler{},
		publisher: events.Nop{},
		now:       time.Now,
		logger:    logging.OrDefault(logger),
		locks:     syncutil.NewKeyedMutex(),
		sessions:  make(map[string]*session),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithScheduler replaces the ticker scheduler.
func (m *Manager) WithScheduler(s Scheduler) *Manager {
	m.scheduler = s
	return m
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithStore enables session snapshots.
func (m *Manager) WithStore(store SessionStore) *Manager {
	m.store = store
	return m
}

// WithPublisher sets where monitoring_started/stopped events go.
func (m *Manager) WithPublisher(pub events.Publisher) *Manager {
	if pub != nil {
		m.publisher = pub
	}
	return m
}

// StartMonitoring begins polling address from the current head block.
// An inactive session is reactivated in place, keeping its pending set and
// never moving its watermark backwards.
func (m *Manager) StartMonitoring(ctx context.Context, address string) Result {
	address = strings.ToLower(address)
	unlock := m.locks.Lock(address)
	defer unlock()

	if s := m.get(address); s != nil && s.view().IsActive {
		return Result{Success: false, Message: alreadyMsg(address)}
	}

	head, err := m.head.CurrentBlock(ctx)
	if err != nil {
		logging.WithAddress(m.logger, address).Warn("failed to read head block", "error", err)
		return Result{Success: false, Message: startFailedMsg(err)}
	}

	m.mu.Lock()
	s, ok := m.sessions[address]
	if !ok {
		s = &session{address: address, pending: make(map[string]struct{})}
		m.sessions[address] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	if head > s.lastChecked {
		s.lastChecked = head
	}
	from := s.lastChecked
	s.active = true
	s.lastUpdate = m.now()
	s.stop = m.schedule(address)
	s.mu.Unlock()

	m.refreshGauge()
	m.save(ctx, s)
	m.publisher.Publish(ctx, events.New(events.TypeMonitoringStarted, address, map[string]any{"lastCheckedBlock": from}))
	logging.WithAddress(m.logger, address).Info("started monitoring", "block", from)
	return Result{Success: true, Message: startedMsg(address)}
}

// StopMonitoring cancels future ticks. Analyses already dispatched run to
// completion.
func (m *Manager) StopMonitoring(ctx context.Context, address string) Result {
	address = strings.ToLower(address)
	unlock := m.locks.Lock(address)
	defer unlock()

	s := m.get(address)
	if s == nil {
		return Result{Success: false, Message: notMonitoredMsg(address)}
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return Result{Success: false, Message: notMonitoredMsg(address)}
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.active = false
	s.lastUpdate = m.now()
	pending := len(s.pending)
	s.mu.Unlock()

	m.refreshGauge()
	m.save(ctx, s)
	m.publisher.Publish(ctx, events.New(events.TypeMonitoringStopped, address, nil))
	logging.WithAddress(m.logger, address).Info("stopped monitoring", "inFlight", pending)
	return Result{Success: true, Message: stoppedMsg(address)}
}

// GetStatus returns the session for address, active or not.
func (m *Manager) GetStatus(address string) (Session, error) {
	s := m.get(strings.ToLower(address))
	if s == nil {
		return Session{}, ErrSessionNotFound
	}
	return s.view(), nil
}

// ListActive returns active sessions ordered by address.
func (m *Manager) ListActive() []Session {
	m.mu.RLock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Session, 0, len(all))
	for _, s := range all {
		if v := s.view(); v.IsActive {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Reap removes inactive sessions whose last update is older than the
// retention window and returns how many were removed.
func (m *Manager) Reap(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.Retention)

	m.mu.Lock()
	var reaped []string
	for addr, s := range m.sessions {
		s.mu.Lock()
		expired := !s.active && s.lastUpdate.Before(cutoff)
		s.mu.Unlock()
		if expired {
			delete(m.sessions, addr)
			reaped = append(reaped, addr)
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		for _, addr := range reaped {
			if err := m.store.Delete(ctx, addr); err != nil {
				logging.WithAddress(m.logger, addr).Warn("failed to delete session snapshot", "error", err)
			}
		}
	}
	if len(reaped) > 0 {
		metrics.ReapedTotal.Add(float64(len(reaped)))
		m.logger.Info("reaped inactive sessions", "count", len(reaped))
	}
	return len(reaped)
}

// Restore loads stored snapshots and re-arms the active ones from their
// stored watermark.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	snaps, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list session snapshots: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		address := strings.ToLower(snap.Address)
		unlock := m.locks.Lock(address)

		m.mu.Lock()
		if _, exists := m.sessions[address]; exists {
			m.mu.Unlock()
			unlock()
			continue
		}
		s := &session{
			address:     address,
			lastChecked: snap.LastCheckedBlock,
			active:      snap.IsActive,
			lastUpdate:  snap.LastUpdate,
			pending:     make(map[string]struct{}),
		}
		m.sessions[address] = s
		m.mu.Unlock()

		if snap.IsActive {
			s.mu.Lock()
			s.stop = m.schedule(address)
			s.mu.Unlock()
			restored++
		}
		unlock()
	}
	m.refreshGauge()
	m.logger.Info("restored monitoring sessions", "active", restored, "total", len(snaps))
	return restored, nil
}

// Shutdown stops every schedule without marking sessions inactive, then
// drains the worker pool until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.stop != nil {
			s.stop()
			s.stop = nil
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	m.cancel()
	if m.pool == nil {
		return nil
	}
	return m.pool.Drain(ctx)
}

func (m *Manager) schedule(address string) func() {
	return m.scheduler.Every(m.cfg.PollInterval, func() {
		m.safeTick(m.ctx, address)
	})
}

func (m *Manager) safeTick(ctx context.Context, address string) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithAddress(m.logger, address).Error("panic in poll tick", "panic", fmt.Sprint(r))
		}
	}()
	m.tick(ctx, address)
}

// tick runs one poll for address. Fetch failures leave the watermark
// where it was so the next tick retries the same range.
func (m *Manager) tick(ctx context.Context, address string) {
	s := m.get(address)
	if s == nil {
		return
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	active, last := s.active, s.lastChecked
	s.mu.Unlock()
	if !active {
		metrics.TicksTotal.WithLabelValues("inactive").Inc()
		return
	}

	log := logging.WithAddress(m.logger, address)

	head, err := m.head.CurrentBlock(ctx)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("head_error").Inc()
		log.Warn("failed to read head block", "error", err)
		return
	}
	if head <= last {
		metrics.TicksTotal.WithLabelValues("noop").Inc()
		return
	}

	ctx, span := traces.StartSpan(ctx, "monitor.tick", traces.Address(address), traces.Block(head))
	refs, err := m.lister.ListTransactions(ctx, address, last+1, head)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("fetch_error").Inc()
		log.Warn("failed to list transactions", "from", last+1, "to", head, "error", err)
		traces.End(span, err)
		return
	}

	dispatched := 0
	for _, ref := range refs {
		hash := strings.ToLower(ref.Hash)
		if !m.claim(s, hash) {
			metrics.DedupSkipsTotal.Inc()
			continue
		}
		err := m.pool.Submit(ctx, func(jctx context.Context) {
			defer m.release(s, hash)
			// Errors are logged by the processor.
			_ = m.processor.Process(jctx, address, hash)
		})
		if err != nil {
			m.release(s, hash)
			metrics.TicksTotal.WithLabelValues("dispatch_error").Inc()
			log.Warn("failed to dispatch transaction, range will be retried", "tx", hash, "error", err)
			traces.End(span, err)
			return
		}
		dispatched++
	}
	metrics.DispatchedTotal.Add(float64(dispatched))

	s.mu.Lock()
	if head > s.lastChecked {
		s.lastChecked = head
	}
	s.lastUpdate = m.now()
	s.mu.Unlock()

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	traces.End(span, nil)
	m.save(ctx, s)
	if dispatched > 0 {
		log.Info("dispatched transactions", "count", dispatched, "from", last+1, "to", head)
	}
}

// claim adds hash to the pending set; false means it is already in flight.
func (m *Manager) claim(s *session, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, inFlight := s.pending[hash]; inFlight {
		return false
	}
	s.pending[hash] = struct{}{}
	return true
}

func (m *Manager) release(s *session, hash string) {
	s.mu.Lock()
	delete(s.pending, hash)
	s.mu.Unlock()
}

func (m *Manager) get(address string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[address]
}

func (m *Manager) refreshGauge() {
	metrics.SessionsActive.Set(float64(len(m.ListActive())))
}

func (m *Manager) save(ctx context.Context, s *session) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, s.snapshot()); err != nil && !errors.Is(err, context.Canceled) {
		logging.WithAddress(m.logger, s.address).Warn("failed to save session snapshot", "error", err)
	}
}
