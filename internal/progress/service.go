package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/txbuddy/internal/logging"
	"github.com/mbd888/txbuddy/internal/metrics"
	"github.com/mbd888/txbuddy/internal/retry"
	"github.com/mbd888/txbuddy/internal/syncutil"
)

// Observer is told about every applied transition. It runs under the
// address lock and must not call back into the Service.
type Observer func(ctx context.Context, address string, res Result)

// Service applies XP actions with one writer per address.
type Service struct {
	store  Store
	locks  *syncutil.KeyedMutex
	retry  retry.Policy
	logger *slog.Logger
	now    func() time.Time

	// unsynced holds state whose write was dropped after all retries.
	// Later reads and writes start from it so an outage never rolls
	// progress back.
	mu       sync.Mutex
	unsynced map[string]*UserProgress

	observers []Observer
}

// NewService creates a progress service.
func NewService(store Store, policy retry.Policy, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		locks:    syncutil.NewKeyedMutex(),
		retry:    policy,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
		unsynced: make(map[string]*UserProgress),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Observe registers fn for every subsequent transition.
func (s *Service) Observe(fn Observer) {
	s.observers = append(s.observers, fn)
}

// Get returns the current progress or the default for unknown addresses.
func (s *Service) Get(ctx context.Context, address string) (*UserProgress, error) {
	address = strings.ToLower(address)
	if p := s.pending(address); p != nil {
		return p, nil
	}
	p, err := s.store.Get(ctx, address)
	if errors.Is(err, ErrProgressNotFound) {
		return Default(address), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Level is a convenience for callers that only need the current level.
// Lookup failures report level 1.
func (s *Service) Level(ctx context.Context, address string) int {
	p, err := s.Get(ctx, address)
	if err != nil {
		logging.WithAddress(s.logger, address).Warn("progress lookup failed, using level 1", "error", err)
		return 1
	}
	return p.Level
}

// Apply runs one action against the address's progress and persists the
// result. A write that still fails after the retry policy is logged and
// kept in memory; the transition is returned either way.
func (s *Service) Apply(ctx context.Context, address string, action ActionKind, actx ActionContext) (*Result, error) {
	if _, ok := XPTable[action]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	address = strings.ToLower(address)

	unlock, err := s.locks.LockContext(ctx, address)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	res := ApplyAction(cur, action, actx, s.now())
	s.persist(ctx, res.Progress)

	metrics.XPAwardedTotal.Add(float64(res.XPGained))
	for _, a := range res.NewAchievements {
		metrics.AchievementsTotal.WithLabelValues(a.ID).Inc()
	}

	log := logging.WithAddress(s.logger, address)
	log.Debug("xp applied", "action", action, "gained", res.XPGained, "xp", res.Progress.XP, "level", res.Progress.Level)
	if res.LeveledUp {
		log.Info("level up", "from", res.PreviousLevel, "to", res.Progress.Level)
	}
	for _, a := range res.NewAchievements {
		log.Info("achievement unlocked", "achievement", a.ID)
	}

	for _, fn := range s.observers {
		fn(ctx, address, res)
	}
	return &res, nil
}

// Put replaces an address's progress. The level is rederived from XP.
func (s *Service) Put(ctx context.Context, p *UserProgress) (*UserProgress, error) {
	next := p.Clone()
	next.Address = strings.ToLower(next.Address)
	next.Level = CalculateLevel(next.XP)
	if next.Achievements == nil {
		next.Achievements = []Unlocked{}
	}
	next.LastUpdate = s.now()

	unlock, err := s.locks.LockContext(ctx, next.Address)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.store.Put(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to store progress: %w", err)
	}
	s.clearPending(next.Address)
	return next.Clone(), nil
}

func (s *Service) persist(ctx context.Context, p *UserProgress) {
	// Detached so a cancelled caller does not abandon the write midway.
	wctx := context.WithoutCancel(ctx)
	err := s.retry.Do(wctx, func(ctx context.Context) error {
		return s.store.Put(ctx, p)
	})
	if err != nil {
		metrics.PersistDroppedTotal.WithLabelValues("progress").Inc()
		logging.WithAddress(s.logger, p.Address).Error("progress write dropped", "error", err, "xp", p.XP)
		s.mu.Lock()
		s.unsynced[p.Address] = p.Clone()
		s.mu.Unlock()
		return
	}
	s.clearPending(p.Address)
}

func (s *Service) pending(address string) *UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.unsynced[address]; ok {
		return p.Clone()
	}
	return nil
}

func (s *Service) clearPending(address string) {
	s.mu.Lock()
	delete(s.unsynced, address)
	s.mu.Unlock()
}
