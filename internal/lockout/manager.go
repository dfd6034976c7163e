// Package lockout is the lockout manager: an in-memory account -> Lockout
// map backed by the persistence store, with auto-unlock driven by named
// timers on the timer wheel.
package lockout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/clock"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/timer"
)

// persistence is the subset of store.Store the Lockout Manager needs,
// expressed as an interface so tests can substitute a fake.
type persistence interface {
	SetLockout(ctx context.Context, l *domain.Lockout) error
	ClearLockout(ctx context.Context, accountID string) error
	LoadActiveLockouts(ctx context.Context) ([]*domain.Lockout, error)
}

// Manager is the Lockout Manager.
type Manager struct {
	mu     sync.RWMutex
	locks  map[string]*domain.Lockout
	store  persistence
	wheel  *timer.Wheel
	clock  clock.Clock
	logger *zap.Logger
}

// New creates a Manager. Call LoadFromDB once at startup before serving
// any IsLockedOut queries.
func New(store persistence, wheel *timer.Wheel, c clock.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		locks:  make(map[string]*domain.Lockout),
		store:  store,
		wheel:  wheel,
		clock:  c,
		logger: logger,
	}
}

func timerName(accountID string) string {
	return "lockout_" + accountID
}

// SetLockout sets a lockout for account, persists it, and — if until is
// non-nil — schedules the auto-unlock timer. A nil until is a permanent
// lockout cleared only by ClearLockout.
func (m *Manager) SetLockout(ctx context.Context, accountID, ruleID, reason string, until *time.Time) error {
	unlockCondition := "permanent"
	if until != nil {
		unlockCondition = "timer"
	}
	l := &domain.Lockout{
		AccountID:       accountID,
		RuleID:          ruleID,
		Reason:          reason,
		LockedAt:        m.clock.Now(),
		ExpiresAt:       until,
		UnlockCondition: unlockCondition,
		Active:          true,
	}
	if err := m.store.SetLockout(ctx, l); err != nil {
		// Persistence failure: log but keep in-memory state authoritative;
		// retry happens naturally on the next SetLockout call.
		m.logger.Error("failed to persist lockout", zap.String("account", accountID), zap.Error(err))
	}

	m.mu.Lock()
	m.locks[accountID] = l
	m.mu.Unlock()

	if until != nil {
		m.scheduleAutoUnlock(accountID, *until)
	} else {
		m.wheel.CancelTimer(timerName(accountID))
	}

	m.logger.Warn("account locked out",
		zap.String("account", accountID),
		zap.String("rule", ruleID),
		zap.String("reason", reason),
	)
	return nil
}

func (m *Manager) scheduleAutoUnlock(accountID string, until time.Time) {
	d := until.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}
	m.wheel.StartTimer(timerName(accountID), d, func() {
		m.autoUnlock(accountID)
	})
}

func (m *Manager) autoUnlock(accountID string) {
	ctx := context.Background()
	if err := m.store.ClearLockout(ctx, accountID); err != nil {
		m.logger.Error("failed to persist lockout auto-clear", zap.String("account", accountID), zap.Error(err))
	}
	m.mu.Lock()
	if l, ok := m.locks[accountID]; ok {
		l.Active = false
	}
	m.mu.Unlock()
	m.logger.Info("lockout auto-unlocked", zap.String("account", accountID))
}

// ClearLockout clears any lockout for account, explicitly (e.g. admin
// action on a permanent lockout).
func (m *Manager) ClearLockout(ctx context.Context, accountID string) error {
	m.wheel.CancelTimer(timerName(accountID))
	if err := m.store.ClearLockout(ctx, accountID); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	m.mu.Lock()
	if l, ok := m.locks[accountID]; ok {
		l.Active = false
	}
	m.mu.Unlock()
	return nil
}

// IsLockedOut reports whether account is currently blocked from trading.
// Returns false once expires_at <= now even if the auto-unlock timer has
// not fired yet.
func (m *Manager) IsLockedOut(accountID string) bool {
	m.mu.RLock()
	l, ok := m.locks[accountID]
	m.mu.RUnlock()
	if !ok || !l.Active {
		return false
	}
	if l.IsExpired(m.clock.Now()) {
		return false
	}
	return true
}

// GetLockoutInfo returns the current lockout record for account, if any.
func (m *Manager) GetLockoutInfo(accountID string) (*domain.Lockout, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locks[accountID]
	if !ok {
		return nil, false
	}
	cp := *l
	return &cp, true
}

// ActiveCount returns the number of accounts currently tracked as locked
// out, used by the status/diagnostics HTTP surface's /metrics handler.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, l := range m.locks {
		if l.Active {
			n++
		}
	}
	return n
}

// LoadFromDB reconstructs the in-memory map from persisted active rows at
// startup. Rows whose expiry has already passed are marked inactive
// immediately; rows still in the future get their auto-unlock timer
// rescheduled.
func (m *Manager) LoadFromDB(ctx context.Context) error {
	rows, err := m.store.LoadActiveLockouts(ctx)
	if err != nil {
		return fmt.Errorf("loading active lockouts: %w", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range rows {
		if l.IsExpired(now) {
			l.Active = false
			m.locks[l.AccountID] = l
			go func(accountID string) {
				_ = m.store.ClearLockout(context.Background(), accountID)
			}(l.AccountID)
			continue
		}
		m.locks[l.AccountID] = l
		if l.ExpiresAt != nil {
			m.scheduleAutoUnlock(l.AccountID, *l.ExpiresAt)
		}
	}
	m.logger.Info("lockouts recovered from database", zap.Int("count", len(rows)))
	return nil
}
