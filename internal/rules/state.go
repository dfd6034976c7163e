// Package rules holds the rule engine and the 13 risk rules: an ordered
// collection of rules evaluated against a shared engine view, with
// per-rule metrics and panic/error isolation, one Go type per named risk
// rule, each implementing a shared Rule interface.
package rules

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/clock"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/lockout"
	"github.com/kairos-trading/riskguard/internal/pnl"
	"github.com/kairos-trading/riskguard/internal/router"
	"github.com/kairos-trading/riskguard/internal/store"
	"github.com/kairos-trading/riskguard/internal/timer"
)

// EngineState is the minimal view of the rest of the system a rule's
// Evaluate method may read or act through: the positions map, last-known
// market prices, and the lockout manager, timer wheel, and P&L tracker as
// injected dependencies.
type EngineState interface {
	Now() time.Time

	Positions() []*domain.Position
	Position(contractID string) (*domain.Position, bool)

	Unrealized(contractID string) (decimal.Decimal, bool)
	TickSpec(symbol string) (pnl.TickSpec, bool)
	CurrentPrice(symbol string) (decimal.Decimal, bool)

	DailyPnL(ctx context.Context, accountID string) (decimal.Decimal, error)
	TradesInWindow(ctx context.Context, accountID string, window time.Duration) (int, error)
	SessionTradeCount(ctx context.Context, accountID string, dayStart, dayEnd time.Time) (int, error)

	IsLockedOut(accountID string) bool
	SetLockout(ctx context.Context, accountID, ruleID, reason string, until *time.Time) error

	StartTimer(name string, d time.Duration, cb func())
	CancelTimer(name string)
	HasTimer(name string) bool
	GetRemainingTime(name string) (time.Duration, bool)
}

// State is the production EngineState, wiring the Rule Engine to the real
// Router/Lockout Manager/P&L Tracker/Timer Wheel/Store.
type State struct {
	router     *router.Router
	lockoutMgr *lockout.Manager
	pnlTracker *pnl.Tracker
	unrealized *pnl.UnrealizedCalculator
	wheel      *timer.Wheel
	store      *store.Store
	clock      clock.Clock
}

// NewState builds the concrete EngineState the Runtime Supervisor injects
// into the Rule Engine.
func NewState(
	r *router.Router,
	lockoutMgr *lockout.Manager,
	pnlTracker *pnl.Tracker,
	unrealized *pnl.UnrealizedCalculator,
	wheel *timer.Wheel,
	st *store.Store,
	c clock.Clock,
) *State {
	return &State{
		router:     r,
		lockoutMgr: lockoutMgr,
		pnlTracker: pnlTracker,
		unrealized: unrealized,
		wheel:      wheel,
		store:      st,
		clock:      c,
	}
}

func (s *State) Now() time.Time { return s.clock.Now() }

func (s *State) Positions() []*domain.Position { return s.router.Positions() }

func (s *State) Position(contractID string) (*domain.Position, bool) {
	return s.router.GetPosition(contractID)
}

func (s *State) Unrealized(contractID string) (decimal.Decimal, bool) {
	return s.unrealized.GetUnrealized(contractID)
}

func (s *State) TickSpec(symbol string) (pnl.TickSpec, bool) {
	return s.unrealized.TickSpecFor(symbol)
}

func (s *State) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	return s.unrealized.GetLastPrice(symbol)
}

func (s *State) DailyPnL(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.pnlTracker.GetDailyPnL(ctx, accountID)
}

func (s *State) TradesInWindow(ctx context.Context, accountID string, window time.Duration) (int, error) {
	trades, err := s.store.GetTradesInWindow(ctx, accountID, window, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return len(trades), nil
}

func (s *State) SessionTradeCount(ctx context.Context, accountID string, dayStart, dayEnd time.Time) (int, error) {
	return s.store.GetSessionTradeCount(ctx, accountID, dayStart, dayEnd)
}

func (s *State) IsLockedOut(accountID string) bool { return s.lockoutMgr.IsLockedOut(accountID) }

func (s *State) SetLockout(ctx context.Context, accountID, ruleID, reason string, until *time.Time) error {
	return s.lockoutMgr.SetLockout(ctx, accountID, ruleID, reason, until)
}

func (s *State) StartTimer(name string, d time.Duration, cb func()) { s.wheel.StartTimer(name, d, cb) }

func (s *State) CancelTimer(name string) { s.wheel.CancelTimer(name) }

func (s *State) HasTimer(name string) bool { return s.wheel.HasTimer(name) }

func (s *State) GetRemainingTime(name string) (time.Duration, bool) {
	return s.wheel.GetRemainingTime(name)
}
