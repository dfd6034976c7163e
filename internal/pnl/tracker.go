// Package pnl holds the realized P&L tracker and the unrealized P&L
// calculator.
package pnl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/clock"
)

// persistence is the subset of store.Store the Tracker needs.
type persistence interface {
	AddRealizedPnL(ctx context.Context, accountID, tradingDay string, delta decimal.Decimal) (decimal.Decimal, error)
	GetDailyPnL(ctx context.Context, accountID, tradingDay string) (decimal.Decimal, error)
}

// dayState tracks the last trading day an account was observed in, so a
// boundary crossing since the last access can be detected.
type dayState struct {
	tradingDay string
	total      decimal.Decimal
}

// Tracker is the P&L Tracker: per-account cumulative realized P&L for the
// current trading day, resetting at a configured local wall-time boundary.
type Tracker struct {
	mu       sync.Mutex
	store    persistence
	clock    clock.Clock
	logger   *zap.Logger
	loc      *time.Location
	resetAt  time.Duration // offset from local midnight, e.g. 17:00 -> 17h
	accounts map[string]*dayState
}

// New creates a Tracker. resetHour/resetMinute is the configured
// daily_reset.time in tz.
func New(store persistence, c clock.Clock, logger *zap.Logger, tz *time.Location, resetHour, resetMinute int) *Tracker {
	return &Tracker{
		store:    store,
		clock:    c,
		logger:   logger,
		loc:      tz,
		resetAt:  time.Duration(resetHour)*time.Hour + time.Duration(resetMinute)*time.Minute,
		accounts: make(map[string]*dayState),
	}
}

// tradingDayFor returns the trading-day key (YYYY-MM-DD) that `at` belongs
// to, given the reset boundary: a trading day runs from one reset boundary
// to the next, so a timestamp before today's boundary belongs to
// yesterday's trading day.
func (t *Tracker) tradingDayFor(at time.Time) string {
	local := at.In(t.loc)
	boundaryToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.loc).Add(t.resetAt)
	day := local
	if local.Before(boundaryToday) {
		day = local.AddDate(0, 0, -1)
	}
	return day.Format("2006-01-02")
}

// pnlReadAttempts is how many times a failing daily-pnl read is retried
// before the error escalates to the caller. A cumulative-loss read must
// never silently resolve to zero — treating an unreadable total as "no
// loss yet" would hide a loss — so after the retries are exhausted the
// error propagates and the Rule Engine flattens as the safe default.
const pnlReadAttempts = 3

func (t *Tracker) ensureCurrentDay(ctx context.Context, accountID string) (*dayState, error) {
	now := t.clock.Now()
	currentDay := t.tradingDayFor(now)

	st, ok := t.accounts[accountID]
	if !ok || st.tradingDay != currentDay {
		var total decimal.Decimal
		var err error
		for attempt := 1; attempt <= pnlReadAttempts; attempt++ {
			total, err = t.store.GetDailyPnL(ctx, accountID, currentDay)
			if err == nil {
				break
			}
			t.logger.Warn("daily pnl read failed",
				zap.String("account", accountID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		if err != nil {
			return nil, fmt.Errorf("loading daily pnl for %s/%s: %w", accountID, currentDay, err)
		}
		st = &dayState{tradingDay: currentDay, total: total}
		t.accounts[accountID] = st
	}
	return st, nil
}

// AddTradePnL books delta (a realized P&L amount) against account's current
// trading day and returns the new cumulative total. Half-turn (opening)
// fills should not call this — they have no realized P&L.
func (t *Tracker) AddTradePnL(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.ensureCurrentDay(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	total, err := t.store.AddRealizedPnL(ctx, accountID, st.tradingDay, delta)
	if err != nil {
		// Persistence write failure: keep in-memory state authoritative
		// and retry naturally happens on the next trade.
		t.logger.Error("failed to persist realized pnl", zap.String("account", accountID), zap.Error(err))
		st.total = st.total.Add(delta)
		return st.total, nil
	}
	st.total = total
	return total, nil
}

// GetDailyPnL returns account's cumulative realized P&L for the current
// trading day, resetting the boundary if it has been crossed since the
// last access (idempotent: repeated calls across the boundary reset once).
func (t *Tracker) GetDailyPnL(ctx context.Context, accountID string) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.ensureCurrentDay(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return st.total, nil
}

// ResetDaily forces account's in-memory cache to forget its cached day,
// so the next access re-reads (or re-zeros) from the store. Used by tests
// and by explicit admin action.
func (t *Tracker) ResetDaily(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.accounts, accountID)
}
