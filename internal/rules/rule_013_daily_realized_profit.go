package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// DailyRealizedProfit is rule 013: a hard lockout once cumulative realized
// P&L for the trading day reaches or passes a positive target — locking in
// gains for the day. The mirror image of rule 003.
type DailyRealizedProfit struct {
	cfg       config.DailyPnLLimitConfig
	resetHour int
	resetMin  int
	loc       *time.Location
}

func NewDailyRealizedProfit(cfg config.DailyPnLLimitConfig, resetHour, resetMin int, loc *time.Location) *DailyRealizedProfit {
	return &DailyRealizedProfit{cfg: cfg, resetHour: resetHour, resetMin: resetMin, loc: loc}
}

func (r *DailyRealizedProfit) ID() string { return "013_daily_realized_profit" }

func (r *DailyRealizedProfit) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if event.Type != domain.EventTradeExecuted && event.Type != domain.EventPositionClosed {
		return nil, nil
	}
	if event.Trade == nil || event.Trade.RealizedPnL == nil {
		return nil, nil
	}
	if state.IsLockedOut(event.AccountID) {
		return nil, nil
	}

	total, err := state.DailyPnL(ctx, event.AccountID)
	if err != nil {
		return nil, err
	}

	target := decimal.NewFromFloat(r.cfg.Target)
	if total.LessThan(target) {
		return nil, nil
	}

	until := nextDailyOccurrence(state.Now(), r.resetHour, r.resetMin, r.loc)
	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       event.AccountID,
		Action:          domain.ActionFlatten,
		LockoutRequired: true,
		NextUnlock:      &until,
		Message:         fmt.Sprintf("Daily realized profit target reached: %s (target %s)", total.StringFixed(2), target.StringFixed(2)),
	}}, nil
}
