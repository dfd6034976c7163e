package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// DailyRealizedLoss is rule 003: a hard lockout once cumulative realized
// P&L for the trading day reaches or passes a negative limit.
type DailyRealizedLoss struct {
	cfg       config.DailyPnLLimitConfig
	resetHour int
	resetMin  int
	loc       *time.Location
}

func NewDailyRealizedLoss(cfg config.DailyPnLLimitConfig, resetHour, resetMin int, loc *time.Location) *DailyRealizedLoss {
	return &DailyRealizedLoss{cfg: cfg, resetHour: resetHour, resetMin: resetMin, loc: loc}
}

func (r *DailyRealizedLoss) ID() string { return "003_daily_realized_loss" }

func (r *DailyRealizedLoss) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
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

	limit := decimal.NewFromFloat(r.cfg.Limit)
	if total.GreaterThan(limit) {
		return nil, nil
	}

	until := nextDailyOccurrence(state.Now(), r.resetHour, r.resetMin, r.loc)
	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       event.AccountID,
		Action:          domain.ActionFlatten,
		LockoutRequired: true,
		NextUnlock:      &until,
		Message:         fmt.Sprintf("Daily realized loss limit reached: %s (limit %s)", total.StringFixed(2), limit.StringFixed(2)),
	}}, nil
}
