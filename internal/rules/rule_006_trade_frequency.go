package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// TradeFrequency is rule 006: a rolling per-minute/per-hour/per-session
// trade-count cap, enforced with a cooldown on the account. The
// per_minute/per_hour/per_session hierarchy is validated at config load
// time (per_minute*60 <= per_hour, per_hour <= per_session/8); here we only
// need to find the shortest window that was breached.
type TradeFrequency struct {
	cfg config.TradeFrequencyConfig
}

func NewTradeFrequency(cfg config.TradeFrequencyConfig) *TradeFrequency {
	return &TradeFrequency{cfg: cfg}
}

func (r *TradeFrequency) ID() string { return "006_trade_frequency" }

func (r *TradeFrequency) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if event.Type != domain.EventTradeExecuted {
		return nil, nil
	}

	timerName := "006_cooldown:" + event.AccountID
	if state.HasTimer(timerName) {
		// Already cooling down; don't re-evaluate or extend.
		return nil, nil
	}

	breached, window, err := r.breachedWindow(ctx, event.AccountID, state)
	if err != nil {
		return nil, err
	}
	if breached == "" {
		return nil, nil
	}

	duration := time.Duration(r.cfg.CooldownSeconds) * time.Second
	state.StartTimer(timerName, duration, func() {})

	until := state.Now().Add(duration)
	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       event.AccountID,
		Action:          domain.ActionCooldown,
		LockoutRequired: true,
		CooldownFor:     duration,
		NextUnlock:      &until,
		Message:         fmt.Sprintf("Trade frequency limit exceeded (%s window: %d trades)", breached, window),
	}}, nil
}

// breachedWindow checks minute, then hour, then session windows in that
// priority order and returns the name of the first one breached.
func (r *TradeFrequency) breachedWindow(ctx context.Context, accountID string, state EngineState) (string, int, error) {
	if r.cfg.PerMinute > 0 {
		n, err := state.TradesInWindow(ctx, accountID, time.Minute)
		if err != nil {
			return "", 0, err
		}
		if n > r.cfg.PerMinute {
			return "per_minute", n, nil
		}
	}
	if r.cfg.PerHour > 0 {
		n, err := state.TradesInWindow(ctx, accountID, time.Hour)
		if err != nil {
			return "", 0, err
		}
		if n > r.cfg.PerHour {
			return "per_hour", n, nil
		}
	}
	if r.cfg.PerSession > 0 {
		now := state.Now()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		dayEnd := dayStart.AddDate(0, 0, 1)
		n, err := state.SessionTradeCount(ctx, accountID, dayStart, dayEnd)
		if err != nil {
			return "", 0, err
		}
		if n > r.cfg.PerSession {
			return "per_session", n, nil
		}
	}
	return "", 0, nil
}
