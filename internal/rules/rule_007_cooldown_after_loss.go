package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// CooldownAfterLoss is rule 007: a single large losing trade starts a
// cooldown whose duration is selected from a tiered ladder (largest loss
// tier that was still reached wins). An account already in cooldown is
// left alone; this rule never restarts or extends a running timer.
type CooldownAfterLoss struct {
	cfg config.CooldownAfterLossConfig
}

func NewCooldownAfterLoss(cfg config.CooldownAfterLossConfig) *CooldownAfterLoss {
	return &CooldownAfterLoss{cfg: cfg}
}

func (r *CooldownAfterLoss) ID() string { return "007_cooldown_after_loss" }

func (r *CooldownAfterLoss) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if event.Type != domain.EventTradeExecuted || event.Trade == nil || event.Trade.RealizedPnL == nil {
		return nil, nil
	}

	timerName := "007_cooldown:" + event.AccountID
	if state.HasTimer(timerName) {
		return nil, nil
	}

	loss := *event.Trade.RealizedPnL
	tier, ok := r.worstReachedTier(loss)
	if !ok {
		return nil, nil
	}

	duration := time.Duration(tier.DurationSeconds) * time.Second
	state.StartTimer(timerName, duration, func() {})

	action := domain.ActionCooldown
	if r.cfg.Flatten {
		action = domain.ActionFlatten
	}

	until := state.Now().Add(duration)
	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       event.AccountID,
		ContractID:      event.ContractID,
		Symbol:          event.Symbol,
		Action:          action,
		LockoutRequired: true,
		CooldownFor:     duration,
		NextUnlock:      &until,
		Message:         fmt.Sprintf("Single-trade loss %s reached cooldown tier (loss_amount %.2f, %s)", loss.StringFixed(2), tier.LossAmount, duration),
	}}, nil
}

// worstReachedTier returns the tier with the most negative loss_amount
// that the trade's loss still reached (loss <= loss_amount, both negative).
func (r *CooldownAfterLoss) worstReachedTier(loss decimal.Decimal) (config.CooldownTier, bool) {
	var best config.CooldownTier
	found := false
	for _, tier := range r.cfg.Tiers {
		threshold := decimal.NewFromFloat(tier.LossAmount)
		if loss.GreaterThan(threshold) {
			continue
		}
		if !found || threshold.LessThan(decimal.NewFromFloat(best.LossAmount)) {
			best = tier
			found = true
		}
	}
	return best, found
}
