package rules

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/eventbus"
)

// NoStopLossGrace is rule 008: a position opened without a protective stop
// loss must acquire one within a grace period or be closed. Unlike the
// other rules, its enforcement fires off the Timer Wheel rather than from
// Engine.Dispatch, so it publishes ENFORCEMENT_ACTION directly onto the bus
// — the same pattern the Lockout Manager uses for its auto-unlock timer.
type NoStopLossGrace struct {
	cfg    config.NoStopLossGraceConfig
	bus    *eventbus.Bus
	logger *zap.Logger
}

func NewNoStopLossGrace(cfg config.NoStopLossGraceConfig, bus *eventbus.Bus, logger *zap.Logger) *NoStopLossGrace {
	return &NoStopLossGrace{cfg: cfg, bus: bus, logger: logger}
}

func (r *NoStopLossGrace) ID() string { return "008_no_stop_loss_grace" }

func timerNameNoStopLoss(contractID string) string {
	return "008_grace:" + contractID
}

func (r *NoStopLossGrace) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}

	switch event.Type {
	case domain.EventPositionOpened:
		if event.ContractID == "" {
			return nil, nil
		}
		accountID, symbol := event.AccountID, event.Symbol
		state.StartTimer(timerNameNoStopLoss(event.ContractID), time.Duration(r.cfg.GraceSeconds)*time.Second, func() {
			r.onExpire(event.ContractID, accountID, symbol)
		})

	case domain.EventOrderPlaced:
		if event.Order == nil || event.ContractID == "" {
			return nil, nil
		}
		if event.Order.Type.IsStopLoss() && event.Order.HasStopPrice() {
			state.CancelTimer(timerNameNoStopLoss(event.ContractID))
		}

	case domain.EventPositionClosed:
		if event.ContractID != "" {
			state.CancelTimer(timerNameNoStopLoss(event.ContractID))
		}
	}

	return nil, nil
}

// onExpire runs on the Timer Wheel's goroutine when a position has gone
// the full grace period without acquiring a stop loss.
func (r *NoStopLossGrace) onExpire(contractID, accountID, symbol string) {
	r.logger.Warn("no-stop-loss grace period expired",
		zap.String("contract", contractID),
		zap.String("account", accountID),
	)
	err := r.bus.Publish(domain.SubjectEnforcementAction, &domain.RiskEvent{
		Type:       domain.EventEnforcementAction,
		AccountID:  accountID,
		ContractID: contractID,
		Symbol:     symbol,
		EntityID:   fmt.Sprintf("%s:%s", r.ID(), contractID),
		Automation: &domain.AutomationAction{
			RuleID:     r.ID(),
			AccountID:  accountID,
			ContractID: contractID,
			Symbol:     symbol,
			Action:     domain.ActionClosePosition,
		},
	})
	if err != nil {
		r.logger.Error("failed to publish no-stop-loss enforcement action", zap.Error(err))
	}
}
