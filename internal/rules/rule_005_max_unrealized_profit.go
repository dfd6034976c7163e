package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// MaxUnrealizedProfit is rule 005: close a single position once its
// unrealized P&L reaches or passes a profit target. The mirror image of
// rule 004.
type MaxUnrealizedProfit struct {
	cfg    config.PerPositionLimitConfig
	logger *zap.Logger
}

func NewMaxUnrealizedProfit(cfg config.PerPositionLimitConfig, logger *zap.Logger) *MaxUnrealizedProfit {
	return &MaxUnrealizedProfit{cfg: cfg, logger: logger}
}

func (r *MaxUnrealizedProfit) ID() string { return "005_max_unrealized_profit" }

func (r *MaxUnrealizedProfit) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if !isPositionOrPnLEvent(event.Type) || event.ContractID == "" {
		return nil, nil
	}

	unrealized, ok := state.Unrealized(event.ContractID)
	if !ok {
		r.logger.Warn("skipping rule 005: no tick data for contract", zap.String("contract", event.ContractID))
		return nil, nil
	}

	target := decimal.NewFromFloat(r.cfg.Target)
	if unrealized.LessThan(target) {
		return nil, nil
	}

	return &Outcome{Violation: &domain.Violation{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		Symbol:     event.Symbol,
		ContractID: event.ContractID,
		Action:     domain.ActionClosePosition,
		Message:    fmt.Sprintf("Unrealized profit target reached on %s: %s (target %s)", event.Symbol, unrealized.StringFixed(2), target.StringFixed(2)),
	}}, nil
}
