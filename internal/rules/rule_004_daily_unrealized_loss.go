package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// DailyUnrealizedLoss is rule 004: close a single position once its
// unrealized P&L reaches or passes a negative loss limit.
type DailyUnrealizedLoss struct {
	cfg    config.PerPositionLimitConfig
	logger *zap.Logger
}

func NewDailyUnrealizedLoss(cfg config.PerPositionLimitConfig, logger *zap.Logger) *DailyUnrealizedLoss {
	return &DailyUnrealizedLoss{cfg: cfg, logger: logger}
}

func (r *DailyUnrealizedLoss) ID() string { return "004_daily_unrealized_loss" }

func (r *DailyUnrealizedLoss) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if !isPositionOrPnLEvent(event.Type) || event.ContractID == "" {
		return nil, nil
	}

	unrealized, ok := state.Unrealized(event.ContractID)
	if !ok {
		r.logger.Warn("skipping rule 004: no tick data for contract", zap.String("contract", event.ContractID))
		return nil, nil
	}

	limit := decimal.NewFromFloat(r.cfg.LossLimit)
	if unrealized.GreaterThan(limit) {
		return nil, nil
	}

	return &Outcome{Violation: &domain.Violation{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		Symbol:     event.Symbol,
		ContractID: event.ContractID,
		Action:     domain.ActionClosePosition,
		Message:    fmt.Sprintf("Unrealized loss limit reached on %s: %s (limit %s)", event.Symbol, unrealized.StringFixed(2), limit.StringFixed(2)),
	}}, nil
}

func isPositionOrPnLEvent(t domain.EventType) bool {
	switch t {
	case domain.EventPositionOpened, domain.EventPositionUpdated, domain.EventPnLUpdated:
		return true
	default:
		return false
	}
}
