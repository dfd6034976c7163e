package rules

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// TradeManagement is rule 012: automated bracket-order placement on
// position open, and a monotonic trailing-stop adjustment on favorable
// position moves. Unlike the other rules, its outcome is an
// AutomationAction rather than a Violation — it manages orders, it does
// not flag misbehavior.
type TradeManagement struct {
	cfg config.TradeManagementConfig

	mu       sync.Mutex
	trailing map[string]decimal.Decimal // contract_id -> current stop price
}

func NewTradeManagement(cfg config.TradeManagementConfig) *TradeManagement {
	return &TradeManagement{
		cfg:      cfg,
		trailing: make(map[string]decimal.Decimal),
	}
}

func (r *TradeManagement) ID() string { return "012_trade_management" }

func (r *TradeManagement) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}

	switch event.Type {
	case domain.EventPositionOpened:
		return r.onOpen(event, state)
	case domain.EventPositionUpdated:
		return r.onUpdate(event, state)
	case domain.EventPositionClosed:
		r.mu.Lock()
		delete(r.trailing, event.ContractID)
		r.mu.Unlock()
	}
	return nil, nil
}

func (r *TradeManagement) onOpen(event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Bracket.Enabled || event.Position == nil {
		return nil, nil
	}
	spec, ok := state.TickSpec(event.Symbol)
	if !ok {
		return nil, nil
	}

	sign := decimal.NewFromInt(domain.SignOf(event.Position.Size))
	entry := event.Position.AvgEntryPrice
	tickSize := spec.TickSize

	stopPrice := entry.Sub(sign.Mul(tickSize).Mul(decimal.NewFromInt(int64(r.cfg.Bracket.StopTicks))))
	targetPrice := entry.Add(sign.Mul(tickSize).Mul(decimal.NewFromInt(int64(r.cfg.Bracket.TargetTicks))))

	if r.cfg.TrailingStop.Enabled {
		r.mu.Lock()
		r.trailing[event.ContractID] = stopPrice
		r.mu.Unlock()
	}

	return &Outcome{Automation: &domain.AutomationAction{
		RuleID:      r.ID(),
		AccountID:   event.AccountID,
		ContractID:  event.ContractID,
		Symbol:      event.Symbol,
		Action:      domain.ActionPlaceBracketOrder,
		Side:        event.Position.Side(),
		Size:        absInt64(event.Position.Size),
		Price:       &stopPrice,
		SecondPrice: &targetPrice,
	}}, nil
}

// onUpdate trails the stop toward the market on favorable movement only;
// it never loosens an existing stop.
func (r *TradeManagement) onUpdate(event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.TrailingStop.Enabled || event.Position == nil {
		return nil, nil
	}
	spec, ok := state.TickSpec(event.Symbol)
	if !ok {
		return nil, nil
	}
	marketPrice, ok := state.CurrentPrice(event.Symbol)
	if !ok {
		return nil, nil
	}
	r.mu.Lock()
	currentStop, tracked := r.trailing[event.ContractID]
	r.mu.Unlock()
	if !tracked {
		return nil, nil
	}

	sign := decimal.NewFromInt(domain.SignOf(event.Position.Size))
	trailDistance := spec.TickSize.Mul(decimal.NewFromInt(int64(r.cfg.TrailingStop.TrailTicks)))
	candidate := marketPrice.Sub(sign.Mul(trailDistance))

	// Only move the stop in the favorable direction (up for longs, down
	// for shorts); never loosen it back toward entry.
	favorable := (event.Position.Size > 0 && candidate.GreaterThan(currentStop)) ||
		(event.Position.Size < 0 && candidate.LessThan(currentStop))
	if !favorable {
		return nil, nil
	}

	r.mu.Lock()
	r.trailing[event.ContractID] = candidate
	r.mu.Unlock()

	return &Outcome{Automation: &domain.AutomationAction{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		ContractID: event.ContractID,
		Symbol:     event.Symbol,
		Action:     domain.ActionAdjustTrailingStop,
		Side:       event.Position.Side(),
		Price:      &candidate,
	}}, nil
}
