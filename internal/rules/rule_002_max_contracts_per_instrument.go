package rules

import (
	"context"
	"fmt"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// MaxContractsPerInstrument is rule 002.
type MaxContractsPerInstrument struct {
	cfg config.MaxContractsPerInstrumentConfig
}

func NewMaxContractsPerInstrument(cfg config.MaxContractsPerInstrumentConfig) *MaxContractsPerInstrument {
	return &MaxContractsPerInstrument{cfg: cfg}
}

func (r *MaxContractsPerInstrument) ID() string { return "002_max_contracts_per_instrument" }

func (r *MaxContractsPerInstrument) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	switch event.Type {
	case domain.EventPositionOpened, domain.EventPositionUpdated:
	default:
		return nil, nil
	}
	if event.Position == nil {
		return nil, nil
	}

	limit, ok := r.cfg.Limits[event.Symbol]
	if !ok {
		policy, unknownLimit := r.cfg.ResolveUnknownPolicy()
		switch policy {
		case config.UnknownSymbolAllowUnlimited:
			return nil, nil
		case "allow_with_limit":
			limit = unknownLimit
		default:
			limit = 0 // block: any size on an unconfigured symbol violates
		}
	}

	size := absInt64(event.Position.Size)
	if size <= limit {
		return nil, nil
	}

	return &Outcome{Violation: &domain.Violation{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		Symbol:     event.Symbol,
		ContractID: event.ContractID,
		Action:     domain.ActionClosePosition,
		Message:    fmt.Sprintf("Max contracts for %s exceeded: %d > %d", event.Symbol, size, limit),
	}}, nil
}
