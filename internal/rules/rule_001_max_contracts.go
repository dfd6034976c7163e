package rules

import (
	"context"
	"fmt"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// MaxContracts is rule 001: the account-wide contract count limit.
type MaxContracts struct {
	cfg config.MaxContractsConfig
}

// NewMaxContracts constructs rule 001 from its risk_config.yaml block.
func NewMaxContracts(cfg config.MaxContractsConfig) *MaxContracts {
	return &MaxContracts{cfg: cfg}
}

func (r *MaxContracts) ID() string { return "001_max_contracts" }

func (r *MaxContracts) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled || r.cfg.PerInstrument {
		// per_instrument routes enforcement to the per-instrument rule entirely.
		return nil, nil
	}
	switch event.Type {
	case domain.EventPositionOpened, domain.EventPositionUpdated:
	default:
		return nil, nil
	}

	var total int64
	for _, p := range state.Positions() {
		if p.AccountID != event.AccountID {
			continue
		}
		total += absInt64(p.Size)
	}
	if total <= r.cfg.Limit {
		return nil, nil
	}

	return &Outcome{Violation: &domain.Violation{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		Symbol:     event.Symbol,
		ContractID: event.ContractID,
		Action:     domain.ActionClosePosition,
		Message:    fmt.Sprintf("Max contracts exceeded: %d > %d", total, r.cfg.Limit),
	}}, nil
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
