package rules

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// SymbolBlocks is rule 011: close or cancel any activity on a symbol
// matching a configured blocklist of fnmatch-style glob patterns
// ("*", "?", character classes), matched case-insensitively the same way
// shells and path.Match handle wildcards.
type SymbolBlocks struct {
	cfg config.SymbolBlocksConfig
}

func NewSymbolBlocks(cfg config.SymbolBlocksConfig) *SymbolBlocks {
	return &SymbolBlocks{cfg: cfg}
}

func (r *SymbolBlocks) ID() string { return "011_symbol_blocks" }

func (r *SymbolBlocks) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled || event.Symbol == "" {
		return nil, nil
	}
	switch event.Type {
	case domain.EventOrderPlaced, domain.EventPositionOpened, domain.EventPositionUpdated:
	default:
		return nil, nil
	}

	matched, err := r.matches(event.Symbol)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, nil
	}

	v := &domain.Violation{
		RuleID:     r.ID(),
		AccountID:  event.AccountID,
		Symbol:     event.Symbol,
		ContractID: event.ContractID,
		Action:     domain.ActionClosePosition,
		Message:    fmt.Sprintf("Symbol %s is blocked", event.Symbol),
	}
	if event.Type == domain.EventOrderPlaced {
		v.Action = domain.ActionCancelOrder
		if event.Order != nil {
			v.OrderID = event.Order.OrderID
		}
	}
	return &Outcome{Violation: v}, nil
}

func (r *SymbolBlocks) matches(symbol string) (bool, error) {
	lower := strings.ToLower(symbol)
	for _, pattern := range r.cfg.Patterns {
		ok, err := path.Match(strings.ToLower(pattern), lower)
		if err != nil {
			return false, fmt.Errorf("invalid symbol block pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
