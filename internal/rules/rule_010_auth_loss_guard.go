package rules

import (
	"context"
	"fmt"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// AuthLossGuard is rule 010: an alert-only watch on broker SDK
// connectivity. It never locks an account or enforces anything; it only
// surfaces a RULE_VIOLATED notification so an operator (or the optional
// notify publisher) can react to an auth/connectivity loss.
type AuthLossGuard struct {
	cfg config.EnabledConfig
}

func NewAuthLossGuard(cfg config.EnabledConfig) *AuthLossGuard {
	return &AuthLossGuard{cfg: cfg}
}

func (r *AuthLossGuard) ID() string { return "010_auth_loss_guard" }

func (r *AuthLossGuard) Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}

	var message string
	switch event.Type {
	case domain.EventSDKDisconnected:
		message = "broker SDK connection lost"
	case domain.EventAuthFailed:
		message = "broker SDK authentication failed"
	case domain.EventSDKConnected:
		message = "broker SDK connection restored"
	default:
		return nil, nil
	}

	return &Outcome{Violation: &domain.Violation{
		RuleID:          r.ID(),
		AccountID:       event.AccountID,
		Action:          domain.ActionAlertOnly,
		LockoutRequired: false,
		Message:         fmt.Sprintf("%s (source=%s)", message, event.Source),
	}}, nil
}
