package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

func TestAuthLossGuard_SDKDisconnectedAlerts(t *testing.T) {
	rule := NewAuthLossGuard(config.EnabledConfig{Enabled: true})
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventSDKDisconnected, AccountID: "ACC-1", Source: "topstepx",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionAlertOnly, out.Violation.Action)
	assert.False(t, out.Violation.LockoutRequired, "rule 010 never locks an account")
}

func TestAuthLossGuard_AuthFailedAlerts(t *testing.T) {
	rule := NewAuthLossGuard(config.EnabledConfig{Enabled: true})
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventAuthFailed, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestAuthLossGuard_SDKConnectedAlertsRestored(t *testing.T) {
	rule := NewAuthLossGuard(config.EnabledConfig{Enabled: true})
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventSDKConnected, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestAuthLossGuard_DisabledNoOp(t *testing.T) {
	rule := NewAuthLossGuard(config.EnabledConfig{Enabled: false})
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventSDKDisconnected, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestAuthLossGuard_UnrelatedEventNoOp(t *testing.T) {
	rule := NewAuthLossGuard(config.EnabledConfig{Enabled: true})
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out)
}
