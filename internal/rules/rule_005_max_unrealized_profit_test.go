package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

func TestMaxUnrealizedProfit_BelowTargetPasses(t *testing.T) {
	rule := NewMaxUnrealizedProfit(config.PerPositionLimitConfig{Enabled: true, Target: 500}, zap.NewNop())
	st := newFakeState(time.Now())
	st.unrealized["C1"] = decimal.NewFromInt(300)

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMaxUnrealizedProfit_AtTargetTriggers(t *testing.T) {
	rule := NewMaxUnrealizedProfit(config.PerPositionLimitConfig{Enabled: true, Target: 500}, zap.NewNop())
	st := newFakeState(time.Now())
	st.unrealized["C1"] = decimal.NewFromInt(500)

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionClosePosition, out.Violation.Action)
}

func TestMaxUnrealizedProfit_BeyondTargetTriggers(t *testing.T) {
	rule := NewMaxUnrealizedProfit(config.PerPositionLimitConfig{Enabled: true, Target: 500}, zap.NewNop())
	st := newFakeState(time.Now())
	st.unrealized["C1"] = decimal.NewFromInt(900)

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestMaxUnrealizedProfit_NoTickDataSkips(t *testing.T) {
	rule := NewMaxUnrealizedProfit(config.PerPositionLimitConfig{Enabled: true, Target: 500}, zap.NewNop())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "unknown",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out)
}
