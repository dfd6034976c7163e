package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/domain"
)

func cooldownCfg() config.CooldownAfterLossConfig {
	return config.CooldownAfterLossConfig{
		Enabled: true,
		Tiers: []config.CooldownTier{
			{LossAmount: -100, DurationSeconds: 60},
			{LossAmount: -500, DurationSeconds: 300},
			{LossAmount: -1000, DurationSeconds: 1800},
		},
	}
}

func tradeWithRealizedPnL(accountID string, loss decimal.Decimal) *domain.RiskEvent {
	return &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: accountID,
		Trade: &domain.Trade{RealizedPnL: &loss},
	}
}

func TestCooldownAfterLoss_BelowSmallestTierNoOp(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(-50)), st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCooldownAfterLoss_ReachesMiddleTier(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(-600)), st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 300*time.Second, out.Violation.CooldownFor)
	assert.True(t, out.Violation.LockoutRequired, "a cooldown must lock the account until the timer fires")
	require.NotNil(t, out.Violation.NextUnlock)
	assert.True(t, out.Violation.NextUnlock.After(st.now))
	assert.True(t, st.HasTimer("007_cooldown:ACC-1"))
}

func TestCooldownAfterLoss_ReachesWorstTierPicksLongestDuration(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(-5000)), st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 1800*time.Second, out.Violation.CooldownFor)
}

func TestCooldownAfterLoss_FlattenOptionSetsFlattenAction(t *testing.T) {
	cfg := cooldownCfg()
	cfg.Flatten = true
	rule := NewCooldownAfterLoss(cfg)
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(-600)), st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionFlatten, out.Violation.Action)
}

func TestCooldownAfterLoss_AlreadyCoolingDownDoesNotRestart(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())
	st.timers["007_cooldown:ACC-1"] = true

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(-5000)), st)
	require.NoError(t, err)
	assert.Nil(t, out, "a running cooldown must not be restarted or extended")
}

func TestCooldownAfterLoss_WinningTradeIgnored(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), tradeWithRealizedPnL("ACC-1", decimal.NewFromInt(200)), st)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCooldownAfterLoss_NonClosingTradeIgnored(t *testing.T) {
	rule := NewCooldownAfterLoss(cooldownCfg())
	st := newFakeState(time.Now())

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
		Trade: &domain.Trade{RealizedPnL: nil},
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out)
}
