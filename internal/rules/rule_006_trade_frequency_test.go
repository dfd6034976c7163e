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

func TestTradeFrequency_BreachesPerMinuteFirst(t *testing.T) {
	rule := NewTradeFrequency(config.TradeFrequencyConfig{
		Enabled: true, PerMinute: 3, PerHour: 100, PerSession: 1000, CooldownSeconds: 60,
	})
	st := newFakeState(time.Now())
	st.tradesInWin = 4 // exceeds per-minute

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionCooldown, out.Violation.Action)
	assert.True(t, out.Violation.LockoutRequired, "a cooldown must lock the account until the timer fires")
	require.NotNil(t, out.Violation.NextUnlock)
	assert.True(t, out.Violation.NextUnlock.After(st.now))
	assert.True(t, st.HasTimer("006_cooldown:ACC-1"))
}

func TestTradeFrequency_AtLimitDoesNotBreach(t *testing.T) {
	rule := NewTradeFrequency(config.TradeFrequencyConfig{
		Enabled: true, PerMinute: 3, CooldownSeconds: 60,
	})
	st := newFakeState(time.Now())
	st.tradesInWin = 3

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out, "a count equal to the limit must not breach")
}

func TestTradeFrequency_SkipsWhileCoolingDown(t *testing.T) {
	rule := NewTradeFrequency(config.TradeFrequencyConfig{
		Enabled: true, PerMinute: 1, CooldownSeconds: 60,
	})
	st := newFakeState(time.Now())
	st.timers["006_cooldown:ACC-1"] = true
	st.tradesInWin = 999

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out, "an account already cooling down must not re-trigger")
}

func TestTradeFrequency_DisabledWindowIsIgnored(t *testing.T) {
	rule := NewTradeFrequency(config.TradeFrequencyConfig{
		Enabled: true, PerMinute: 0, PerHour: 0, PerSession: 0, CooldownSeconds: 60,
	})
	st := newFakeState(time.Now())
	st.tradesInWin = 1000 // would breach every window if any were checked

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventTradeExecuted, AccountID: "ACC-1",
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out, "a zero window limit must be treated as unconfigured, not a zero cap")
}
