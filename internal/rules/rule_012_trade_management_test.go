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
	"github.com/kairos-trading/riskguard/internal/pnl"
)

func tradeManagementCfg() config.TradeManagementConfig {
	return config.TradeManagementConfig{
		Enabled:      true,
		Bracket:      config.BracketConfig{Enabled: true, StopTicks: 8, TargetTicks: 16},
		TrailingStop: config.TrailingStopConfig{Enabled: true, TrailTicks: 4},
	}
}

func TestTradeManagement_BracketMathLong(t *testing.T) {
	rule := NewTradeManagement(tradeManagementCfg())
	st := newFakeState(time.Now())
	st.ticks["MES"] = pnl.TickSpec{TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionOpened, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 2, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, out.Automation)
	assert.Equal(t, domain.ActionPlaceBracketOrder, out.Automation.Action)
	// stop = 21000 - 8*0.25 = 20998; target = 21000 + 16*0.25 = 21004
	assert.True(t, out.Automation.Price.Equal(decimal.NewFromFloat(20998)), "got %s", out.Automation.Price)
	assert.True(t, out.Automation.SecondPrice.Equal(decimal.NewFromFloat(21004)), "got %s", out.Automation.SecondPrice)
}

func TestTradeManagement_BracketMathShort(t *testing.T) {
	rule := NewTradeManagement(tradeManagementCfg())
	st := newFakeState(time.Now())
	st.ticks["MES"] = pnl.TickSpec{TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}

	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionOpened, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: -2, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	// for a short, stop = entry + 8*0.25 = 21002; target = entry - 16*0.25 = 20996
	assert.True(t, out.Automation.Price.Equal(decimal.NewFromFloat(21002)), "got %s", out.Automation.Price)
	assert.True(t, out.Automation.SecondPrice.Equal(decimal.NewFromFloat(20996)), "got %s", out.Automation.SecondPrice)
}

func TestTradeManagement_TrailingStopOnlyMovesFavorably(t *testing.T) {
	rule := NewTradeManagement(tradeManagementCfg())
	st := newFakeState(time.Now())
	st.ticks["MES"] = pnl.TickSpec{TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}

	_, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionOpened, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 2, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)

	// Market moves favorably (up, for a long): candidate stop = 21010 - 4*0.25 = 21009, above 20998.
	st.prices["MES"] = decimal.NewFromInt(21010)
	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 2, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, domain.ActionAdjustTrailingStop, out.Automation.Action)
	assert.True(t, out.Automation.Price.Equal(decimal.NewFromFloat(21009)), "got %s", out.Automation.Price)

	// Market then moves back down: candidate stop would be lower, must not loosen.
	st.prices["MES"] = decimal.NewFromInt(21001)
	out, err = rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 2, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out, "an unfavorable move must never loosen the trailing stop")
}

func TestTradeManagement_PositionClosedForgetsTrailingState(t *testing.T) {
	rule := NewTradeManagement(tradeManagementCfg())
	st := newFakeState(time.Now())
	st.ticks["MES"] = pnl.TickSpec{TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}

	_, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionOpened, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 1, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)

	_, err = rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionClosed, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
	}, st)
	require.NoError(t, err)

	st.prices["MES"] = decimal.NewFromInt(21100)
	out, err := rule.Evaluate(context.Background(), &domain.RiskEvent{
		Type: domain.EventPositionUpdated, AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Position: &domain.Position{AccountID: "ACC-1", ContractID: "C1", Size: 1, AvgEntryPrice: decimal.NewFromInt(21000)},
	}, st)
	require.NoError(t, err)
	assert.Nil(t, out, "trailing state must be forgotten once a position closes")
}
