package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop())
}

func TestAddTrade_IsIdempotentByTradeID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := &domain.Trade{
		TradeID:    "T-1",
		AccountID:  "ACC-1",
		ContractID: "CON.F.US.MES.Z25",
		Symbol:     "MES",
		Side:       domain.SideBuy,
		Quantity:   2,
		Price:      decimal.NewFromInt(21000),
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.AddTrade(ctx, trade))
	require.NoError(t, s.AddTrade(ctx, trade), "re-inserting the same trade_id must not error")

	trades, err := s.GetTradesInWindow(ctx, "ACC-1", 24*time.Hour, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, trades, 1, "duplicate insert must not create a second row")
}

func TestGetTradesInWindow_FiltersByTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := &domain.Trade{TradeID: "T-old", AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Side: domain.SideBuy, Quantity: 1, Price: decimal.NewFromInt(100), Timestamp: now.Add(-2 * time.Hour)}
	recent := &domain.Trade{TradeID: "T-recent", AccountID: "ACC-1", ContractID: "C1", Symbol: "MES",
		Side: domain.SideBuy, Quantity: 1, Price: decimal.NewFromInt(100), Timestamp: now.Add(-5 * time.Minute)}
	require.NoError(t, s.AddTrade(ctx, old))
	require.NoError(t, s.AddTrade(ctx, recent))

	trades, err := s.GetTradesInWindow(ctx, "ACC-1", time.Hour, now)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "T-recent", trades[0].TradeID)
}

func TestSetLockout_DeactivatesPriorRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.Lockout{AccountID: "ACC-1", RuleID: "rule_003", Reason: "first", UnlockCondition: "timer"}
	require.NoError(t, s.SetLockout(ctx, first))

	second := &domain.Lockout{AccountID: "ACC-1", RuleID: "rule_013", Reason: "second", UnlockCondition: "permanent"}
	require.NoError(t, s.SetLockout(ctx, second))

	active, err := s.LoadActiveLockouts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1, "only the latest lockout for an account should be active")
	assert.Equal(t, "second", active[0].Reason)
}

func TestClearLockout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := &domain.Lockout{AccountID: "ACC-1", RuleID: "rule_009", Reason: "session", UnlockCondition: "permanent"}
	require.NoError(t, s.SetLockout(ctx, l))
	require.NoError(t, s.ClearLockout(ctx, "ACC-1"))

	active, err := s.LoadActiveLockouts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAddRealizedPnL_AccumulatesPerTradingDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	total, err := s.AddRealizedPnL(ctx, "ACC-1", "2026-07-31", decimal.NewFromInt(-500))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-500)))

	total, err = s.AddRealizedPnL(ctx, "ACC-1", "2026-07-31", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-400)))

	other, err := s.GetDailyPnL(ctx, "ACC-1", "2026-08-01")
	require.NoError(t, err)
	assert.True(t, other.IsZero(), "a different trading day must start from zero")
}

func TestGetDailyPnL_UnknownReturnsZero(t *testing.T) {
	s := newTestStore(t)
	total, err := s.GetDailyPnL(context.Background(), "NEVER-TRADED", "2026-07-31")
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestSnapshotPositions_ReplacesPriorSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SnapshotPositions(ctx, "ACC-1", []*domain.Position{
		{AccountID: "ACC-1", ContractID: "C1", SymbolRoot: "MES", Size: 2, AvgEntryPrice: decimal.NewFromInt(21000), OpenedAt: time.Now()},
	})
	require.NoError(t, err)

	err = s.SnapshotPositions(ctx, "ACC-1", []*domain.Position{
		{AccountID: "ACC-1", ContractID: "C2", SymbolRoot: "MNQ", Size: -1, AvgEntryPrice: decimal.NewFromInt(18000), OpenedAt: time.Now()},
	})
	require.NoError(t, err)
	// No direct reader exported for positions_snapshot; absence of error on
	// a second snapshot call is what exercises the delete-then-insert path.
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
