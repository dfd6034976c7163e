package pnl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/apperrors"
	"github.com/kairos-trading/riskguard/internal/clock"
)

type fakeStore struct {
	mu     sync.Mutex
	totals map[string]decimal.Decimal // accountID|tradingDay -> total
}

func newFakeStore() *fakeStore {
	return &fakeStore{totals: make(map[string]decimal.Decimal)}
}

func key(accountID, tradingDay string) string { return accountID + "|" + tradingDay }

func (f *fakeStore) AddRealizedPnL(ctx context.Context, accountID, tradingDay string, delta decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(accountID, tradingDay)
	f.totals[k] = f.totals[k].Add(delta)
	return f.totals[k], nil
}

func (f *fakeStore) GetDailyPnL(ctx context.Context, accountID, tradingDay string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[key(accountID, tradingDay)], nil
}

func TestAddTradePnL_Accumulates(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, tz))
	store := newFakeStore()
	tracker := New(store, fake, zap.NewNop(), tz, 17, 0)

	total, err := tracker.AddTradePnL(context.Background(), "ACC-1", decimal.NewFromInt(-500))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-500)))

	total, err = tracker.AddTradePnL(context.Background(), "ACC-1", decimal.NewFromInt(200))
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-300)), "got %s", total)
}

func TestGetDailyPnL_ResetsAtBoundary(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 16, 59, 0, 0, tz))
	store := newFakeStore()
	tracker := New(store, fake, zap.NewNop(), tz, 17, 0)

	_, err = tracker.AddTradePnL(context.Background(), "ACC-2", decimal.NewFromInt(-1000))
	require.NoError(t, err)

	total, err := tracker.GetDailyPnL(context.Background(), "ACC-2")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-1000)))

	fake.Advance(2 * time.Minute) // crosses 17:00 reset boundary
	total, err = tracker.GetDailyPnL(context.Background(), "ACC-2")
	require.NoError(t, err)
	assert.True(t, total.IsZero(), "crossing the reset boundary must start a fresh trading day, got %s", total)
}

func TestTradingDayFor_BeforeBoundaryBelongsToPreviousDay(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 8, 0, 0, 0, tz))
	tracker := New(newFakeStore(), fake, zap.NewNop(), tz, 17, 0)

	day := tracker.tradingDayFor(time.Date(2026, 7, 31, 8, 0, 0, 0, tz))
	assert.Equal(t, "2026-07-30", day)

	day = tracker.tradingDayFor(time.Date(2026, 7, 31, 18, 0, 0, 0, tz))
	assert.Equal(t, "2026-07-31", day)
}

func TestResetDaily_ForcesReload(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, tz))
	store := newFakeStore()
	tracker := New(store, fake, zap.NewNop(), tz, 17, 0)

	_, err = tracker.AddTradePnL(context.Background(), "ACC-3", decimal.NewFromInt(100))
	require.NoError(t, err)

	store.totals[key("ACC-3", tracker.tradingDayFor(fake.Now()))] = decimal.NewFromInt(250)
	tracker.ResetDaily("ACC-3")

	total, err := tracker.GetDailyPnL(context.Background(), "ACC-3")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(250)))
}

func TestUnrealizedCalculator_LongAndShort(t *testing.T) {
	ticks := map[string]TickSpec{
		"MES": {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)},
	}
	calc := NewUnrealizedCalculator(ticks)

	calc.UpdatePosition("CON.F.US.MES.Z25", "MES", decimal.NewFromInt(21000), 2)
	calc.UpdateQuote("MES", decimal.NewFromFloat(21005))

	pnlVal, ok := calc.GetUnrealized("CON.F.US.MES.Z25")
	require.True(t, ok)
	// (21005-21000)/0.25 * 2 * 1.25 = 20 * 2 * 1.25 = 50
	assert.True(t, pnlVal.Equal(decimal.NewFromInt(50)), "got %s", pnlVal)

	calc.UpdatePosition("CON.F.US.MES.Z25short", "MES", decimal.NewFromInt(21000), -2)
	pnlVal, ok = calc.GetUnrealized("CON.F.US.MES.Z25short")
	require.True(t, ok)
	assert.True(t, pnlVal.Equal(decimal.NewFromInt(-50)), "got %s", pnlVal)
}

func TestUnrealizedCalculator_UnknownSymbolOrPrice(t *testing.T) {
	calc := NewUnrealizedCalculator(map[string]TickSpec{})

	_, ok := calc.GetUnrealized("never-tracked")
	assert.False(t, ok)

	calc.UpdatePosition("C1", "ZZZ", decimal.NewFromInt(100), 1)
	_, ok = calc.GetUnrealized("C1")
	assert.False(t, ok, "unconfigured tick spec must report false, not zero")
}

func TestUnrealizedCalculator_RemovePosition(t *testing.T) {
	ticks := map[string]TickSpec{"MES": {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}}
	calc := NewUnrealizedCalculator(ticks)
	calc.UpdatePosition("C1", "MES", decimal.NewFromInt(100), 1)
	calc.UpdateQuote("MES", decimal.NewFromInt(105))

	_, ok := calc.GetUnrealized("C1")
	require.True(t, ok)

	calc.RemovePosition("C1")
	_, ok = calc.GetUnrealized("C1")
	assert.False(t, ok)
}

func TestCalculateRealizedPnL(t *testing.T) {
	ticks := map[string]TickSpec{"MES": {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)}}
	calc := NewUnrealizedCalculator(ticks)
	calc.UpdatePosition("C1", "MES", decimal.NewFromInt(21000), 4)

	pnlVal, ok := calc.CalculateRealizedPnL("C1", decimal.NewFromInt(20990))
	require.True(t, ok)
	// (20990-21000)/0.25 * 4 * 1.25 = -40 * 4 * 1.25 = -200
	assert.True(t, pnlVal.Equal(decimal.NewFromInt(-200)), "got %s", pnlVal)
}

// flakyStore fails GetDailyPnL a fixed number of times before succeeding,
// standing in for a transiently-locked database.
type flakyStore struct {
	*fakeStore
	failures int
	reads    int
}

func (f *flakyStore) GetDailyPnL(ctx context.Context, accountID, tradingDay string) (decimal.Decimal, error) {
	f.reads++
	if f.reads <= f.failures {
		return decimal.Zero, apperrors.New(apperrors.ErrPersistenceRead, "database locked")
	}
	return f.fakeStore.GetDailyPnL(ctx, accountID, tradingDay)
}

func TestGetDailyPnL_RetriesTransientReadFailure(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, tz))
	store := &flakyStore{fakeStore: newFakeStore(), failures: 2}
	store.totals[key("ACC-1", "2026-07-30")] = decimal.NewFromInt(-400)
	tracker := New(store, fake, zap.NewNop(), tz, 17, 0)

	total, err := tracker.GetDailyPnL(context.Background(), "ACC-1")
	require.NoError(t, err, "two transient failures must be absorbed by the retry loop")
	assert.True(t, total.Equal(decimal.NewFromInt(-400)), "got %s", total)
	assert.Equal(t, 3, store.reads)
}

func TestGetDailyPnL_ExhaustedRetriesSurfaceReadError(t *testing.T) {
	tz, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	fake := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, tz))
	store := &flakyStore{fakeStore: newFakeStore(), failures: 100}
	tracker := New(store, fake, zap.NewNop(), tz, 17, 0)

	_, err = tracker.GetDailyPnL(context.Background(), "ACC-1")
	require.Error(t, err, "an unreadable total must never resolve to zero")
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistenceRead))
	assert.Equal(t, pnlReadAttempts, store.reads)
}
