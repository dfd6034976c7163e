package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairos-trading/riskguard/internal/broker"
	"github.com/kairos-trading/riskguard/internal/domain"
)

const testRiskConfig = `
general:
  schema_version: "1.0.0"
  instruments: [MNQ, MES]
  timezone: America/New_York
  log_level: info
ticks:
  MNQ: {tick_size: 0.25, tick_value: 0.50}
  MES: {tick_size: 0.25, tick_value: 1.25}
rules:
  max_contracts:
    enabled: true
    limit: 5
  daily_realized_loss:
    enabled: true
    limit: -500.0
  no_stop_loss_grace:
    enabled: true
    grace_seconds: 60
  session_block_outside:
    enabled: false
    start: "09:30"
    end: "16:00"
`

const testTimersConfig = `
daily_reset:
  enabled: true
  time: "17:00"
  timezone: America/New_York
session_hours:
  enabled: true
  start: "09:30"
  end: "16:00"
  timezone: America/New_York
holidays:
  enabled: false
lockout_durations:
  hard_lockout: until_reset
`

const testAccountsConfig = `
topstepx:
  username: test-user
  api_key: test-key
  api_url: https://example.invalid
monitored_account:
  account_id: ACC-001
`

const testAPIConfig = `
protective_cache_ttl_seconds: 5
correlator_ttl_seconds: 5
dedup_ttl_seconds: 5
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"risk_config.yaml":   testRiskConfig,
		"timers_config.yaml": testTimersConfig,
		"accounts.yaml":      testAccountsConfig,
		"api_config.yaml":    testAPIConfig,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestSupervisor(t *testing.T, dbPath string) *Supervisor {
	t.Helper()
	sup, err := New(context.Background(), Options{
		ConfigDir: writeTestConfig(t),
		DBPath:    dbPath,
		TickRate:  50 * time.Millisecond,
		Heartbeat: time.Hour, // keep heartbeat noise out of short tests
	})
	require.NoError(t, err)
	return sup
}

func TestSupervisor_StartRunsPostConditionsAndStops(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t, filepath.Join(t.TempDir(), "risk.db"))

	require.NoError(t, sup.Start(ctx))

	report := RunPostConditions(ctx, sup)
	assert.True(t, report.OK(), report.String())
	assert.Len(t, sup.Engine.Rules(), 13)

	require.NoError(t, sup.Stop(ctx))
}

func TestSupervisor_DryRunLossBreachLocksAccount(t *testing.T) {
	ctx := context.Background()
	sup := newTestSupervisor(t, filepath.Join(t.TempDir(), "risk.db"))
	require.NoError(t, sup.Start(ctx))
	defer func() { _ = sup.Stop(ctx) }()

	realized := decimal.NewFromInt(-750)
	script := []DryRunScenario{
		{Event: &domain.RiskEvent{
			Type: domain.EventPositionOpened, AccountID: "ACC-001",
			ContractID: "CON.F.US.MNQ.Z25", EntityID: "CON.F.US.MNQ.Z25",
			Position: &domain.Position{
				AccountID: "ACC-001", ContractID: "CON.F.US.MNQ.Z25", SymbolRoot: "MNQ",
				Size: 2, AvgEntryPrice: decimal.NewFromInt(21000),
			},
		}},
		{Delay: 50 * time.Millisecond, Event: &domain.RiskEvent{
			Type: domain.EventPositionClosed, AccountID: "ACC-001",
			ContractID: "CON.F.US.MNQ.Z25", Symbol: "MNQ", EntityID: "CON.F.US.MNQ.Z25-close",
			Position: &domain.Position{AccountID: "ACC-001", ContractID: "CON.F.US.MNQ.Z25", SymbolRoot: "MNQ", Size: 0},
			Trade: &domain.Trade{
				TradeID: "T-1", AccountID: "ACC-001", ContractID: "CON.F.US.MNQ.Z25",
				RealizedPnL: &realized,
			},
		}},
	}
	require.NoError(t, RunDryRun(ctx, sup, script))

	require.Eventually(t, func() bool {
		return sup.LockoutMgr.IsLockedOut("ACC-001")
	}, 3*time.Second, 20*time.Millisecond, "a -750 realized loss against a -500 limit must lock the account")

	info, ok := sup.LockoutMgr.GetLockoutInfo("ACC-001")
	require.True(t, ok)
	assert.Equal(t, "003_daily_realized_loss", info.RuleID)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, info.ExpiresAt.After(time.Now()))
}

func TestSupervisor_LockoutSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "risk.db")

	sup1 := newTestSupervisor(t, dbPath)
	require.NoError(t, sup1.Start(ctx))

	until := time.Now().Add(time.Hour)
	require.NoError(t, sup1.LockoutMgr.SetLockout(ctx, "ACC-001", "003_daily_realized_loss", "daily loss limit", &until))
	require.NoError(t, sup1.Stop(ctx))

	sup2 := newTestSupervisor(t, dbPath)
	require.NoError(t, sup2.Start(ctx))
	defer func() { _ = sup2.Stop(ctx) }()

	assert.True(t, sup2.LockoutMgr.IsLockedOut("ACC-001"),
		"an unexpired lockout must be recovered from the database on startup")
}

func TestSupervisor_DryRunRequiresSimulator(t *testing.T) {
	sup := newTestSupervisor(t, filepath.Join(t.TempDir(), "risk.db"))
	sup.Broker = realBrokerStub{}
	err := RunDryRun(context.Background(), sup, nil)
	assert.Error(t, err)
}

// realBrokerStub stands in for a non-simulator Client in the dry-run guard
// test; none of its methods are expected to be called.
type realBrokerStub struct{ broker.Client }
