package config

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Bundle is every loaded config file together, the unit cross-file
// invariants are checked against.
type Bundle struct {
	Risk     *RiskConfig
	Timers   *TimersConfig
	Accounts *AccountsConfig
	API      *APIConfig
}

// LoadAll loads and validates all four config files from dir, enforcing
// every cross-config invariant. A non-nil error means startup must abort
// with exit code 2.
func LoadAll(dir string) (*Bundle, error) {
	risk, err := Load(dir)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	timers, err := LoadTimers(dir)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	accounts, err := LoadAccounts(dir)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	api, err := LoadAPIConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	b := &Bundle{Risk: risk, Timers: timers, Accounts: accounts, API: api}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return b, nil
}

// Validate checks schema version compatibility, per-field struct
// validation, and every cross-file invariant.
func (b *Bundle) Validate() error {
	if err := structValidator.Struct(b.Risk.General); err != nil {
		return fmt.Errorf("general config: %w", err)
	}

	if v := b.Risk.General.SchemaVersion; v != "" {
		sv, err := semver.NewVersion(v)
		if err != nil {
			return fmt.Errorf("general.schema_version %q is not a valid semantic version: %w", v, err)
		}
		if !SupportedSchema.Check(sv) {
			return fmt.Errorf("general.schema_version %s is not supported by this binary (requires %s)", v, SupportedSchema)
		}
	}

	if len(b.Accounts.AccountIDs()) == 0 {
		return fmt.Errorf("accounts.yaml must define monitored_account or accounts")
	}

	rules := b.Risk.Rules

	// until_reset requires daily_reset.enabled.
	if rules.DailyRealizedLoss.Enabled || rules.DailyRealizedProfit.Enabled {
		if !b.Timers.DailyReset.Enabled {
			return fmt.Errorf("rules.daily_realized_loss/profit require timers_config.daily_reset.enabled")
		}
	}
	if b.Timers.LockoutDurations.HardLockout.raw != "" && b.Timers.LockoutDurations.HardLockout.Kind == LockoutUntilReset && !b.Timers.DailyReset.Enabled {
		return fmt.Errorf("lockout_durations.hard_lockout: until_reset requires timers_config.daily_reset.enabled")
	}

	// until_session_start requires session_hours.enabled.
	if rules.SessionBlockOutside.Enabled && !b.Timers.SessionHours.Enabled {
		return fmt.Errorf("rules.session_block_outside requires timers_config.session_hours.enabled")
	}
	if b.Timers.LockoutDurations.HardLockout.Kind == LockoutUntilSessionStart && !b.Timers.SessionHours.Enabled {
		return fmt.Errorf("lockout_durations.hard_lockout: until_session_start requires timers_config.session_hours.enabled")
	}

	// respect_holidays requires holidays.enabled.
	if rules.SessionBlockOutside.RespectHolidays && !b.Timers.Holidays.Enabled {
		return fmt.Errorf("rules.session_block_outside.respect_holidays requires timers_config.holidays.enabled")
	}

	// Per-instrument limits must reference configured instruments, and
	// must not exceed the account-wide total (rule 001/002 hierarchy).
	if rules.MaxContractsPerInstrument.Enabled {
		instruments := make(map[string]bool, len(b.Risk.General.Instruments))
		for _, s := range b.Risk.General.Instruments {
			instruments[s] = true
		}
		for symbol, limit := range rules.MaxContractsPerInstrument.Limits {
			if !instruments[symbol] {
				return fmt.Errorf("rules.max_contracts_per_instrument.limits references unconfigured instrument %q", symbol)
			}
			if rules.MaxContracts.Enabled && !rules.MaxContracts.PerInstrument && limit > rules.MaxContracts.Limit {
				return fmt.Errorf("rules.max_contracts_per_instrument.limits[%s]=%d exceeds account-wide rules.max_contracts.limit=%d", symbol, limit, rules.MaxContracts.Limit)
			}
		}
	}

	// Frequency hierarchy: per_minute*60 <= per_hour <= per_session/8.
	if rules.TradeFrequencyLimit.Enabled {
		f := rules.TradeFrequencyLimit
		if f.PerMinute > 0 && f.PerHour > 0 && f.PerMinute*60 > f.PerHour {
			return fmt.Errorf("rules.trade_frequency_limit: per_minute*60 (%d) exceeds per_hour (%d)", f.PerMinute*60, f.PerHour)
		}
		if f.PerHour > 0 && f.PerSession > 0 && f.PerHour*8 > f.PerSession {
			return fmt.Errorf("rules.trade_frequency_limit: per_hour*8 (%d) exceeds per_session (%d)", f.PerHour*8, f.PerSession)
		}
	}

	// 003/013 cannot coexist meaningfully pointed at the same boundary
	// without distinguishing limit vs target scalar signs.
	if rules.DailyRealizedLoss.Enabled && rules.DailyRealizedLoss.Limit > 0 {
		return fmt.Errorf("rules.daily_realized_loss.limit must be <= 0 (it bounds a loss)")
	}
	if rules.DailyRealizedProfit.Enabled && rules.DailyRealizedProfit.Target < 0 {
		return fmt.Errorf("rules.daily_realized_profit.target must be >= 0 (it bounds a profit)")
	}

	if rules.SymbolBlocks.Enabled {
		for _, p := range rules.SymbolBlocks.Patterns {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("rules.symbol_blocks.patterns contains an empty pattern")
			}
		}
	}

	return nil
}
