// Package config loads and validates the four YAML configuration files
// (risk_config.yaml, timers_config.yaml, accounts.yaml, api_config.yaml),
// with ${VAR} environment interpolation and cross-file validation.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/viper"
)

// SupportedSchema is the range of risk_config.yaml schema versions this
// binary accepts. A mismatch is a configuration error.
var SupportedSchema = mustConstraint(">=1.0.0, <2.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// GeneralConfig is risk_config.yaml's general block.
type GeneralConfig struct {
	SchemaVersion string   `mapstructure:"schema_version" yaml:"schema_version"`
	Instruments   []string `mapstructure:"instruments" yaml:"instruments" validate:"required,min=1"`
	Timezone      string   `mapstructure:"timezone" yaml:"timezone" validate:"required"`
	LogLevel      string   `mapstructure:"log_level" yaml:"log_level"`
}

// TickSpec carries the tick size and tick value for one symbol root, used
// to convert price differences into dollar P&L.
type TickSpec struct {
	TickSize  float64 `mapstructure:"tick_size" yaml:"tick_size"`
	TickValue float64 `mapstructure:"tick_value" yaml:"tick_value"`
}

// RiskConfig is the full contents of risk_config.yaml.
type RiskConfig struct {
	General GeneralConfig       `mapstructure:"general" yaml:"general"`
	Ticks   map[string]TickSpec `mapstructure:"ticks" yaml:"ticks"`
	Rules   RulesConfig         `mapstructure:"rules" yaml:"rules"`
}

// RulesConfig holds the per-rule parameter blocks of risk_config.yaml.
type RulesConfig struct {
	MaxContracts            MaxContractsConfig            `mapstructure:"max_contracts" yaml:"max_contracts"`
	MaxContractsPerInstrument MaxContractsPerInstrumentConfig `mapstructure:"max_contracts_per_instrument" yaml:"max_contracts_per_instrument"`
	DailyRealizedLoss       DailyPnLLimitConfig            `mapstructure:"daily_realized_loss" yaml:"daily_realized_loss"`
	DailyUnrealizedLoss     PerPositionLimitConfig         `mapstructure:"daily_unrealized_loss" yaml:"daily_unrealized_loss"`
	MaxUnrealizedProfit     PerPositionLimitConfig         `mapstructure:"max_unrealized_profit" yaml:"max_unrealized_profit"`
	TradeFrequencyLimit     TradeFrequencyConfig           `mapstructure:"trade_frequency_limit" yaml:"trade_frequency_limit"`
	CooldownAfterLoss       CooldownAfterLossConfig        `mapstructure:"cooldown_after_loss" yaml:"cooldown_after_loss"`
	NoStopLossGrace         NoStopLossGraceConfig          `mapstructure:"no_stop_loss_grace" yaml:"no_stop_loss_grace"`
	SessionBlockOutside     SessionBlockConfig             `mapstructure:"session_block_outside" yaml:"session_block_outside"`
	AuthLossGuard           EnabledConfig                  `mapstructure:"auth_loss_guard" yaml:"auth_loss_guard"`
	SymbolBlocks            SymbolBlocksConfig             `mapstructure:"symbol_blocks" yaml:"symbol_blocks"`
	TradeManagement         TradeManagementConfig          `mapstructure:"trade_management" yaml:"trade_management"`
	DailyRealizedProfit     DailyPnLLimitConfig            `mapstructure:"daily_realized_profit" yaml:"daily_realized_profit"`
}

// EnabledConfig is the minimal {enabled} block shared by simple rules.
type EnabledConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MaxContractsConfig backs rule 001.
type MaxContractsConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	Limit         int64 `mapstructure:"limit" yaml:"limit"`
	PerInstrument bool `mapstructure:"per_instrument" yaml:"per_instrument"`
}

// UnknownSymbolPolicy controls rule 002's behavior for unconfigured symbols.
type UnknownSymbolPolicy string

const (
	UnknownSymbolBlock           UnknownSymbolPolicy = "block"
	UnknownSymbolAllowUnlimited  UnknownSymbolPolicy = "allow_unlimited"
	unknownSymbolAllowWithPrefix                     = "allow_with_limit:"
)

// MaxContractsPerInstrumentConfig backs rule 002.
type MaxContractsPerInstrumentConfig struct {
	Enabled       bool             `mapstructure:"enabled" yaml:"enabled"`
	Limits        map[string]int64 `mapstructure:"limits" yaml:"limits"`
	UnknownPolicy string           `mapstructure:"unknown_symbol_policy" yaml:"unknown_symbol_policy"`
}

// ResolveUnknownPolicy parses the `allow_with_limit:N` shorthand. Malformed
// values silently degrade to block, the safe default.
func (c MaxContractsPerInstrumentConfig) ResolveUnknownPolicy() (policy UnknownSymbolPolicy, limit int64) {
	switch {
	case c.UnknownPolicy == string(UnknownSymbolAllowUnlimited):
		return UnknownSymbolAllowUnlimited, 0
	case len(c.UnknownPolicy) > len(unknownSymbolAllowWithPrefix) && c.UnknownPolicy[:len(unknownSymbolAllowWithPrefix)] == unknownSymbolAllowWithPrefix:
		var n int64
		if _, err := fmt.Sscanf(c.UnknownPolicy[len(unknownSymbolAllowWithPrefix):], "%d", &n); err == nil && n >= 0 {
			return "allow_with_limit", n
		}
		return UnknownSymbolBlock, 0
	default:
		return UnknownSymbolBlock, 0
	}
}

// DailyPnLLimitConfig backs rules 003 (loss, limit negative) and 013
// (profit, target positive).
type DailyPnLLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Limit   float64 `mapstructure:"limit" yaml:"limit"`
	Target  float64 `mapstructure:"target" yaml:"target"`
}

// PerPositionLimitConfig backs rules 004/005.
type PerPositionLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
	LossLimit float64 `mapstructure:"loss_limit" yaml:"loss_limit"`
	Target    float64 `mapstructure:"target" yaml:"target"`
}

// TradeFrequencyConfig backs rule 006.
type TradeFrequencyConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	PerMinute     int  `mapstructure:"per_minute" yaml:"per_minute"`
	PerHour       int  `mapstructure:"per_hour" yaml:"per_hour"`
	PerSession    int  `mapstructure:"per_session" yaml:"per_session"`
	CooldownSeconds int `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// CooldownTier is one entry of rule 007's loss-amount/duration ladder.
type CooldownTier struct {
	LossAmount      float64 `mapstructure:"loss_amount" yaml:"loss_amount"`
	DurationSeconds int     `mapstructure:"duration_seconds" yaml:"duration_seconds"`
}

// CooldownAfterLossConfig backs rule 007.
type CooldownAfterLossConfig struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Tiers   []CooldownTier `mapstructure:"tiers" yaml:"tiers"`
	Flatten bool           `mapstructure:"flatten" yaml:"flatten"`
}

// NoStopLossGraceConfig backs rule 008.
type NoStopLossGraceConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	GraceSeconds int  `mapstructure:"grace_seconds" yaml:"grace_seconds"`
}

// SessionBlockConfig backs rule 009.
type SessionBlockConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Start              string `mapstructure:"start" yaml:"start"`
	End                string `mapstructure:"end" yaml:"end"`
	Timezone           string `mapstructure:"timezone" yaml:"timezone"`
	BlockWeekends      bool   `mapstructure:"block_weekends" yaml:"block_weekends"`
	RespectHolidays    bool   `mapstructure:"respect_holidays" yaml:"respect_holidays"`
}

// SymbolBlocksConfig backs rule 011.
type SymbolBlocksConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// BracketConfig configures automatic stop/target distances for rule 012.
type BracketConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	StopTicks   int  `mapstructure:"stop_ticks" yaml:"stop_ticks"`
	TargetTicks int  `mapstructure:"target_ticks" yaml:"target_ticks"`
}

// TrailingStopConfig configures rule 012's trailing-stop adjustment.
type TrailingStopConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	TrailTicks int  `mapstructure:"trail_ticks" yaml:"trail_ticks"`
}

// TradeManagementConfig backs rule 012.
type TradeManagementConfig struct {
	Enabled      bool                `mapstructure:"enabled" yaml:"enabled"`
	Bracket      BracketConfig       `mapstructure:"bracket" yaml:"bracket"`
	TrailingStop TrailingStopConfig  `mapstructure:"trailing_stop" yaml:"trailing_stop"`
}

// Load reads risk_config.yaml from dir using viper, applying ${VAR}
// environment interpolation (see env.go) before unmarshalling.
func Load(dir string) (*RiskConfig, error) {
	cfg := &RiskConfig{}
	if err := loadYAMLWithInterpolation(filepath.Join(dir, "risk_config.yaml"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAMLWithInterpolation reads a YAML file via viper after substituting
// ${VAR} placeholders from the process environment / .env file.
func loadYAMLWithInterpolation(path string, out interface{}) error {
	raw, err := ResolveFile(path)
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshalling %s: %w", path, err)
	}
	return nil
}
