package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// LockoutDurationKind distinguishes the special hard-lockout duration
// tokens from a plain duration.
type LockoutDurationKind int

const (
	LockoutUntilReset LockoutDurationKind = iota
	LockoutUntilSessionStart
	LockoutPermanent
	LockoutFixedDuration
)

// LockoutDuration is a custom-unmarshalled value understanding the
// "until_reset" / "until_session_start" / "permanent" / "\d+[smh]" tokens
// from timers_config.yaml's lockout_durations.hard_lockout.* block.
type LockoutDuration struct {
	Kind     LockoutDurationKind
	Fixed    time.Duration
	raw      string
}

var fixedDurationPattern = regexp.MustCompile(`^(\d+)([smh])$`)

// UnmarshalYAML parses the duration tokens through gopkg.in/yaml.v3's
// UnmarshalYAML hook rather than post-processing a generic map.
func (d *LockoutDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *LockoutDuration) parse(s string) error {
	d.raw = s
	switch s {
	case "until_reset":
		d.Kind = LockoutUntilReset
		return nil
	case "until_session_start":
		d.Kind = LockoutUntilSessionStart
		return nil
	case "permanent":
		d.Kind = LockoutPermanent
		return nil
	}

	m := fixedDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return fmt.Errorf("invalid lockout duration token %q: must be until_reset, until_session_start, permanent, or \\d+[smh]", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("invalid lockout duration token %q: %w", s, err)
	}
	unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour}[m[2]]
	d.Kind = LockoutFixedDuration
	d.Fixed = time.Duration(n) * unit
	return nil
}

func (d LockoutDuration) String() string { return d.raw }

// DailyResetConfig is timers_config.yaml's daily_reset block.
type DailyResetConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Time     string `yaml:"time"` // "HH:MM"
	Timezone string `yaml:"timezone"`
}

// SessionHoursConfig is timers_config.yaml's session_hours block.
type SessionHoursConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// HolidaysConfig is timers_config.yaml's holidays block.
type HolidaysConfig struct {
	Enabled bool     `yaml:"enabled"`
	List    []string `yaml:"list"` // YYYY-MM-DD
}

// LockoutDurationsConfig is timers_config.yaml's lockout_durations block.
type LockoutDurationsConfig struct {
	HardLockout LockoutDuration `yaml:"hard_lockout"`
}

// TimersConfig is the full contents of timers_config.yaml.
type TimersConfig struct {
	DailyReset       DailyResetConfig       `yaml:"daily_reset"`
	SessionHours     SessionHoursConfig     `yaml:"session_hours"`
	Holidays         HolidaysConfig         `yaml:"holidays"`
	LockoutDurations LockoutDurationsConfig `yaml:"lockout_durations"`
}

// ParseHHMM parses a "HH:MM" string into hour/minute, as used by
// daily_reset.time and session_hours.start/end. Exported so
// internal/supervisor can turn config values into the hour/minute pairs
// the rules and the pnl package's trading-day boundary expect.
func ParseHHMM(s string) (hour, minute int, err error) {
	m := hhmmPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return hour, minute, nil
}

var hhmmPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// LoadTimers reads timers_config.yaml from dir with yaml.v3 directly (rather
// than through viper) so the custom LockoutDuration unmarshaller runs.
func LoadTimers(dir string) (*TimersConfig, error) {
	cfg := &TimersConfig{}
	if err := decodeYAMLFile(filepath.Join(dir, "timers_config.yaml"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
