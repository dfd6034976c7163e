package config

import "path/filepath"

// TopstepXConfig is accounts.yaml's broker-credential block. Credentials
// are resolved from ${VAR} placeholders (env.go); they are never accepted
// via CLI.
type TopstepXConfig struct {
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
	APIURL   string `yaml:"api_url"`
}

// MonitoredAccount is accounts.yaml's single-account shorthand.
type MonitoredAccount struct {
	AccountID string `yaml:"account_id"`
}

// Account is one entry of accounts.yaml's multi-account list.
type Account struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// AccountsConfig is the full contents of accounts.yaml.
type AccountsConfig struct {
	TopstepX         TopstepXConfig    `yaml:"topstepx"`
	MonitoredAccount *MonitoredAccount `yaml:"monitored_account"`
	Accounts         []Account         `yaml:"accounts"`
}

// AccountIDs returns every account this process should monitor, whether
// configured as a single monitored_account or a multi-account list.
func (c *AccountsConfig) AccountIDs() []string {
	if c.MonitoredAccount != nil && c.MonitoredAccount.AccountID != "" {
		return []string{c.MonitoredAccount.AccountID}
	}
	ids := make([]string, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

// LoadAccounts reads accounts.yaml from dir.
func LoadAccounts(dir string) (*AccountsConfig, error) {
	cfg := &AccountsConfig{}
	if err := decodeYAMLFile(filepath.Join(dir, "accounts.yaml"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIConfig is the optional api_config.yaml: connection/retry/cache
// settings. Sensible defaults apply when the file is absent.
type APIConfig struct {
	ConnectTimeoutSeconds int     `yaml:"connect_timeout_seconds"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	RateLimitPerSecond    float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
	ProtectiveCacheTTLSeconds int `yaml:"protective_cache_ttl_seconds"`
	CorrelatorTTLSeconds      int `yaml:"correlator_ttl_seconds"`
	DedupTTLSeconds           int `yaml:"dedup_ttl_seconds"`
}

func defaultAPIConfig() *APIConfig {
	return &APIConfig{
		ConnectTimeoutSeconds:     5,
		RequestTimeoutSeconds:     5,
		MaxRetries:                3,
		RateLimitPerSecond:        10,
		RateLimitBurst:            20,
		ProtectiveCacheTTLSeconds: 5,
		CorrelatorTTLSeconds:      5,
		DedupTTLSeconds:           5,
	}
}

// LoadAPIConfig reads api_config.yaml from dir if present, falling back to
// defaults when the file is absent.
func LoadAPIConfig(dir string) (*APIConfig, error) {
	cfg := defaultAPIConfig()
	path := filepath.Join(dir, "api_config.yaml")
	if err := decodeYAMLFile(path, cfg); err != nil {
		if isNotExist(err) {
			return defaultAPIConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
