// Package config provides configuration management for the cycle trading
// orchestrator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by Normalize when a field is left at its zero value.
const (
	defaultRemoteAuthCollection   = "users"
	defaultRemoteTokenRefresh     = 7 * 24 * time.Hour
	defaultReconcileSyncDelay     = 500 * time.Millisecond
	defaultReconcilePeriod        = 1 * time.Second
	defaultSupervisorPollInterval = 1 * time.Second
	defaultAdminServerPort        = 9847
	defaultLocalStorePath         = "orchestrator.db"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Remote      RemoteConfig      `yaml:"remote"`
	Storage     StorageConfig     `yaml:"storage"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Supervisor  SupervisorConfig  `yaml:"supervisor"`
	AdminServer AdminServerConfig `yaml:"admin_server"`
	Accounts    []AccountConfig   `yaml:"accounts"`
	Strategy    StrategyDefaults  `yaml:"strategy_defaults"`
}

// EnvironmentConfig defines process-wide environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines terminal gateway settings (C1).
type BrokerConfig struct {
	// BaseURL is the terminal bridge's HTTP base address (the gateway
	// talks JSON to this service, which itself drives the native terminal).
	BaseURL        string        `yaml:"base_url"`
	TerminalPath   string        `yaml:"terminal_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MarketDataRPS/TradingRPS/StandardRPS set the rate limiter for each
	// operation category the gateway enforces (§4.1's RateLimits).
	MarketDataRPS float64 `yaml:"market_data_rps"`
	TradingRPS    float64 `yaml:"trading_rps"`
	StandardRPS   float64 `yaml:"standard_rps"`
}

// RemoteConfig defines the remote document store connection (C3).
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"` // POCKETBASE_URL or equivalent
	AuthCollection string        `yaml:"auth_collection"`
	TokenRefresh   time.Duration `yaml:"token_refresh"`
}

// StorageConfig defines the local relational store (C2).
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ReconcileConfig defines Order Reconciliation timing (C7).
type ReconcileConfig struct {
	Period    time.Duration `yaml:"period"`
	SyncDelay time.Duration `yaml:"sync_delay"`
}

// SupervisorConfig defines Account Supervisor timing (C8).
type SupervisorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AdminServerConfig defines the read-only status/metrics HTTP surface.
type AdminServerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// AccountConfig identifies one broker login the Supervisor manages.
type AccountConfig struct {
	// AccountID is the remote store's accounts collection record id — the
	// value Supervisor uses to scope its bots/accounts/events queries.
	AccountID string `yaml:"account_id"`
	Login     string `yaml:"login"`
	Password  string `yaml:"password"`
	Server    string `yaml:"server"`
}

// StrategyDefaults are the documented fallback values the Cycle State
// Engine (C5) applies when a bot's remote-store config map (models.Bot.Config)
// omits a strategy parameter (spec.md §7, "Configuration" error class: the
// strategy uses the documented default and logs a one-line warning).
type StrategyDefaults struct {
	ZoneSize                 float64 `yaml:"zone_size"`
	ZoneForward2             float64 `yaml:"zone_forward2"`
	PipsStep                 float64 `yaml:"pips_step"`
	LotSize                  float64 `yaml:"lot_size"`
	TakeProfit               float64 `yaml:"take_profit"`
	SLTPUnit                 string  `yaml:"sltp"`
	BatchStopLossPips        float64 `yaml:"batch_stop_loss_pips"`
	RecoveryLossThreshold    float64 `yaml:"recovery_loss_threshold"`
	HedgeSLPips              float64 `yaml:"hedge_sl_pips"`
	AutotradeThreshold       float64 `yaml:"autotrade_threshold"`
	AutotradePipsRestriction float64 `yaml:"autotrade_pips_restriction"`
	MaxCycles                int     `yaml:"max_cycles"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Normalize sets default values for configuration fields left at their
// zero value, mirroring the documented defaults from spec.md §6.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.RequestTimeout <= 0 {
		c.Broker.RequestTimeout = 30 * time.Second
	}
	if c.Broker.MarketDataRPS <= 0 {
		c.Broker.MarketDataRPS = 10
	}
	if c.Broker.TradingRPS <= 0 {
		c.Broker.TradingRPS = 5
	}
	if c.Broker.StandardRPS <= 0 {
		c.Broker.StandardRPS = 5
	}
	if strings.TrimSpace(c.Remote.AuthCollection) == "" {
		c.Remote.AuthCollection = defaultRemoteAuthCollection
	}
	if c.Remote.TokenRefresh <= 0 {
		c.Remote.TokenRefresh = defaultRemoteTokenRefresh
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = defaultLocalStorePath
	}
	if c.Reconcile.Period <= 0 {
		c.Reconcile.Period = defaultReconcilePeriod
	}
	if c.Reconcile.SyncDelay <= 0 {
		c.Reconcile.SyncDelay = defaultReconcileSyncDelay
	}
	if c.Supervisor.PollInterval <= 0 {
		c.Supervisor.PollInterval = defaultSupervisorPollInterval
	}
	if c.AdminServer.Port == 0 {
		c.AdminServer.Port = defaultAdminServerPort
	}

	if c.Strategy.ZoneSize <= 0 {
		c.Strategy.ZoneSize = 500
	}
	if c.Strategy.ZoneForward2 <= 0 {
		c.Strategy.ZoneForward2 = 1
	}
	if c.Strategy.PipsStep <= 0 {
		c.Strategy.PipsStep = 100
	}
	if c.Strategy.LotSize <= 0 {
		c.Strategy.LotSize = 0.01
	}
	if c.Strategy.TakeProfit <= 0 {
		c.Strategy.TakeProfit = 5
	}
	if strings.TrimSpace(c.Strategy.SLTPUnit) == "" {
		c.Strategy.SLTPUnit = "money"
	}
	if c.Strategy.BatchStopLossPips <= 0 {
		c.Strategy.BatchStopLossPips = 200
	}
	if c.Strategy.RecoveryLossThreshold <= 0 {
		c.Strategy.RecoveryLossThreshold = 50
	}
	if c.Strategy.HedgeSLPips <= 0 {
		c.Strategy.HedgeSLPips = 100
	}
	if c.Strategy.AutotradeThreshold <= 0 {
		c.Strategy.AutotradeThreshold = 50
	}
	if c.Strategy.MaxCycles <= 0 {
		c.Strategy.MaxCycles = 1
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Broker.BaseURL) == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Remote.TokenRefresh <= 0 {
		return fmt.Errorf("remote.token_refresh must be > 0")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Reconcile.Period <= 0 {
		return fmt.Errorf("reconcile.period must be > 0")
	}
	if c.Reconcile.SyncDelay <= 0 {
		return fmt.Errorf("reconcile.sync_delay must be > 0")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}
	seenLogins := make(map[string]bool, len(c.Accounts))
	for i, acc := range c.Accounts {
		if strings.TrimSpace(acc.Login) == "" {
			return fmt.Errorf("accounts[%d].login is required", i)
		}
		if strings.TrimSpace(acc.AccountID) == "" {
			return fmt.Errorf("accounts[%d].account_id is required", i)
		}
		if seenLogins[acc.Login] {
			return fmt.Errorf("accounts[%d].login %q is configured more than once", i, acc.Login)
		}
		seenLogins[acc.Login] = true
	}

	if c.AdminServer.Enabled {
		if c.AdminServer.Port <= 0 || c.AdminServer.Port > 65535 {
			return fmt.Errorf("admin_server.port must be between 1 and 65535")
		}
	}

	return nil
}

// IsPaperTrading returns true if the process is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}
