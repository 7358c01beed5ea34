package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Broker: BrokerConfig{
			BaseURL: "https://terminal-bridge.example.com",
		},
		Remote: RemoteConfig{
			BaseURL:        "https://store.example.com",
			AuthCollection: "users",
			TokenRefresh:   defaultRemoteTokenRefresh,
		},
		Storage: StorageConfig{Path: "orchestrator.db"},
		Reconcile: ReconcileConfig{
			Period:    defaultReconcilePeriod,
			SyncDelay: defaultReconcileSyncDelay,
		},
		Accounts: []AccountConfig{
			{AccountID: "acct-1", Login: "1001", Password: "secret", Server: "Demo-Server"},
		},
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml.example")
	if _, err := Load(path); err != nil {
		t.Errorf("expected config to load successfully from example file, got error: %v", err)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("expected error when loading nonexistent config file, got nil")
	}
}

func TestValidate_RejectsBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Environment.Mode = "sandbox"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unrecognized environment.mode")
	}
}

func TestValidate_RequiresAtLeastOneAccount(t *testing.T) {
	cfg := validConfig()
	cfg.Accounts = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error when no accounts are configured")
	}
}

func TestValidate_RejectsDuplicateLogins(t *testing.T) {
	cfg := validConfig()
	cfg.Accounts = append(cfg.Accounts, AccountConfig{AccountID: "acct-2", Login: "1001", Password: "x"})
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a duplicate account login")
	}
}

func TestValidate_RequiresAccountID(t *testing.T) {
	cfg := validConfig()
	cfg.Accounts[0].AccountID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a missing accounts[].account_id")
	}
}

func TestValidate_RequiresRemoteBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Remote.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a missing remote.base_url")
	}
}

func TestValidate_RequiresBrokerBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a missing broker.base_url")
	}
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()

	if cfg.Environment.Mode != "paper" {
		t.Errorf("expected default mode paper, got %q", cfg.Environment.Mode)
	}
	if cfg.Remote.AuthCollection != defaultRemoteAuthCollection {
		t.Errorf("expected default auth collection %q, got %q", defaultRemoteAuthCollection, cfg.Remote.AuthCollection)
	}
	if cfg.Remote.TokenRefresh != defaultRemoteTokenRefresh {
		t.Errorf("expected default token refresh %v, got %v", defaultRemoteTokenRefresh, cfg.Remote.TokenRefresh)
	}
	if cfg.Storage.Path != defaultLocalStorePath {
		t.Errorf("expected default storage path %q, got %q", defaultLocalStorePath, cfg.Storage.Path)
	}
	if cfg.AdminServer.Port != defaultAdminServerPort {
		t.Errorf("expected default admin server port %d, got %d", defaultAdminServerPort, cfg.AdminServer.Port)
	}
	if cfg.Strategy.ZoneSize != 500 {
		t.Errorf("expected default zone size 500, got %v", cfg.Strategy.ZoneSize)
	}
	if cfg.Strategy.PipsStep != 100 {
		t.Errorf("expected default pips_step 100, got %v", cfg.Strategy.PipsStep)
	}
	if cfg.Strategy.SLTPUnit != "money" {
		t.Errorf("expected default sltp unit money, got %q", cfg.Strategy.SLTPUnit)
	}
	if cfg.Strategy.MaxCycles != 1 {
		t.Errorf("expected default max_cycles 1, got %d", cfg.Strategy.MaxCycles)
	}
}

func TestValidate_AdminServerPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.AdminServer.Enabled = true
	cfg.AdminServer.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an out-of-range admin server port")
	}
}

func TestIsPaperTrading(t *testing.T) {
	cfg := validConfig()
	if !cfg.IsPaperTrading() {
		t.Error("expected paper mode config to report IsPaperTrading true")
	}
	cfg.Environment.Mode = "live"
	if cfg.IsPaperTrading() {
		t.Error("expected live mode config to report IsPaperTrading false")
	}
}

func TestMain_ExampleConfigExists(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml.example")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("config.yaml.example not present at %s: %v", path, err)
	}
}
