// Package main is a thin operational CLI over internal/reconcile: run one
// reconciliation pass on demand instead of waiting for the Account
// Supervisor's background loop (spec.md §6's CLI surface).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/reconcile"
	"github.com/cycletrader/orchestrator/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		action     string
		accountID  string
	)
	flag.StringVar(&configPath, "config-file", "config.yaml", "Path to configuration file")
	flag.StringVar(&action, "action", "", "detect | recover | force_sync | report")
	flag.StringVar(&accountID, "account-id", "", "Account to reconcile (defaults to the first configured account)")
	flag.Parse()

	logger := log.New(os.Stdout, "[missing-order-recovery] ", log.LstdFlags)

	switch action {
	case "detect", "recover", "force_sync", "report":
	default:
		logger.Printf("--action must be one of detect, recover, force_sync, report (got %q)", action)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}

	acc, err := resolveAccount(cfg, accountID)
	if err != nil {
		logger.Printf("%v", err)
		return 1
	}

	limiter := broker.NewRateLimiter(cfg.Broker.MarketDataRPS, cfg.Broker.TradingRPS, cfg.Broker.StandardRPS)
	gateway := broker.NewGateway(cfg.Broker.BaseURL, cfg.Broker.RequestTimeout, limiter, logger)
	if err := gateway.Initialize(cfg.Broker.TerminalPath); err != nil {
		logger.Printf("initializing terminal session: %v", err)
		return 1
	}
	if ok, err := gateway.Login(acc.Login, acc.Password, acc.Server); err != nil || !ok {
		logger.Printf("broker login failed: %v", err)
		return 1
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Printf("opening local store: %v", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	r := reconcile.New(gateway, st, acc.AccountID, cfg.Reconcile.Period, cfg.Reconcile.SyncDelay, logger)

	switch action {
	case "detect":
		report, err := r.Detect()
		if err != nil {
			logger.Printf("detect failed: %v", err)
			return 1
		}
		printReport(logger, report)
		if len(report.SuspiciousTickets) > 0 {
			return 2
		}
		return 0

	case "report":
		report, err := r.Detect()
		if err != nil {
			logger.Printf("report failed: %v", err)
			return 1
		}
		printReport(logger, report)
		return 0

	case "recover":
		if err := r.Recover(); err != nil {
			logger.Printf("recover failed: %v", err)
			return 1
		}
		logger.Println("recover: one reconciliation pass applied")
		return 0

	case "force_sync":
		if err := r.ForceSync(); err != nil {
			logger.Printf("force_sync failed: %v", err)
			return 1
		}
		logger.Println("force_sync: local store re-verified against the broker immediately")
		return 0
	}

	return 1
}

func resolveAccount(cfg *config.Config, accountID string) (config.AccountConfig, error) {
	if accountID == "" {
		if len(cfg.Accounts) == 0 {
			return config.AccountConfig{}, fmt.Errorf("no accounts configured")
		}
		return cfg.Accounts[0], nil
	}
	for _, acc := range cfg.Accounts {
		if acc.AccountID == accountID {
			return acc, nil
		}
	}
	return config.AccountConfig{}, fmt.Errorf("account %q not found in config", accountID)
}

func printReport(logger *log.Logger, report reconcile.Report) {
	logger.Printf("account %s: %d order(s) confirmed active, %d suspicious ticket(s): %s",
		report.AccountID, report.IntersectionCount, len(report.SuspiciousTickets), ticketList(report.SuspiciousTickets))
}

func ticketList(tickets []int64) string {
	if len(tickets) == 0 {
		return "none"
	}
	parts := make([]string, len(tickets))
	for i, t := range tickets {
		parts[i] = fmt.Sprintf("%d", t)
	}
	return strings.Join(parts, ", ")
}
