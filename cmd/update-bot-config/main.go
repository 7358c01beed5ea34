// Package main is a thin CLI for editing a single bot's strategy config in
// the remote store without going through the supervisor (spec.md §6's CLI
// surface) — handy for one-off parameter tweaks from a deploy script.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/remote"
)

const remoteClientTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath    string
		serverURL     string
		symbol        string
		accountID     string
		zoneSize      float64
		orderInterval float64
		lotSize       float64
		maxCycles     int
		takeProfit    float64
		stopLoss      float64
	)
	flag.StringVar(&configPath, "config-file", "config.yaml", "Path to configuration file")
	flag.StringVar(&serverURL, "server-url", "", "Override remote.base_url from the config file")
	flag.StringVar(&symbol, "symbol", "", "Symbol of the bot to update (required)")
	flag.StringVar(&accountID, "account-id", "", "Account the bot belongs to (defaults to the first configured account)")
	flag.Float64Var(&zoneSize, "zone-threshold", 0, "New zone size (zone_size)")
	flag.Float64Var(&orderInterval, "order-interval", 0, "New pip step between grid orders (pips_step)")
	flag.Float64Var(&lotSize, "lot-size", 0, "New base lot size (lot_size)")
	flag.IntVar(&maxCycles, "max-cycles", 0, "New maximum concurrent cycles (max_cycles)")
	flag.Float64Var(&takeProfit, "take-profit", 0, "New take-profit target (take_profit)")
	flag.Float64Var(&stopLoss, "stop-loss", 0, "New batch stop-loss, in pips (batch_stop_loss_pips)")
	flag.Parse()

	logger := log.New(os.Stdout, "[update-bot-config] ", log.LstdFlags)

	if symbol == "" {
		logger.Println("--symbol is required")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}
	if serverURL != "" {
		cfg.Remote.BaseURL = serverURL
	}
	if accountID == "" {
		if len(cfg.Accounts) == 0 {
			logger.Println("no accounts configured")
			return 1
		}
		accountID = cfg.Accounts[0].AccountID
	}

	ctx := context.Background()
	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.AuthCollection, remoteClientTimeout)

	account := cfg.Accounts[0]
	if err := remoteClient.Authenticate(ctx, account.Login, account.Password); err != nil {
		logger.Printf("authenticating against remote store: %v", err)
		return 1
	}

	recs, err := remoteClient.List(ctx, remote.CollectionBots, fmt.Sprintf("account_id = '%s' && symbol = '%s'", accountID, symbol))
	if err != nil {
		logger.Printf("looking up bot for symbol %s: %v", symbol, err)
		return 1
	}
	if len(recs) == 0 {
		logger.Printf("no bot found for account %s, symbol %s", accountID, symbol)
		return 1
	}
	botID, _ := recs[0]["id"].(string)

	patch := remote.Record{}
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if explicit["zone-threshold"] {
		patch["zone_size"] = zoneSize
	}
	if explicit["order-interval"] {
		patch["pips_step"] = orderInterval
	}
	if explicit["lot-size"] {
		patch["lot_size"] = lotSize
	}
	if explicit["max-cycles"] {
		patch["max_cycles"] = maxCycles
	}
	if explicit["take-profit"] {
		patch["take_profit"] = takeProfit
	}
	if explicit["stop-loss"] {
		patch["batch_stop_loss_pips"] = stopLoss
	}

	if len(patch) == 0 {
		logger.Println("no config flags given; nothing to update")
		return 0
	}

	if _, err := remoteClient.Update(ctx, remote.CollectionBots, botID, patch); err != nil {
		logger.Printf("updating bot %s: %v", botID, err)
		return 1
	}

	logger.Printf("updated bot %s (%s): %v", botID, symbol, patch)
	return 0
}
