// Package main is a thin interactive operational tool: it closes every
// active cycle for one bot by driving the same close_all_cycles event
// path the remote store's events feed would (spec.md §6's CLI surface).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/remote"
	"github.com/cycletrader/orchestrator/internal/store"
	"github.com/cycletrader/orchestrator/internal/strategyloop"
	"github.com/cycletrader/orchestrator/internal/supervisor"
)

const remoteClientTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		botID      string
		serverURL  string
		yes        bool
	)
	flag.StringVar(&configPath, "config-file", "config.yaml", "Path to configuration file")
	flag.StringVar(&botID, "bot-id", "", "Bot id to close every active cycle for (required)")
	flag.StringVar(&serverURL, "server-url", "", "Override remote.base_url from the config file")
	flag.BoolVar(&yes, "yes", false, "Skip the interactive confirmation prompt")
	flag.Parse()

	logger := log.New(os.Stdout, "[close-all-cycles] ", log.LstdFlags)

	if strings.TrimSpace(botID) == "" {
		logger.Println("--bot-id is required")
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

	ctx := context.Background()

	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.AuthCollection, remoteClientTimeout)
	account := cfg.Accounts[0]
	if err := remoteClient.Authenticate(ctx, account.Login, account.Password); err != nil {
		logger.Printf("authenticating against remote store: %v", err)
		return 1
	}

	rec, err := remoteClient.Get(ctx, remote.CollectionBots, botID)
	if err != nil {
		logger.Printf("fetching bot %s: %v", botID, err)
		return 1
	}
	bot, err := supervisor.BotFromRecord(rec, account.AccountID)
	if err != nil {
		logger.Printf("parsing bot record: %v", err)
		return 1
	}

	if !yes && !confirm(fmt.Sprintf("Close ALL active cycles for bot %s (%s)? [y/N] ", bot.LocalID, bot.Symbol)) {
		logger.Println("aborted")
		return 1
	}

	limiter := broker.NewRateLimiter(cfg.Broker.MarketDataRPS, cfg.Broker.TradingRPS, cfg.Broker.StandardRPS)
	gateway := broker.NewGateway(cfg.Broker.BaseURL, cfg.Broker.RequestTimeout, limiter, logger)
	if err := gateway.Initialize(cfg.Broker.TerminalPath); err != nil {
		logger.Printf("initializing terminal session: %v", err)
		return 1
	}
	if ok, err := gateway.Login(account.Login, account.Password, account.Server); err != nil || !ok {
		logger.Printf("broker login failed: %v", err)
		return 1
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Printf("opening local store: %v", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	loop := strategyloop.New(gateway, st, remoteClient, bot, cfg.Strategy, logger)
	evt := remote.Event{BotID: bot.LocalID, Action: string(strategyloop.EventCloseAllCycles)}
	if err := loop.HandleEvent(ctx, evt); err != nil {
		logger.Printf("close_all_cycles failed: %v", err)
		return 1
	}

	logger.Printf("closed all active cycles for bot %s", bot.LocalID)
	return 0
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
