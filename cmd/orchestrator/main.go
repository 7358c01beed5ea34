// Package main is the process entry point for the cycle trading
// orchestrator: one Account Supervisor per configured account plus the
// read-only admin status server, wired from a single config.yaml.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cycletrader/orchestrator/internal/adminserver"
	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/remote"
	"github.com/cycletrader/orchestrator/internal/retry"
	"github.com/cycletrader/orchestrator/internal/store"
	"github.com/cycletrader/orchestrator/internal/supervisor"
)

const (
	remoteClientTimeout = 30 * time.Second
	adminShutdownGrace  = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}

	logger.Printf("starting cycle trading orchestrator in %s mode, %d account(s)", cfg.Environment.Mode, len(cfg.Accounts))

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Printf("failed to open local store: %v", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping orchestrator...")
		cancel()
	}()

	supervisors := make([]*supervisor.Supervisor, 0, len(cfg.Accounts))
	providers := make([]adminserver.StatusProvider, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		sup, err := buildSupervisor(ctx, cfg, acc, st, logger)
		if err != nil {
			logger.Printf("failed to wire account %s: %v", acc.AccountID, err)
			return 1
		}
		supervisors = append(supervisors, sup)
		providers = append(providers, sup)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range supervisors {
		g.Go(func() error { return sup.Run(gctx) })
	}

	if cfg.AdminServer.Enabled {
		runAdminServer(g, gctx, cfg.AdminServer, providers, logger)
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Printf("orchestrator stopped with error: %v", err)
		return 1
	}
	logger.Println("orchestrator shut down cleanly")
	return 0
}

// buildSupervisor authenticates a broker session and a remote-store
// session for acc, starts its event subscriber, and returns the
// Supervisor that will drive it.
func buildSupervisor(ctx context.Context, cfg *config.Config, acc config.AccountConfig, st *store.Store, logger *log.Logger) (*supervisor.Supervisor, error) {
	limiter := broker.NewRateLimiter(cfg.Broker.MarketDataRPS, cfg.Broker.TradingRPS, cfg.Broker.StandardRPS)
	gateway := broker.NewGateway(cfg.Broker.BaseURL, cfg.Broker.RequestTimeout, limiter, logger)

	if err := gateway.Initialize(cfg.Broker.TerminalPath); err != nil {
		return nil, fmt.Errorf("initializing terminal session: %w", err)
	}
	if ok, err := gateway.Login(acc.Login, acc.Password, acc.Server); err != nil {
		return nil, fmt.Errorf("broker login: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("broker login: not authorized")
	}

	protectedBroker := retry.NewBroker(gateway, logger)

	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.AuthCollection, remoteClientTimeout)
	if err := remoteClient.Authenticate(ctx, acc.Login, acc.Password); err != nil {
		return nil, fmt.Errorf("authenticating against remote store: %w", err)
	}

	eventsURL, err := remote.EventsURL(cfg.Remote.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("deriving events url: %w", err)
	}
	subscriber := remote.NewSubscriber(eventsURL, remoteClient.Token(), logger)
	go func() {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("account %s: event subscriber stopped: %v", acc.AccountID, err)
		}
	}()

	return supervisor.New(acc.AccountID, protectedBroker, st, remoteClient, subscriber,
		cfg.Reconcile, cfg.Supervisor, cfg.Strategy, logger), nil
}

// runAdminServer starts the admin status server under g and arranges for
// it to shut down gracefully when gctx is cancelled.
func runAdminServer(g *errgroup.Group, gctx context.Context, cfg config.AdminServerConfig, providers []adminserver.StatusProvider, logger *log.Logger) {
	srv := adminserver.New(adminserver.Config{Port: cfg.Port, AuthToken: cfg.AuthToken}, providers, nil)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), adminShutdownGrace)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	logger.Printf("admin status server enabled on port %d", cfg.Port)
}
