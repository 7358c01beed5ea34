// Package strategyloop implements the Strategy Loop (spec §4.6): one
// driver per bot that ticks its active cycles through the Cycle Engine,
// opens new cycles under autotrade gating, runs candle-close trading for
// families that opt in, and applies the user-facing mutation events the
// Account Supervisor's event subscriber hands it.
package strategyloop

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/cycle"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/remote"
	"github.com/cycletrader/orchestrator/internal/store"
)

const (
	tickInterval       = time.Second
	lastCyclePriceKey  = "last_cycle_price"
	lastCandleTimeKey  = "last_candle_time"
	remoteWriteTimeout = 5 * time.Second
)

// Loop is one bot's driver: the Strategy Loop's per-tick schedule plus its
// handle_event dispatch table. Not safe for concurrent ticking — the
// Account Supervisor owns exactly one goroutine per Loop (spec §5's "within
// a cycle, all order state transitions are serialized by the Strategy
// Loop's single-threaded tick").
type Loop struct {
	broker broker.Broker
	store  *store.Store
	remote *remote.Client
	logger *log.Logger

	bot    *models.Bot
	params cycle.Params
	family cycle.Family
	engine *cycle.Engine

	mu      sync.RWMutex
	stopped bool

	lastCandleTime *time.Time
}

// New builds a Loop for bot. remote may be nil (tests, or a bot running
// detached from the remote store); persistToRemote becomes a no-op then.
func New(br broker.Broker, st *store.Store, rc *remote.Client, bot *models.Bot, defaults config.StrategyDefaults, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	params := cycle.LoadParams(bot, defaults, logger)
	family := cycle.FamilyFor(bot.Strategy)

	l := &Loop{
		broker:  br,
		store:   st,
		remote:  rc,
		logger:  logger,
		bot:     bot,
		params:  params,
		family:  family,
		engine:  cycle.New(br, st, family, params, logger),
		stopped: bot.Stopped,
	}
	if t, ok := l.loadCandleTime(); ok {
		l.lastCandleTime = t
	}
	return l
}

// Run ticks the loop every second until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.tick(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one pass of spec §4.6's loop body.
func (l *Loop) tick(ctx context.Context) {
	cycles, err := l.store.Cycles.ListActiveByBot(l.bot.LocalID)
	if err != nil {
		l.logger.Printf("bot %s: listing active cycles: %v", l.bot.LocalID, err)
		return
	}

	stopped := l.isStopped()

	for i := range cycles {
		c := &cycles[i]
		if !stopped {
			if err := l.engine.Manage(c); err != nil {
				l.logger.Printf("bot %s: managing cycle %s: %v", l.bot.LocalID, c.LocalID, err)
			}
		}
		l.persistToRemote(ctx, c)
	}

	if !stopped {
		l.maybeOpenNewCycle(cycles)
	}

	if l.family.CandleTradingEnabled() && !stopped {
		l.checkCandleTrading()
	}
}

func (l *Loop) isStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stopped
}

func (l *Loop) setStopped(v bool) {
	l.mu.Lock()
	l.stopped = v
	l.mu.Unlock()
}

// checkCandleTrading implements spec §4.5.2 item 7 for CycleTrader-family
// bots: one new cycle (plus pending hedge) per newly completed candle,
// subject to the same max_cycles cap as autotrade.
func (l *Loop) checkCandleTrading() {
	if l.params.MaxCycles > 0 {
		active, err := l.store.Cycles.ListActiveByBot(l.bot.LocalID)
		if err != nil {
			l.logger.Printf("bot %s: listing active cycles: %v", l.bot.LocalID, err)
			return
		}
		if len(active) >= l.params.MaxCycles {
			return
		}
	}
	_, observed, err := cycle.CheckCandleTrade(l.broker, l.store, l.params, l.bot, l.lastCandleTime)
	if err != nil {
		l.logger.Printf("bot %s: candle trading: %v", l.bot.LocalID, err)
		return
	}
	if observed == nil {
		return
	}
	if l.lastCandleTime != nil && !observed.After(*l.lastCandleTime) {
		return
	}
	l.lastCandleTime = observed
	l.saveCandleTime(*observed)
}

func (l *Loop) loadCandleTime() (*time.Time, bool) {
	raw, err := l.store.Config.Get(l.bot.LocalID, lastCandleTimeKey)
	if err != nil || raw == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func (l *Loop) saveCandleTime(t time.Time) {
	if err := l.store.Config.Set(l.bot.LocalID, lastCandleTimeKey, t.Format(time.RFC3339Nano)); err != nil {
		l.logger.Printf("bot %s: persisting last candle time: %v", l.bot.LocalID, err)
	}
}

func (l *Loop) loadLastCyclePrice() (float64, bool) {
	raw, err := l.store.Config.Get(l.bot.LocalID, lastCyclePriceKey)
	if err != nil || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (l *Loop) saveLastCyclePrice(price float64) {
	if err := l.store.Config.Set(l.bot.LocalID, lastCyclePriceKey, strconv.FormatFloat(price, 'f', -1, 64)); err != nil {
		l.logger.Printf("bot %s: persisting last cycle price: %v", l.bot.LocalID, err)
	}
}

// persistToRemote mirrors c's current state to the remote store (spec
// §4.6's per-cycle "persist_to_remote" step). Failures are logged and left
// for the next tick per spec §4.5.5 — cycle correctness depends only on
// local state.
func (l *Loop) persistToRemote(ctx context.Context, c *models.Cycle) {
	if l.remote == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, remoteWriteTimeout)
	defer cancel()

	collection := remoteCollectionFor(l.bot.Strategy)
	patch := cycleRecord(c)

	if c.RemoteID == "" {
		rec, err := l.remote.Create(writeCtx, collection, patch)
		if err != nil {
			l.logger.Printf("bot %s: creating remote cycle record: %v", l.bot.LocalID, err)
			return
		}
		if id, ok := rec["id"].(string); ok && id != "" {
			c.RemoteID = id
			if err := l.store.Cycles.Update(c); err != nil {
				l.logger.Printf("bot %s: persisting cycle's remote id: %v", l.bot.LocalID, err)
			}
		}
		return
	}

	if _, err := l.remote.Update(writeCtx, collection, c.RemoteID, patch); err != nil {
		l.logger.Printf("bot %s: updating remote cycle %s: %v", l.bot.LocalID, c.RemoteID, err)
	}
}

// remoteCollectionFor maps a strategy kind to its remote-store cycles
// collection (spec §3's per-strategy-family cycle tables). StockTrader has
// no dedicated collection in the source; it shares CyclesTraderCycles, the
// plain-grid baseline family.
func remoteCollectionFor(kind models.StrategyKind) string {
	switch kind {
	case models.StrategyAdaptiveHedge:
		return remote.CollectionAdaptiveHedgeCycles
	case models.StrategyAdvancedCyclesTrader:
		return remote.CollectionAdvancedCyclesTraderCycles
	case models.StrategyMoveGuard:
		return remote.CollectionMoveGuardCycles
	default:
		return remote.CollectionCyclesTraderCycles
	}
}

func cycleRecord(c *models.Cycle) remote.Record {
	return remote.Record{
		"bot_id":             c.BotID,
		"account_id":         c.AccountID,
		"symbol":             c.Symbol,
		"magic":              c.Magic,
		"kind":               string(c.Kind),
		"open_price":         c.OpenPrice,
		"current_direction":  string(c.CurrentDirection),
		"next_order_index":   c.NextOrderIndex,
		"total_volume":       c.TotalVolume,
		"total_profit":       c.TotalProfit,
		"status":             string(c.Status),
		"is_closed":          c.IsClosed,
		"is_pending":         c.IsPending,
		"closing_method":     string(c.ClosingMethod),
		"close_reason":       c.CloseReason,
	}
}
