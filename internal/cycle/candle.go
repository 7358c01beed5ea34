package cycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/store"
)

// CheckCandleTrade implements spec §4.5.2 item 7 (CycleTrader opt-in): on
// each newly completed candle of the bot's configured timeframe, it opens
// one order in the direction of that candle's close with a matching
// pending hedge at hedge_sl pips on the opposite side, both belonging to a
// new cycle. lastCandleTime is the open time of the most recently acted-on
// candle; the caller persists the returned time so a candle is considered
// "new" iff its open time strictly advances (spec §8 boundary behavior).
func CheckCandleTrade(br broker.Broker, st *store.Store, params Params, bot *models.Bot, lastCandleTime *time.Time) (*models.Cycle, *time.Time, error) {
	candle, err := br.LastCandle(bot.Symbol, params.CandleTimeframe)
	if err != nil {
		return nil, lastCandleTime, fmt.Errorf("reading last candle for %s: %w", bot.Symbol, err)
	}
	if candle == nil {
		return nil, lastCandleTime, nil
	}
	if lastCandleTime != nil && !candle.OpenTime.After(*lastCandleTime) {
		return nil, lastCandleTime, nil
	}
	observed := candle.OpenTime

	dir := candle.Direction()
	if dir == models.CandleNone {
		return nil, &observed, nil
	}

	side, kind := models.Buy, models.KindBuy
	if dir == models.CandleDown {
		side, kind = models.Sell, models.KindSell
	}

	info, err := br.SymbolInfo(bot.Symbol)
	if err != nil {
		return nil, lastCandleTime, fmt.Errorf("reading symbol info for %s: %w", bot.Symbol, err)
	}
	if info == nil {
		return nil, &observed, nil
	}
	pip := info.Pip()

	cycles, err := Open(br, st, params, OpenRequest{
		BotID: bot.LocalID, AccountID: bot.AccountID, Symbol: bot.Symbol,
		Magic: bot.Magic, Kind: kind, Side: side,
	})
	if err != nil || len(cycles) == 0 {
		return nil, lastCandleTime, err
	}
	c := cycles[0]

	placeCandleHedge(br, st, params, bot, c, side, pip)

	return c, &observed, nil
}

func placeCandleHedge(br broker.Broker, st *store.Store, params Params, bot *models.Bot, c *models.Cycle, side models.Direction, pip float64) {
	hedgeSide := side.Opposite()
	hedgePrice := c.OpenPrice - params.HedgeSLPips*pip
	if hedgeSide == models.Buy {
		hedgePrice = c.OpenPrice + params.HedgeSLPips*pip
	}

	positions, err := br.Pending(broker.OrderRequest{
		Side: hedgeSide, Symbol: bot.Symbol, Volume: params.LotForIndex(0), Magic: bot.Magic,
		Price: hedgePrice, Comment: broker.TruncateComment("candle-hedge"),
	})
	if err != nil || len(positions) == 0 {
		return
	}

	for _, pos := range positions {
		o := &models.Order{
			LocalID: uuid.NewString(), Ticket: pos.Ticket, CycleID: c.LocalID,
			BotID: bot.LocalID, AccountID: bot.AccountID, Kind: models.OrderPending,
			Direction: hedgeSide, Symbol: bot.Symbol, Magic: bot.Magic,
			OpenPrice: hedgePrice, Volume: pos.Volume, IsPending: true, OpenedAt: time.Now().UTC(),
		}
		if err := st.Orders.Create(o); err != nil {
			continue
		}
		c.ActiveOrders = c.ActiveOrders.Append(pos.Ticket)
		c.PendingOrders = c.PendingOrders.Append(pos.Ticket)
	}
	_ = st.Cycles.Update(c)
}
