package strategyloop

import (
	"github.com/cycletrader/orchestrator/internal/cycle"
	"github.com/cycletrader/orchestrator/internal/models"
)

// maybeOpenNewCycle implements spec §4.5.4: a new cycle opens once price has
// moved autotrade_threshold pips from the last opened cycle's price,
// subject to the max_cycles cap and the autotrade_pips_restriction gates.
func (l *Loop) maybeOpenNewCycle(cycles []models.Cycle) {
	if l.params.MaxCycles > 0 && len(cycles) >= l.params.MaxCycles {
		return
	}

	price, ok := l.broker.Bid(l.bot.Symbol)
	if !ok {
		return
	}
	info, err := l.broker.SymbolInfo(l.bot.Symbol)
	if err != nil || info == nil {
		return
	}
	pip := info.Pip()

	last, haveLast := l.loadLastCyclePrice()
	if !haveLast {
		// Cold start: nothing to measure movement against yet. Anchor here
		// rather than opening blind on the first tick.
		l.saveLastCyclePrice(price)
		return
	}

	var dir models.Direction
	switch {
	case price >= last+l.params.AutotradeThreshold*pip:
		dir = models.Buy
	case price <= last-l.params.AutotradeThreshold*pip:
		dir = models.Sell
	default:
		return
	}

	if autotradeRestricted(cycles, price, pip, l.params.AutotradePipsRestriction, dir) {
		return
	}

	kind := models.KindBuy
	if dir == models.Sell {
		kind = models.KindSell
	}

	opened, err := cycle.Open(l.broker, l.store, l.params, cycle.OpenRequest{
		BotID: l.bot.LocalID, AccountID: l.bot.AccountID, Symbol: l.bot.Symbol,
		Magic: l.bot.Magic, Kind: kind, Side: dir,
		OpenedBy: models.OpenedBy{UserName: "autotrade"},
	})
	if err != nil {
		l.logger.Printf("bot %s: autotrade open: %v", l.bot.LocalID, err)
		return
	}
	if len(opened) == 0 {
		return
	}
	l.saveLastCyclePrice(price)
}

// autotradeRestricted reports whether a new cycle in direction dir should
// be suppressed, per the two autotrade_pips_restriction checks of spec
// §4.5.4: a nearby still-young cycle of either direction, or a nearby
// existing cycle of the same direction.
func autotradeRestricted(cycles []models.Cycle, price, pip, pipsRestriction float64, dir models.Direction) bool {
	if pipsRestriction <= 0 {
		return false
	}
	halfBuffer := pipsRestriction / 2 * pip
	fullBuffer := pipsRestriction * pip

	for _, c := range cycles {
		if c.IsClosed {
			continue
		}
		dist := c.OpenPrice - price
		if dist < 0 {
			dist = -dist
		}

		if dist <= halfBuffer && isYoungCycle(&c) {
			return true
		}
		if dist <= fullBuffer && c.CurrentDirection == dir {
			return true
		}
	}
	return false
}

// isYoungCycle reports whether c has not yet hedged, closed anything, or
// accumulated more than two orders (spec §4.5.4).
func isYoungCycle(c *models.Cycle) bool {
	if len(c.HedgeOrders) > 0 {
		return false
	}
	if len(c.ClosedOrders) > 0 {
		return false
	}
	return distinctTicketCount(c) <= 2
}

func distinctTicketCount(c *models.Cycle) int {
	seen := make(map[int64]bool)
	sets := []models.TicketSet{
		c.InitialOrders, c.HedgeOrders, c.PendingOrders, c.ClosedOrders,
		c.RecoveryOrders, c.ThresholdOrders, c.ActiveOrders, c.CompletedOrders,
	}
	for _, set := range sets {
		for _, t := range set {
			seen[t] = true
		}
	}
	return len(seen)
}
