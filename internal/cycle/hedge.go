package cycle

import (
	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
)

// manageHedgeAndRecovery implements step 4 (opt-in for AdaptiveHedge and
// AdvancedCyclesTrader): a hedge order opens the first time price crosses
// the zone boundary in the direction adverse to CurrentDirection; once the
// hedge leg's accumulated loss reaches Params.RecoveryLossThreshold the
// cycle enters recovery mode, pinning RecoveryZoneBasePrice and
// InitialStopLossPrice and tracking against them instead of the original
// zone until price recovers back through the pinned base.
func (e *Engine) manageHedgeAndRecovery(c *models.Cycle, price, pip float64) {
	if c.Status == models.StateRecovery {
		e.manageRecovery(c, price, pip)
		return
	}

	if e.hedgeLossExceedsThreshold(c) {
		e.enterRecovery(c, price)
		return
	}

	if len(c.HedgeOrders) > 0 {
		return
	}

	adverse := (c.CurrentDirection == models.Buy && price <= c.LowerBound) ||
		(c.CurrentDirection == models.Sell && price >= c.UpperBound)
	if !adverse {
		return
	}

	hedgeDir := c.CurrentDirection.Opposite()
	lot := e.params.HedgeLotForIndex(int64(len(c.HedgeOrders)))
	positions, err := e.broker.Market(broker.OrderRequest{
		Side: hedgeDir, Symbol: c.Symbol, Volume: lot, Magic: c.Magic,
		Comment: broker.TruncateComment("hedge"),
	})
	if err != nil {
		e.logger.Printf("cycle %s: hedge order: %v", c.LocalID, err)
		return
	}
	if len(positions) == 0 {
		return
	}
	for _, pos := range positions {
		if _, err := e.recordPosition(c, pos, false); err != nil {
			e.logger.Printf("cycle %s: recording hedge ticket %d: %v", c.LocalID, pos.Ticket, err)
			continue
		}
		c.ActiveOrders = c.ActiveOrders.Append(pos.Ticket)
		c.HedgeOrders = c.HedgeOrders.Append(pos.Ticket)
		c.TotalVolume += pos.Volume
	}
}

func (e *Engine) hedgeLossExceedsThreshold(c *models.Cycle) bool {
	if len(c.HedgeOrders) == 0 {
		return false
	}
	var loss float64
	for _, ticket := range c.HedgeOrders {
		o, err := e.store.Orders.GetByTicket(ticket)
		if err != nil {
			continue
		}
		if n := o.NetProfit(); n < 0 {
			loss += -n
		}
	}
	return loss >= e.params.RecoveryLossThreshold
}

func (e *Engine) enterRecovery(c *models.Cycle, price float64) {
	c.RecoveryZoneBasePrice = price
	c.InitialStopLossPrice = price
	c.Status = models.StateRecovery
	c.RecoveryCount++
}

// manageRecovery exits recovery mode once price has moved back through the
// pinned recovery base in the cycle's favorable direction by at least one
// zone-forward distance, resuming normal zone tracking from there.
func (e *Engine) manageRecovery(c *models.Cycle, price, pip float64) {
	favorable := (c.CurrentDirection == models.Buy && price >= c.RecoveryZoneBasePrice+e.params.ZoneForward2*pip) ||
		(c.CurrentDirection == models.Sell && price <= c.RecoveryZoneBasePrice-e.params.ZoneForward2*pip)
	if !favorable {
		return
	}
	c.Status = models.StateActive
	c.RecoveryZoneBasePrice = 0
	c.InitialStopLossPrice = 0
}

// batchStopLoss implements step 5 (Advanced family only): if the floating
// loss across the cycle's active orders exceeds
// batch_stop_loss_pips · pip · volume_sum, every active order is closed and
// the cycle transitions to closed, per the batch_stop_loss edge of
// models.ValidCycleTransitions.
func (e *Engine) batchStopLoss(c *models.Cycle, pip float64) {
	var loss, volumeSum float64
	for _, ticket := range c.ActiveOrders {
		o, err := e.store.Orders.GetByTicket(ticket)
		if err != nil {
			continue
		}
		volumeSum += o.Volume
		if n := o.NetProfit(); n < 0 {
			loss += -n
		}
	}
	if volumeSum == 0 {
		return
	}
	if loss <= e.params.BatchStopLossPips*pip*volumeSum {
		return
	}
	e.closeAll(c, models.ClosingBatchStopLoss, "batch_stop_loss")
}
