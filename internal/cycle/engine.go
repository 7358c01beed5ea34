package cycle

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/order"
	"github.com/cycletrader/orchestrator/internal/store"
)

// Engine runs the per-tick management sequence of spec §4.5.2 for cycles
// belonging to one bot. Params and Family are resolved once per bot (by
// the Strategy Loop) and handed to every Manage call for that bot's cycles.
type Engine struct {
	broker broker.Broker
	store  *store.Store
	logger *log.Logger
	family Family
	params Params
}

// New constructs an Engine for one bot's cycles.
func New(br broker.Broker, st *store.Store, family Family, params Params, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{broker: br, store: st, logger: logger, family: family, params: params}
}

// Manage runs steps 1-6 of spec §4.5.2 against c and persists the result
// (step 7, candle-close trading, runs from the Strategy Loop via
// CheckCandleTrade).
// Broker rejections and store write failures are logged and left for the
// next tick (spec §4.5.5); only a genuinely missing symbol short-circuits
// the tick as a no-op (spec §8 boundary behavior).
func (e *Engine) Manage(c *models.Cycle) error {
	if c.IsClosed {
		return nil
	}

	info, err := e.broker.SymbolInfo(c.Symbol)
	if err != nil {
		return fmt.Errorf("cycle %s: reading symbol info for %s: %w", c.LocalID, c.Symbol, err)
	}
	if info == nil {
		return nil
	}
	pip := info.Pip()
	point := info.Point

	e.refreshOrders(c)
	if c.IsClosed {
		return e.persist(c)
	}

	price, ok := e.broker.Bid(c.Symbol)
	if !ok {
		return e.persist(c)
	}

	e.gridStep(c, price, point)
	e.directionSwitch(c, price)
	if e.family.HedgingEnabled() {
		e.manageHedgeAndRecovery(c, price, pip)
	}
	if e.family.BatchStopLossEnabled() {
		e.batchStopLoss(c, pip)
	}
	e.takeProfit(c)

	return e.persist(c)
}

func (e *Engine) persist(c *models.Cycle) error {
	c.UpdatedAt = time.Now().UTC()
	if err := e.store.Cycles.Update(c); err != nil {
		e.logger.Printf("cycle %s: persisting: %v", c.LocalID, err)
		return nil
	}
	return nil
}

// refreshOrders implements step 1: every active ticket is refreshed via
// the Order Entity; a ticket already confirmed closed (by a prior
// reconciliation pass) migrates from ActiveOrders to ClosedOrders and
// folds its realized PnL into the cycle's accounting.
func (e *Engine) refreshOrders(c *models.Cycle) {
	for _, ticket := range append(models.TicketSet{}, c.ActiveOrders...) {
		o, err := e.store.Orders.GetByTicket(ticket)
		if err != nil {
			e.logger.Printf("cycle %s: loading order %d: %v", c.LocalID, ticket, err)
			continue
		}
		ent := order.New(o, e.broker, e.store, e.logger)
		if _, err := ent.RefreshFromBroker(); err != nil {
			e.logger.Printf("cycle %s: refreshing order %d: %v", c.LocalID, ticket, err)
			continue
		}
		if err := ent.Persist(); err != nil {
			e.logger.Printf("cycle %s: persisting order %d: %v", c.LocalID, ticket, err)
		}
		if o.IsClosed {
			e.foldClosedOrder(c, o)
		}
	}
}

func (e *Engine) foldClosedOrder(c *models.Cycle, o *models.Order) {
	if !c.ActiveOrders.Contains(o.Ticket) {
		return
	}
	c.ActiveOrders = c.ActiveOrders.Remove(o.Ticket)
	c.ClosedOrders = c.ClosedOrders.Append(o.Ticket)

	net := o.NetProfit()
	c.TotalProfit += net
	if net < 0 {
		c.AccumulatedLoss += -net
		if e.family.BatchStopLossEnabled() {
			c.BatchLosses = append(c.BatchLosses, net)
		}
	}
}

// gridStep implements step 2. point is the symbol's point size, not its
// pip size — see gridTriggerDistance.
func (e *Engine) gridStep(c *models.Cycle, price, point float64) {
	trigger, ok := ShouldGridStep(c, price, point, e.params.PipsStep)
	if !ok {
		return
	}

	lot := e.params.LotForIndex(c.NextOrderIndex)
	comment := broker.TruncateComment(fmt.Sprintf("grid-step-%d", c.NextOrderIndex+1))
	positions, err := e.broker.Market(broker.OrderRequest{
		Side: c.CurrentDirection, Symbol: c.Symbol, Volume: lot, Magic: c.Magic, Comment: comment,
	})
	if err != nil {
		e.logger.Printf("cycle %s: grid-step order: %v", c.LocalID, err)
		return
	}
	if len(positions) == 0 {
		// Broker retcode != DONE: no state advances (spec §4.5.5).
		return
	}

	for _, pos := range positions {
		if _, err := e.recordPosition(c, pos, false); err != nil {
			e.logger.Printf("cycle %s: recording grid-step ticket %d: %v", c.LocalID, pos.Ticket, err)
			continue
		}
		c.ActiveOrders = c.ActiveOrders.Append(pos.Ticket)
		c.TotalVolume += pos.Volume
	}
	c.NextOrderIndex++
	c.DonePriceLevels = c.DonePriceLevels.Append(trigger)
}

// directionSwitch implements step 3.
func (e *Engine) directionSwitch(c *models.Cycle, price float64) {
	if !ShouldReverse(c, price) {
		return
	}
	if c.DirectionSwitched && !e.family.AllowRepeatedDirectionSwitch() {
		return
	}

	newDir := c.CurrentDirection.Opposite()
	comment := broker.TruncateComment("direction-switch")
	positions, err := e.broker.Market(broker.OrderRequest{
		Side: newDir, Symbol: c.Symbol, Volume: e.params.LotForIndex(0), Magic: c.Magic, Comment: comment,
	})
	if err != nil {
		e.logger.Printf("cycle %s: direction-switch order: %v", c.LocalID, err)
		return
	}
	if len(positions) == 0 {
		return
	}

	for _, pos := range positions {
		if _, err := e.recordPosition(c, pos, false); err != nil {
			e.logger.Printf("cycle %s: recording direction-switch ticket %d: %v", c.LocalID, pos.Ticket, err)
			continue
		}
		c.ActiveOrders = c.ActiveOrders.Append(pos.Ticket)
		c.TotalVolume += pos.Volume
	}

	c.CurrentDirection = newDir
	c.DirectionSwitched = true
	c.DirectionSwitches++
	c.InitialThresholdPrice = price
	c.NextOrderIndex = 0
}

// takeProfit implements step 6: the cycle closes once TotalProfit (realized
// PnL already folded from closed legs) plus the floating profit of its
// still-active tickets reaches Params.TakeProfit (spec §8 scenario S3, "sum
// of profit over active tickets"). Params.SLTPUnit is not consulted: the
// target is always compared against this money sum, so a pips-denominated
// target gets no pip conversion (open question 1).
func (e *Engine) takeProfit(c *models.Cycle) {
	if c.IsClosed {
		return
	}
	if c.TotalProfit+e.floatingProfit(c) < e.params.TakeProfit {
		return
	}
	e.closeAll(c, models.ClosingTakeProfit, "take_profit")
}

func (e *Engine) floatingProfit(c *models.Cycle) float64 {
	var sum float64
	for _, ticket := range c.ActiveOrders {
		o, err := e.store.Orders.GetByTicket(ticket)
		if err != nil {
			continue
		}
		sum += o.NetProfit()
	}
	return sum
}

// Close closes c on a user-initiated close_cycle/close_all_cycles event
// (spec §4.6): every non-closed ticket is closed via the Broker Gateway,
// realized PnL is booked, and the cycle is persisted. Safe to call on an
// already-closed cycle (no-op).
func (e *Engine) Close(c *models.Cycle, reason string) error {
	if c.IsClosed {
		return nil
	}
	e.closeAll(c, models.ClosingManual, reason)
	return e.persist(c)
}

// CloseTicket closes a single ticket belonging to c on a user-initiated
// close_order/close_pending_order event, leaving the cycle's other tickets
// untouched. Once no active ticket remains, the cycle itself is closed.
func (e *Engine) CloseTicket(c *models.Cycle, ticket int64) error {
	if !c.HasTicket(ticket) {
		return nil
	}
	e.closeTicket(c, ticket)
	if !c.IsClosed && len(c.ActiveOrders) == 0 {
		e.closeAll(c, models.ClosingManual, "close_order")
	}
	return e.persist(c)
}

// closeAll closes every non-closed ticket in c via the Broker Gateway and
// transitions the cycle to closed. The Engine never records a ticket it
// did not receive from the broker, and a close failure leaves the ticket
// in ActiveOrders for the next tick to retry (spec §4.5.5).
func (e *Engine) closeAll(c *models.Cycle, method models.ClosingMethod, reason string) {
	for _, ticket := range append(models.TicketSet{}, c.ActiveOrders...) {
		e.closeTicket(c, ticket)
	}
	if len(c.ActiveOrders) > 0 {
		// Some tickets failed to close; retry the close-all next tick
		// rather than declaring the cycle closed prematurely.
		return
	}

	now := time.Now().UTC()
	c.IsClosed = true
	c.Status = models.StateClosed
	c.ClosingMethod = method
	c.CloseReason = reason
	c.CloseTime = &now
}

func (e *Engine) closeTicket(c *models.Cycle, ticket int64) {
	pos, ok, err := e.broker.PositionByTicket(ticket)
	if err != nil {
		e.logger.Printf("cycle %s: reading position %d for close: %v", c.LocalID, ticket, err)
		return
	}
	if !ok {
		// Not an open position; try it as a pending order instead.
		e.closePendingTicket(c, ticket)
		return
	}
	res, err := e.broker.ClosePosition(*pos, 0)
	if err != nil {
		e.logger.Printf("cycle %s: closing position %d: %v", c.LocalID, ticket, err)
		return
	}
	if res == nil || !res.Done {
		return
	}
	e.markTicketClosed(c, ticket)
}

func (e *Engine) closePendingTicket(c *models.Cycle, ticket int64) {
	res, err := e.broker.CloseOrder(ticket)
	if err != nil {
		e.logger.Printf("cycle %s: closing pending order %d: %v", c.LocalID, ticket, err)
		return
	}
	if res == nil || !res.Done {
		return
	}
	e.markTicketClosed(c, ticket)
}

func (e *Engine) markTicketClosed(c *models.Cycle, ticket int64) {
	o, err := e.store.Orders.GetByTicket(ticket)
	if err != nil {
		e.logger.Printf("cycle %s: loading order %d after close: %v", c.LocalID, ticket, err)
		c.ActiveOrders = c.ActiveOrders.Remove(ticket)
		c.ClosedOrders = c.ClosedOrders.Append(ticket)
		return
	}
	now := time.Now().UTC()
	o.IsClosed = true
	o.IsPending = false
	o.ClosedAt = &now
	if err := e.store.Orders.Update(o); err != nil {
		e.logger.Printf("cycle %s: persisting closed order %d: %v", c.LocalID, ticket, err)
	}
	e.foldClosedOrder(c, o)
}

// recordPosition writes a newly confirmed broker position into the Local
// Store as a models.Order row belonging to c.
func (e *Engine) recordPosition(c *models.Cycle, pos broker.Position, pending bool) (*models.Order, error) {
	kind := models.OrderMarket
	if pending {
		kind = models.OrderPending
	}
	o := &models.Order{
		LocalID:   uuid.NewString(),
		Ticket:    pos.Ticket,
		CycleID:   c.LocalID,
		BotID:     c.BotID,
		AccountID: c.AccountID,
		Kind:      kind,
		Direction: pos.Direction,
		Symbol:    pos.Symbol,
		Magic:     pos.Magic,
		OpenPrice: pos.OpenPrice,
		Volume:    pos.Volume,
		SL:        pos.SL,
		TP:        pos.TP,
		IsPending: pending,
		OpenedAt:  time.Now().UTC(),
	}
	if err := e.store.Orders.Create(o); err != nil {
		return nil, fmt.Errorf("creating order row for ticket %d: %w", pos.Ticket, err)
	}
	return o, nil
}
