// Package order implements the Order Entity (spec §4.4): one broker
// ticket's live state, refreshed from the Broker Gateway and written back
// through the Local Store, with the double-verification logic that guards
// against a cycle being closed on a transient "ticket vanished" reading.
package order

import (
	"fmt"
	"log"
	"time"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/store"
)

// Entity wraps one models.Order with the broker/store plumbing needed to
// keep it current. It is not safe for concurrent use by multiple
// goroutines — each cycle's management tick owns its own Entities.
type Entity struct {
	Order *models.Order

	broker broker.Broker
	orders *store.OrderRepo
	cycles *store.CycleRepo
	logger *log.Logger

	// firstCandidateAt is set the first time the ticket is observed
	// absent from both active positions and pending orders, and cleared
	// once the second verification pass resolves it either way.
	firstCandidateAt *time.Time
}

// New wraps an existing order for refresh/persist/reconciliation.
func New(o *models.Order, br broker.Broker, st *store.Store, logger *log.Logger) *Entity {
	if logger == nil {
		logger = log.Default()
	}
	return &Entity{Order: o, broker: br, orders: st.Orders, cycles: st.Cycles, logger: logger}
}

// RefreshFromBroker re-reads the ticket from the broker and updates the
// in-memory Order's mutable fields. It returns true iff a field actually
// changed. An order absent from both active positions and pending orders
// is candidate-closed: this method records the observation but performs
// no state transition — CheckFalseClosedCycle owns confirming it.
func (e *Entity) RefreshFromBroker() (bool, error) {
	if pos, ok, err := e.broker.PositionByTicket(e.Order.Ticket); err != nil {
		return false, fmt.Errorf("refreshing position %d: %w", e.Order.Ticket, err)
	} else if ok {
		e.firstCandidateAt = nil
		return e.applyPosition(pos), nil
	}

	if pend, ok, err := e.broker.OrderByTicket(e.Order.Ticket); err != nil {
		return false, fmt.Errorf("refreshing pending order %d: %w", e.Order.Ticket, err)
	} else if ok {
		e.firstCandidateAt = nil
		return e.applyPending(pend), nil
	}

	if e.firstCandidateAt == nil {
		now := time.Now().UTC()
		e.firstCandidateAt = &now
		e.logger.Printf("order %d candidate-closed: absent from both active positions and pending orders", e.Order.Ticket)
	}
	return false, nil
}

func (e *Entity) applyPosition(pos *broker.Position) bool {
	changed := e.Order.Profit != pos.Profit ||
		e.Order.Swap != pos.Swap ||
		e.Order.Commission != pos.Commission ||
		e.Order.SL != pos.SL ||
		e.Order.TP != pos.TP ||
		e.Order.Volume != pos.Volume ||
		e.Order.IsPending ||
		e.Order.IsClosed

	e.Order.Profit = pos.Profit
	e.Order.Swap = pos.Swap
	e.Order.Commission = pos.Commission
	e.Order.SL = pos.SL
	e.Order.TP = pos.TP
	e.Order.Volume = pos.Volume
	e.Order.IsPending = false
	e.Order.IsClosed = false
	return changed
}

func (e *Entity) applyPending(pend *broker.PendingOrder) bool {
	changed := e.Order.SL != pend.SL ||
		e.Order.TP != pend.TP ||
		e.Order.Volume != pend.Volume ||
		!e.Order.IsPending ||
		e.Order.IsClosed

	e.Order.SL = pend.SL
	e.Order.TP = pend.TP
	e.Order.Volume = pend.Volume
	e.Order.IsPending = true
	e.Order.IsClosed = false
	return changed
}

// Persist writes the order's current fields into the Local Store.
func (e *Entity) Persist() error {
	if err := e.orders.Update(e.Order); err != nil {
		return fmt.Errorf("persisting order %d: %w", e.Order.Ticket, err)
	}
	return nil
}
