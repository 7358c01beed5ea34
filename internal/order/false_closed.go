package order

import (
	"fmt"
	"time"

	"github.com/cycletrader/orchestrator/internal/models"
)

// CheckFalseClosedCycle implements spec §4.4's double-verification rule: a
// ticket observed candidate-closed by RefreshFromBroker is not written
// back as closed until it has also been confirmed closed a short delay
// later. Only after that second confirmation is the owning cycle
// revisited, and only then does a reconciled-closed cycle become eligible
// for reopening. Returns true iff the owning cycle was reopened.
func (e *Entity) CheckFalseClosedCycle(delay time.Duration) (bool, error) {
	if e.firstCandidateAt == nil {
		return false, nil
	}
	if e.Order.IsClosed {
		// Already finalized by an earlier pass; nothing left to verify.
		e.firstCandidateAt = nil
		return false, nil
	}
	if time.Since(*e.firstCandidateAt) < delay {
		return false, nil
	}

	closed, err := e.broker.CheckIsClosed(e.Order.Ticket)
	if err != nil {
		return false, fmt.Errorf("verifying closed ticket %d: %w", e.Order.Ticket, err)
	}
	if !closed {
		// The ticket reappeared (e.g. a transient broker read) — false alarm.
		e.firstCandidateAt = nil
		return false, nil
	}

	now := time.Now().UTC()
	e.Order.IsClosed = true
	e.Order.IsPending = false
	e.Order.ClosedAt = &now
	if err := e.Persist(); err != nil {
		return false, err
	}
	e.firstCandidateAt = nil

	return e.maybeReopenCycle()
}

// maybeReopenCycle reopens the owning cycle if it was closed solely
// because its orders were all believed closed, and new active broker
// positions matching the cycle's (magic, symbol) have since appeared.
func (e *Entity) maybeReopenCycle() (bool, error) {
	cycle, err := e.cycles.Get(e.Order.CycleID)
	if err != nil {
		return false, fmt.Errorf("loading cycle %s for reopen check: %w", e.Order.CycleID, err)
	}
	if !cycle.IsClosed || cycle.ClosingMethod != models.ClosingReconciled {
		return false, nil
	}

	positions, err := e.broker.AllPositions()
	if err != nil {
		return false, fmt.Errorf("listing positions for reopen check: %w", err)
	}

	var discovered []int64
	for _, pos := range positions {
		if pos.Magic != cycle.Magic || pos.Symbol != cycle.Symbol {
			continue
		}
		if cycle.HasTicket(pos.Ticket) {
			continue
		}
		discovered = append(discovered, pos.Ticket)
	}
	if len(discovered) == 0 {
		return false, nil
	}

	cycle.IsClosed = false
	cycle.ClosingMethod = ""
	cycle.CloseReason = ""
	cycle.CloseTime = nil
	cycle.Status = models.StateActive
	for _, ticket := range discovered {
		cycle.ActiveOrders = cycle.ActiveOrders.Append(ticket)
	}

	if err := e.cycles.Update(cycle); err != nil {
		return false, fmt.Errorf("reopening cycle %s: %w", cycle.LocalID, err)
	}
	e.logger.Printf("cycle %s reopened: %d newly discovered position(s) under magic %d symbol %s",
		cycle.LocalID, len(discovered), cycle.Magic, cycle.Symbol)
	return true, nil
}
