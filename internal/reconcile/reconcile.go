// Package reconcile implements Order Reconciliation (spec §4.7): a
// background task, one per broker session (one per account), that keeps
// the Local Store's notion of "open" orders honest against what the
// broker actually reports, using internal/order.Entity's double-verified
// candidate-closed logic as its engine.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/order"
	"github.com/cycletrader/orchestrator/internal/store"
)

const (
	defaultPeriod    = time.Second
	exceptionBackoff = 5 * time.Second
)

// Reconciler runs the per-account reconciliation loop.
type Reconciler struct {
	broker    broker.Broker
	store     *store.Store
	accountID string
	period    time.Duration
	syncDelay time.Duration
	logger    *log.Logger

	mu       sync.Mutex
	entities map[int64]*order.Entity
}

// New builds a Reconciler for one account. period and syncDelay default to
// spec §4.7's ~1s / ~500ms when non-positive.
func New(br broker.Broker, st *store.Store, accountID string, period, syncDelay time.Duration, logger *log.Logger) *Reconciler {
	if period <= 0 {
		period = defaultPeriod
	}
	if syncDelay <= 0 {
		syncDelay = defaultPeriod / 2
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		broker: br, store: st, accountID: accountID,
		period: period, syncDelay: syncDelay, logger: logger,
		entities: make(map[int64]*order.Entity),
	}
}

// Run drives the reconciliation loop until ctx is canceled. On any
// exception the loop sleeps 5s before resuming, per spec §4.7.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		if err := r.tick(); err != nil {
			r.logger.Printf("account %s: reconciliation error: %v", r.accountID, err)
			select {
			case <-time.After(exceptionBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// tick implements the four-step algorithm of spec §4.7.
func (r *Reconciler) tick() error {
	intersection, suspicious, localOpen, err := r.diff()
	if err != nil {
		return err
	}

	// Process the intersection first (spec §4.7 step 3), then suspicious
	// orders (step 4). Both paths drive the same Entity.RefreshFromBroker
	// + CheckFalseClosedCycle machinery; what differs is simply whether
	// the broker still reports the ticket active.
	for _, o := range intersection {
		r.verify(o, r.syncDelay/2)
	}
	for _, o := range suspicious {
		r.verify(o, r.syncDelay/2)
	}

	r.pruneEntities(localOpen)
	return nil
}

// diff classifies every locally-open order as either still reported active
// by the broker (intersection) or not (suspicious, a candidate for the
// false-closed-cycle check), alongside the full locally-open list.
func (r *Reconciler) diff() (intersection, suspicious []*models.Order, localOpen []models.Order, err error) {
	active, err := r.activeBrokerTickets()
	if err != nil {
		return nil, nil, nil, err
	}

	localOpen, err = r.store.Orders.ListOpenByAccount(r.accountID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing open orders for account %s: %w", r.accountID, err)
	}

	for i := range localOpen {
		o := &localOpen[i]
		if active[o.Ticket] {
			intersection = append(intersection, o)
		} else {
			suspicious = append(suspicious, o)
		}
	}
	return intersection, suspicious, localOpen, nil
}

// Report summarizes one point-in-time comparison between the broker's
// active tickets and the Local Store's open orders, for the
// missing-order-recovery CLI's detect/report actions.
type Report struct {
	AccountID         string
	IntersectionCount int
	SuspiciousTickets []int64
	SuspiciousOrders  []models.Order
}

// Detect runs the same broker-vs-local comparison tick does, without
// mutating anything — read-only, for an operator inspecting drift before
// deciding whether to Recover or ForceSync.
func (r *Reconciler) Detect() (Report, error) {
	intersection, suspicious, _, err := r.diff()
	if err != nil {
		return Report{}, err
	}

	report := Report{AccountID: r.accountID, IntersectionCount: len(intersection)}
	for _, o := range suspicious {
		report.SuspiciousTickets = append(report.SuspiciousTickets, o.Ticket)
		report.SuspiciousOrders = append(report.SuspiciousOrders, *o)
	}
	return report, nil
}

// Recover runs one full reconciliation tick on demand, outside the regular
// Run loop — the missing-order-recovery CLI's "recover" action.
func (r *Reconciler) Recover() error {
	return r.tick()
}

// ForceSync re-verifies every locally-open order against the broker
// immediately, skipping the syncDelay/2 false-closed-cycle grace period
// Run's regular tick applies — the missing-order-recovery CLI's
// "force_sync" action, for an operator who already knows the broker is
// authoritative and wants the Local Store caught up right away.
func (r *Reconciler) ForceSync() error {
	intersection, suspicious, localOpen, err := r.diff()
	if err != nil {
		return err
	}
	for _, o := range intersection {
		r.verify(o, 0)
	}
	for _, o := range suspicious {
		r.verify(o, 0)
	}
	r.pruneEntities(localOpen)
	return nil
}

func (r *Reconciler) activeBrokerTickets() (map[int64]bool, error) {
	positions, err := r.broker.AllPositions()
	if err != nil {
		return nil, fmt.Errorf("listing broker positions: %w", err)
	}
	orders, err := r.broker.AllOrders()
	if err != nil {
		return nil, fmt.Errorf("listing broker pending orders: %w", err)
	}

	active := make(map[int64]bool, len(positions)+len(orders))
	for _, p := range positions {
		active[p.Ticket] = true
	}
	for _, o := range orders {
		active[o.Ticket] = true
	}
	return active, nil
}

// verify refreshes one order from the broker, persists any change, and
// advances its double-verification state (spec §4.7's "re-check
// false-closed cycles after sync_delay/2"). grace is normally
// syncDelay/2; ForceSync passes 0 to skip the wait.
func (r *Reconciler) verify(o *models.Order, grace time.Duration) {
	ent := r.entityFor(o)

	if _, err := ent.RefreshFromBroker(); err != nil {
		r.logger.Printf("account %s: refreshing order %d: %v", r.accountID, o.Ticket, err)
		return
	}
	if err := ent.Persist(); err != nil {
		r.logger.Printf("account %s: persisting order %d: %v", r.accountID, o.Ticket, err)
	}
	if _, err := ent.CheckFalseClosedCycle(grace); err != nil {
		r.logger.Printf("account %s: verifying closed order %d: %v", r.accountID, o.Ticket, err)
	}
}

// entityFor returns the long-lived Entity tracking ticket, creating one on
// first sight. The Entity must outlive a single tick so its
// candidate-closed timestamp survives to the next tick — that elapsed
// time is what CheckFalseClosedCycle measures against syncDelay/2.
func (r *Reconciler) entityFor(o *models.Order) *order.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.entities[o.Ticket]
	if !ok {
		ent = order.New(o, r.broker, r.store, r.logger)
		r.entities[o.Ticket] = ent
		return ent
	}
	ent.Order = o
	return ent
}

// pruneEntities drops tracking state for tickets no longer open locally
// (closed and confirmed, or closed by something other than reconciliation
// entirely), so the map doesn't grow without bound over a long-running
// session.
func (r *Reconciler) pruneEntities(localOpen []models.Order) {
	stillOpen := make(map[int64]bool, len(localOpen))
	for _, o := range localOpen {
		stillOpen[o.Ticket] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for ticket := range r.entities {
		if !stillOpen[ticket] {
			delete(r.entities, ticket)
		}
	}
}
