package models

import "time"

// LossSourceClass attributes an accumulated loss to the mechanism that
// produced it, so operators can see whether losses are coming from grid
// steps, hedges, or batch stop-losses.
type LossSourceClass string

const (
	LossSourceGrid           LossSourceClass = "grid"
	LossSourceHedge          LossSourceClass = "hedge"
	LossSourceRecovery       LossSourceClass = "recovery"
	LossSourceBatchStopLoss  LossSourceClass = "batch_stop_loss"
)

// GlobalLossTracker is the per (bot, account, symbol) running ledger of
// realized losses, updated only through RecordLoss and RecordCycleClosed.
// The Cycle Engine does not call either method on an order or cycle close,
// and the Local Store has no table for it.
type GlobalLossTracker struct {
	LocalID   string `json:"id" db:"id"`
	BotID     string `json:"bot_id" db:"bot_id"`
	AccountID string `json:"account_id" db:"account_id"`
	Symbol    string `json:"symbol" db:"symbol"`

	LossesBySource map[LossSourceClass]float64 `json:"losses_by_source" db:"losses_by_source"`

	CycleCount       int64 `json:"cycle_count" db:"cycle_count"`
	ClosedCycleCount int64 `json:"closed_cycle_count" db:"closed_cycle_count"`

	LastLossAmount float64   `json:"last_loss_amount" db:"last_loss_amount"`
	LastLossAt     time.Time `json:"last_loss_at" db:"last_loss_at"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecordLoss appends amount (a positive number of account-currency units
// lost) to the source class's running total and updates the last-loss
// snapshot. A non-positive amount is ignored: this tracker only accumulates
// losses, not profits.
func (t *GlobalLossTracker) RecordLoss(source LossSourceClass, amount float64, at time.Time) {
	if amount <= 0 {
		return
	}
	if t.LossesBySource == nil {
		t.LossesBySource = make(map[LossSourceClass]float64)
	}
	t.LossesBySource[source] += amount
	t.LastLossAmount = amount
	t.LastLossAt = at
	t.UpdatedAt = at
}

// RecordCycleClosed increments the cycle counters when a cycle owned by
// this (bot, account, symbol) reaches StateClosed.
func (t *GlobalLossTracker) RecordCycleClosed() {
	t.CycleCount++
	t.ClosedCycleCount++
}

// Total returns the sum of losses across every source class.
func (t *GlobalLossTracker) Total() float64 {
	var sum float64
	for _, v := range t.LossesBySource {
		sum += v
	}
	return sum
}
