package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TicketSet is an ordered sequence of broker tickets. Order matters: grid
// steps and batch accounting read these sets front-to-back.
type TicketSet []int64

// Contains reports whether ticket is present in the set.
func (s TicketSet) Contains(ticket int64) bool {
	for _, t := range s {
		if t == ticket {
			return true
		}
	}
	return false
}

// Append returns a copy of the set with ticket appended, unless already present.
func (s TicketSet) Append(ticket int64) TicketSet {
	if s.Contains(ticket) {
		return s
	}
	out := make(TicketSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, ticket)
}

// Remove returns a copy of the set with ticket removed.
func (s TicketSet) Remove(ticket int64) TicketSet {
	out := make(TicketSet, 0, len(s))
	for _, t := range s {
		if t != ticket {
			out = append(out, t)
		}
	}
	return out
}

// Value implements driver.Valuer, storing the set as a JSON array so the
// local store can keep it in a single TEXT column.
func (s TicketSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(s))
	if err != nil {
		return nil, fmt.Errorf("marshal ticket set: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *TicketSet) Scan(src any) error {
	return scanJSON(src, (*[]int64)(s))
}

// PriceLevels is the ordered, monotone non-shrinking set of prices at which
// grid orders have already fired (invariant 3).
type PriceLevels []float64

// Contains reports whether price is already recorded within tol.
func (p PriceLevels) Contains(price, tol float64) bool {
	for _, lvl := range p {
		d := lvl - price
		if d < 0 {
			d = -d
		}
		if d <= tol {
			return true
		}
	}
	return false
}

// Append returns p with price appended; callers are responsible for not
// shrinking the set (it is append-only by construction).
func (p PriceLevels) Append(price float64) PriceLevels {
	out := make(PriceLevels, len(p), len(p)+1)
	copy(out, p)
	return append(out, price)
}

// Value implements driver.Valuer.
func (p PriceLevels) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(p))
	if err != nil {
		return nil, fmt.Errorf("marshal price levels: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PriceLevels) Scan(src any) error {
	return scanJSON(src, (*[]float64)(p))
}

// LossList is an ordered record of per-batch stop-loss amounts.
type LossList []float64

// Value implements driver.Valuer.
func (l LossList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float64(l))
	if err != nil {
		return nil, fmt.Errorf("marshal loss list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *LossList) Scan(src any) error {
	return scanJSON(src, (*[]float64)(l))
}

// scanJSON decodes a TEXT/BLOB column into dst, treating NULL/empty as a
// zero value rather than an error.
func scanJSON(src any, dst any) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported scan source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// ClosingMethod records how a cycle reached StateClosed.
type ClosingMethod string

const (
	ClosingManual          ClosingMethod = "manual"
	ClosingTakeProfit      ClosingMethod = "take_profit"
	ClosingBatchStopLoss   ClosingMethod = "batch_stop_loss"
	ClosingReconciled      ClosingMethod = "reconciled"
)

// Cycle is the core per-symbol price-grid state machine. Several strategy
// families instantiate it with different parameters; the engine's shared
// behavioral core lives in internal/cycle, this struct is only the
// persisted shape.
type Cycle struct {
	LocalID   string `json:"id" db:"id"`
	RemoteID  string `json:"remote_id" db:"remote_id"`
	BotID     string `json:"bot_id" db:"bot_id"`
	AccountID string `json:"account_id" db:"account_id"`
	Symbol    string `json:"symbol" db:"symbol"`
	Magic     int64  `json:"magic" db:"magic"`
	Kind      CycleKind `json:"kind" db:"kind"`

	// Price anchors, set at creation per the zone model (§4.5.1).
	OpenPrice              float64 `json:"open_price" db:"open_price"`
	LowerBound             float64 `json:"lower_bound" db:"lower_bound"`
	UpperBound             float64 `json:"upper_bound" db:"upper_bound"`
	ThresholdLower         float64 `json:"threshold_lower" db:"threshold_lower"`
	ThresholdUpper         float64 `json:"threshold_upper" db:"threshold_upper"`
	InitialThresholdPrice  float64 `json:"initial_threshold_price" db:"initial_threshold_price"`
	ZoneBasePrice          float64 `json:"zone_base_price" db:"zone_base_price"`
	RecoveryZoneBasePrice  float64 `json:"recovery_zone_base_price" db:"recovery_zone_base_price"`
	InitialStopLossPrice   float64 `json:"initial_stop_loss_price" db:"initial_stop_loss_price"`

	// Grid state.
	CurrentDirection  Direction   `json:"current_direction" db:"current_direction"`
	DirectionSwitched bool        `json:"direction_switched" db:"direction_switched"`
	DirectionSwitches int64       `json:"direction_switches" db:"direction_switches"`
	NextOrderIndex    int64       `json:"next_order_index" db:"next_order_index"`
	DonePriceLevels   PriceLevels `json:"done_price_levels" db:"done_price_levels"`

	// Order sets, each an ordered sequence of broker tickets.
	InitialOrders    TicketSet `json:"initial" db:"initial_orders"`
	HedgeOrders      TicketSet `json:"hedge" db:"hedge_orders"`
	PendingOrders    TicketSet `json:"pending" db:"pending_orders"`
	ClosedOrders     TicketSet `json:"closed" db:"closed_orders"`
	RecoveryOrders   TicketSet `json:"recovery" db:"recovery_orders"`
	ThresholdOrders  TicketSet `json:"threshold" db:"threshold_orders"`
	ActiveOrders     TicketSet `json:"active_orders" db:"active_orders"`
	CompletedOrders  TicketSet `json:"completed_orders" db:"completed_orders"`

	// Accounting.
	TotalVolume     float64   `json:"total_volume" db:"total_volume"`
	TotalProfit     float64   `json:"total_profit" db:"total_profit"`
	AccumulatedLoss float64   `json:"accumulated_loss" db:"accumulated_loss"`
	BatchLosses     LossList  `json:"batch_losses" db:"batch_losses"`
	LotIdx          int64     `json:"lot_idx" db:"lot_idx"`

	// Lifecycle.
	Status        CycleState    `json:"status" db:"status"`
	IsClosed      bool          `json:"is_closed" db:"is_closed"`
	IsPending     bool          `json:"is_pending" db:"is_pending"`
	OpenedBy      OpenedBy      `json:"opened_by" db:"opened_by"`
	ClosingMethod ClosingMethod `json:"closing_method,omitempty" db:"closing_method"`
	CloseReason   string        `json:"close_reason,omitempty" db:"close_reason"`
	CloseTime     *time.Time    `json:"close_time,omitempty" db:"close_time"`

	RecoveryCount int64 `json:"recovery_count" db:"recovery_count"`

	// LastCandleTime supports the CycleTrader candle-close opt-in (§4.5.2
	// item 7): a candle is "new" iff its open time is strictly greater.
	LastCandleTime *time.Time `json:"last_candle_time,omitempty" db:"last_candle_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StateMachine rebuilds a CycleStateMachine reflecting this cycle's
// persisted status and recovery count, used after loading from the Local
// Store where only the current state (not the transition history) survives.
func (c *Cycle) StateMachine(maxRecoveryCount int) *CycleStateMachine {
	sm := NewCycleStateMachineWithLimit(maxRecoveryCount)
	sm.currentState = c.Status
	sm.previousState = c.Status
	for i := int64(0); i < c.RecoveryCount; i++ {
		sm.recoveryCount++
	}
	return sm
}

// NextGridTriggerDistance returns the distance from InitialThresholdPrice,
// in the units of pipsStep, required before the next grid-step order fires
// (§4.5.2 item 2); the caller converts it to a price distance.
func (c *Cycle) NextGridTriggerDistance(pipsStep float64) float64 {
	return pipsStep * float64(c.NextOrderIndex+1)
}

// HasTicket reports whether ticket belongs to any of the cycle's order sets.
func (c *Cycle) HasTicket(ticket int64) bool {
	for _, set := range c.allSets() {
		if set.Contains(ticket) {
			return true
		}
	}
	return false
}

func (c *Cycle) allSets() []TicketSet {
	return []TicketSet{
		c.InitialOrders, c.HedgeOrders, c.PendingOrders, c.ClosedOrders,
		c.RecoveryOrders, c.ThresholdOrders, c.ActiveOrders, c.CompletedOrders,
	}
}

// OpenTicketCount returns the count of tickets not yet in ClosedOrders or
// CompletedOrders, used by invariant 2 checks (a closed cycle must have no
// open broker positions).
func (c *Cycle) OpenTicketCount() int {
	closed := make(map[int64]bool, len(c.ClosedOrders)+len(c.CompletedOrders))
	for _, t := range c.ClosedOrders {
		closed[t] = true
	}
	for _, t := range c.CompletedOrders {
		closed[t] = true
	}
	seen := make(map[int64]bool)
	count := 0
	for _, set := range []TicketSet{c.InitialOrders, c.HedgeOrders, c.PendingOrders, c.RecoveryOrders, c.ThresholdOrders, c.ActiveOrders} {
		for _, t := range set {
			if closed[t] || seen[t] {
				continue
			}
			seen[t] = true
			count++
		}
	}
	return count
}
