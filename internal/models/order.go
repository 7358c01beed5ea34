package models

import "time"

// Order mirrors one broker ticket: a market fill or a resting pending order.
type Order struct {
	LocalID  string `json:"id" db:"id"`
	Ticket   int64  `json:"ticket" db:"ticket"`
	CycleID  string `json:"cycle_id" db:"cycle_id"`
	BotID    string `json:"bot_id" db:"bot_id"`
	AccountID string `json:"account_id" db:"account_id"`

	Kind      OrderKind `json:"kind" db:"kind"`
	Direction Direction `json:"direction" db:"direction"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Magic     int64     `json:"magic" db:"magic"`

	OpenPrice float64 `json:"open_price" db:"open_price"`
	Volume    float64 `json:"volume" db:"volume"`
	SL        float64 `json:"sl" db:"sl"`
	TP        float64 `json:"tp" db:"tp"`

	TrailingSteps int64 `json:"trailing_steps" db:"trailing_steps"`

	Swap       float64 `json:"swap" db:"swap"`
	Commission float64 `json:"commission" db:"commission"`
	Profit     float64 `json:"profit" db:"profit"`

	IsPending bool `json:"is_pending" db:"is_pending"`
	IsClosed  bool `json:"is_closed" db:"is_closed"`

	OpenedAt time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty" db:"closed_at"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NetProfit returns the order's realized PnL including swap and commission.
func (o *Order) NetProfit() float64 {
	return o.Profit + o.Swap + o.Commission
}

// Clone returns a deep copy of the order, safe to hand across goroutine
// boundaries without sharing the original's backing fields.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.ClosedAt != nil {
		t := *o.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
