// Package broker defines the Broker Gateway contract (spec.md §4.1): a
// purely synchronous interface over a terminal bridge service, plus the
// resty-backed Gateway implementation that speaks to it.
package broker

import (
	"time"

	"github.com/cycletrader/orchestrator/internal/models"
)

// Broker is the contract every strategy-facing component depends on.
// Implementations return explicit errors; there is no hidden retry or
// timeout behavior here — that lives in internal/retry, wrapped around a
// Broker value.
type Broker interface {
	// Initialize opens a terminal session, launching the terminal at path
	// if non-empty. Returns an error if the launch fails.
	Initialize(path string) error
	// Login authenticates against the terminal/broker server.
	Login(user, pass, server string) (bool, error)

	// AccountInfo returns the current account snapshot, or nil if
	// disconnected.
	AccountInfo() (*AccountSnapshot, error)
	// SymbolInfo returns point/spread/bid/ask for symbol, or nil if the
	// symbol is unknown or unavailable.
	SymbolInfo(symbol string) (*SymbolInfo, error)
	// Bid returns the current bid for symbol; ok is false if missing.
	Bid(symbol string) (price float64, ok bool)
	// Ask returns the current ask for symbol; ok is false if missing.
	Ask(symbol string) (price float64, ok bool)

	// Market sends a market order. comment is truncated to 30 characters
	// before submission. Returns the confirmed position(s); an empty slice
	// and nil error on broker retcode != DONE.
	Market(req OrderRequest) ([]Position, error)
	// Pending sends a resting stop/limit order with the same semantics as Market.
	Pending(req OrderRequest) ([]Position, error)

	// ClosePosition closes an open position with the given slippage
	// tolerance (deviation, in points).
	ClosePosition(pos Position, deviation float64) (*Result, error)
	// CloseOrder cancels a resting pending order by ticket.
	CloseOrder(ticket int64) (*Result, error)

	PositionByTicket(ticket int64) (*Position, bool, error)
	OrderByTicket(ticket int64) (*PendingOrder, bool, error)
	AllPositions() ([]Position, error)
	AllOrders() ([]PendingOrder, error)

	// CheckIsPending reports whether ticket is a resting pending order.
	CheckIsPending(ticket int64) (bool, error)
	// CheckIsClosed reports true only if ticket is absent from both active
	// positions and pending orders AND present in broker history.
	CheckIsClosed(ticket int64) (bool, error)

	Candles(symbol string, tf models.Timeframe, n int) ([]Candle, error)
	LastCandle(symbol string, tf models.Timeframe) (*Candle, error)
	CandleDirection(symbol string, tf models.Timeframe) (models.CandleDirection, error)
}

// OrderRequest is the common shape of a Market/Pending call.
type OrderRequest struct {
	Side      models.Direction
	Symbol    string
	Volume    float64
	Magic     int64
	Price     float64 // ignored by Market, required by Pending
	SL        float64
	TP        float64
	SLTPKind  models.SLTPKind
	Slippage  float64
	Comment   string
}

// AccountSnapshot mirrors the AccountInfo contract result.
type AccountSnapshot struct {
	Login      string
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Profit     float64
}

// SymbolInfo mirrors the SymbolInfo contract result. Point is the smallest
// price increment; a pip equals 10*Point.
type SymbolInfo struct {
	Symbol  string
	Point   float64
	Spread  float64
	Bid     float64
	Ask     float64
	Enabled bool
}

// Pip returns one pip for this symbol.
func (s *SymbolInfo) Pip() float64 {
	return 10 * s.Point
}

// Position is a confirmed open position.
type Position struct {
	Ticket     int64
	Symbol     string
	Magic      int64
	Direction  models.Direction
	OpenPrice  float64
	Volume     float64
	SL         float64
	TP         float64
	Swap       float64
	Commission float64
	Profit     float64
	OpenTime   time.Time
}

// PendingOrder is a resting stop/limit order.
type PendingOrder struct {
	Ticket    int64
	Symbol    string
	Magic     int64
	Direction models.Direction
	Price     float64
	Volume    float64
	SL        float64
	TP        float64
	PlacedAt  time.Time
}

// Result is the outcome of a close/cancel call.
type Result struct {
	Ticket  int64
	Retcode string
	Done    bool
}

// Candle is one OHLC bar for a symbol/timeframe.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Direction returns UP, DOWN, or CandleNone per spec.md §4.1.
func (c Candle) Direction() models.CandleDirection {
	switch {
	case c.Close > c.Open:
		return models.CandleUp
	case c.Close < c.Open:
		return models.CandleDown
	default:
		return models.CandleNone
	}
}

const maxCommentLength = 30

// TruncateComment truncates comment to the broker's 30-character limit
// (spec.md §4.1 "Comments").
func TruncateComment(comment string) string {
	if len(comment) <= maxCommentLength {
		return comment
	}
	return comment[:maxCommentLength]
}

// DoneRetcode is the broker's success indicator (spec.md §6).
const DoneRetcode = "DONE"
