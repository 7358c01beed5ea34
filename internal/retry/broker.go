package retry

import (
	"context"
	"log"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
)

// Broker adapts Client back to the plain broker.Broker interface so
// cmd/orchestrator can hand a retry-and-breaker-protected broker straight
// to internal/supervisor (which wraps it in broker.Serialized for mutex
// sharing) without any change to internal/cycle, internal/order, or
// internal/strategyloop — none of them call through a context-carrying
// broker API. Reads pass straight through to the underlying broker; the
// four mutating calls run through Client with context.Background(),
// since broker.Broker carries no context of its own.
type Broker struct {
	client     *Client
	underlying broker.Broker
}

// NewBroker wraps underlying in a Client with cfg, then exposes the
// result as a broker.Broker.
func NewBroker(underlying broker.Broker, logger *log.Logger, cfg ...Config) *Broker {
	return &Broker{client: NewClient(underlying, logger, cfg...), underlying: underlying}
}

func (b *Broker) Initialize(path string) error { return b.underlying.Initialize(path) }

func (b *Broker) Login(user, pass, server string) (bool, error) {
	return b.underlying.Login(user, pass, server)
}

func (b *Broker) AccountInfo() (*broker.AccountSnapshot, error) { return b.underlying.AccountInfo() }

func (b *Broker) SymbolInfo(symbol string) (*broker.SymbolInfo, error) {
	return b.underlying.SymbolInfo(symbol)
}

func (b *Broker) Bid(symbol string) (float64, bool) { return b.underlying.Bid(symbol) }

func (b *Broker) Ask(symbol string) (float64, bool) { return b.underlying.Ask(symbol) }

func (b *Broker) Market(req broker.OrderRequest) ([]broker.Position, error) {
	return b.client.Market(context.Background(), req)
}

func (b *Broker) Pending(req broker.OrderRequest) ([]broker.Position, error) {
	return b.client.Pending(context.Background(), req)
}

func (b *Broker) ClosePosition(pos broker.Position, deviation float64) (*broker.Result, error) {
	return b.client.ClosePosition(context.Background(), pos, deviation)
}

func (b *Broker) CloseOrder(ticket int64) (*broker.Result, error) {
	return b.client.CloseOrder(context.Background(), ticket)
}

func (b *Broker) PositionByTicket(ticket int64) (*broker.Position, bool, error) {
	return b.underlying.PositionByTicket(ticket)
}

func (b *Broker) OrderByTicket(ticket int64) (*broker.PendingOrder, bool, error) {
	return b.underlying.OrderByTicket(ticket)
}

func (b *Broker) AllPositions() ([]broker.Position, error) { return b.underlying.AllPositions() }

func (b *Broker) AllOrders() ([]broker.PendingOrder, error) { return b.underlying.AllOrders() }

func (b *Broker) CheckIsPending(ticket int64) (bool, error) {
	return b.underlying.CheckIsPending(ticket)
}

func (b *Broker) CheckIsClosed(ticket int64) (bool, error) {
	return b.underlying.CheckIsClosed(ticket)
}

func (b *Broker) Candles(symbol string, tf models.Timeframe, n int) ([]broker.Candle, error) {
	return b.underlying.Candles(symbol, tf, n)
}

func (b *Broker) LastCandle(symbol string, tf models.Timeframe) (*broker.Candle, error) {
	return b.underlying.LastCandle(symbol, tf)
}

func (b *Broker) CandleDirection(symbol string, tf models.Timeframe) (models.CandleDirection, error) {
	return b.underlying.CandleDirection(symbol, tf)
}

var _ broker.Broker = (*Broker)(nil)
