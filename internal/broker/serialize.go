package broker

import (
	"sync"

	"github.com/cycletrader/orchestrator/internal/models"
)

// Serialized wraps a Broker so every call acquires a shared mutex first.
// Order Reconciliation (spec §4.7) requires broker reads within one
// reconciliation tick to be serialized against concurrent Strategy Loop
// ticks; the Account Supervisor (C8) constructs one Serialized value per
// account and hands the same instance to every per-bot Strategy Loop and
// to that account's Reconciler, so they never interleave broker calls.
type Serialized struct {
	delegate Broker
	mu       *sync.Mutex
}

// NewSerialized wraps delegate with mu. Passing the same *sync.Mutex to
// multiple Serialized values makes all of them mutually exclusive.
func NewSerialized(delegate Broker, mu *sync.Mutex) *Serialized {
	return &Serialized{delegate: delegate, mu: mu}
}

func (s *Serialized) Initialize(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Initialize(path)
}

func (s *Serialized) Login(user, pass, server string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Login(user, pass, server)
}

func (s *Serialized) AccountInfo() (*AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.AccountInfo()
}

func (s *Serialized) SymbolInfo(symbol string) (*SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.SymbolInfo(symbol)
}

func (s *Serialized) Bid(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Bid(symbol)
}

func (s *Serialized) Ask(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Ask(symbol)
}

func (s *Serialized) Market(req OrderRequest) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Market(req)
}

func (s *Serialized) Pending(req OrderRequest) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Pending(req)
}

func (s *Serialized) ClosePosition(pos Position, deviation float64) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.ClosePosition(pos, deviation)
}

func (s *Serialized) CloseOrder(ticket int64) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CloseOrder(ticket)
}

func (s *Serialized) PositionByTicket(ticket int64) (*Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.PositionByTicket(ticket)
}

func (s *Serialized) OrderByTicket(ticket int64) (*PendingOrder, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.OrderByTicket(ticket)
}

func (s *Serialized) AllPositions() ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.AllPositions()
}

func (s *Serialized) AllOrders() ([]PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.AllOrders()
}

func (s *Serialized) CheckIsPending(ticket int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CheckIsPending(ticket)
}

func (s *Serialized) CheckIsClosed(ticket int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CheckIsClosed(ticket)
}

func (s *Serialized) Candles(symbol string, tf models.Timeframe, n int) ([]Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.Candles(symbol, tf, n)
}

func (s *Serialized) LastCandle(symbol string, tf models.Timeframe) (*Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.LastCandle(symbol, tf)
}

func (s *Serialized) CandleDirection(symbol string, tf models.Timeframe) (models.CandleDirection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate.CandleDirection(symbol, tf)
}

var _ Broker = (*Serialized)(nil)
