// Package brokertest provides an in-memory fake implementing broker.Broker,
// used by internal/cycle, internal/order, and internal/reconcile tests in
// place of a real terminal bridge connection.
package brokertest

import (
	"sync"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
)

// Fake is a minimal, deterministic broker.Broker for tests. Callers seed
// symbols, then drive Market/Pending/Close calls exactly like production
// code; ticket numbers are assigned sequentially from 1.
type Fake struct {
	mu sync.Mutex

	symbols map[string]*broker.SymbolInfo
	account *broker.AccountSnapshot

	positions map[int64]broker.Position
	pending   map[int64]broker.PendingOrder
	history   map[int64]bool

	candles map[string][]broker.Candle

	nextTicket int64

	// RejectNextOrder, when true, makes the next Market/Pending call behave
	// like a broker retcode != DONE: no ticket is created.
	RejectNextOrder bool
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		symbols:    make(map[string]*broker.SymbolInfo),
		positions:  make(map[int64]broker.Position),
		pending:    make(map[int64]broker.PendingOrder),
		history:    make(map[int64]bool),
		candles:    make(map[string][]broker.Candle),
		nextTicket: 1,
	}
}

// SetSymbol seeds (or replaces) a symbol's info.
func (f *Fake) SetSymbol(symbol string, info broker.SymbolInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info.Symbol = symbol
	f.symbols[symbol] = &info
}

// SetBid updates only the bid/ask of an already-seeded symbol.
func (f *Fake) SetBid(symbol string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.symbols[symbol]; ok {
		info.Bid = bid
		info.Ask = ask
	}
}

// SetCandles seeds the candle history for symbol (ignoring timeframe — the
// fake does not distinguish timeframes).
func (f *Fake) SetCandles(symbol string, candles []broker.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = candles
}

func (f *Fake) Initialize(string) error { return nil }

func (f *Fake) Login(string, string, string) (bool, error) { return true, nil }

func (f *Fake) AccountInfo() (*broker.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.account == nil {
		return &broker.AccountSnapshot{}, nil
	}
	cp := *f.account
	return &cp, nil
}

// SetAccount sets the snapshot AccountInfo returns.
func (f *Fake) SetAccount(snap broker.AccountSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = &snap
}

func (f *Fake) SymbolInfo(symbol string) (*broker.SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.symbols[symbol]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (f *Fake) Bid(symbol string) (float64, bool) {
	info, err := f.SymbolInfo(symbol)
	if err != nil || info == nil {
		return 0, false
	}
	return info.Bid, true
}

func (f *Fake) Ask(symbol string) (float64, bool) {
	info, err := f.SymbolInfo(symbol)
	if err != nil || info == nil {
		return 0, false
	}
	return info.Ask, true
}

func (f *Fake) Market(req broker.OrderRequest) ([]broker.Position, error) {
	return f.open(req, false)
}

func (f *Fake) Pending(req broker.OrderRequest) ([]broker.Position, error) {
	pos, err := f.open(req, true)
	return pos, err
}

func (f *Fake) open(req broker.OrderRequest, pending bool) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RejectNextOrder {
		f.RejectNextOrder = false
		return nil, nil
	}

	ticket := f.nextTicket
	f.nextTicket++

	price := req.Price
	if !pending {
		if info, ok := f.symbols[req.Symbol]; ok {
			if req.Side == models.Buy {
				price = info.Ask
			} else {
				price = info.Bid
			}
		}
	}

	pos := broker.Position{
		Ticket: ticket, Symbol: req.Symbol, Magic: req.Magic,
		Direction: req.Side, OpenPrice: price, Volume: req.Volume,
		SL: req.SL, TP: req.TP,
	}

	if pending {
		// Mirrors the real gateway: /orders/pending also confirms with a
		// Position in its response, but the ticket stays resting (tracked
		// in f.pending, not f.positions) until it fills or is cancelled.
		f.pending[ticket] = broker.PendingOrder{
			Ticket: ticket, Symbol: req.Symbol, Magic: req.Magic,
			Direction: req.Side, Price: price, Volume: req.Volume,
			SL: req.SL, TP: req.TP,
		}
		return []broker.Position{pos}, nil
	}

	f.positions[ticket] = pos
	return []broker.Position{pos}, nil
}

func (f *Fake) ClosePosition(pos broker.Position, _ float64) (*broker.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[pos.Ticket]; !ok {
		return &broker.Result{Ticket: pos.Ticket, Retcode: "NOT_FOUND", Done: false}, nil
	}
	delete(f.positions, pos.Ticket)
	f.history[pos.Ticket] = true
	return &broker.Result{Ticket: pos.Ticket, Retcode: broker.DoneRetcode, Done: true}, nil
}

func (f *Fake) CloseOrder(ticket int64) (*broker.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[ticket]; !ok {
		return &broker.Result{Ticket: ticket, Retcode: "NOT_FOUND", Done: false}, nil
	}
	delete(f.pending, ticket)
	f.history[ticket] = true
	return &broker.Result{Ticket: ticket, Retcode: broker.DoneRetcode, Done: true}, nil
}

// Seed directly installs pos as an open position, bypassing Market's
// sequential ticket assignment — for fixtures that need a specific ticket.
func (f *Fake) Seed(pos broker.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[pos.Ticket] = pos
}

func (f *Fake) PositionByTicket(ticket int64) (*broker.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[ticket]
	if !ok {
		return nil, false, nil
	}
	return &pos, true, nil
}

func (f *Fake) OrderByTicket(ticket int64) (*broker.PendingOrder, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord, ok := f.pending[ticket]
	if !ok {
		return nil, false, nil
	}
	return &ord, true, nil
}

func (f *Fake) AllPositions() ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *Fake) AllOrders() ([]broker.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.PendingOrder, 0, len(f.pending))
	for _, o := range f.pending {
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) CheckIsPending(ticket int64) (bool, error) {
	_, ok, err := f.OrderByTicket(ticket)
	return ok, err
}

func (f *Fake) CheckIsClosed(ticket int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[ticket]; ok {
		return false, nil
	}
	if _, ok := f.pending[ticket]; ok {
		return false, nil
	}
	return f.history[ticket], nil
}

// CloseAndRecordHistory force-closes ticket (simulating an external close
// the reconciler must discover) without going through ClosePosition.
func (f *Fake) CloseAndRecordHistory(ticket int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.positions, ticket)
	delete(f.pending, ticket)
	f.history[ticket] = true
}

func (f *Fake) Candles(symbol string, _ models.Timeframe, n int) ([]broker.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.candles[symbol]
	if n <= 0 || n >= len(all) {
		return append([]broker.Candle(nil), all...), nil
	}
	return append([]broker.Candle(nil), all[len(all)-n:]...), nil
}

func (f *Fake) LastCandle(symbol string, tf models.Timeframe) (*broker.Candle, error) {
	candles, err := f.Candles(symbol, tf, 1)
	if err != nil || len(candles) == 0 {
		return nil, err
	}
	c := candles[len(candles)-1]
	return &c, nil
}

func (f *Fake) CandleDirection(symbol string, tf models.Timeframe) (models.CandleDirection, error) {
	c, err := f.LastCandle(symbol, tf)
	if err != nil || c == nil {
		return models.CandleNone, err
	}
	return c.Direction(), nil
}

var _ broker.Broker = (*Fake)(nil)
