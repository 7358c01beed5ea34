package broker

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cycletrader/orchestrator/internal/models"
)

// APIError is returned when the terminal bridge responds with a non-2xx
// status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("terminal bridge error (status %d): %s", e.Status, e.Body)
}

// Gateway implements Broker against a terminal bridge HTTP service: a thin
// process that translates JSON requests into native terminal API calls
// (session init/login, symbol info, market/pending order send, position
// close, history lookup, candle retrieval) and responds in kind.
type Gateway struct {
	client  *resty.Client
	limiter *RateLimiter
	logger  *log.Logger

	mu      sync.RWMutex
	session string

	symbolCache map[string]*SymbolInfo
}

// NewGateway creates a Gateway talking to the terminal bridge at baseURL.
func NewGateway(baseURL string, timeout time.Duration, limiter *RateLimiter, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cycle-trading-orchestrator/1.0 (+terminal-bridge)")

	return &Gateway{
		client:      client,
		limiter:     limiter,
		logger:      logger,
		symbolCache: make(map[string]*SymbolInfo),
	}
}

type initResponse struct {
	Session string `json:"session"`
}

// Initialize opens a terminal session, launching the terminal at path if
// non-empty.
func (g *Gateway) Initialize(path string) error {
	var resp initResponse
	if err := g.doCtx(context.Background(), CategoryStandard, "POST", "/session/init",
		map[string]string{"terminal_path": path}, &resp); err != nil {
		return fmt.Errorf("not connected: %w", err)
	}
	g.mu.Lock()
	g.session = resp.Session
	g.mu.Unlock()
	return nil
}

type loginResponse struct {
	Authorized bool `json:"authorized"`
}

// Login authenticates against the terminal/broker server.
func (g *Gateway) Login(user, pass, server string) (bool, error) {
	var resp loginResponse
	body := map[string]string{"login": user, "password": pass, "server": server}
	if err := g.doCtx(context.Background(), CategoryStandard, "POST", "/session/login", body, &resp); err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

type accountInfoResponse struct {
	Login      string  `json:"login"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Profit     float64 `json:"profit"`
}

// AccountInfo returns the current account snapshot, nil if disconnected.
func (g *Gateway) AccountInfo() (*AccountSnapshot, error) {
	var resp accountInfoResponse
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/account", nil, &resp); err != nil {
		return nil, nil
	}
	return &AccountSnapshot{
		Login:      resp.Login,
		Balance:    resp.Balance,
		Equity:     resp.Equity,
		Margin:     resp.Margin,
		FreeMargin: resp.FreeMargin,
		Profit:     resp.Profit,
	}, nil
}

type symbolInfoResponse struct {
	Point   float64 `json:"point"`
	Spread  float64 `json:"spread"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Known   bool    `json:"known"`
	Enabled bool    `json:"enabled"`
}

// SymbolInfo returns point/spread/bid/ask for symbol, nil if unknown or
// unavailable. Known-but-hidden symbols are auto-enabled (SPEC_FULL.md §5
// "Symbol enable/trade-permission check").
func (g *Gateway) SymbolInfo(symbol string) (*SymbolInfo, error) {
	var resp symbolInfoResponse
	if err := g.doCtx(context.Background(), CategoryMarketData, "GET", "/symbols/"+symbol, nil, &resp); err != nil {
		return nil, nil
	}
	if !resp.Known {
		return nil, nil
	}
	if !resp.Enabled {
		if err := g.enableSymbol(symbol); err != nil {
			g.logger.Printf("failed to auto-enable symbol %s: %v", symbol, err)
			return nil, nil
		}
		resp.Enabled = true
	}
	info := &SymbolInfo{Symbol: symbol, Point: resp.Point, Spread: resp.Spread, Bid: resp.Bid, Ask: resp.Ask, Enabled: resp.Enabled}
	g.mu.Lock()
	g.symbolCache[symbol] = info
	g.mu.Unlock()
	return info, nil
}

func (g *Gateway) enableSymbol(symbol string) error {
	return g.doCtx(context.Background(), CategoryStandard, "POST", "/symbols/"+symbol+"/enable", nil, nil)
}

// Bid returns the current bid for symbol; ok is false if missing.
func (g *Gateway) Bid(symbol string) (float64, bool) {
	info, err := g.SymbolInfo(symbol)
	if err != nil || info == nil {
		return 0, false
	}
	return info.Bid, true
}

// Ask returns the current ask for symbol; ok is false if missing.
func (g *Gateway) Ask(symbol string) (float64, bool) {
	info, err := g.SymbolInfo(symbol)
	if err != nil || info == nil {
		return 0, false
	}
	return info.Ask, true
}

type orderResponse struct {
	Retcode   string     `json:"retcode"`
	Positions []Position `json:"positions"`
}

// Market sends a market order; comment is truncated to 30 characters.
func (g *Gateway) Market(req OrderRequest) ([]Position, error) {
	return g.send("/orders/market", req)
}

// Pending sends a resting stop/limit order.
func (g *Gateway) Pending(req OrderRequest) ([]Position, error) {
	return g.send("/orders/pending", req)
}

func (g *Gateway) send(endpoint string, req OrderRequest) ([]Position, error) {
	req.Comment = TruncateComment(req.Comment)
	var resp orderResponse
	if err := g.doCtx(context.Background(), CategoryTrading, "POST", endpoint, req, &resp); err != nil {
		return nil, err
	}
	if resp.Retcode != DoneRetcode {
		return nil, nil
	}
	return resp.Positions, nil
}

// ClosePosition closes an open position within the given slippage tolerance.
func (g *Gateway) ClosePosition(pos Position, deviation float64) (*Result, error) {
	var resp Result
	body := map[string]any{"ticket": pos.Ticket, "deviation": deviation}
	if err := g.doCtx(context.Background(), CategoryTrading, "POST", "/positions/close", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseOrder cancels a resting pending order by ticket.
func (g *Gateway) CloseOrder(ticket int64) (*Result, error) {
	var resp Result
	body := map[string]any{"ticket": ticket}
	if err := g.doCtx(context.Background(), CategoryTrading, "POST", "/orders/cancel", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PositionByTicket returns the open position with the given ticket.
func (g *Gateway) PositionByTicket(ticket int64) (*Position, bool, error) {
	var pos Position
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/positions/"+strconv.FormatInt(ticket, 10), nil, &pos); err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Status == 404 {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &pos, true, nil
}

// OrderByTicket returns the pending order with the given ticket.
func (g *Gateway) OrderByTicket(ticket int64) (*PendingOrder, bool, error) {
	var ord PendingOrder
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/orders/"+strconv.FormatInt(ticket, 10), nil, &ord); err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Status == 404 {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &ord, true, nil
}

// AllPositions returns every open position.
func (g *Gateway) AllPositions() ([]Position, error) {
	var resp []Position
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AllOrders returns every resting pending order.
func (g *Gateway) AllOrders() ([]PendingOrder, error) {
	var resp []PendingOrder
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/orders", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckIsPending reports whether ticket is a resting pending order.
func (g *Gateway) CheckIsPending(ticket int64) (bool, error) {
	_, ok, err := g.OrderByTicket(ticket)
	return ok, err
}

type historyResponse struct {
	Present bool `json:"present"`
}

// CheckIsClosed returns true only if ticket is absent from both active
// positions and pending orders AND present in broker history.
func (g *Gateway) CheckIsClosed(ticket int64) (bool, error) {
	if _, ok, err := g.PositionByTicket(ticket); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if _, ok, err := g.OrderByTicket(ticket); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	var resp historyResponse
	if err := g.doCtx(context.Background(), CategoryStandard, "GET", "/history/"+strconv.FormatInt(ticket, 10), nil, &resp); err != nil {
		return false, err
	}
	return resp.Present, nil
}

// Candles returns up to n candles for symbol/tf, most recent last.
func (g *Gateway) Candles(symbol string, tf models.Timeframe, n int) ([]Candle, error) {
	var resp []Candle
	params := map[string]string{"timeframe": string(tf), "count": strconv.Itoa(n)}
	if err := g.doCtxParams(context.Background(), CategoryMarketData, "GET", "/candles/"+symbol, params, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// LastCandle returns the most recently completed candle for symbol/tf.
func (g *Gateway) LastCandle(symbol string, tf models.Timeframe) (*Candle, error) {
	candles, err := g.Candles(symbol, tf, 1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}
	return &candles[len(candles)-1], nil
}

// CandleDirection returns the bias of the last completed candle.
func (g *Gateway) CandleDirection(symbol string, tf models.Timeframe) (models.CandleDirection, error) {
	c, err := g.LastCandle(symbol, tf)
	if err != nil {
		return models.CandleNone, err
	}
	if c == nil {
		return models.CandleNone, nil
	}
	return c.Direction(), nil
}

func (g *Gateway) doCtx(ctx context.Context, category Category, method, endpoint string, body, out any) error {
	return g.doCtxParams(ctx, category, method, endpoint, nil, out, body)
}

func (g *Gateway) doCtxParams(ctx context.Context, category Category, method, endpoint string, params map[string]string, out any, body ...any) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, category); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	req := g.client.R().SetContext(ctx)
	if len(body) > 0 && body[0] != nil {
		req = req.SetBody(body[0])
	}
	if params != nil {
		req = req.SetQueryParams(params)
	}
	g.mu.RLock()
	session := g.session
	g.mu.RUnlock()
	if session != "" {
		req = req.SetHeader("Authorization", "Bearer "+session)
	}
	if out != nil {
		req = req.SetResult(out)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

func asAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}
