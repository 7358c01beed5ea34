package cycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/store"
)

// OpenRequest describes a new cycle to open (spec §4.6, the "open_order"
// strategy-loop event).
type OpenRequest struct {
	BotID     string
	AccountID string
	Symbol    string
	Magic     int64
	Kind      models.CycleKind
	Side      models.Direction // ignored when Kind is KindBuyAndSell
	Price     float64          // 0 = market
	OpenedBy  models.OpenedBy
}

// Open places the initial order(s) for a new cycle and computes its zone
// anchors (spec §4.5.1). KindBuyAndSell opens two independent cycles, one
// per side. A non-zero Price places a resting order instead of a market
// order (spec §4.6: "price > current ask → buy stop; price < current ask
// → buy limit", mirrored for SELL).
func Open(br broker.Broker, st *store.Store, params Params, req OpenRequest) ([]*models.Cycle, error) {
	if req.Kind == models.KindBuyAndSell {
		buyReq, sellReq := req, req
		buyReq.Kind, buyReq.Side = models.KindBuy, models.Buy
		sellReq.Kind, sellReq.Side = models.KindSell, models.Sell

		var cycles []*models.Cycle
		for _, r := range []OpenRequest{buyReq, sellReq} {
			c, err := openSingle(br, st, params, r)
			if err != nil {
				return cycles, err
			}
			if c != nil {
				cycles = append(cycles, c)
			}
		}
		return cycles, nil
	}

	c, err := openSingle(br, st, params, req)
	if err != nil || c == nil {
		return nil, err
	}
	return []*models.Cycle{c}, nil
}

func openSingle(br broker.Broker, st *store.Store, params Params, req OpenRequest) (*models.Cycle, error) {
	side := req.Side
	if side == "" {
		side = models.Buy
		if req.Kind == models.KindSell {
			side = models.Sell
		}
	}

	info, err := br.SymbolInfo(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("reading symbol info for %s: %w", req.Symbol, err)
	}
	if info == nil {
		return nil, nil
	}
	pip := info.Pip()
	pending := req.Price != 0

	lot := params.LotForIndex(0)
	comment := broker.TruncateComment("cycle-open")
	var positions []broker.Position
	if pending {
		positions, err = br.Pending(broker.OrderRequest{
			Side: side, Symbol: req.Symbol, Volume: lot, Magic: req.Magic, Price: req.Price, Comment: comment,
		})
	} else {
		positions, err = br.Market(broker.OrderRequest{
			Side: side, Symbol: req.Symbol, Volume: lot, Magic: req.Magic, Comment: comment,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening cycle order: %w", err)
	}
	if len(positions) == 0 {
		// Broker retcode != DONE: no cycle is created (spec §4.5.5).
		return nil, nil
	}
	pos := positions[0]

	c := &models.Cycle{
		LocalID:     uuid.NewString(),
		BotID:       req.BotID,
		AccountID:   req.AccountID,
		Symbol:      req.Symbol,
		Magic:       req.Magic,
		Kind:        req.Kind,
		Status:      models.StateInitial,
		IsPending:   pending,
		OpenedBy:    req.OpenedBy,
		TotalVolume: pos.Volume,
	}
	NewZone(pos.OpenPrice, pip, params).ApplyTo(c, side)

	if err := st.Cycles.Create(c); err != nil {
		return nil, fmt.Errorf("creating cycle: %w", err)
	}

	kind := models.OrderMarket
	if pending {
		kind = models.OrderPending
	}
	o := &models.Order{
		LocalID:   uuid.NewString(),
		Ticket:    pos.Ticket,
		CycleID:   c.LocalID,
		BotID:     req.BotID,
		AccountID: req.AccountID,
		Kind:      kind,
		Direction: side,
		Symbol:    req.Symbol,
		Magic:     req.Magic,
		OpenPrice: pos.OpenPrice,
		Volume:    pos.Volume,
		IsPending: pending,
		OpenedAt:  time.Now().UTC(),
	}
	if err := st.Orders.Create(o); err != nil {
		return nil, fmt.Errorf("creating initial order row: %w", err)
	}

	c.ActiveOrders = c.ActiveOrders.Append(pos.Ticket)
	c.InitialOrders = c.InitialOrders.Append(pos.Ticket)
	if pending {
		c.PendingOrders = c.PendingOrders.Append(pos.Ticket)
	}
	if err := st.Cycles.Update(c); err != nil {
		return nil, fmt.Errorf("persisting cycle's initial ticket: %w", err)
	}

	return c, nil
}
