package strategyloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/cycletrader/orchestrator/internal/cycle"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/remote"
)

// EventKind enumerates the handle_event message kinds recognized by the
// Strategy Loop (spec §4.6).
type EventKind string

const (
	EventOpenOrder             EventKind = "open_order"
	EventCloseCycle            EventKind = "close_cycle"
	EventCloseAllCycles        EventKind = "close_all_cycles"
	EventCloseOrder            EventKind = "close_order"
	EventClosePendingOrder     EventKind = "close_pending_order"
	EventCloseAllPendingOrders EventKind = "close_all_pending_orders"
	EventUpdateOrderConfigs    EventKind = "update_order_configs"
	EventStopBot               EventKind = "stop_bot"
	EventStartBot              EventKind = "start_bot"
)

// Command is the tagged union spec §9 calls for in place of the remote
// event's untyped content map: one recognized message kind, with only the
// fields that kind actually carries populated.
type Command struct {
	Kind        EventKind
	OpenedBy    models.OpenedBy
	OpenOrder   OpenOrderCommand
	CycleID     string // "all" closes every active cycle (close_cycle)
	Ticket      int64  // close_order / close_pending_order
	OrderConfig OrderConfigCommand
}

// OpenOrderCommand carries open_order's payload.
type OpenOrderCommand struct {
	Kind  models.CycleKind
	Side  models.Direction
	Price float64 // 0 = market
}

// OrderConfigCommand carries update_order_configs' payload.
type OrderConfigCommand struct {
	SL            float64
	TP            float64
	TrailingSteps int64
}

// ErrUnrecognizedEvent is returned by ParseEvent for an action string
// outside §4.6's recognized set; callers log and discard per spec §9.
var ErrUnrecognizedEvent = errors.New("strategyloop: unrecognized event action")

// ParseEvent decodes a remote.Event's untyped Data map into the Command
// variant its Action names.
func ParseEvent(evt remote.Event) (*Command, error) {
	cmd := &Command{
		Kind: EventKind(evt.Action),
		OpenedBy: models.OpenedBy{
			UserName:    recordString(evt.Data, "user_name"),
			UserID:      recordString(evt.Data, "user_id"),
			SentByAdmin: recordBool(evt.Data, "sent_by_admin"),
		},
	}

	switch cmd.Kind {
	case EventOpenOrder:
		side := models.Direction(recordString(evt.Data, "side"))
		kind := models.CycleKind(recordString(evt.Data, "kind"))
		if kind == "" {
			if side == models.Sell {
				kind = models.KindSell
			} else {
				kind = models.KindBuy
			}
		}
		cmd.OpenOrder = OpenOrderCommand{
			Kind:  kind,
			Side:  side,
			Price: recordFloat(evt.Data, "price"),
		}
	case EventCloseCycle:
		cmd.CycleID = recordString(evt.Data, "id")
	case EventCloseAllCycles, EventCloseAllPendingOrders, EventStopBot, EventStartBot:
		// No further payload.
	case EventCloseOrder, EventClosePendingOrder:
		cmd.Ticket = int64(recordFloat(evt.Data, "ticket"))
	case EventUpdateOrderConfigs:
		cmd.Ticket = int64(recordFloat(evt.Data, "ticket"))
		cmd.OrderConfig = OrderConfigCommand{
			SL:            recordFloat(evt.Data, "sl"),
			TP:            recordFloat(evt.Data, "tp"),
			TrailingSteps: int64(recordFloat(evt.Data, "trailing_steps")),
		}
	default:
		return nil, ErrUnrecognizedEvent
	}

	return cmd, nil
}

func recordString(r remote.Record, key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func recordBool(r remote.Record, key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

func recordFloat(r remote.Record, key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// HandleEvent applies evt to the bot this Loop drives (spec §4.6's
// handle_event). Idempotence against duplicate delivery is the caller's
// responsibility (spec §5: the Account Supervisor's processed-event set).
func (l *Loop) HandleEvent(ctx context.Context, evt remote.Event) error {
	cmd, err := ParseEvent(evt)
	if err != nil {
		l.logger.Printf("bot %s: discarding event %s: %v", l.bot.LocalID, evt.ID, err)
		return nil
	}

	switch cmd.Kind {
	case EventOpenOrder:
		return l.handleOpenOrder(cmd)
	case EventCloseCycle:
		return l.handleCloseCycle(cmd.CycleID)
	case EventCloseAllCycles:
		return l.handleCloseCycle("all")
	case EventCloseOrder, EventClosePendingOrder:
		return l.handleCloseTicket(cmd.Ticket)
	case EventCloseAllPendingOrders:
		return l.handleCloseAllPendingOrders()
	case EventUpdateOrderConfigs:
		return l.handleUpdateOrderConfigs(cmd.Ticket, cmd.OrderConfig)
	case EventStopBot:
		return l.handleStopStart(ctx, true)
	case EventStartBot:
		return l.handleStopStart(ctx, false)
	default:
		return nil
	}
}

func (l *Loop) handleOpenOrder(cmd *Command) error {
	_, err := cycle.Open(l.broker, l.store, l.params, cycle.OpenRequest{
		BotID: l.bot.LocalID, AccountID: l.bot.AccountID, Symbol: l.bot.Symbol,
		Magic: l.bot.Magic, Kind: cmd.OpenOrder.Kind, Side: cmd.OpenOrder.Side,
		Price: cmd.OpenOrder.Price, OpenedBy: cmd.OpenedBy,
	})
	return err
}

// handleCloseCycle closes one cycle by local id, or every active cycle
// when id is "all".
func (l *Loop) handleCloseCycle(id string) error {
	if id == "all" {
		cycles, err := l.store.Cycles.ListActiveByBot(l.bot.LocalID)
		if err != nil {
			return fmt.Errorf("listing cycles to close: %w", err)
		}
		for i := range cycles {
			if err := l.engine.Close(&cycles[i], "close_all_cycles"); err != nil {
				l.logger.Printf("bot %s: closing cycle %s: %v", l.bot.LocalID, cycles[i].LocalID, err)
			}
		}
		return nil
	}

	c, err := l.store.Cycles.Get(id)
	if err != nil {
		return fmt.Errorf("loading cycle %s to close: %w", id, err)
	}
	return l.engine.Close(c, "close_cycle")
}

func (l *Loop) handleCloseTicket(ticket int64) error {
	o, err := l.store.Orders.GetByTicket(ticket)
	if err != nil {
		return fmt.Errorf("loading order %d to close: %w", ticket, err)
	}
	c, err := l.store.Cycles.Get(o.CycleID)
	if err != nil {
		return fmt.Errorf("loading cycle %s to close ticket %d: %w", o.CycleID, ticket, err)
	}
	return l.engine.CloseTicket(c, ticket)
}

func (l *Loop) handleCloseAllPendingOrders() error {
	cycles, err := l.store.Cycles.ListActiveByBot(l.bot.LocalID)
	if err != nil {
		return fmt.Errorf("listing cycles to close pending orders: %w", err)
	}
	for i := range cycles {
		c := &cycles[i]
		for _, ticket := range append(models.TicketSet{}, c.PendingOrders...) {
			if err := l.engine.CloseTicket(c, ticket); err != nil {
				l.logger.Printf("bot %s: closing pending order %d: %v", l.bot.LocalID, ticket, err)
			}
		}
	}
	return nil
}

// handleUpdateOrderConfigs mutates a ticket's SL/TP/trailing-step fields in
// the Local Store only: the Broker Gateway contract (spec §4.1) exposes no
// modify-in-place call, so this event is a local annotation that the next
// broker refresh may overwrite once the ticket's real SL/TP is re-read.
func (l *Loop) handleUpdateOrderConfigs(ticket int64, cfg OrderConfigCommand) error {
	o, err := l.store.Orders.GetByTicket(ticket)
	if err != nil {
		return fmt.Errorf("loading order %d to update configs: %w", ticket, err)
	}
	o.SL = cfg.SL
	o.TP = cfg.TP
	o.TrailingSteps = cfg.TrailingSteps
	if err := l.store.Orders.Update(o); err != nil {
		return fmt.Errorf("persisting order %d config update: %w", ticket, err)
	}
	return nil
}

func (l *Loop) handleStopStart(ctx context.Context, stop bool) error {
	l.setStopped(stop)
	l.bot.Stopped = stop

	if l.remote == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, remoteWriteTimeout)
	defer cancel()
	if _, err := l.remote.UpdateBotStatus(writeCtx, l.bot.RemoteID, stop, l.bot.Magic); err != nil {
		return fmt.Errorf("updating remote bot status: %w", err)
	}
	return nil
}
