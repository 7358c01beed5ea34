package strategyloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/broker/brokertest"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/remote"
)

func TestParseEvent_OpenOrderDefaultsKindFromSide(t *testing.T) {
	cmd, err := ParseEvent(remote.Event{
		Action: "open_order",
		Data:   remote.Record{"side": "SELL", "price": 1.2345, "user_name": "alice"},
	})
	require.NoError(t, err)
	require.Equal(t, EventOpenOrder, cmd.Kind)
	require.Equal(t, models.KindSell, cmd.OpenOrder.Kind)
	require.Equal(t, models.Sell, cmd.OpenOrder.Side)
	require.InDelta(t, 1.2345, cmd.OpenOrder.Price, 1e-9)
	require.Equal(t, "alice", cmd.OpenedBy.UserName)
}

func TestParseEvent_UnrecognizedActionIsAnError(t *testing.T) {
	_, err := ParseEvent(remote.Event{Action: "delete_everything"})
	require.ErrorIs(t, err, ErrUnrecognizedEvent)
}

func TestLoop_HandleEvent_OpenOrderCreatesACycle(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, st := newTestLoop(t, fake)

	err := l.HandleEvent(context.Background(), remote.Event{
		Action: "open_order",
		Data:   remote.Record{"side": "BUY"},
	})
	require.NoError(t, err)

	cycles, err := st.Cycles.ListActiveByBot("bot-1")
	require.NoError(t, err)
	require.Len(t, cycles, 1)
}

func TestLoop_HandleEvent_CloseAllCyclesClosesEveryActiveCycle(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, st := newTestLoop(t, fake)

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{
		Action: "open_order", Data: remote.Record{"side": "BUY"},
	}))

	err := l.HandleEvent(context.Background(), remote.Event{Action: "close_all_cycles"})
	require.NoError(t, err)

	cycles, err := st.Cycles.ListActiveByBot("bot-1")
	require.NoError(t, err)
	require.Empty(t, cycles, "close_all_cycles must leave no active cycles")
}

func TestLoop_HandleEvent_CloseCycleByIDClosesOnlyThatCycle(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, st := newTestLoop(t, fake)

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{
		Action: "open_order", Data: remote.Record{"side": "BUY"},
	}))
	cycles, err := st.Cycles.ListActiveByBot("bot-1")
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	id := cycles[0].LocalID

	err = l.HandleEvent(context.Background(), remote.Event{
		Action: "close_cycle", Data: remote.Record{"id": id},
	})
	require.NoError(t, err)

	closed, err := st.Cycles.Get(id)
	require.NoError(t, err)
	require.True(t, closed.IsClosed)
}

func TestLoop_HandleEvent_CloseOrderClosesOneTicketOnly(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, st := newTestLoop(t, fake)

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{
		Action: "open_order", Data: remote.Record{"side": "BUY"},
	}))
	cycles, err := st.Cycles.ListActiveByBot("bot-1")
	require.NoError(t, err)
	ticket := cycles[0].InitialOrders[0]

	err = l.HandleEvent(context.Background(), remote.Event{
		Action: "close_order", Data: remote.Record{"ticket": float64(ticket)},
	})
	require.NoError(t, err)

	o, err := st.Orders.GetByTicket(ticket)
	require.NoError(t, err)
	require.True(t, o.IsClosed)

	c, err := st.Cycles.Get(cycles[0].LocalID)
	require.NoError(t, err)
	require.True(t, c.IsClosed, "the cycle's sole ticket closing closes the cycle too")
}

func TestLoop_HandleEvent_UpdateOrderConfigsMutatesLocalOrderOnly(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, st := newTestLoop(t, fake)

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{
		Action: "open_order", Data: remote.Record{"side": "BUY"},
	}))
	cycles, err := st.Cycles.ListActiveByBot("bot-1")
	require.NoError(t, err)
	ticket := cycles[0].InitialOrders[0]

	err = l.HandleEvent(context.Background(), remote.Event{
		Action: "update_order_configs",
		Data:   remote.Record{"ticket": float64(ticket), "sl": 1.09000, "tp": 1.11000, "trailing_steps": float64(5)},
	})
	require.NoError(t, err)

	o, err := st.Orders.GetByTicket(ticket)
	require.NoError(t, err)
	require.InDelta(t, 1.09000, o.SL, 1e-9)
	require.InDelta(t, 1.11000, o.TP, 1e-9)
	require.EqualValues(t, 5, o.TrailingSteps)
}

func TestLoop_HandleEvent_StopBotThenStartBotTogglesStopped(t *testing.T) {
	fake := brokertest.New()
	flatSymbol(fake, "EURUSD", 1.10000)
	l, _ := newTestLoop(t, fake)

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{Action: "stop_bot"}))
	require.True(t, l.isStopped())

	require.NoError(t, l.HandleEvent(context.Background(), remote.Event{Action: "start_bot"}))
	require.False(t, l.isStopped())
}

func TestLoop_HandleEvent_UnrecognizedActionIsDiscardedNotErrored(t *testing.T) {
	fake := brokertest.New()
	l, _ := newTestLoop(t, fake)

	err := l.HandleEvent(context.Background(), remote.Event{Action: "delete_everything"})
	require.NoError(t, err)
}
