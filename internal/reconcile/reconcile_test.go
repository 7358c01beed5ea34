package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/broker"
	"github.com/cycletrader/orchestrator/internal/broker/brokertest"
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCycleAndOrder(t *testing.T, st *store.Store, accountID string, ticket int64) *models.Cycle {
	t.Helper()
	cycle := &models.Cycle{
		LocalID: "cyc-" + accountID, BotID: "bot-" + accountID, AccountID: accountID,
		Symbol: "EURUSD", Magic: 1001, Kind: models.KindBuy,
		Status: models.StateActive, ActiveOrders: models.TicketSet{ticket},
	}
	require.NoError(t, st.Cycles.Create(cycle))

	o := &models.Order{
		LocalID: "ord-" + accountID, Ticket: ticket, CycleID: cycle.LocalID, BotID: cycle.BotID,
		AccountID: accountID, Kind: models.OrderMarket, Direction: models.Buy,
		Symbol: "EURUSD", Magic: 1001, OpenPrice: 1.1, Volume: 0.01,
	}
	require.NoError(t, st.Orders.Create(o))
	return cycle
}

func TestReconciler_Tick_RefreshesOrderStillActiveAtBroker(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 201)

	fake := brokertest.New()
	fake.Seed(broker.Position{Ticket: 201, Symbol: "EURUSD", Magic: 1001, Profit: 12.5})

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)
	require.NoError(t, r.tick())

	o, err := st.Orders.GetByTicket(201)
	require.NoError(t, err)
	require.False(t, o.IsClosed)
	require.Equal(t, 12.5, o.Profit)
}

func TestReconciler_Tick_ClosesSuspiciousOrderOnlyAfterSecondPassPastSyncDelay(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 202)

	fake := brokertest.New()
	fake.CloseAndRecordHistory(202) // broker already shows it gone and in history

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)

	require.NoError(t, r.tick())
	o, err := st.Orders.GetByTicket(202)
	require.NoError(t, err)
	require.False(t, o.IsClosed, "first pass only starts the candidate-closed timer")

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, r.tick())
	o, err = st.Orders.GetByTicket(202)
	require.NoError(t, err)
	require.True(t, o.IsClosed, "second pass past sync_delay/2 must confirm and write the closure")
}

func TestReconciler_Tick_FalseAlarmLeavesOrderOpen(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 203)

	fake := brokertest.New()

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)
	require.NoError(t, r.tick())

	time.Sleep(30 * time.Millisecond)

	// The ticket reappears before the second pass — a transient broker
	// read, not a real close.
	fake.Seed(broker.Position{Ticket: 203, Symbol: "EURUSD", Magic: 1001, Profit: 3})

	require.NoError(t, r.tick())
	o, err := st.Orders.GetByTicket(203)
	require.NoError(t, err)
	require.False(t, o.IsClosed)
	require.Equal(t, 3.0, o.Profit)
}

func TestReconciler_Tick_OnlyTouchesItsOwnAccountOrders(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 301)
	seedCycleAndOrder(t, st, "acct-2", 302)

	fake := brokertest.New()
	fake.Seed(broker.Position{Ticket: 301, Symbol: "EURUSD", Magic: 1001, Profit: 1})
	fake.Seed(broker.Position{Ticket: 302, Symbol: "EURUSD", Magic: 1001, Profit: 99})

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)
	require.NoError(t, r.tick())

	o1, err := st.Orders.GetByTicket(301)
	require.NoError(t, err)
	require.Equal(t, 1.0, o1.Profit)

	o2, err := st.Orders.GetByTicket(302)
	require.NoError(t, err)
	require.Equal(t, 0.0, o2.Profit, "account acct-2's order must be untouched by acct-1's reconciler")
}

func TestReconciler_Run_ReturnsPromptlyOnContextCancel(t *testing.T) {
	st := openTestStore(t)
	fake := brokertest.New()
	r := New(fake, st, "acct-1", 10*time.Millisecond, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestReconciler_Detect_ReportsSuspiciousOrdersWithoutMutating(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 401)
	fake := brokertest.New() // broker reports no active positions/orders at all

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)
	report, err := r.Detect()
	require.NoError(t, err)

	require.Equal(t, "acct-1", report.AccountID)
	require.Equal(t, 0, report.IntersectionCount)
	require.Equal(t, []int64{401}, report.SuspiciousTickets)

	o, err := st.Orders.GetByTicket(401)
	require.NoError(t, err)
	require.False(t, o.IsClosed, "Detect must not mutate the local store")
}

func TestReconciler_Recover_AppliesOneTick(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 402)
	fake := brokertest.New()
	fake.Seed(broker.Position{Ticket: 402, Symbol: "EURUSD", Magic: 1001, Profit: 7})

	r := New(fake, st, "acct-1", time.Second, 40*time.Millisecond, nil)
	require.NoError(t, r.Recover())

	o, err := st.Orders.GetByTicket(402)
	require.NoError(t, err)
	require.Equal(t, 7.0, o.Profit)
}

func TestReconciler_ForceSync_SkipsGracePeriod(t *testing.T) {
	st := openTestStore(t)
	seedCycleAndOrder(t, st, "acct-1", 403)
	fake := brokertest.New()
	fake.Seed(broker.Position{Ticket: 403, Symbol: "EURUSD", Magic: 1001})
	_, err := fake.ClosePosition(broker.Position{Ticket: 403}, 0)
	require.NoError(t, err) // broker now reports it closed (absent + in history)

	r := New(fake, st, "acct-1", time.Second, time.Hour, nil) // huge syncDelay, so tick() alone wouldn't confirm yet
	require.NoError(t, r.ForceSync())

	o, err := st.Orders.GetByTicket(403)
	require.NoError(t, err)
	require.True(t, o.IsClosed, "ForceSync must confirm closure immediately, without waiting for syncDelay/2")
}
