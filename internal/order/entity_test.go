package order

import (
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
	s, err := store.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCycleAndOrder(t *testing.T, st *store.Store, ticket int64) (*models.Cycle, *models.Order) {
	t.Helper()
	cycle := &models.Cycle{
		LocalID: "cyc-1", BotID: "bot-1", AccountID: "acct-1",
		Symbol: "EURUSD", Magic: 1001, Kind: models.KindBuy,
		Status: models.StateActive, ActiveOrders: models.TicketSet{ticket},
	}
	require.NoError(t, st.Cycles.Create(cycle))

	o := &models.Order{
		LocalID: "ord-1", Ticket: ticket, CycleID: cycle.LocalID, BotID: "bot-1",
		AccountID: "acct-1", Kind: models.OrderMarket, Direction: models.Buy,
		Symbol: "EURUSD", Magic: 1001, OpenPrice: 1.1, Volume: 0.01,
	}
	require.NoError(t, st.Orders.Create(o))
	return cycle, o
}

func TestRefreshFromBroker_UpdatesOpenPosition(t *testing.T) {
	st := openTestStore(t)
	_, o := seedCycleAndOrder(t, st, 100)

	fake := brokertest.New()
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001})
	fake.Seed(broker.Position{Ticket: 100, Symbol: "EURUSD", Magic: 1001, Profit: 5.5, Volume: 0.01})

	e := New(o, fake, st, nil)
	changed, err := e.RefreshFromBroker()
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 5.5, o.Profit)
	require.False(t, o.IsClosed)
}

func TestRefreshFromBroker_AbsentTicketIsCandidateClosedNotImmediatelyClosed(t *testing.T) {
	st := openTestStore(t)
	_, o := seedCycleAndOrder(t, st, 101)

	fake := brokertest.New()
	e := New(o, fake, st, nil)

	changed, err := e.RefreshFromBroker()
	require.NoError(t, err)
	require.False(t, changed)
	require.False(t, o.IsClosed, "candidate-closed must not finalize the order by itself")
}

func TestCheckFalseClosedCycle_WaitsForDelay(t *testing.T) {
	st := openTestStore(t)
	_, o := seedCycleAndOrder(t, st, 102)

	fake := brokertest.New()
	e := New(o, fake, st, nil)

	_, err := e.RefreshFromBroker()
	require.NoError(t, err)

	reopened, err := e.CheckFalseClosedCycle(time.Hour)
	require.NoError(t, err)
	require.False(t, reopened)
	require.False(t, o.IsClosed)
}

func TestCheckFalseClosedCycle_FalseAlarmClearsCandidateState(t *testing.T) {
	st := openTestStore(t)
	_, o := seedCycleAndOrder(t, st, 103)

	fake := brokertest.New()
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001})
	e := New(o, fake, st, nil)

	_, err := e.RefreshFromBroker()
	require.NoError(t, err)

	// Ticket reappears before the delay elapses is irrelevant; what matters
	// is CheckIsClosed reporting false once the delay has passed.
	fake.Seed(broker.Position{Ticket: 103, Symbol: "EURUSD", Magic: 1001})

	reopened, err := e.CheckFalseClosedCycle(0)
	require.NoError(t, err)
	require.False(t, reopened)
	require.False(t, o.IsClosed)
}

func TestCheckFalseClosedCycle_ConfirmsAndReopensReconciledCycle(t *testing.T) {
	st := openTestStore(t)
	cycle, o := seedCycleAndOrder(t, st, 104)

	fake := brokertest.New()
	e := New(o, fake, st, nil)

	_, err := e.RefreshFromBroker()
	require.NoError(t, err)

	// Finalize the cycle as closed-by-reconciliation before the second pass,
	// as the reconciler would have done concurrently.
	cycle.IsClosed = true
	cycle.ClosingMethod = models.ClosingReconciled
	cycle.Status = models.StateClosed
	require.NoError(t, st.Cycles.Update(cycle))

	// The original ticket is confirmed closed in broker history.
	fake.CloseAndRecordHistory(104)

	// A brand new position appears under the same (magic, symbol).
	fake.SetSymbol("EURUSD", broker.SymbolInfo{Point: 0.00001})
	fake.Seed(broker.Position{Ticket: 999, Symbol: "EURUSD", Magic: 1001})

	reopened, err := e.CheckFalseClosedCycle(0)
	require.NoError(t, err)
	require.True(t, reopened)
	require.True(t, o.IsClosed, "the original ticket itself stays closed")

	got, err := st.Cycles.Get(cycle.LocalID)
	require.NoError(t, err)
	require.False(t, got.IsClosed)
	require.True(t, got.ActiveOrders.Contains(999))
}
