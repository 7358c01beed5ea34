package strategyloop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/models"
)

const testPip = 0.0001

func TestAutotradeRestricted_NoRestrictionWhenPipsRestrictionIsZero(t *testing.T) {
	cycles := []models.Cycle{{OpenPrice: 1.10000, CurrentDirection: models.Buy}}
	require.False(t, autotradeRestricted(cycles, 1.10001, testPip, 0, models.Buy))
}

func TestAutotradeRestricted_SuppressesNearbyYoungCycleRegardlessOfDirection(t *testing.T) {
	cycles := []models.Cycle{{
		OpenPrice: 1.10000, CurrentDirection: models.Sell,
		InitialOrders: models.TicketSet{1},
	}}
	// pipsRestriction=20 -> half buffer = 10 pips = 0.00100
	require.True(t, autotradeRestricted(cycles, 1.10050, testPip, 20, models.Buy))
}

func TestAutotradeRestricted_AllowsNearbyYoungCycleOutsideHalfBuffer(t *testing.T) {
	cycles := []models.Cycle{{
		OpenPrice: 1.10000, CurrentDirection: models.Sell,
		InitialOrders: models.TicketSet{1},
	}}
	// 0.00199 move clears the half buffer (0.00100), so the young-cycle gate
	// no longer applies; it's still within the full buffer (0.00200) but the
	// directions differ, so the same-direction gate doesn't apply either.
	require.False(t, autotradeRestricted(cycles, 1.10199, testPip, 20, models.Buy))
}

func TestAutotradeRestricted_SuppressesSameDirectionWithinFullBuffer(t *testing.T) {
	cycles := []models.Cycle{{
		OpenPrice: 1.10000, CurrentDirection: models.Buy,
		InitialOrders:  models.TicketSet{1, 2, 3},
		HedgeOrders:    models.TicketSet{4},
		ClosedOrders:   models.TicketSet{1},
	}}
	// Not "young" (has a hedge and a closed ticket), but within the full
	// buffer and same direction still blocks.
	require.True(t, autotradeRestricted(cycles, 1.10150, testPip, 20, models.Buy))
}

func TestAutotradeRestricted_AllowsOppositeDirectionPastHalfBuffer(t *testing.T) {
	cycles := []models.Cycle{{
		OpenPrice: 1.10000, CurrentDirection: models.Buy,
		InitialOrders: models.TicketSet{1, 2, 3},
		HedgeOrders:   models.TicketSet{4},
		ClosedOrders:  models.TicketSet{1},
	}}
	require.False(t, autotradeRestricted(cycles, 1.10150, testPip, 20, models.Sell))
}

func TestAutotradeRestricted_IgnoresClosedCycles(t *testing.T) {
	cycles := []models.Cycle{{
		OpenPrice: 1.10000, CurrentDirection: models.Buy, IsClosed: true,
	}}
	require.False(t, autotradeRestricted(cycles, 1.10001, testPip, 20, models.Buy))
}

func TestIsYoungCycle_FalseAfterMoreThanTwoDistinctTickets(t *testing.T) {
	c := &models.Cycle{InitialOrders: models.TicketSet{1}, ActiveOrders: models.TicketSet{1, 2, 3}}
	require.False(t, isYoungCycle(c))
}

func TestIsYoungCycle_TrueForFreshCycle(t *testing.T) {
	c := &models.Cycle{InitialOrders: models.TicketSet{1}, ActiveOrders: models.TicketSet{1}}
	require.True(t, isYoungCycle(c))
}
