package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/models"
)

func newTestOrder(botID, cycleID string, ticket int64) *models.Order {
	return &models.Order{
		LocalID:   uuid.NewString(),
		Ticket:    ticket,
		CycleID:   cycleID,
		BotID:     botID,
		AccountID: "acct-1",
		Kind:      models.OrderMarket,
		Direction: models.Buy,
		Symbol:    "EURUSD",
		Magic:     1001,
		OpenPrice: 1.1,
		Volume:    0.01,
	}
}

func TestOrderRepo_CreateAndGetByTicket(t *testing.T) {
	s := openTestStore(t)
	o := newTestOrder("bot-1", "cycle-1", 555)

	require.NoError(t, s.Orders.Create(o))

	got, err := s.Orders.GetByTicket(555)
	require.NoError(t, err)
	require.Equal(t, o.Symbol, got.Symbol)
	require.False(t, got.OpenedAt.IsZero())
}

func TestOrderRepo_GetByTicket_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Orders.GetByTicket(9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrderRepo_ListOpenByBot_ExcludesClosed(t *testing.T) {
	s := openTestStore(t)

	open := newTestOrder("bot-1", "cycle-1", 1)
	closed := newTestOrder("bot-1", "cycle-1", 2)
	closed.IsClosed = true

	require.NoError(t, s.Orders.Create(open))
	require.NoError(t, s.Orders.Create(closed))

	list, err := s.Orders.ListOpenByBot("bot-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(1), list[0].Ticket)
}

func TestOrderRepo_ListOpenPendingByBot(t *testing.T) {
	s := openTestStore(t)

	pending := newTestOrder("bot-1", "cycle-1", 10)
	pending.IsPending = true
	filled := newTestOrder("bot-1", "cycle-1", 11)

	require.NoError(t, s.Orders.Create(pending))
	require.NoError(t, s.Orders.Create(filled))

	list, err := s.Orders.ListOpenPendingByBot("bot-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(10), list[0].Ticket)
}

func TestOrderRepo_Update(t *testing.T) {
	s := openTestStore(t)
	o := newTestOrder("bot-1", "cycle-1", 20)
	require.NoError(t, s.Orders.Create(o))

	o.Profit = 12.5
	o.IsClosed = true
	require.NoError(t, s.Orders.Update(o))

	got, err := s.Orders.GetByTicket(20)
	require.NoError(t, err)
	require.Equal(t, 12.5, got.Profit)
	require.True(t, got.IsClosed)
}

func TestOrderRepo_Update_MissingTicketReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	o := newTestOrder("bot-1", "cycle-1", 99)
	require.ErrorIs(t, s.Orders.Update(o), ErrNotFound)
}
