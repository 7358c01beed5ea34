package models

import "testing"

func TestTicketSet_AppendIsIdempotent(t *testing.T) {
	var s TicketSet
	s = s.Append(100)
	s = s.Append(100)
	if len(s) != 1 {
		t.Fatalf("expected 1 ticket after duplicate append, got %d", len(s))
	}
	s = s.Append(200)
	if len(s) != 2 || s[0] != 100 || s[1] != 200 {
		t.Fatalf("unexpected set contents: %v", s)
	}
}

func TestTicketSet_Remove(t *testing.T) {
	s := TicketSet{1, 2, 3}
	s = s.Remove(2)
	if len(s) != 2 || s.Contains(2) {
		t.Fatalf("ticket 2 should have been removed: %v", s)
	}
}

func TestPriceLevels_ContainsWithinTolerance(t *testing.T) {
	p := PriceLevels{1.1000, 1.1010}
	if !p.Contains(1.10005, 0.0005) {
		t.Error("expected price within tolerance to be reported as contained")
	}
	if p.Contains(1.1020, 0.0005) {
		t.Error("expected price outside tolerance to be reported as not contained")
	}
}

func TestCycle_OpenTicketCount(t *testing.T) {
	c := &Cycle{
		InitialOrders: TicketSet{1, 2},
		HedgeOrders:   TicketSet{3},
		ClosedOrders:  TicketSet{2},
	}
	if got := c.OpenTicketCount(); got != 2 {
		t.Fatalf("expected 2 open tickets (1 and 3), got %d", got)
	}
}

func TestCycle_HasTicket(t *testing.T) {
	c := &Cycle{PendingOrders: TicketSet{42}}
	if !c.HasTicket(42) {
		t.Error("expected ticket 42 to be found in pending orders")
	}
	if c.HasTicket(7) {
		t.Error("ticket 7 was never added to any set")
	}
}

func TestCycle_NextGridTriggerDistance(t *testing.T) {
	c := &Cycle{NextOrderIndex: 2}
	if got := c.NextGridTriggerDistance(5); got != 15 {
		t.Fatalf("expected 5*(2+1)=15, got %v", got)
	}
}
