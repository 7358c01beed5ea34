package broker

import (
	"math"
	"testing"

	"github.com/cycletrader/orchestrator/internal/models"
)

const sltpTol = 1e-9

func almostEqual(a, b float64) bool { return math.Abs(a-b) <= sltpTol }

func TestResolveSLTP_ZeroMeansUnset(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	if got := ResolveSLTP(sym, models.Buy, 1.10000, 0, models.SLTPPips, true); got != 0 {
		t.Errorf("expected 0 distance to resolve to 0 (unset), got %v", got)
	}
}

func TestResolveSLTP_BuyStopLossBelowMarket(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	got := ResolveSLTP(sym, models.Buy, 1.10000, 100, models.SLTPPips, true)
	want := 1.10000 - 100*10*0.00001
	if !almostEqual(got, want) {
		t.Errorf("expected buy SL below market at %v, got %v", want, got)
	}
}

func TestResolveSLTP_SellStopLossAboveMarket(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	got := ResolveSLTP(sym, models.Sell, 1.10000, 100, models.SLTPPips, true)
	want := 1.10000 + 100*10*0.00001
	if !almostEqual(got, want) {
		t.Errorf("expected sell SL above market at %v, got %v", want, got)
	}
}

func TestResolveSLTP_TakeProfitMirrorsStopLoss(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	buyTP := ResolveSLTP(sym, models.Buy, 1.10000, 100, models.SLTPPips, false)
	if buyTP <= 1.10000 {
		t.Errorf("expected buy TP above market, got %v", buyTP)
	}
	sellTP := ResolveSLTP(sym, models.Sell, 1.10000, 100, models.SLTPPips, false)
	if sellTP >= 1.10000 {
		t.Errorf("expected sell TP below market, got %v", sellTP)
	}
}

func TestResolveSLTP_PriceKindIsAbsolute(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	got := ResolveSLTP(sym, models.Buy, 1.10000, 1.09500, models.SLTPPrice, true)
	if got != 1.09500 {
		t.Errorf("expected PRICE kind to pass through unchanged, got %v", got)
	}
}

func TestPipsToPrice_And_PriceToPips_RoundTrip(t *testing.T) {
	sym := &SymbolInfo{Point: 0.00001}
	price := PipsToPrice(sym, 100)
	pips := PriceToPips(sym, price)
	if pips != 100 {
		t.Errorf("expected round-trip to return 100 pips, got %v", pips)
	}
}

func TestPriceToPips_ZeroPointIsSafe(t *testing.T) {
	sym := &SymbolInfo{Point: 0}
	if got := PriceToPips(sym, 0.005); got != 0 {
		t.Errorf("expected 0 when point is unavailable, got %v", got)
	}
}

func TestResolveSLTP_RoundsToSymbolTick(t *testing.T) {
	sym := &SymbolInfo{Point: 0.01}
	// 33 pips = 33*10*0.01 = 3.3 price distance; the entry price itself is
	// off-tick, so the result must land on a 0.01 increment regardless.
	got := ResolveSLTP(sym, models.Buy, 100.003, 33, models.SLTPPips, true)
	want := 96.70
	if !almostEqual(got, want) {
		t.Errorf("expected SL rounded to tick at %v, got %v", want, got)
	}
}
