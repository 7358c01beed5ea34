package broker

import (
	"github.com/cycletrader/orchestrator/internal/models"
	"github.com/cycletrader/orchestrator/internal/util"
)

// ResolveSLTP converts an SL or TP distance expressed in sym's sltpKind unit
// into an absolute price level relative to entryPrice, per spec.md §4.1: a
// zero value means "unset"; PIPS = 10*point; buy SL sits below market, sell
// SL above (TP mirrors). The result is rounded to sym's tick (Point) so the
// level submitted to the broker is always a valid price for the symbol.
func ResolveSLTP(sym *SymbolInfo, side models.Direction, entryPrice, distance float64, kind models.SLTPKind, isStopLoss bool) float64 {
	if distance == 0 {
		return 0
	}
	if kind == models.SLTPPrice {
		return distance
	}

	points := distance
	if kind == models.SLTPPips {
		points = distance * 10
	}
	priceDistance := points * sym.Point

	below := (side == models.Buy) == isStopLoss
	level := entryPrice - priceDistance
	if !below {
		level = entryPrice + priceDistance
	}
	return util.RoundToTick(level, sym.Point)
}

// PipsToPrice converts a pip distance to a raw price distance for sym.
func PipsToPrice(sym *SymbolInfo, pips float64) float64 {
	return pips * sym.Pip()
}

// PriceToPips converts a raw price distance to pips for sym. Returns 0 if
// sym's point is zero (symbol info unavailable).
func PriceToPips(sym *SymbolInfo, price float64) float64 {
	pip := sym.Pip()
	if pip == 0 {
		return 0
	}
	return price / pip
}
