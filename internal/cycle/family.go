package cycle

import "github.com/cycletrader/orchestrator/internal/models"

// Family captures the handful of per-tick behaviors that differ across
// strategy families (spec §9, "Dynamic strategy dispatch"): the Strategy
// Loop resolves one Family value per bot from its models.StrategyKind and
// the Engine dispatches the opt-in steps through it, rather than branching
// on a strategy name string at each call site.
type Family interface {
	Kind() models.StrategyKind
	// HedgingEnabled opts into hedge-order placement and recovery mode
	// (spec §4.5.2 item 4).
	HedgingEnabled() bool
	// BatchStopLossEnabled opts into batch stop-loss accounting and
	// batch-close (spec §4.5.2 item 5).
	BatchStopLossEnabled() bool
	// CandleTradingEnabled opts into candle-close trade generation
	// (spec §4.5.2 item 7).
	CandleTradingEnabled() bool
	// AllowRepeatedDirectionSwitch permits a cycle to reverse more than
	// once (spec §4.5.2 item 3 names MoveGuard as the only family that does).
	AllowRepeatedDirectionSwitch() bool
}

type baseFamily struct {
	kind models.StrategyKind
}

func (f baseFamily) Kind() models.StrategyKind          { return f.kind }
func (baseFamily) HedgingEnabled() bool                 { return false }
func (baseFamily) BatchStopLossEnabled() bool            { return false }
func (baseFamily) CandleTradingEnabled() bool            { return false }
func (baseFamily) AllowRepeatedDirectionSwitch() bool    { return false }

type adaptiveHedgeFamily struct{ baseFamily }

func (adaptiveHedgeFamily) HedgingEnabled() bool { return true }

type cycleTraderFamily struct{ baseFamily }

func (cycleTraderFamily) CandleTradingEnabled() bool { return true }

type advancedCyclesTraderFamily struct{ baseFamily }

func (advancedCyclesTraderFamily) HedgingEnabled() bool        { return true }
func (advancedCyclesTraderFamily) BatchStopLossEnabled() bool { return true }

type moveGuardFamily struct{ baseFamily }

func (moveGuardFamily) AllowRepeatedDirectionSwitch() bool { return true }

type stockTraderFamily struct{ baseFamily }

// FamilyFor resolves the Family variant for kind, defaulting to the plain
// grid family (no opt-ins) for an unrecognized strategy kind.
func FamilyFor(kind models.StrategyKind) Family {
	base := baseFamily{kind: kind}
	switch kind {
	case models.StrategyAdaptiveHedge:
		return adaptiveHedgeFamily{base}
	case models.StrategyCycleTrader:
		return cycleTraderFamily{base}
	case models.StrategyAdvancedCyclesTrader:
		return advancedCyclesTraderFamily{base}
	case models.StrategyMoveGuard:
		return moveGuardFamily{base}
	default:
		return stockTraderFamily{base}
	}
}
