package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/models"
)

func TestLoadParams_FallsBackToDefaultsWhenBotConfigOmitsAField(t *testing.T) {
	bot := &models.Bot{LocalID: "bot-1", Config: map[string]any{}}
	defaults := config.StrategyDefaults{
		ZoneSize: 500, ZoneForward2: 1, PipsStep: 100, LotSize: 0.01,
		TakeProfit: 5, SLTPUnit: "money", BatchStopLossPips: 200,
		RecoveryLossThreshold: 50, HedgeSLPips: 100, AutotradeThreshold: 50, MaxCycles: 1,
	}

	p := LoadParams(bot, defaults, nil)

	require.InDelta(t, 500, p.ZoneSize, 1e-9)
	require.InDelta(t, 100, p.PipsStep, 1e-9)
	require.Equal(t, models.SLTPKind("money"), p.SLTPUnit)
	require.Equal(t, 1, p.MaxCycles)
}

func TestLoadParams_PrefersBotConfigOverDefaults(t *testing.T) {
	bot := &models.Bot{
		LocalID: "bot-1",
		Config: map[string]any{
			"zone_size":  float64(250),
			"pips_step":  float64(20),
			"lot_size":   float64(0.1),
			"sltp":       "pips",
			"max_cycles": float64(3),
		},
	}
	p := LoadParams(bot, config.StrategyDefaults{}, nil)

	require.InDelta(t, 250, p.ZoneSize, 1e-9)
	require.InDelta(t, 20, p.PipsStep, 1e-9)
	require.InDelta(t, 0.1, p.LotSize, 1e-9)
	require.Equal(t, models.SLTPKind("pips"), p.SLTPUnit)
	require.Equal(t, 3, p.MaxCycles)
}

func TestParams_LotForIndex_FallsBackPastSequenceEnd(t *testing.T) {
	p := Params{LotSize: 0.01, LotSequence: []float64{0.02, 0.04}}

	require.InDelta(t, 0.02, p.LotForIndex(0), 1e-9)
	require.InDelta(t, 0.04, p.LotForIndex(1), 1e-9)
	require.InDelta(t, 0.01, p.LotForIndex(2), 1e-9, "index past the sequence falls back to the fixed lot size")
}

func TestParams_HedgeLotForIndex_FallsBackPastSequenceEnd(t *testing.T) {
	p := Params{LotSize: 0.01, HedgeLotSequence: []float64{0.05}}

	require.InDelta(t, 0.05, p.HedgeLotForIndex(0), 1e-9)
	require.InDelta(t, 0.01, p.HedgeLotForIndex(1), 1e-9)
}
