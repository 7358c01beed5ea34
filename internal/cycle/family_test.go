package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cycletrader/orchestrator/internal/models"
)

func TestFamilyFor_ResolvesEachKnownKind(t *testing.T) {
	cases := []struct {
		kind                  models.StrategyKind
		hedging, batchSL      bool
		candleTrade, repeated bool
	}{
		{models.StrategyAdaptiveHedge, true, false, false, false},
		{models.StrategyCycleTrader, false, false, true, false},
		{models.StrategyAdvancedCyclesTrader, true, true, false, false},
		{models.StrategyMoveGuard, false, false, false, true},
		{models.StrategyStockTrader, false, false, false, false},
	}

	for _, tc := range cases {
		f := FamilyFor(tc.kind)
		require.Equal(t, tc.kind, f.Kind())
		require.Equal(t, tc.hedging, f.HedgingEnabled(), "%s hedging", tc.kind)
		require.Equal(t, tc.batchSL, f.BatchStopLossEnabled(), "%s batch stop-loss", tc.kind)
		require.Equal(t, tc.candleTrade, f.CandleTradingEnabled(), "%s candle trading", tc.kind)
		require.Equal(t, tc.repeated, f.AllowRepeatedDirectionSwitch(), "%s repeated switch", tc.kind)
	}
}

func TestFamilyFor_UnknownKindDefaultsToStockTrader(t *testing.T) {
	f := FamilyFor(models.StrategyKind("unknown-kind"))
	require.False(t, f.HedgingEnabled())
	require.False(t, f.BatchStopLossEnabled())
	require.False(t, f.CandleTradingEnabled())
	require.False(t, f.AllowRepeatedDirectionSwitch())
}
