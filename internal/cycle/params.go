// Package cycle implements the Cycle State Engine (spec §4.5): the
// per-symbol price-grid state machine shared by every strategy family,
// plus the zone model, grid-step, direction-switch, hedging/recovery,
// batch-stop-loss, take-profit, and candle-close-trading behaviors layered
// on top of it.
package cycle

import (
	"log"

	"github.com/cycletrader/orchestrator/internal/config"
	"github.com/cycletrader/orchestrator/internal/models"
)

// Params is the resolved set of strategy parameters for one bot's cycles.
// Numeric/unit parameters come from models.Bot.Config (the remote store's
// per-bot document); behavioral opt-ins (hedging, batch stop-loss, candle
// trading, repeated direction switches) come from the bot's Family instead,
// since those are strategy-family traits rather than tunable numbers.
type Params struct {
	ZoneSize                 float64
	ZoneForward2             float64
	PipsStep                 float64
	LotSize                  float64
	LotSequence              []float64
	TakeProfit               float64
	SLTPUnit                 models.SLTPKind
	BatchStopLossPips        float64
	HedgeLotSequence         []float64
	RecoveryLossThreshold    float64
	HedgeSLPips              float64
	AutotradeThreshold       float64
	AutotradePipsRestriction float64
	MaxCycles                int
	CandleTimeframe          models.Timeframe
}

// LoadParams resolves bot's strategy parameters, falling back to defaults
// and logging a one-line warning for each field the bot's config map
// omits (spec §7, "Configuration" error class). lot_sequence,
// hedge_lot_sequence, autotrade_pips_restriction and candle_timeframe fall
// back without a warning.
func LoadParams(bot *models.Bot, defaults config.StrategyDefaults, logger *log.Logger) Params {
	if logger == nil {
		logger = log.Default()
	}
	warn := func(key string) {
		logger.Printf("bot %s: missing strategy config %q, using documented default", bot.LocalID, key)
	}

	return Params{
		ZoneSize:                 floatParam(bot, "zone_size", defaults.ZoneSize, warn),
		ZoneForward2:             floatParam(bot, "zone_forward2", defaults.ZoneForward2, warn),
		PipsStep:                 floatParam(bot, "pips_step", defaults.PipsStep, warn),
		LotSize:                  floatParam(bot, "lot_size", defaults.LotSize, warn),
		LotSequence:              bot.ConfigFloatSlice("lot_sequence", nil),
		TakeProfit:               floatParam(bot, "take_profit", defaults.TakeProfit, warn),
		SLTPUnit:                 models.SLTPKind(stringParam(bot, "sltp", defaults.SLTPUnit, warn)),
		BatchStopLossPips:        floatParam(bot, "batch_stop_loss_pips", defaults.BatchStopLossPips, warn),
		HedgeLotSequence:         bot.ConfigFloatSlice("hedge_lot_sequence", nil),
		RecoveryLossThreshold:    floatParam(bot, "recovery_loss_threshold", defaults.RecoveryLossThreshold, warn),
		HedgeSLPips:              floatParam(bot, "hedge_sl_pips", defaults.HedgeSLPips, warn),
		AutotradeThreshold:       floatParam(bot, "autotrade_threshold", defaults.AutotradeThreshold, warn),
		AutotradePipsRestriction: bot.ConfigFloat("autotrade_pips_restriction", defaults.AutotradePipsRestriction),
		MaxCycles:                intParam(bot, "max_cycles", defaults.MaxCycles, warn),
		CandleTimeframe:          models.Timeframe(bot.ConfigString("candle_timeframe", string(models.H1))),
	}
}

// LotForIndex returns the lot size for the idx'th grid order: LotSequence
// indexed by idx when configured and long enough, else the fixed LotSize.
func (p Params) LotForIndex(idx int64) float64 {
	if int(idx) < len(p.LotSequence) {
		return p.LotSequence[idx]
	}
	return p.LotSize
}

// HedgeLotForIndex mirrors LotForIndex for the hedge-order lot progression.
func (p Params) HedgeLotForIndex(idx int64) float64 {
	if int(idx) < len(p.HedgeLotSequence) {
		return p.HedgeLotSequence[idx]
	}
	return p.LotSize
}

func floatParam(bot *models.Bot, key string, def float64, warn func(string)) float64 {
	if _, ok := bot.Config[key]; !ok {
		warn(key)
		return def
	}
	return bot.ConfigFloat(key, def)
}

func stringParam(bot *models.Bot, key string, def string, warn func(string)) string {
	if _, ok := bot.Config[key]; !ok {
		warn(key)
		return def
	}
	return bot.ConfigString(key, def)
}

func intParam(bot *models.Bot, key string, def int, warn func(string)) int {
	return int(floatParam(bot, key, float64(def), warn))
}
