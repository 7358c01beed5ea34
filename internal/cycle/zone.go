package cycle

import "github.com/cycletrader/orchestrator/internal/models"

// ZoneFields are the price anchors computed once at cycle creation
// (spec §4.5.1) and then held on models.Cycle for the life of the cycle.
type ZoneFields struct {
	OpenPrice             float64
	LowerBound            float64
	UpperBound            float64
	ThresholdLower        float64
	ThresholdUpper        float64
	InitialThresholdPrice float64
}

// NewZone computes the zone anchors for a cycle opening at openPrice,
// given the symbol's pip size and the bot's zone size (Z) and
// zone-forward-2 distance (Zf). zone_forward itself is not read into
// Params at all — only zone_forward2 extends the threshold band (open
// question 2, resolved in favor of the code's own behavior over its
// call-signature naming).
func NewZone(openPrice, pip float64, p Params) ZoneFields {
	z := ZoneFields{
		OpenPrice:             openPrice,
		LowerBound:            openPrice - p.ZoneSize*pip,
		UpperBound:            openPrice + p.ZoneSize*pip,
		InitialThresholdPrice: openPrice,
	}
	z.ThresholdLower = z.LowerBound - p.ZoneForward2*pip
	z.ThresholdUpper = z.UpperBound + p.ZoneForward2*pip
	return z
}

// ApplyTo writes the zone anchors and initial grid state onto c.
func (z ZoneFields) ApplyTo(c *models.Cycle, dir models.Direction) {
	c.OpenPrice = z.OpenPrice
	c.LowerBound = z.LowerBound
	c.UpperBound = z.UpperBound
	c.ThresholdLower = z.ThresholdLower
	c.ThresholdUpper = z.ThresholdUpper
	c.InitialThresholdPrice = z.InitialThresholdPrice
	c.CurrentDirection = dir
	c.NextOrderIndex = 0
}

// gridTriggerDistance is the price distance from InitialThresholdPrice
// required before the next grid-step order fires (spec §4.5.2 item 2).
//
// pips_step is configured and documented in "pips", but the worked example
// (price 1.10000 -> grid order at 1.10100 with pips_step=100, point=0.00001)
// only reproduces under a point-denominated reading: 100*0.00001 = 0.00100,
// exactly the stated trigger distance, where the pip-denominated reading
// would require a 10x larger move. Zone size and zone_forward2 do the
// opposite — they reproduce only when pip-denominated (threshold_lower =
// open - (zone_size+zone_forward2)*pip). Both conventions are taken
// directly from the worked numbers rather than the prose, which calls both
// quantities "pips" interchangeably with "points".
func gridTriggerDistance(c *models.Cycle, point, pipsStep float64) float64 {
	return pipsStep * point * float64(c.NextOrderIndex+1)
}

// ShouldGridStep reports whether price has moved far enough from
// InitialThresholdPrice, in the direction of CurrentDirection, to place
// the next grid order — and that this exact price hasn't already fired a
// grid order within half a pip (the monotonicity law of spec §8). point is
// the symbol's smallest price increment (SymbolInfo.Point), not its pip size.
func ShouldGridStep(c *models.Cycle, price, point, pipsStep float64) (trigger float64, ok bool) {
	dist := gridTriggerDistance(c, point, pipsStep)
	var moved float64
	if c.CurrentDirection == models.Buy {
		moved = price - c.InitialThresholdPrice
	} else {
		moved = c.InitialThresholdPrice - price
	}
	if moved < dist {
		return 0, false
	}
	if c.DonePriceLevels.Contains(price, 5*point) {
		return 0, false
	}
	return price, true
}

// ShouldReverse reports whether price has pierced the opposite threshold
// from CurrentDirection: threshold_lower for a BUY-directed cycle,
// threshold_upper for a SELL-directed one (spec §4.5.2 item 3). A price
// equal to the threshold pierces it; the 1e-9 tolerance absorbs the float
// error in NewZone's sums (1.1+0.05+0.0001 is 1.1501000000000001).
func ShouldReverse(c *models.Cycle, price float64) bool {
	const eps = 1e-9
	if c.CurrentDirection == models.Buy {
		return price <= c.ThresholdLower+eps
	}
	return price >= c.ThresholdUpper-eps
}
