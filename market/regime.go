package market

// Market regime classifications produced by the regime detector and consumed
// by the strategy engine and exit logic.
const (
	RegimeTrendingBull = "TRENDING_BULLISH"
	RegimeTrendingBear = "TRENDING_BEARISH"
	RegimeRanging      = "RANGING"
	RegimeVolatile     = "VOLATILE"
	RegimeUncertain    = "UNCERTAIN"
)
