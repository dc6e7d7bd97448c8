package indicators

import (
	"math"

	"krait/market"
)

// ADX calculates Wilder's Average Directional Index (trend strength, 0-100).
// Directional movement, true range, and DX are each smoothed with
// alpha = 1/period, seeded from the first sample. Returns 0 when fewer than
// 2×period candles are available.
func ADX(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < 2*period {
		return 0
	}

	alpha := 1.0 / float64(period)

	var pdmS, mdmS, trS, adx float64
	seeded := false
	adxSeeded := false

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		var pdm, mdm float64
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}

		tr := trueRange(candles[i], candles[i-1])

		if !seeded {
			pdmS, mdmS, trS = pdm, mdm, tr
			seeded = true
		} else {
			pdmS += alpha * (pdm - pdmS)
			mdmS += alpha * (mdm - mdmS)
			trS += alpha * (tr - trS)
		}

		if trS == 0 {
			continue
		}

		pdi := 100 * pdmS / trS
		mdi := 100 * mdmS / trS
		den := pdi + mdi
		if den == 0 {
			continue
		}
		dx := 100 * math.Abs(pdi-mdi) / den

		if !adxSeeded {
			adx = dx
			adxSeeded = true
		} else {
			adx += alpha * (dx - adx)
		}
	}

	return adx
}
