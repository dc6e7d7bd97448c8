package indicators

import (
	"math"

	"krait/market"
)

// Momentum colors reported by the squeeze indicator. Green means positive and
// rising momentum, maroon negative and falling; blue and gray are the fading
// counterparts.
const (
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorMaroon = "maroon"
	ColorGray   = "gray"
)

// Squeeze is the result of the squeeze momentum indicator.
type Squeeze struct {
	Value    float64
	Squeezed bool
	Color    string
}

const squeezePeriod = 20

// SqueezeMomentum calculates the squeeze momentum indicator (LazyBear style).
// The squeeze is on when the 20-period Bollinger Bands (2 std dev) sit inside
// the 20-period Keltner Channels (1.5 × SMA of true range). Momentum is the
// last close minus the midpoint of the 20-period high/low range.
func SqueezeMomentum(candles []market.Candle) Squeeze {
	if len(candles) < squeezePeriod {
		return Squeeze{Color: ColorGray}
	}

	window := candles[len(candles)-squeezePeriod:]

	// Bollinger Bands over closes
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	basis := sum / squeezePeriod

	var variance float64
	for _, c := range window {
		d := c.Close - basis
		variance += d * d
	}
	// Sample standard deviation, matching a rolling std with ddof=1.
	std := math.Sqrt(variance / (squeezePeriod - 1))

	bbUpper := basis + 2*std
	bbLower := basis - 2*std

	// Keltner Channels use a simple average of true ranges
	var trSum float64
	start := len(candles) - squeezePeriod
	for i := start; i < len(candles); i++ {
		if i == 0 {
			trSum += candles[i].High - candles[i].Low
			continue
		}
		trSum += trueRange(candles[i], candles[i-1])
	}
	kcATR := trSum / squeezePeriod

	kcUpper := basis + 1.5*kcATR
	kcLower := basis - 1.5*kcATR

	squeezed := bbUpper < kcUpper && bbLower > kcLower

	// Momentum relative to the midpoint of the recent high/low range
	highest := window[0].High
	lowest := window[0].Low
	for _, c := range window[1:] {
		highest = math.Max(highest, c.High)
		lowest = math.Min(lowest, c.Low)
	}
	mid := (highest + lowest) / 2

	momentum := candles[len(candles)-1].Close - mid

	color := ColorGray
	if len(candles) > 1 {
		prev := candles[len(candles)-2].Close - mid
		switch {
		case momentum > 0 && momentum > prev:
			color = ColorGreen
		case momentum > 0:
			color = ColorBlue
		case momentum < prev:
			color = ColorMaroon
		}
	} else if momentum > 0 {
		color = ColorGreen
	} else {
		color = ColorMaroon
	}

	return Squeeze{Value: momentum, Squeezed: squeezed, Color: color}
}
