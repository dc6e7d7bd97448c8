package portfolio

import (
	"math"

	"krait/market"
)

// correlationWindow is the number of daily closes the correlation runs over.
const correlationWindow = 30

// Correlation returns the Pearson correlation of daily returns between two
// candle series over the last 30 days. It returns 0 when either series is
// too short or the correlation is undefined (zero variance).
func Correlation(a, b []market.Candle) float64 {
	if len(a) < correlationWindow || len(b) < correlationWindow {
		return 0
	}

	ra := returns(market.Closes(market.LastN(a, correlationWindow)))
	rb := returns(market.Closes(market.LastN(b, correlationWindow)))
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	r := pearson(ra, rb)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func returns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	x, y = x[:n], y[:n]

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	return cov / math.Sqrt(varX*varY)
}
