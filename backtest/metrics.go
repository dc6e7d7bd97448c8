package backtest

import (
	"math"

	"krait/risk"
)

// Metrics summarizes a replay. Rates and ROI are percentages; PnL and
// drawdown are in quote currency.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      float64
	ROI           float64
	MaxDrawdown   float64
	ProfitFactor  float64
	SharpeRatio   float64
	AverageWin    float64
	AverageLoss   float64
	LargestWin    float64
	LargestLoss   float64
}

func computeMetrics(trades []risk.Trade, equity []float64, initialBalance float64) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)
	if m.TotalTrades == 0 {
		return m
	}

	var grossProfit, grossLoss float64
	var winSum, lossSum float64
	var lossCount int

	for _, t := range trades {
		m.TotalPnL += t.PnL

		if t.PnL > 0 {
			m.WinningTrades++
			grossProfit += t.PnL
			winSum += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		} else {
			m.LosingTrades++
			if t.PnL < 0 {
				grossLoss += -t.PnL
				lossSum += t.PnL
				lossCount++
				if t.PnL < m.LargestLoss {
					m.LargestLoss = t.PnL
				}
			}
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	if initialBalance > 0 {
		m.ROI = m.TotalPnL / initialBalance * 100
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}
	if m.WinningTrades > 0 {
		m.AverageWin = winSum / float64(m.WinningTrades)
	}
	if lossCount > 0 {
		m.AverageLoss = lossSum / float64(lossCount)
	}

	m.MaxDrawdown = maxDrawdown(equity)
	m.SharpeRatio = sharpeRatio(trades)

	return m
}

// maxDrawdown is the largest peak-to-trough fall on the equity curve.
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0]
	var worst float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio is mean over standard deviation of per-trade percent returns,
// annualized by sqrt(250). Undefined below two trades or at zero variance.
func sharpeRatio(trades []risk.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}

	returns := make([]float64, len(trades))
	var mean float64
	for i, t := range trades {
		returns[i] = t.PnLPercent / 100
		mean += returns[i]
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(250)
}
