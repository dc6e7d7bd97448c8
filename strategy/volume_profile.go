package strategy

import (
	"errors"
	"math"
	"sort"
	"time"

	"krait/config"
	"krait/logging"
	"krait/market"
)

// Profile is a volume-at-price histogram with its derived key levels.
// POC is the price bin with the most volume; VAL and VAH bound the value
// area, the price band holding the configured share of total volume.
type Profile struct {
	Levels      []float64
	Volumes     []float64
	POC         float64
	VAH         float64
	VAL         float64
	TotalVolume float64
	At          time.Time
}

// VolumeProfiler bins traded volume by price over a lookback window. The
// resulting levels mark where the market has accepted price, which the
// engine uses to scale position size down in thin areas.
type VolumeProfiler struct {
	cfg config.VolumeConfig
	log *logging.Logger

	current    *Profile
	lastUpdate time.Time
}

// NewVolumeProfiler creates a profiler with no profile yet.
func NewVolumeProfiler(cfg config.VolumeConfig, log *logging.Logger) *VolumeProfiler {
	return &VolumeProfiler{cfg: cfg, log: log}
}

// Current returns the most recent profile, or nil before the first
// calculation.
func (v *VolumeProfiler) Current() *Profile { return v.current }

// ShouldUpdate reports whether the update interval has elapsed.
func (v *VolumeProfiler) ShouldUpdate(now time.Time) bool {
	if v.lastUpdate.IsZero() {
		return true
	}
	return now.Sub(v.lastUpdate) >= time.Duration(v.cfg.UpdateIntervalSec)*time.Second
}

// Calculate builds a fresh profile from the candles and stores it as current.
func (v *VolumeProfiler) Calculate(candles []market.Candle, now time.Time) (*Profile, error) {
	if len(candles) == 0 {
		return nil, errors.New("no candles for volume profile")
	}

	minPrice := candles[0].Low
	maxPrice := candles[0].High
	for _, c := range candles[1:] {
		minPrice = math.Min(minPrice, c.Low)
		maxPrice = math.Max(maxPrice, c.High)
	}

	priceRange := maxPrice - minPrice
	numBins := 1
	if priceRange > 0 && minPrice > 0 {
		if n := int(priceRange / (minPrice * v.cfg.BinSize)); n > 1 {
			numBins = n
		}
	}
	binWidth := priceRange / float64(numBins)

	profile := &Profile{
		Levels:  make([]float64, numBins),
		Volumes: make([]float64, numBins),
		At:      now,
	}
	for i := 0; i < numBins; i++ {
		profile.Levels[i] = minPrice + (float64(i)+0.5)*binWidth
	}

	for _, c := range candles {
		candleRange := c.High - c.Low
		if candleRange == 0 || binWidth == 0 {
			// Zero-range candle: all volume lands in the bin holding its
			// price.
			profile.Volumes[binIndex(c.Close, minPrice, binWidth, numBins)] += c.Volume
			continue
		}

		for i, level := range profile.Levels {
			binLow := level - binWidth/2
			binHigh := level + binWidth/2
			if c.High < binLow || c.Low > binHigh {
				continue
			}
			overlap := math.Min(c.High, binHigh) - math.Max(c.Low, binLow)
			profile.Volumes[i] += c.Volume * overlap / candleRange
		}
	}

	for _, vol := range profile.Volumes {
		profile.TotalVolume += vol
	}

	profile.POC = profile.Levels[maxIndex(profile.Volumes)]
	profile.VAL, profile.VAH = v.valueArea(profile)

	v.current = profile
	v.lastUpdate = now

	v.log.Infof("volume profile: candles=%d bins=%d total_volume=%.2f poc=%.2f vah=%.2f val=%.2f",
		len(candles), numBins, profile.TotalVolume, profile.POC, profile.VAH, profile.VAL)

	return profile, nil
}

func binIndex(price, minPrice, binWidth float64, numBins int) int {
	if binWidth == 0 {
		return 0
	}
	i := int((price - minPrice) / binWidth)
	if i < 0 {
		return 0
	}
	if i >= numBins {
		return numBins - 1
	}
	return i
}

func maxIndex(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// valueArea expands outward from the POC bin, always taking the neighboring
// bin with more volume, until the target share of total volume is covered.
func (v *VolumeProfiler) valueArea(p *Profile) (val, vah float64) {
	if p.TotalVolume == 0 {
		return 0, 0
	}

	poc := maxIndex(p.Volumes)
	target := p.TotalVolume * v.cfg.ValueAreaPct

	lower, upper := poc, poc
	covered := p.Volumes[poc]

	for covered < target {
		canLower := lower > 0
		canUpper := upper < len(p.Volumes)-1
		if !canLower && !canUpper {
			break
		}

		var lowerVol, upperVol float64
		if canLower {
			lowerVol = p.Volumes[lower-1]
		}
		if canUpper {
			upperVol = p.Volumes[upper+1]
		}

		if canLower && (!canUpper || lowerVol >= upperVol) {
			lower--
			covered += p.Volumes[lower]
		} else {
			upper++
			covered += p.Volumes[upper]
		}
	}

	return p.Levels[lower], p.Levels[upper]
}

// NearKeyLevel reports whether the price sits within the threshold of the
// POC or either value area bound.
func (p *Profile) NearKeyLevel(price, threshold float64) bool {
	for _, level := range []float64{p.POC, p.VAH, p.VAL} {
		if level == 0 {
			continue
		}
		if math.Abs(price-level)/level <= threshold {
			return true
		}
	}
	return false
}

// VolumeAt returns the volume of the bin nearest to the price.
func (p *Profile) VolumeAt(price float64) float64 {
	if len(p.Levels) == 0 {
		return 0
	}

	nearest := 0
	for i, level := range p.Levels {
		if math.Abs(price-level) < math.Abs(price-p.Levels[nearest]) {
			nearest = i
		}
	}
	return p.Volumes[nearest]
}

// SizeAdjustment returns the position size multiplier for the price: full
// size near key levels, reduced size where the profile is thinner than its
// median bin.
func (v *VolumeProfiler) SizeAdjustment(price float64) float64 {
	if v.current == nil || price == 0 {
		return 1.0
	}

	if v.current.NearKeyLevel(price, v.cfg.KeyLevelThreshold) {
		return 1.0
	}

	if v.current.TotalVolume > 0 && len(v.current.Volumes) > 0 {
		sorted := append([]float64(nil), v.current.Volumes...)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		median := sorted[len(sorted)/2]

		if v.current.VolumeAt(price) < median {
			return v.cfg.LowVolumeFactor
		}
	}

	return 1.0
}
