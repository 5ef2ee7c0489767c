// Package signal implements C3 (the pure microstructure signal
// functions) and C4 (the weighted aggregator and tercile classifier).
// Signals operate on float64 scalars derived from decimal snapshots —
// the float boundary spec §9 carves out for statistics, never for
// money — so every exported function here converts its decimal inputs
// once at the edge and stays in float64 internally.
package signal

import (
	"math"
	"sort"

	"github.com/autovant/perp-core/internal/types"
)

// OBI is the order book imbalance over the top K levels of md, defined
// only when the combined depth is positive; otherwise 0.
func OBI(md types.MarketData, k int) float64 {
	bidVol := sumSize(md.Bids, k)
	askVol := sumSize(md.Asks, k)
	denom := bidVol + askVol
	if denom <= 0 {
		return 0
	}
	return (bidVol - askVol) / denom
}

func sumSize(levels []types.Level, k int) float64 {
	if k > len(levels) {
		k = len(levels)
	}
	total := 0.0
	for _, l := range levels[:k] {
		f, _ := l.Size.Decimal.Float64()
		total += f
	}
	return total
}

// MicropriceDeviation is the depth-weighted mid's deviation from the
// arithmetic mid, clamped to [-1, 1].
func MicropriceDeviation(md types.MarketData) float64 {
	mid := md.Mid()
	if !mid.Decimal.IsPositive() {
		return 0
	}
	micro := md.Microprice()
	midF, _ := mid.Decimal.Float64()
	microF, _ := micro.Decimal.Float64()
	return clamp((microF-midF)/midF, -1, 1)
}

// Impact is the net taker pressure across md.RecentTrades: (buy volume -
// sell volume) / (buy volume + sell volume), 0 if there are no trades or
// the denominator is 0.
func Impact(md types.MarketData) float64 {
	var buyVol, sellVol float64
	for _, t := range md.RecentTrades {
		sz, _ := t.Size.Decimal.Float64()
		if t.Side == types.SideBuy {
			buyVol += sz
		} else {
			sellVol += sz
		}
	}
	denom := buyVol + sellVol
	if denom <= 0 {
		return 0
	}
	return (buyVol - sellVol) / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Weights is the aggregator's per-signal blend, must sum to 1 (enforced
// by internal/config.Validate, not here — the aggregator trusts its
// caller the way the teacher's handlers trust validated config).
type Weights struct {
	OBI        float64
	Microprice float64
	Impact     float64
	OBIDepthK  int
}

// Aggregator computes the weighted blend of C3's three signals into a
// single scalar, preserving the per-signal components for attribution.
type Aggregator struct {
	weights Weights
}

func NewAggregator(w Weights) *Aggregator {
	if w.OBIDepthK <= 0 {
		w.OBIDepthK = 5
	}
	return &Aggregator{weights: w}
}

// Score evaluates all three signals against md and returns the clamped
// weighted sum along with the individual components, in [OBI,
// Microprice, Impact] order.
func (a *Aggregator) Score(md types.MarketData) types.SignalScore {
	obi := OBI(md, a.weights.OBIDepthK)
	micro := MicropriceDeviation(md)
	impact := Impact(md)

	value := a.weights.OBI*obi + a.weights.Microprice*micro + a.weights.Impact*impact
	value = clamp(value, -1, 1)

	return types.SignalScore{
		Value:      value,
		Components: []float64{obi, micro, impact},
		TS:         md.TS,
	}
}

// Classifier maps an aggregated signal value to a Confidence band via
// two thresholds, θ1 > θ2 > 0, per §4.4.
type Classifier struct {
	theta1 float64
	theta2 float64
}

func NewClassifier(theta1, theta2 float64) *Classifier {
	return &Classifier{theta1: theta1, theta2: theta2}
}

// Classify maps |value| against the classifier's thresholds.
func (c *Classifier) Classify(value float64) types.Confidence {
	abs := math.Abs(value)
	switch {
	case abs > c.theta1:
		return types.ConfidenceHigh
	case abs > c.theta2:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// Thresholds returns the classifier's current (theta1, theta2).
func (c *Classifier) Thresholds() (float64, float64) { return c.theta1, c.theta2 }

// Calibrate recomputes theta1/theta2 from at least 100 historical
// |value| samples as the 90th/70th percentiles, per §4.4. It is a
// no-op, returning an error, if fewer than 100 samples are given — the
// caller is expected to schedule recalibration, never invoke it
// mid-order (the classifier itself has no notion of "in-flight order",
// that invariant is enforced by the caller not calling Calibrate while
// an order referencing this classifier's confidence is open).
func (c *Classifier) Calibrate(absSamples []float64) error {
	if len(absSamples) < 100 {
		return errNotEnoughSamples
	}
	sorted := append([]float64(nil), absSamples...)
	sort.Float64s(sorted)
	c.theta1 = percentile(sorted, 0.90)
	c.theta2 = percentile(sorted, 0.70)
	return nil
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

type calibrationError string

func (e calibrationError) Error() string { return string(e) }

const errNotEnoughSamples = calibrationError("signal: need at least 100 samples to calibrate")
