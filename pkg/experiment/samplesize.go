package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Planner computes the minimum per-variant sample size needed to detect a
// standardized effect with the requested power and confidence. The result is
// clamped to a configured [floor, ceiling] so pathological inputs never plan
// an absurd test.
type Planner struct {
	floor   int
	ceiling int
}

// NewPlanner creates a sample-size planner with the given clamp bounds.
func NewPlanner(floor, ceiling int) *Planner {
	if floor < 1 {
		floor = 1
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Planner{floor: floor, ceiling: ceiling}
}

// RequiredSampleSize returns the per-variant sample size for a two-sample
// comparison, using the normal approximation
//
//	n = 2 * ((z_{1-alpha/2} + z_{power}) / d)^2
//
// where d is the minimum detectable effect in standardized units. The result
// is monotone: more power, more confidence or a smaller effect all demand
// more samples.
func (p *Planner) RequiredSampleSize(power, confidenceLevel, minDetectableEffect float64) int {
	if minDetectableEffect <= 0 {
		return p.ceiling
	}
	if power <= 0 || confidenceLevel <= 0 {
		return p.floor
	}
	if power >= 1 || confidenceLevel >= 1 {
		return p.ceiling
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	zAlpha := normal.Quantile(1 - (1-confidenceLevel)/2)
	zBeta := normal.Quantile(power)

	n := 2 * math.Pow((zAlpha+zBeta)/minDetectableEffect, 2)
	size := int(math.Ceil(n))

	if size < p.floor {
		return p.floor
	}
	if size > p.ceiling {
		return p.ceiling
	}
	return size
}
