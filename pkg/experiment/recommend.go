package experiment

import (
	"fmt"
	"time"
)

// Policy turns analysis output and test metadata into an action. The rules
// run in a fixed order; the first one that fires wins.
type Policy struct {
	// Minimum relative improvement (percent) for a winner to be declared
	minImprovementPercent float64

	// Fraction of max duration after which an inconclusive test is stopped
	maxDurationFraction float64
}

// PolicyOption defines functional options for Policy configuration.
type PolicyOption func(*Policy)

// WithMinImprovementPercent sets the smallest relative improvement that
// counts as a meaningful win.
func WithMinImprovementPercent(percent float64) PolicyOption {
	return func(p *Policy) {
		p.minImprovementPercent = percent
	}
}

// WithMaxDurationFraction sets the fraction of the maximum duration after
// which an inconclusive test is stopped.
func WithMaxDurationFraction(fraction float64) PolicyOption {
	return func(p *Policy) {
		p.maxDurationFraction = fraction
	}
}

// NewPolicy creates a recommendation policy.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		minImprovementPercent: 5.0,
		maxDurationFraction:   0.9,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Recommend evaluates the policy rules in order:
//  1. any variant short of the minimum sample size -> continue
//  2. no significant comparison on any metric -> stop, no effect
//  3. a significant comparison improving beyond the minimum -> stop, winner
//  4. most of the maximum duration elapsed -> stop, no effect
//  5. otherwise -> continue
func (p *Policy) Recommend(test *Test, sampleSizes map[string]int64, comparisons map[string][]Comparison, now time.Time) Recommendation {
	required := test.Config.MinSampleSize

	// Rule 1: sample-size shortfall.
	minCount := int64(-1)
	for _, count := range sampleSizes {
		if minCount < 0 || count < minCount {
			minCount = count
		}
	}
	if minCount < 0 {
		minCount = 0
	}
	if minCount < int64(required) {
		confidence := 0.0
		if required > 0 {
			confidence = float64(minCount) / float64(required)
		}
		return Recommendation{
			Action:     ActionContinue,
			Confidence: confidence,
			Rationale:  fmt.Sprintf("smallest variant sample size %d is below the required %d", minCount, required),
		}
	}

	// Rule 2/3: look for the significant comparison with the largest positive
	// improvement.
	var best *Comparison
	anySignificant := false
	for _, metricComparisons := range comparisons {
		for i := range metricComparisons {
			cmp := &metricComparisons[i]
			if !cmp.Significant {
				continue
			}
			anySignificant = true
			if cmp.ImprovementPercent <= 0 {
				continue
			}
			if best == nil || cmp.ImprovementPercent > best.ImprovementPercent {
				best = cmp
			}
		}
	}

	if !anySignificant {
		return Recommendation{
			Action:     ActionStopNoEffect,
			Confidence: test.Config.ConfidenceLevel,
			Rationale:  "no metric shows a significant difference between control and any treatment",
		}
	}

	if best != nil && best.ImprovementPercent >= p.minImprovementPercent {
		return Recommendation{
			Action:         ActionStopWinner,
			Confidence:     1 - best.PValue,
			Rationale:      fmt.Sprintf("variant %s improves %s by %.1f%% (p=%.4f)", best.TreatmentID, best.Metric, best.ImprovementPercent, best.PValue),
			WinningVariant: best.TreatmentID,
		}
	}

	// Rule 4: running out of time without a meaningful winner.
	if test.StartedAt != nil && test.Config.MaxDuration > 0 {
		elapsed := now.Sub(*test.StartedAt)
		if float64(elapsed) > p.maxDurationFraction*float64(test.Config.MaxDuration) {
			return Recommendation{
				Action:     ActionStopNoEffect,
				Confidence: test.Config.ConfidenceLevel,
				Rationale:  "significant differences stay below the minimum meaningful improvement and the test is near its maximum duration",
			}
		}
	}

	return Recommendation{
		Action:     ActionContinue,
		Confidence: 0.5,
		Rationale:  "significant differences observed but none exceed the minimum meaningful improvement yet",
	}
}
