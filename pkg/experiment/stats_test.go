package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func momentsFromSamples(t *testing.T, samples []float64) MetricSnapshot {
	t.Helper()
	return MetricSnapshot{
		Count:    int64(len(samples)),
		Mean:     stat.Mean(samples, nil),
		Variance: stat.Variance(samples, nil),
	}
}

func TestCompareIdenticalSamples(t *testing.T) {
	analyzer := NewAnalyzer()
	samples := []float64{10, 12, 9, 11, 13, 10, 12, 11}
	snap := momentsFromSamples(t, samples)

	cmp := analyzer.Compare("latency_ms", "control", "treatment", snap, snap, 0.95)

	assert.False(t, cmp.Significant)
	assert.False(t, cmp.InsufficientData)
	assert.InDelta(t, 0, cmp.MeanDifference, 1e-9)
	assert.InDelta(t, 0, cmp.TValue, 1e-9)
	assert.InDelta(t, 1.0, cmp.PValue, 1e-9)
	assert.InDelta(t, 0, cmp.EffectSize, 1e-9)
}

func TestCompareWellSeparatedSamples(t *testing.T) {
	analyzer := NewAnalyzer()
	control := momentsFromSamples(t, []float64{10, 11, 9, 10, 11, 9, 10, 10, 11, 9})
	treatment := momentsFromSamples(t, []float64{20, 21, 19, 20, 21, 19, 20, 20, 21, 19})

	cmp := analyzer.Compare("latency_ms", "control", "treatment", control, treatment, 0.95)

	assert.True(t, cmp.Significant)
	assert.False(t, cmp.InsufficientData)
	assert.Less(t, cmp.PValue, 0.001)
	assert.InDelta(t, 10, cmp.MeanDifference, 1e-9)
	assert.InDelta(t, 100, cmp.ImprovementPercent, 1e-9)
	assert.Greater(t, cmp.TValue, 10.0)
	// The interval must cover the observed difference and exclude zero.
	assert.Greater(t, cmp.CILower, 0.0)
	assert.Less(t, cmp.CILower, cmp.MeanDifference)
	assert.Greater(t, cmp.CIUpper, cmp.MeanDifference)
}

func TestCompareInsufficientData(t *testing.T) {
	analyzer := NewAnalyzer()
	enough := momentsFromSamples(t, []float64{10, 11, 12, 13})

	cases := []struct {
		name      string
		control   MetricSnapshot
		treatment MetricSnapshot
	}{
		{"empty control", MetricSnapshot{}, enough},
		{"single observation", MetricSnapshot{Count: 1, Mean: 10}, enough},
		{"empty treatment", enough, MetricSnapshot{}},
		{
			"both constant",
			MetricSnapshot{Count: 5, Mean: 10, Variance: 0},
			MetricSnapshot{Count: 5, Mean: 12, Variance: 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmp := analyzer.Compare("latency_ms", "control", "treatment", tc.control, tc.treatment, 0.95)
			assert.True(t, cmp.InsufficientData)
			assert.False(t, cmp.Significant)
		})
	}
}

func TestCompareKnownWelchValues(t *testing.T) {
	analyzer := NewAnalyzer()

	// Hand-checked case: unequal sizes and variances.
	control := MetricSnapshot{Count: 50, Mean: 0.5, Variance: 0.2551020408163265}
	treatment := MetricSnapshot{Count: 50, Mean: 0.9, Variance: 0.09183673469387756}

	cmp := analyzer.Compare(MetricSuccessRate, "control", "treatment", control, treatment, 0.95)

	require.False(t, cmp.InsufficientData)
	assert.InDelta(t, 4.8038, cmp.TValue, 0.01)
	assert.Less(t, cmp.PValue, 0.0001)
	assert.True(t, cmp.Significant)
	assert.InDelta(t, 80, cmp.ImprovementPercent, 1e-9)
}

func TestCompareNegativeDifference(t *testing.T) {
	analyzer := NewAnalyzer()
	control := momentsFromSamples(t, []float64{20, 21, 19, 20, 21, 19, 20, 20})
	treatment := momentsFromSamples(t, []float64{10, 11, 9, 10, 11, 9, 10, 10})

	cmp := analyzer.Compare("latency_ms", "control", "treatment", control, treatment, 0.95)

	assert.True(t, cmp.Significant)
	assert.Negative(t, cmp.MeanDifference)
	assert.Negative(t, cmp.TValue)
	assert.Negative(t, cmp.ImprovementPercent)
	assert.Less(t, cmp.CIUpper, 0.0)
}

func TestCompareConfidenceLevelWidensInterval(t *testing.T) {
	analyzer := NewAnalyzer()
	control := momentsFromSamples(t, []float64{10, 12, 9, 11, 13, 10, 12, 11})
	treatment := momentsFromSamples(t, []float64{11, 13, 10, 12, 14, 11, 13, 12})

	narrow := analyzer.Compare("latency_ms", "control", "treatment", control, treatment, 0.90)
	wide := analyzer.Compare("latency_ms", "control", "treatment", control, treatment, 0.99)

	assert.Less(t, narrow.CIUpper-narrow.CILower, wide.CIUpper-wide.CILower)
}
