package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Analyzer computes two-sample comparisons between a control and a treatment
// snapshot. It uses Welch's t-test, which does not assume equal variances
// between the two groups.
//
// When one control is compared against several treatments no
// multiple-comparison correction is applied; the false-positive risk grows
// with the number of treatments. Kept as a documented gap until the intended
// behavior is specified.
type Analyzer struct{}

// NewAnalyzer creates a statistical analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Compare runs a two-sided Welch's t-test of treatment against control for
// one metric. The function is total: degenerate inputs (fewer than two
// observations on either side, or zero variance in both) come back flagged
// InsufficientData with Significant=false instead of an error.
func (an *Analyzer) Compare(metric string, controlID, treatmentID string, control, treatment MetricSnapshot, confidenceLevel float64) Comparison {
	cmp := Comparison{
		Metric:          metric,
		ControlID:       controlID,
		TreatmentID:     treatmentID,
		ControlMean:     control.Mean,
		TreatmentMean:   treatment.Mean,
		MeanDifference:  treatment.Mean - control.Mean,
		ConfidenceLevel: confidenceLevel,
	}
	if control.Mean != 0 {
		cmp.ImprovementPercent = cmp.MeanDifference / math.Abs(control.Mean) * 100
	}

	n1 := float64(control.Count)
	n2 := float64(treatment.Count)
	if control.Count < 2 || treatment.Count < 2 {
		cmp.InsufficientData = true
		return cmp
	}

	v1 := control.Variance
	v2 := treatment.Variance

	// Pooled standard deviation (unbiased n-1 estimator) for Cohen's d.
	pooledVar := ((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2)
	cmp.PooledStdDev = math.Sqrt(pooledVar)
	if cmp.PooledStdDev > 0 {
		cmp.EffectSize = cmp.MeanDifference / cmp.PooledStdDev
	}

	// Standard error of the mean difference under unequal variances.
	se2 := v1/n1 + v2/n2
	if se2 == 0 {
		// Both samples are constant; there is no variability to test against.
		cmp.InsufficientData = true
		return cmp
	}
	se := math.Sqrt(se2)
	cmp.TValue = cmp.MeanDifference / se

	// Welch–Satterthwaite degrees of freedom.
	df := se2 * se2 / ((v1*v1)/(n1*n1*(n1-1)) + (v2*v2)/(n2*n2*(n2-1)))
	cmp.DegreesOfFreedom = df

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	cmp.PValue = 2 * dist.CDF(-math.Abs(cmp.TValue))

	tCrit := dist.Quantile(1 - (1-confidenceLevel)/2)
	cmp.CILower = cmp.MeanDifference - tCrit*se
	cmp.CIUpper = cmp.MeanDifference + tCrit*se

	cmp.Significant = cmp.PValue < 1-confidenceLevel
	return cmp
}
