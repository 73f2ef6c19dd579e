package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredSampleSizeKnownValue(t *testing.T) {
	planner := NewPlanner(30, 100000)

	// Standard reference case: alpha=0.05 two-sided, power 0.80, d=0.5.
	// 2*((1.95996+0.84162)/0.5)^2 = 62.79 -> 63.
	assert.Equal(t, 63, planner.RequiredSampleSize(0.80, 0.95, 0.5))
}

func TestRequiredSampleSizeMonotonicity(t *testing.T) {
	planner := NewPlanner(1, 10000000)

	base := planner.RequiredSampleSize(0.80, 0.95, 0.5)
	assert.Greater(t, planner.RequiredSampleSize(0.90, 0.95, 0.5), base, "more power needs more samples")
	assert.Greater(t, planner.RequiredSampleSize(0.80, 0.99, 0.5), base, "more confidence needs more samples")
	assert.Greater(t, planner.RequiredSampleSize(0.80, 0.95, 0.2), base, "smaller effect needs more samples")
	assert.Less(t, planner.RequiredSampleSize(0.80, 0.95, 1.0), base, "larger effect needs fewer samples")
}

func TestRequiredSampleSizeClamping(t *testing.T) {
	planner := NewPlanner(30, 1000)

	// Large effect would plan below the floor.
	assert.Equal(t, 30, planner.RequiredSampleSize(0.80, 0.95, 5.0))
	// Tiny effect would plan far above the ceiling.
	assert.Equal(t, 1000, planner.RequiredSampleSize(0.80, 0.95, 0.001))
}

func TestRequiredSampleSizeDegenerateInputs(t *testing.T) {
	planner := NewPlanner(30, 1000)

	assert.Equal(t, 1000, planner.RequiredSampleSize(0.80, 0.95, 0), "non-positive effect hits the ceiling")
	assert.Equal(t, 1000, planner.RequiredSampleSize(0.80, 0.95, -1))
	assert.Equal(t, 30, planner.RequiredSampleSize(0, 0.95, 0.5), "zero power hits the floor")
	assert.Equal(t, 30, planner.RequiredSampleSize(0.80, 0, 0.5), "zero confidence hits the floor")
	assert.Equal(t, 1000, planner.RequiredSampleSize(1.0, 0.95, 0.5), "certain power hits the ceiling")
	assert.Equal(t, 1000, planner.RequiredSampleSize(0.80, 1.0, 0.5), "certain confidence hits the ceiling")
}

func TestNewPlannerNormalizesBounds(t *testing.T) {
	planner := NewPlanner(0, -5)
	assert.Equal(t, 1, planner.RequiredSampleSize(0, 0.95, 0.5), "floor normalizes to 1")
	assert.Equal(t, 1, planner.RequiredSampleSize(0.80, 0.95, 0), "ceiling normalizes up to the floor")
}
