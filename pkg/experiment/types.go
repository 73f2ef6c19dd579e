package experiment

import (
	"encoding/json"
	"time"
)

// TestStatus represents a test's position in the lifecycle state machine.
type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusPaused    TestStatus = "paused"
	StatusCompleted TestStatus = "completed"
	StatusCancelled TestStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s TestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// MetricSuccessRate is the implicit metric derived from success counts. It is
// always analyzed alongside the tracked metrics.
const MetricSuccessRate = "success_rate"

// TestConfig holds the statistical configuration of a single test.
type TestConfig struct {
	// Names of the numeric metrics tracked per outcome
	Metrics []string `json:"metrics"`

	// Minimum per-variant sample size before a conclusion is allowed
	MinSampleSize int `json:"min_sample_size"`

	// Confidence level for significance testing (e.g. 0.95)
	ConfidenceLevel float64 `json:"confidence_level"`

	// Statistical power target used for sample-size planning
	Power float64 `json:"power"`

	// Minimum detectable effect in standardized units
	MinDetectableEffect float64 `json:"min_detectable_effect"`

	// Maximum test duration; past it any call concludes the test
	MaxDuration time.Duration `json:"max_duration"`

	// Conclude automatically when an analysis recommends stopping
	AutoConclude bool `json:"auto_conclude"`
}

// Test is the root record of one experiment.
type Test struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hypothesis string     `json:"hypothesis"`
	Config     TestConfig `json:"config"`
	Status     TestStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// Set only by a conclude transition
	WinningVariant string   `json:"winning_variant,omitempty"`
	Summary        *Summary `json:"summary,omitempty"`
}

// Clone returns a deep-enough copy for copy-mutate-commit transitions.
func (t *Test) Clone() *Test {
	cp := *t
	cp.Config.Metrics = append([]string(nil), t.Config.Metrics...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.EndedAt != nil {
		ended := *t.EndedAt
		cp.EndedAt = &ended
	}
	return &cp
}

// Variant is one configuration option under comparison. The payload is opaque
// to the core; it is stored and forwarded without interpretation.
type Variant struct {
	ID             string          `json:"id"`
	TestID         string          `json:"test_id"`
	Name           string          `json:"name"`
	TrafficPercent float64         `json:"traffic_percent"`
	Control        bool            `json:"control"`
	Position       int             `json:"position"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Outcome carries the caller-observed measurements for one unit of work.
type Outcome struct {
	Success bool               `json:"success"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Result is an immutable, append-only record of one recorded outcome.
type Result struct {
	TestID     string    `json:"test_id"`
	VariantID  string    `json:"variant_id"`
	RequestID  string    `json:"request_id"`
	Outcome    Outcome   `json:"outcome"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordStatus is the outcome of a Record call.
type RecordStatus string

const (
	RecordAccepted  RecordStatus = "accepted"
	RecordDuplicate RecordStatus = "duplicate"
)

// MetricSnapshot is a point-in-time view of one metric's running aggregates.
type MetricSnapshot struct {
	Count    int64   `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// VariantSnapshot is a point-in-time view of one variant's aggregates.
type VariantSnapshot struct {
	VariantID    string                    `json:"variant_id"`
	Count        int64                     `json:"count"`
	SuccessCount int64                     `json:"success_count"`
	SuccessRate  float64                   `json:"success_rate"`
	Metrics      map[string]MetricSnapshot `json:"metrics"`
}

// Comparison is the result of one control-vs-treatment test on one metric.
type Comparison struct {
	Metric      string `json:"metric"`
	ControlID   string `json:"control_id"`
	TreatmentID string `json:"treatment_id"`

	ControlMean        float64 `json:"control_mean"`
	TreatmentMean      float64 `json:"treatment_mean"`
	MeanDifference     float64 `json:"mean_difference"`
	ImprovementPercent float64 `json:"improvement_percent"`

	PooledStdDev     float64 `json:"pooled_std_dev"`
	EffectSize       float64 `json:"effect_size"`
	TValue           float64 `json:"t_value"`
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`

	ConfidenceLevel float64 `json:"confidence_level"`
	CILower         float64 `json:"ci_lower"`
	CIUpper         float64 `json:"ci_upper"`

	Significant      bool `json:"significant"`
	InsufficientData bool `json:"insufficient_data"`
}

// Action is what a recommendation tells the lifecycle controller to do.
type Action string

const (
	ActionContinue     Action = "continue"
	ActionStopWinner   Action = "stop_winner"
	ActionStopNoEffect Action = "stop_no_effect"
)

// Terminal reports whether the action concludes the test.
func (a Action) Terminal() bool {
	return a == ActionStopWinner || a == ActionStopNoEffect
}

// Recommendation is the policy's verdict over one analysis.
type Recommendation struct {
	Action         Action  `json:"action"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
	WinningVariant string  `json:"winning_variant,omitempty"`
}

// Analysis is an immutable snapshot of one statistical evaluation, retained
// as an audit trail.
type Analysis struct {
	ID             string                  `json:"id"`
	TestID         string                  `json:"test_id"`
	CreatedAt      time.Time               `json:"created_at"`
	SampleSizes    map[string]int64        `json:"sample_sizes"`
	Comparisons    map[string][]Comparison `json:"comparisons"`
	Recommendation Recommendation          `json:"recommendation"`
}

// Summary is the frozen result record stored on a concluded test.
type Summary struct {
	Variants       []VariantSnapshot `json:"variants"`
	WinningVariant string            `json:"winning_variant,omitempty"`
	Recommendation Recommendation    `json:"recommendation"`
	Duration       time.Duration     `json:"duration"`
}

// TestSpec is the caller-facing description of a test to create.
type TestSpec struct {
	Name       string        `json:"name"`
	Hypothesis string        `json:"hypothesis"`
	Metrics    []string      `json:"metrics"`
	Variants   []VariantSpec `json:"variants"`

	// Optional overrides; zero values fall back to configured defaults
	MinSampleSize       int           `json:"min_sample_size,omitempty"`
	ConfidenceLevel     float64       `json:"confidence_level,omitempty"`
	Power               float64       `json:"power,omitempty"`
	MinDetectableEffect float64       `json:"min_detectable_effect,omitempty"`
	MaxDuration         time.Duration `json:"max_duration,omitempty"`
}

// VariantSpec is the caller-facing description of one variant.
type VariantSpec struct {
	Name           string          `json:"name"`
	TrafficPercent float64         `json:"traffic_percent"`
	Control        bool            `json:"control"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}
