package experiment

import (
	"sync"

	"github.com/XiaoConstantine/abtest-go/pkg/errors"
)

// Accumulator maintains O(1)-updatable running aggregates per
// (test, variant, metric). Each (test, variant) cell carries its own mutex so
// recording against one variant never contends with another.
type Accumulator struct {
	mu    sync.RWMutex
	cells map[cellKey]*aggregateCell
}

type cellKey struct {
	testID    string
	variantID string
}

type aggregateCell struct {
	mu           sync.Mutex
	count        int64
	successCount int64
	metrics      map[string]*runningMoments
	seen         map[string]struct{} // idempotency keys already recorded
}

// runningMoments keeps the sums needed to derive mean and variance without
// replaying raw results.
type runningMoments struct {
	count      int64
	sum        float64
	sumSquares float64
}

func (m *runningMoments) add(v float64) {
	m.count++
	m.sum += v
	m.sumSquares += v * v
}

func (m *runningMoments) snapshot() MetricSnapshot {
	snap := MetricSnapshot{Count: m.count}
	if m.count == 0 {
		return snap
	}
	snap.Mean = m.sum / float64(m.count)
	if m.count > 1 {
		// Unbiased (n-1) estimator derived from the running sums.
		variance := (m.sumSquares - float64(m.count)*snap.Mean*snap.Mean) / float64(m.count-1)
		if variance > 0 {
			snap.Variance = variance
		}
	}
	return snap
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{cells: make(map[cellKey]*aggregateCell)}
}

// Register creates aggregate cells for a test's variants. Recording against
// an unregistered cell is a validation error.
func (a *Accumulator) Register(testID string, variantIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, variantID := range variantIDs {
		key := cellKey{testID: testID, variantID: variantID}
		if _, exists := a.cells[key]; !exists {
			a.cells[key] = &aggregateCell{
				metrics: make(map[string]*runningMoments),
				seen:    make(map[string]struct{}),
			}
		}
	}
}

// Drop releases a test's cells, typically after conclusion.
func (a *Accumulator) Drop(testID string, variantIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, variantID := range variantIDs {
		delete(a.cells, cellKey{testID: testID, variantID: variantID})
	}
}

func (a *Accumulator) cell(testID, variantID string) (*aggregateCell, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cell, ok := a.cells[cellKey{testID: testID, variantID: variantID}]
	return cell, ok
}

// Record folds one outcome into the variant's aggregates. A request ID that
// was already seen for this (test, variant) yields RecordDuplicate and leaves
// every aggregate untouched.
func (a *Accumulator) Record(testID, variantID, requestID string, outcome Outcome) (RecordStatus, error) {
	cell, ok := a.cell(testID, variantID)
	if !ok {
		return "", errors.WithFields(
			errors.New(errors.ValidationFailed, "unknown variant for test"),
			errors.Fields{"test_id": testID, "variant_id": variantID})
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	if _, dup := cell.seen[requestID]; dup {
		return RecordDuplicate, nil
	}
	cell.seen[requestID] = struct{}{}

	cell.count++
	if outcome.Success {
		cell.successCount++
	}
	for name, value := range outcome.Metrics {
		moments, exists := cell.metrics[name]
		if !exists {
			moments = &runningMoments{}
			cell.metrics[name] = moments
		}
		moments.add(value)
	}

	return RecordAccepted, nil
}

// Snapshot derives a point-in-time view of one variant's aggregates from the
// running sums. The success rate is exposed as an ordinary metric snapshot
// (0/1 observations), so it flows through the same comparison path as any
// tracked metric.
func (a *Accumulator) Snapshot(testID, variantID string) (VariantSnapshot, error) {
	cell, ok := a.cell(testID, variantID)
	if !ok {
		return VariantSnapshot{}, errors.WithFields(
			errors.New(errors.ValidationFailed, "unknown variant for test"),
			errors.Fields{"test_id": testID, "variant_id": variantID})
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	snap := VariantSnapshot{
		VariantID:    variantID,
		Count:        cell.count,
		SuccessCount: cell.successCount,
		Metrics:      make(map[string]MetricSnapshot, len(cell.metrics)+1),
	}
	if cell.count > 0 {
		snap.SuccessRate = float64(cell.successCount) / float64(cell.count)
	}

	for name, moments := range cell.metrics {
		snap.Metrics[name] = moments.snapshot()
	}

	// Successes are 0/1 observations: sum and sum-of-squares both equal the
	// success count, so the shared snapshot math applies unchanged.
	successMoments := runningMoments{
		count:      cell.count,
		sum:        float64(cell.successCount),
		sumSquares: float64(cell.successCount),
	}
	snap.Metrics[MetricSuccessRate] = successMoments.snapshot()

	return snap, nil
}
