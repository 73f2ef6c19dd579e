package storage

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/abtest-go/pkg/errors"
	"github.com/XiaoConstantine/abtest-go/pkg/experiment"
)

// MemoryRepository is an in-memory experiment.Repository for tests and
// embedding. Appends are idempotent on (test, variant, request ID), matching
// the durable implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	tests    map[string]*experiment.Test
	variants map[string][]*experiment.Variant
	results  map[string][]*experiment.Result
	seen     map[resultKey]struct{}
	analyses map[string][]*experiment.Analysis
}

type resultKey struct {
	testID    string
	variantID string
	requestID string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tests:    make(map[string]*experiment.Test),
		variants: make(map[string][]*experiment.Variant),
		results:  make(map[string][]*experiment.Result),
		seen:     make(map[resultKey]struct{}),
		analyses: make(map[string][]*experiment.Analysis),
	}
}

func (r *MemoryRepository) SaveTest(ctx context.Context, test *experiment.Test) error {
	if err := errors.CheckContext(ctx, "save test"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests[test.ID] = test.Clone()
	return nil
}

func (r *MemoryRepository) LoadTest(ctx context.Context, id string) (*experiment.Test, error) {
	if err := errors.CheckContext(ctx, "load test"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	test, ok := r.tests[id]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "test not found"),
			errors.Fields{"test_id": id})
	}
	return test.Clone(), nil
}

func (r *MemoryRepository) SaveVariant(ctx context.Context, variant *experiment.Variant) error {
	if err := errors.CheckContext(ctx, "save variant"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *variant
	existing := r.variants[variant.TestID]
	for i, v := range existing {
		if v.ID == variant.ID {
			existing[i] = &cp
			return nil
		}
	}
	r.variants[variant.TestID] = append(existing, &cp)
	return nil
}

func (r *MemoryRepository) LoadVariants(ctx context.Context, testID string) ([]*experiment.Variant, error) {
	if err := errors.CheckContext(ctx, "load variants"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	variants := r.variants[testID]
	out := make([]*experiment.Variant, len(variants))
	for i, v := range variants {
		cp := *v
		out[i] = &cp
	}
	return out, nil
}

func (r *MemoryRepository) AppendResult(ctx context.Context, result *experiment.Result) error {
	if err := errors.CheckContext(ctx, "append result"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := resultKey{testID: result.TestID, variantID: result.VariantID, requestID: result.RequestID}
	if _, dup := r.seen[key]; dup {
		return nil
	}
	r.seen[key] = struct{}{}

	cp := *result
	r.results[result.TestID] = append(r.results[result.TestID], &cp)
	return nil
}

func (r *MemoryRepository) SaveAnalysis(ctx context.Context, analysis *experiment.Analysis) error {
	if err := errors.CheckContext(ctx, "save analysis"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *analysis
	r.analyses[analysis.TestID] = append(r.analyses[analysis.TestID], &cp)
	return nil
}

// Results returns the stored results for a test, for assertions in tests.
func (r *MemoryRepository) Results(testID string) []*experiment.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*experiment.Result(nil), r.results[testID]...)
}

// Analyses returns the stored analyses for a test, for assertions in tests.
func (r *MemoryRepository) Analyses(testID string) []*experiment.Analysis {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*experiment.Analysis(nil), r.analyses[testID]...)
}
