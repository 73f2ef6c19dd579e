package experiment

import (
	"context"
	"sync"
	"time"
)

// Repository is the persistence boundary. Implementations are fallible and
// never assumed synchronous-fast; the service wraps calls in bounded timeouts
// and retries the idempotent ones.
type Repository interface {
	SaveTest(ctx context.Context, test *Test) error
	LoadTest(ctx context.Context, id string) (*Test, error)
	SaveVariant(ctx context.Context, variant *Variant) error
	LoadVariants(ctx context.Context, testID string) ([]*Variant, error)

	// AppendResult is idempotent on (test, variant, request ID): replaying a
	// result that was already stored succeeds without a second row.
	AppendResult(ctx context.Context, result *Result) error

	SaveAnalysis(ctx context.Context, analysis *Analysis) error
}

// Notifier is invoked when a test concludes with its final recommendation.
type Notifier interface {
	TestConcluded(ctx context.Context, test *Test, recommendation Recommendation) error
}

// NopNotifier discards conclusion notifications.
type NopNotifier struct{}

func (NopNotifier) TestConcluded(context.Context, *Test, Recommendation) error { return nil }

// Clock abstracts time so lifecycle behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a Clock whose time only moves when told to. For tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock set to the given time.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
