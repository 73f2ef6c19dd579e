package experiment

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/abtest-go/pkg/config"
	"github.com/XiaoConstantine/abtest-go/pkg/logging"
)

// Scheduler drives periodic analysis of running tests. Each sweep analyzes
// every running test with bounded concurrency; the every-N-results trigger
// lives in the service itself.
type Scheduler struct {
	svc    *Service
	cfg    config.SchedulerConfig
	logger *logging.Logger

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScheduler creates a scheduler over the given service.
func NewScheduler(svc *Service, cfg config.SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Scheduler{
		svc:      svc,
		cfg:      cfg,
		logger:   logging.GetLogger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (sch *Scheduler) Start() {
	go sch.run()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (sch *Scheduler) Stop() {
	close(sch.stopChan)
	<-sch.doneChan
}

func (sch *Scheduler) run() {
	defer close(sch.doneChan)

	ticker := time.NewTicker(sch.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.stopChan:
			return
		case <-ticker.C:
			sch.Sweep(context.Background())
		}
	}
}

// Sweep analyzes every running test once. Exposed so callers can force an
// immediate pass.
func (sch *Scheduler) Sweep(ctx context.Context) {
	ids := sch.svc.RunningTestIDs()
	if len(ids) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(sch.cfg.MaxConcurrent)
	for _, id := range ids {
		testID := id
		p.Go(func() {
			if _, err := sch.svc.Analyze(ctx, testID); err != nil {
				// Tests without enough data yet are expected to fail
				// analysis; everything else is worth a warning.
				sch.logger.Debug(logging.WithTestID(ctx, testID), "scheduled analysis skipped: %v", err)
			}
		})
	}
	p.Wait()
}
