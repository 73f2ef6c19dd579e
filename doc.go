// Package abtest is a Go library for running controlled experiments (A/B
// tests) over configuration variants, for example alternative prompt
// templates, under live traffic, and deciding with statistical rigor which
// variant performs best on one or more numeric metrics.
//
// ABTest-Go provides an experiment orchestrator built from small composable
// pieces. It focuses on making it easy to:
//   - Assign subjects to variants deterministically (sticky assignment)
//   - Aggregate outcome metrics online with O(1) updates
//   - Compare variants with a proper two-sample significance test
//   - Plan the sample size required for a target power and confidence
//   - Drive the test lifecycle from draft to a concluded winner
//
// Key Components:
//
//   - Experiment: the core orchestrator. Service owns the test lifecycle
//     state machine (draft -> running <-> paused -> completed/cancelled),
//     the deterministic Assigner, the streaming Accumulator, the Analyzer
//     (Welch's t-test, Cohen's d, confidence intervals), the sample-size
//     Planner and the recommendation Policy.
//
//   - Storage: pluggable Repository implementations. A SQLite-backed
//     repository for durable test, result and analysis records, and an
//     in-memory repository for tests and embedding.
//
//   - Scheduler: periodic analysis of running tests on a configurable
//     cadence with bounded concurrency.
//
// Simple Example:
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/XiaoConstantine/abtest-go/pkg/config"
//	    "github.com/XiaoConstantine/abtest-go/pkg/experiment"
//	    "github.com/XiaoConstantine/abtest-go/pkg/storage"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    svc := experiment.NewService(storage.NewMemoryRepository(), config.GetDefaultConfig())
//
//	    testID, err := svc.CreateTest(ctx, experiment.TestSpec{
//	        Name:       "greeting-prompt",
//	        Hypothesis: "the friendly template improves task success",
//	        Metrics:    []string{"latency_ms"},
//	        Variants: []experiment.VariantSpec{
//	            {Name: "baseline", TrafficPercent: 50, Control: true},
//	            {Name: "friendly", TrafficPercent: 50},
//	        },
//	    })
//	    if err != nil {
//	        log.Fatalf("Failed to create test: %v", err)
//	    }
//
//	    if err := svc.StartTest(ctx, testID); err != nil {
//	        log.Fatalf("Failed to start test: %v", err)
//	    }
//
//	    variantID, _ := svc.SelectVariant(ctx, testID, "user-123")
//	    _, err = svc.RecordResult(ctx, testID, variantID, "req-1", experiment.Outcome{
//	        Success: true,
//	        Metrics: map[string]float64{"latency_ms": 120},
//	    })
//	    if err != nil {
//	        log.Fatalf("Failed to record result: %v", err)
//	    }
//
//	    analysis, err := svc.Analyze(ctx, testID)
//	    if err != nil {
//	        log.Fatalf("Failed to analyze: %v", err)
//	    }
//	    fmt.Printf("Recommendation: %s\n", analysis.Recommendation.Action)
//	}
//
// Advanced Features:
//
//   - Idempotent result recording: duplicate request IDs are detected and
//     never double-counted.
//
//   - Auto-expiry: any call that observes a test past its maximum duration
//     concludes it before returning.
//
//   - Typed errors: validation, state, not-found and transient storage
//     failures are distinct error codes so callers can retry safely.
//
//   - Deterministic testing: an injectable clock and random source make
//     lifecycle and assignment behavior fully reproducible.
//
// For more examples and detailed documentation, visit:
// https://github.com/XiaoConstantine/abtest-go
//
// ABTest-Go is released under the MIT License.
package abtest
