package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/abtest-go/pkg/cache"
	"github.com/XiaoConstantine/abtest-go/pkg/config"
	"github.com/XiaoConstantine/abtest-go/pkg/errors"
	"github.com/XiaoConstantine/abtest-go/pkg/logging"
)

// Service is the lifecycle controller. It owns the test state machine, is
// the sole writer of status and winning variant, and wires the assigner,
// accumulator, analyzer, planner and policy together behind the public
// operations.
//
// All dependencies are injected at construction; there is no implicit global
// state. Transitions on one test are serialized by a per-test lock, so two
// conclude attempts can never both declare a winner.
type Service struct {
	repo     Repository
	cfg      *config.Config
	clock    Clock
	notifier Notifier
	logger   *logging.Logger

	assigner    *Assigner
	accumulator *Accumulator
	analyzer    *Analyzer
	planner     *Planner
	policy      *Policy

	// Read cache for tests that left the active set (concluded/cancelled).
	concluded *cache.TTLCache

	mu     sync.RWMutex
	active map[string]*activeTest
}

// activeTest is the in-memory registry entry for a non-terminal test. The
// test record itself is copy-on-write: transitions replace the pointer under
// mu, so readers holding the old pointer always see a consistent snapshot.
type activeTest struct {
	mu       sync.RWMutex
	test     *Test
	variants []*Variant

	latestAnalysis *Analysis
	accepted       int64 // atomically updated count of accepted results
}

// ServiceOption defines functional options for Service construction.
type ServiceOption func(*Service)

// WithClock injects a clock, typically a ManualClock in tests.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithNotifier injects the collaborator notified on conclusion.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithLogger injects a configured logger.
func WithLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithRandSource injects the random source used for keyless assignment.
func WithRandSource(src rand.Source) ServiceOption {
	return func(s *Service) { s.assigner = NewAssigner(src) }
}

// NewService constructs the experiment service with injected dependencies.
func NewService(repo Repository, cfg *config.Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	s := &Service{
		repo:     repo,
		cfg:      cfg,
		clock:    SystemClock(),
		notifier: NopNotifier{},
		logger:   logging.GetLogger(),

		accumulator: NewAccumulator(),
		analyzer:    NewAnalyzer(),
		planner:     NewPlanner(cfg.Experiments.SampleSizeFloor, cfg.Experiments.SampleSizeCeiling),
		policy: NewPolicy(
			WithMinImprovementPercent(cfg.Experiments.MinImprovementPercent),
			WithMaxDurationFraction(cfg.Experiments.MaxDurationFraction),
		),
		concluded: cache.NewTTLCache(cache.Config{
			MaxEntries:      cfg.Cache.MaxEntries,
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
		}),
		active: make(map[string]*activeTest),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.assigner == nil {
		s.assigner = NewAssigner(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Close releases background resources.
func (s *Service) Close() error {
	return s.concluded.Close()
}

// CreateTest validates the spec, persists the test and its variants, and
// registers the test as a draft. Defaults from the configuration fill any
// statistical field the spec leaves unset.
func (s *Service) CreateTest(ctx context.Context, spec TestSpec) (string, error) {
	if err := errors.CheckContext(ctx, "create test"); err != nil {
		return "", err
	}
	if err := s.validateSpec(spec); err != nil {
		return "", err
	}

	now := s.clock.Now()
	defaults := s.cfg.Experiments

	testCfg := TestConfig{
		Metrics:             append([]string(nil), spec.Metrics...),
		MinSampleSize:       spec.MinSampleSize,
		ConfidenceLevel:     spec.ConfidenceLevel,
		Power:               spec.Power,
		MinDetectableEffect: spec.MinDetectableEffect,
		MaxDuration:         spec.MaxDuration,
		AutoConclude:        defaults.AutoConclude,
	}
	if testCfg.ConfidenceLevel == 0 {
		testCfg.ConfidenceLevel = defaults.ConfidenceLevel
	}
	if testCfg.Power == 0 {
		testCfg.Power = defaults.Power
	}
	if testCfg.MinDetectableEffect == 0 {
		testCfg.MinDetectableEffect = defaults.MinDetectableEffect
	}
	if testCfg.MaxDuration == 0 {
		testCfg.MaxDuration = defaults.DefaultMaxDuration
	}
	if testCfg.MinSampleSize == 0 {
		testCfg.MinSampleSize = s.planner.RequiredSampleSize(
			testCfg.Power, testCfg.ConfidenceLevel, testCfg.MinDetectableEffect)
	}

	test := &Test{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Hypothesis: spec.Hypothesis,
		Config:     testCfg,
		Status:     StatusDraft,
		CreatedAt:  now,
	}

	variants := make([]*Variant, len(spec.Variants))
	for i, vs := range spec.Variants {
		variants[i] = &Variant{
			ID:             uuid.NewString(),
			TestID:         test.ID,
			Name:           vs.Name,
			TrafficPercent: vs.TrafficPercent,
			Control:        vs.Control,
			Position:       i,
			Payload:        vs.Payload,
		}
	}

	if err := s.callRepo(ctx, "save test", func(opCtx context.Context) error {
		return s.repo.SaveTest(opCtx, test)
	}); err != nil {
		return "", err
	}
	for _, v := range variants {
		variant := v
		if err := s.callRepo(ctx, "save variant", func(opCtx context.Context) error {
			return s.repo.SaveVariant(opCtx, variant)
		}); err != nil {
			return "", err
		}
	}

	variantIDs := make([]string, len(variants))
	for i, v := range variants {
		variantIDs[i] = v.ID
	}
	s.accumulator.Register(test.ID, variantIDs)

	s.mu.Lock()
	s.active[test.ID] = &activeTest{test: test, variants: variants}
	s.mu.Unlock()

	s.logger.Info(logging.WithTestID(ctx, test.ID), "created test %q with %d variants", test.Name, len(variants))
	return test.ID, nil
}

func (s *Service) validateSpec(spec TestSpec) error {
	if spec.Name == "" {
		return errors.New(errors.ValidationFailed, "test name is required")
	}
	if len(spec.Metrics) == 0 {
		return errors.New(errors.ValidationFailed, "at least one tracked metric is required")
	}
	if len(spec.Variants) < 2 {
		return errors.New(errors.ValidationFailed, "at least two variants are required")
	}

	controls := 0
	sum := 0.0
	for _, v := range spec.Variants {
		if v.Name == "" {
			return errors.New(errors.ValidationFailed, "every variant needs a name")
		}
		if v.TrafficPercent <= 0 {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "variant traffic percent must be positive"),
				errors.Fields{"variant": v.Name})
		}
		if v.Control {
			controls++
		}
		sum += v.TrafficPercent
	}
	if controls != 1 {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "exactly one variant must be the control"),
			errors.Fields{"controls": controls})
	}
	if math.Abs(sum-100) > s.cfg.Experiments.WeightTolerance {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "variant traffic percentages must sum to 100"),
			errors.Fields{"sum": sum})
	}
	return nil
}

// StartTest moves a draft test to running, recording the start time. The
// draft -> running transition happens at most once.
func (s *Service) StartTest(ctx context.Context, testID string) error {
	at, err := s.lookupActive(ctx, testID)
	if err != nil {
		return err
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	if at.test.Status != StatusDraft {
		return errors.WithFields(
			errors.New(errors.InvalidState, "start requires a draft test"),
			errors.Fields{"test_id": testID, "status": at.test.Status})
	}

	now := s.clock.Now()
	cp := at.test.Clone()
	cp.Status = StatusRunning
	cp.StartedAt = &now
	if cp.Config.MinSampleSize == 0 {
		cp.Config.MinSampleSize = s.planner.RequiredSampleSize(
			cp.Config.Power, cp.Config.ConfidenceLevel, cp.Config.MinDetectableEffect)
	}

	// Transitions are persisted before they become visible; a failed save
	// leaves the in-memory state untouched.
	if err := s.callRepoOnce(ctx, "save test", func(opCtx context.Context) error {
		return s.repo.SaveTest(opCtx, cp)
	}); err != nil {
		return err
	}
	at.test = cp

	s.logger.Info(logging.WithTestID(ctx, testID), "started test with min sample size %d", cp.Config.MinSampleSize)
	return nil
}

// PauseTest moves a running test to paused.
func (s *Service) PauseTest(ctx context.Context, testID string) error {
	return s.transition(ctx, testID, StatusRunning, StatusPaused)
}

// ResumeTest moves a paused test back to running.
func (s *Service) ResumeTest(ctx context.Context, testID string) error {
	return s.transition(ctx, testID, StatusPaused, StatusRunning)
}

func (s *Service) transition(ctx context.Context, testID string, from, to TestStatus) error {
	at, err := s.lookupActive(ctx, testID)
	if err != nil {
		return err
	}
	if _, err := s.checkExpiry(ctx, at); err != nil {
		return err
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	if at.test.Status != from {
		return errors.WithFields(
			errors.New(errors.InvalidState, fmt.Sprintf("transition to %s requires status %s", to, from)),
			errors.Fields{"test_id": testID, "status": at.test.Status})
	}

	cp := at.test.Clone()
	cp.Status = to
	if err := s.callRepoOnce(ctx, "save test", func(opCtx context.Context) error {
		return s.repo.SaveTest(opCtx, cp)
	}); err != nil {
		return err
	}
	at.test = cp
	return nil
}

// SelectVariant resolves the variant for one unit of work. It returns an
// empty ID (and no error) when the test is not accepting traffic: not
// running, expired, or already concluded.
func (s *Service) SelectVariant(ctx context.Context, testID, subjectKey string) (string, error) {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return "", err
	}
	if at == nil {
		// Terminal test: no assignment.
		return "", nil
	}

	status, err := s.checkExpiry(ctx, at)
	if err != nil {
		return "", err
	}
	if status != StatusRunning {
		return "", nil
	}

	at.mu.RLock()
	variants := at.variants
	at.mu.RUnlock()

	return s.assigner.Select(testID, variants, subjectKey), nil
}

// RecordResult folds one outcome into the variant's aggregates and appends
// the raw result to storage. Duplicate request IDs never double-count, but
// still replay the storage append so a previously timed-out write can
// complete.
func (s *Service) RecordResult(ctx context.Context, testID, variantID, requestID string, outcome Outcome) (RecordStatus, error) {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return "", err
	}
	if at == nil {
		return "", errors.WithFields(
			errors.New(errors.InvalidState, "results are accepted only while running"),
			errors.Fields{"test_id": testID})
	}

	status, err := s.checkExpiry(ctx, at)
	if err != nil {
		return "", err
	}
	if status != StatusRunning {
		return "", errors.WithFields(
			errors.New(errors.InvalidState, "results are accepted only while running"),
			errors.Fields{"test_id": testID, "status": status})
	}

	recordStatus, err := s.accumulator.Record(testID, variantID, requestID, outcome)
	if err != nil {
		return "", err
	}

	result := &Result{
		TestID:     testID,
		VariantID:  variantID,
		RequestID:  requestID,
		Outcome:    outcome,
		RecordedAt: s.clock.Now(),
	}
	if err := s.callRepo(ctx, "append result", func(opCtx context.Context) error {
		return s.repo.AppendResult(opCtx, result)
	}); err != nil {
		// The aggregate already accepted the update; the caller retries with
		// the same request ID and the append replays idempotently.
		return recordStatus, err
	}

	if recordStatus == RecordAccepted {
		accepted := atomic.AddInt64(&at.accepted, 1)
		if n := s.cfg.Scheduler.AnalyzeEveryN; n > 0 && accepted%int64(n) == 0 {
			go s.analyzeInBackground(testID)
		}
	}
	return recordStatus, nil
}

func (s *Service) analyzeInBackground(testID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Storage.Timeout*4)
	defer cancel()
	if _, err := s.Analyze(ctx, testID); err != nil {
		s.logger.Warn(logging.WithTestID(ctx, testID), "background analysis failed: %v", err)
	}
}

// Analyze computes a point-in-time statistical snapshot of the test,
// persists it as an audit record, and applies the recommendation when
// auto-conclude is enabled.
func (s *Service) Analyze(ctx context.Context, testID string) (*Analysis, error) {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return nil, err
	}
	if at == nil {
		return nil, errors.WithFields(
			errors.New(errors.InvalidState, "analysis requires a running or paused test"),
			errors.Fields{"test_id": testID})
	}

	status, err := s.checkExpiry(ctx, at)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		// Auto-expiry concluded the test; its closing analysis is the result.
		at.mu.RLock()
		analysis := at.latestAnalysis
		at.mu.RUnlock()
		if analysis != nil {
			return analysis, nil
		}
		return nil, errors.WithFields(
			errors.New(errors.InvalidState, "analysis requires a running or paused test"),
			errors.Fields{"test_id": testID, "status": status})
	}
	if status != StatusRunning && status != StatusPaused {
		return nil, errors.WithFields(
			errors.New(errors.InvalidState, "analysis requires a running or paused test"),
			errors.Fields{"test_id": testID, "status": status})
	}

	at.mu.RLock()
	test := at.test
	variants := at.variants
	at.mu.RUnlock()

	analysis, err := s.buildAnalysis(test, variants, true)
	if err != nil {
		return nil, err
	}

	if err := s.callRepo(ctx, "save analysis", func(opCtx context.Context) error {
		return s.repo.SaveAnalysis(opCtx, analysis)
	}); err != nil {
		return nil, err
	}

	at.mu.Lock()
	at.latestAnalysis = analysis
	at.mu.Unlock()

	if test.Config.AutoConclude && analysis.Recommendation.Action.Terminal() {
		if err := s.concludeWith(ctx, at, analysis.Recommendation); err != nil {
			// A concurrent conclude won the race; the analysis still stands.
			if errors.CodeOf(err) != errors.InvalidState {
				return nil, err
			}
		}
	}

	return analysis, nil
}

// buildAnalysis snapshots every variant and compares control against each
// treatment on every tracked metric plus the implicit success rate.
func (s *Service) buildAnalysis(test *Test, variants []*Variant, requireData bool) (*Analysis, error) {
	snapshots := make(map[string]VariantSnapshot, len(variants))
	sampleSizes := make(map[string]int64, len(variants))
	withData := 0
	var control *Variant
	for _, v := range variants {
		snap, err := s.accumulator.Snapshot(test.ID, v.ID)
		if err != nil {
			return nil, err
		}
		snapshots[v.ID] = snap
		sampleSizes[v.ID] = snap.Count
		if snap.Count > 0 {
			withData++
		}
		if v.Control {
			control = v
		}
	}
	if requireData && withData < 2 {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "analysis requires at least two variants with data"),
			errors.Fields{"test_id": test.ID, "variants_with_data": withData})
	}

	metrics := append([]string(nil), test.Config.Metrics...)
	metrics = append(metrics, MetricSuccessRate)

	comparisons := make(map[string][]Comparison, len(metrics))
	controlSnap := snapshots[control.ID]
	for _, metric := range metrics {
		for _, v := range variants {
			if v.ID == control.ID {
				continue
			}
			treatSnap := snapshots[v.ID]
			cmp := s.analyzer.Compare(metric, control.ID, v.ID,
				controlSnap.Metrics[metric], treatSnap.Metrics[metric],
				test.Config.ConfidenceLevel)
			comparisons[metric] = append(comparisons[metric], cmp)
		}
	}

	now := s.clock.Now()
	return &Analysis{
		ID:             uuid.NewString(),
		TestID:         test.ID,
		CreatedAt:      now,
		SampleSizes:    sampleSizes,
		Comparisons:    comparisons,
		Recommendation: s.policy.Recommend(test, sampleSizes, comparisons, now),
	}, nil
}

// ConcludeTest concludes a running or paused test, applying the latest
// analysis recommendation when one exists. Conclude is never silently
// retried; a duplicate conclude is an InvalidState error.
func (s *Service) ConcludeTest(ctx context.Context, testID string) error {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return err
	}
	if at == nil {
		return errors.WithFields(
			errors.New(errors.InvalidState, "test already concluded"),
			errors.Fields{"test_id": testID})
	}

	at.mu.RLock()
	rec := Recommendation{
		Action:     ActionStopNoEffect,
		Confidence: at.test.Config.ConfidenceLevel,
		Rationale:  "concluded by operator",
	}
	if at.latestAnalysis != nil {
		rec = at.latestAnalysis.Recommendation
	}
	at.mu.RUnlock()

	return s.concludeWith(ctx, at, rec)
}

// CancelTest moves any non-terminal test to cancelled: the test ends with no
// conclusion reached. Cancellation is visible to the very next call.
func (s *Service) CancelTest(ctx context.Context, testID, reason string) error {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return err
	}
	if at == nil {
		return errors.WithFields(
			errors.New(errors.InvalidState, "test already in a terminal state"),
			errors.Fields{"test_id": testID})
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	if at.test.Status.Terminal() {
		return errors.WithFields(
			errors.New(errors.InvalidState, "test already in a terminal state"),
			errors.Fields{"test_id": testID, "status": at.test.Status})
	}

	now := s.clock.Now()
	cp := at.test.Clone()
	cp.Status = StatusCancelled
	cp.EndedAt = &now

	if err := s.callRepoOnce(ctx, "save test", func(opCtx context.Context) error {
		return s.repo.SaveTest(opCtx, cp)
	}); err != nil {
		return err
	}
	at.test = cp
	s.retireLocked(at)

	s.logger.Info(logging.WithTestID(ctx, testID), "cancelled test: %s", reason)
	return nil
}

// concludeWith performs the running|paused -> completed transition, freezing
// the result summary. No failure path leaves the test ambiguous: the
// in-memory state only changes after the save succeeds, and the save is
// attempted exactly once.
func (s *Service) concludeWith(ctx context.Context, at *activeTest, rec Recommendation) error {
	at.mu.Lock()
	defer at.mu.Unlock()

	if at.test.Status != StatusRunning && at.test.Status != StatusPaused {
		return errors.WithFields(
			errors.New(errors.InvalidState, "conclude requires a running or paused test"),
			errors.Fields{"test_id": at.test.ID, "status": at.test.Status})
	}

	now := s.clock.Now()
	cp := at.test.Clone()
	cp.Status = StatusCompleted
	cp.EndedAt = &now
	cp.WinningVariant = rec.WinningVariant

	summary := &Summary{
		WinningVariant: rec.WinningVariant,
		Recommendation: rec,
	}
	if cp.StartedAt != nil {
		summary.Duration = now.Sub(*cp.StartedAt)
	}
	for _, v := range at.variants {
		if snap, err := s.accumulator.Snapshot(cp.ID, v.ID); err == nil {
			summary.Variants = append(summary.Variants, snap)
		}
	}
	cp.Summary = summary

	if err := s.callRepoOnce(ctx, "save test", func(opCtx context.Context) error {
		return s.repo.SaveTest(opCtx, cp)
	}); err != nil {
		return err
	}
	at.test = cp
	s.retireLocked(at)

	if err := s.notifier.TestConcluded(ctx, cp, rec); err != nil {
		s.logger.Warn(logging.WithTestID(ctx, cp.ID), "conclusion notification failed: %v", err)
	}
	s.logger.Info(logging.WithTestID(ctx, cp.ID), "concluded test: %s (winner=%q)", rec.Rationale, rec.WinningVariant)
	return nil
}

// retireLocked moves a now-terminal test from the active registry to the
// read cache and releases its aggregate cells. Callers hold at.mu.
func (s *Service) retireLocked(at *activeTest) {
	s.mu.Lock()
	delete(s.active, at.test.ID)
	s.mu.Unlock()

	s.concluded.Set(at.test.ID, at.test, 0)

	variantIDs := make([]string, len(at.variants))
	for i, v := range at.variants {
		variantIDs[i] = v.ID
	}
	s.accumulator.Drop(at.test.ID, variantIDs)
}

// checkExpiry concludes a test whose max duration has elapsed, then reports
// the (possibly new) status. Any public call observing an expired test
// triggers this before doing its own work.
func (s *Service) checkExpiry(ctx context.Context, at *activeTest) (TestStatus, error) {
	at.mu.RLock()
	test := at.test
	variants := at.variants
	at.mu.RUnlock()

	if test.Status.Terminal() || test.StartedAt == nil || test.Config.MaxDuration <= 0 {
		return test.Status, nil
	}
	if s.clock.Now().Sub(*test.StartedAt) <= test.Config.MaxDuration {
		return test.Status, nil
	}

	// Expired: take a closing snapshot, keep a winner if the data supports
	// one, and conclude with the duration rationale.
	rec := Recommendation{
		Action:     ActionStopNoEffect,
		Confidence: test.Config.ConfidenceLevel,
		Rationale:  "test duration exceeded",
	}
	analysis, err := s.buildAnalysis(test, variants, false)
	if err == nil {
		if analysis.Recommendation.Action == ActionStopWinner {
			rec.Action = ActionStopWinner
			rec.Confidence = analysis.Recommendation.Confidence
			rec.WinningVariant = analysis.Recommendation.WinningVariant
		}
		analysis.Recommendation = rec

		if saveErr := s.callRepo(ctx, "save analysis", func(opCtx context.Context) error {
			return s.repo.SaveAnalysis(opCtx, analysis)
		}); saveErr != nil {
			s.logger.Warn(logging.WithTestID(ctx, test.ID), "failed to persist expiry analysis: %v", saveErr)
		}
		at.mu.Lock()
		at.latestAnalysis = analysis
		at.mu.Unlock()
	}

	if err := s.concludeWith(ctx, at, rec); err != nil {
		// Lost the race against another concluding call.
		if errors.CodeOf(err) != errors.InvalidState {
			return "", err
		}
	}

	at.mu.RLock()
	status := at.test.Status
	at.mu.RUnlock()
	return status, nil
}

// VariantStatus is one variant's line in a status report.
type VariantStatus struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Control        bool    `json:"control"`
	TrafficPercent float64 `json:"traffic_percent"`
	Count          int64   `json:"count"`
	SuccessRate    float64 `json:"success_rate"`
}

// Status is the caller-facing progress report for a test.
type Status struct {
	TestID          string          `json:"test_id"`
	Status          TestStatus      `json:"status"`
	Progress        float64         `json:"progress"`
	ElapsedFraction float64         `json:"elapsed_fraction"`
	WinningVariant  string          `json:"winning_variant,omitempty"`
	Variants        []VariantStatus `json:"variants"`
	LatestAnalysis  *Analysis       `json:"latest_analysis,omitempty"`
}

// GetStatus reports a test's lifecycle state, per-variant progress and the
// latest analysis. Terminal tests are served from the read cache, falling
// back to the repository.
func (s *Service) GetStatus(ctx context.Context, testID string) (*Status, error) {
	s.mu.RLock()
	at, ok := s.active[testID]
	s.mu.RUnlock()

	if !ok {
		test, err := s.loadConcluded(ctx, testID)
		if err != nil {
			return nil, err
		}
		return statusFromTerminal(test), nil
	}

	if _, err := s.checkExpiry(ctx, at); err != nil {
		return nil, err
	}

	at.mu.RLock()
	test := at.test
	variants := at.variants
	latest := at.latestAnalysis
	at.mu.RUnlock()

	if test.Status.Terminal() {
		st := statusFromTerminal(test)
		st.LatestAnalysis = latest
		return st, nil
	}

	status := &Status{
		TestID:         testID,
		Status:         test.Status,
		WinningVariant: test.WinningVariant,
		LatestAnalysis: latest,
	}

	minCount := int64(-1)
	for _, v := range variants {
		snap, err := s.accumulator.Snapshot(testID, v.ID)
		if err != nil {
			return nil, err
		}
		status.Variants = append(status.Variants, VariantStatus{
			ID:             v.ID,
			Name:           v.Name,
			Control:        v.Control,
			TrafficPercent: v.TrafficPercent,
			Count:          snap.Count,
			SuccessRate:    snap.SuccessRate,
		})
		if minCount < 0 || snap.Count < minCount {
			minCount = snap.Count
		}
	}
	if minCount < 0 {
		minCount = 0
	}
	if required := test.Config.MinSampleSize; required > 0 {
		status.Progress = math.Min(1, float64(minCount)/float64(required))
	}
	if test.StartedAt != nil && test.Config.MaxDuration > 0 {
		elapsed := s.clock.Now().Sub(*test.StartedAt)
		status.ElapsedFraction = math.Min(1, float64(elapsed)/float64(test.Config.MaxDuration))
	}
	return status, nil
}

func statusFromTerminal(test *Test) *Status {
	st := &Status{
		TestID:         test.ID,
		Status:         test.Status,
		WinningVariant: test.WinningVariant,
	}
	if test.Summary != nil {
		st.Progress = 1
		for _, snap := range test.Summary.Variants {
			st.Variants = append(st.Variants, VariantStatus{
				ID:          snap.VariantID,
				Count:       snap.Count,
				SuccessRate: snap.SuccessRate,
			})
		}
	}
	return st
}

// RunningTestIDs lists tests currently accepting traffic; the scheduler
// sweeps these.
func (s *Service) RunningTestIDs() []string {
	// Copy the registry first: per-test locks are never taken while holding
	// the registry lock (conclusion acquires them in the opposite order).
	s.mu.RLock()
	entries := make([]*activeTest, 0, len(s.active))
	for _, at := range s.active {
		entries = append(entries, at)
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(entries))
	for _, at := range entries {
		at.mu.RLock()
		if at.test.Status == StatusRunning {
			ids = append(ids, at.test.ID)
		}
		at.mu.RUnlock()
	}
	return ids
}

// lookupActive returns the registry entry for a non-terminal test.
func (s *Service) lookupActive(ctx context.Context, testID string) (*activeTest, error) {
	at, err := s.lookupActiveOrConcluded(ctx, testID)
	if err != nil {
		return nil, err
	}
	if at == nil {
		return nil, errors.WithFields(
			errors.New(errors.InvalidState, "test is in a terminal state"),
			errors.Fields{"test_id": testID})
	}
	return at, nil
}

// lookupActiveOrConcluded resolves a test ID. A nil activeTest with a nil
// error means the test exists but is terminal.
func (s *Service) lookupActiveOrConcluded(ctx context.Context, testID string) (*activeTest, error) {
	s.mu.RLock()
	at, ok := s.active[testID]
	s.mu.RUnlock()
	if ok {
		return at, nil
	}

	if _, err := s.loadConcluded(ctx, testID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) loadConcluded(ctx context.Context, testID string) (*Test, error) {
	if cached, ok := s.concluded.Get(testID); ok {
		return cached.(*Test), nil
	}

	var test *Test
	err := s.callRepo(ctx, "load test", func(opCtx context.Context) error {
		loaded, loadErr := s.repo.LoadTest(opCtx, testID)
		if loadErr != nil {
			return loadErr
		}
		test = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.concluded.Set(testID, test, 0)
	return test, nil
}
