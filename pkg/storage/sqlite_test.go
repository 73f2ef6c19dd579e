package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/abtest-go/pkg/config"
	"github.com/XiaoConstantine/abtest-go/pkg/errors"
	"github.com/XiaoConstantine/abtest-go/pkg/experiment"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(config.StorageConfig{
		Path:      filepath.Join(t.TempDir(), "abtest.db"),
		EnableWAL: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteTestRoundtrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	test := sampleTest("test-1")
	require.NoError(t, repo.SaveTest(ctx, test))

	loaded, err := repo.LoadTest(ctx, "test-1")
	require.NoError(t, err)
	assert.Equal(t, test.ID, loaded.ID)
	assert.Equal(t, test.Name, loaded.Name)
	assert.Equal(t, test.Status, loaded.Status)
	assert.Equal(t, test.Config, loaded.Config)
	assert.True(t, test.CreatedAt.Equal(loaded.CreatedAt))
}

func TestSQLiteSaveTestUpserts(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	test := sampleTest("test-1")
	require.NoError(t, repo.SaveTest(ctx, test))

	test.Status = experiment.StatusRunning
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	test.StartedAt = &now
	require.NoError(t, repo.SaveTest(ctx, test))

	loaded, err := repo.LoadTest(ctx, "test-1")
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusRunning, loaded.Status)
	require.NotNil(t, loaded.StartedAt)
	assert.True(t, now.Equal(*loaded.StartedAt))
}

func TestSQLiteLoadTestNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.LoadTest(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ResourceNotFound, errors.CodeOf(err))
}

func TestSQLiteVariantsOrderedByPosition(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	// Insert out of order; position drives the read order.
	for _, v := range []*experiment.Variant{
		{ID: "v2", TestID: "test-1", Name: "treatment-b", Position: 2},
		{ID: "v0", TestID: "test-1", Name: "control", Control: true, Position: 0},
		{ID: "v1", TestID: "test-1", Name: "treatment-a", Position: 1},
	} {
		require.NoError(t, repo.SaveVariant(ctx, v))
	}

	variants, err := repo.LoadVariants(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.Equal(t, "v0", variants[0].ID)
	assert.Equal(t, "v1", variants[1].ID)
	assert.Equal(t, "v2", variants[2].ID)
	assert.True(t, variants[0].Control)
}

func TestSQLiteVariantPayloadRoundtrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	payload := []byte(`{"temperature":0.7,"model":"small"}`)
	require.NoError(t, repo.SaveVariant(ctx, &experiment.Variant{
		ID:      "v0",
		TestID:  "test-1",
		Name:    "control",
		Payload: payload,
	}))

	variants, err := repo.LoadVariants(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.JSONEq(t, string(payload), string(variants[0].Payload))
}

func TestSQLiteAppendResultIdempotent(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	result := &experiment.Result{
		TestID:     "test-1",
		VariantID:  "control",
		RequestID:  "req-1",
		Outcome:    experiment.Outcome{Success: true, Metrics: map[string]float64{"latency_ms": 120}},
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.AppendResult(ctx, result))
	require.NoError(t, repo.AppendResult(ctx, result))

	count, err := repo.CountResults(ctx, "test-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	other := *result
	other.RequestID = "req-2"
	require.NoError(t, repo.AppendResult(ctx, &other))

	count, err = repo.CountResults(ctx, "test-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteSaveAnalysis(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	analysis := &experiment.Analysis{
		ID:        "analysis-1",
		TestID:    "test-1",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SampleSizes: map[string]int64{
			"control":   50,
			"treatment": 50,
		},
		Recommendation: experiment.Recommendation{
			Action:    experiment.ActionContinue,
			Rationale: "not enough evidence yet",
		},
	}
	require.NoError(t, repo.SaveAnalysis(ctx, analysis))
	// Saving the same analysis twice upserts rather than failing.
	require.NoError(t, repo.SaveAnalysis(ctx, analysis))
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{Path: filepath.Join(dir, "abtest.db"), EnableWAL: true}
	ctx := context.Background()

	repo, err := NewSQLiteRepository(cfg)
	require.NoError(t, err)
	require.NoError(t, repo.SaveTest(ctx, sampleTest("test-1")))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepository(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadTest(ctx, "test-1")
	require.NoError(t, err)
	assert.Equal(t, "test-1", loaded.ID)
}
