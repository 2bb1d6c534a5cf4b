package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/features"
	"github.com/YuminosukeSato/tieravm/metrics"
	"github.com/YuminosukeSato/tieravm/training"
)

func sampleResult() *aggregate.Result {
	return &aggregate.Result{
		Overall: metrics.Regression{MAE: 12500, MAPE: 6.25, R2: 0.91},
		Predictions: []aggregate.Prediction{
			{Actual: 150000, Predicted: 160000, Tier: "low"},
			{Actual: 180000, Predicted: 175000, Tier: "low"},
			{Actual: 1250000, Predicted: 1200000, Tier: "luxury"},
		},
		Importance: []training.FeatureImportance{
			{Feature: "living_sqft", Importance: 0.6},
			{Feature: "year_built", Importance: 0.4},
		},
		TierImportance: []aggregate.TierFeatureImportance{
			{Tier: "low", Feature: "living_sqft", Importance: 0.7},
			{Tier: "low", Feature: "year_built", Importance: 0.3},
			{Tier: "luxury", Feature: "living_sqft", Importance: 0.5},
			{Tier: "luxury", Feature: "year_built", Importance: 0.5},
		},
		TierMetrics: []aggregate.TierMetrics{
			{Tier: "low", NTrain: 80, NTest: 20, BestDepth: 6, Regression: metrics.Regression{MAE: 7500, MAPE: 4.8, R2: 0.8}},
			{Tier: "luxury", NTrain: 60, NTest: 15, BestDepth: 8, Regression: metrics.Regression{MAE: 50000, MAPE: 4, R2: 0.7}},
		},
		DepthTrace: []training.DepthMetrics{
			{Tier: "low", Depth: 6, Regression: metrics.Regression{MAE: 7500, MAPE: 4.8, R2: 0.8}},
			{Tier: "low", Depth: 8, Regression: metrics.Regression{MAE: 7600, MAPE: 5.1, R2: 0.79}},
			{Tier: "luxury", Depth: 6, Regression: metrics.Regression{MAE: 52000, MAPE: 4.2, R2: 0.69}},
			{Tier: "luxury", Depth: 8, Regression: metrics.Regression{MAE: 50000, MAPE: 4, R2: 0.7}},
		},
		DepthsTested: []int{6, 8},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteCSV(dir, sampleResult())
	require.NoError(t, err)
	assert.Len(t, paths, 5)

	preds := readCSV(t, filepath.Join(dir, PredictionsFile))
	require.Len(t, preds, 4)
	assert.Equal(t, []string{"actual", "predicted", "tier"}, preds[0])
	assert.Equal(t, []string{"150000", "160000", "low"}, preds[1])
	assert.Equal(t, []string{"1250000", "1200000", "luxury"}, preds[3])

	imp := readCSV(t, filepath.Join(dir, FeatureImportanceFile))
	assert.Equal(t, [][]string{
		{"feature", "importance"},
		{"living_sqft", "0.6"},
		{"year_built", "0.4"},
	}, imp)

	tm := readCSV(t, filepath.Join(dir, TierMetricsFile))
	assert.Equal(t, []string{"tier", "n_train", "n_test", "mae", "mape", "r2", "best_depth"}, tm[0])
	assert.Equal(t, []string{"luxury", "60", "15", "50000", "4", "0.7", "8"}, tm[2])

	depth := readCSV(t, filepath.Join(dir, DepthComparisonFile))
	require.Len(t, depth, 5)
	assert.Equal(t, []string{"depth", "mae", "mape", "r2", "tier"}, depth[0])
	assert.Equal(t, []string{"8", "7600", "5.1", "0.79", "low"}, depth[2])

	byTier := readCSV(t, filepath.Join(dir, TierImportanceFile))
	require.Len(t, byTier, 5)
	assert.Equal(t, []string{"tier", "feature", "importance"}, byTier[0])
}

func TestWriteCSVEmptyResult(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteCSV(dir, &aggregate.Result{})
	require.NoError(t, err)

	preds := readCSV(t, filepath.Join(dir, PredictionsFile))
	assert.Len(t, preds, 1, "header only")
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.sqlite")
	sink, err := OpenSQLite(path)
	require.NoError(t, err)
	defer sink.Close()

	run := RunInfo{
		RunID:       "run-1",
		StartedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:     1500 * time.Millisecond,
		InputPath:   "data/properties.csv",
		NumRecords:  175,
		NumFeatures: 2,
	}
	ctx := context.Background()
	require.NoError(t, sink.WriteRun(ctx, run, sampleResult()))

	count := func(query string, args ...any) int {
		var n int
		require.NoError(t, sink.DB().QueryRowContext(ctx, query, args...).Scan(&n))
		return n
	}
	assert.Equal(t, 1, count(`SELECT COUNT(*) FROM runs`))
	assert.Equal(t, 3, count(`SELECT COUNT(*) FROM predictions WHERE run_id = ?`, "run-1"))
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM tier_metrics`))
	assert.Equal(t, 4, count(`SELECT COUNT(*) FROM depth_trace`))
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM feature_importance WHERE tier IS NULL`))
	assert.Equal(t, 4, count(`SELECT COUNT(*) FROM feature_importance WHERE tier IS NOT NULL`))

	var best int
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		`SELECT best_depth FROM tier_metrics WHERE run_id = ? AND tier = ?`, "run-1", "luxury").Scan(&best))
	assert.Equal(t, 8, best)

	var elapsed int64
	require.NoError(t, sink.DB().QueryRowContext(ctx, `SELECT elapsed_ms FROM runs`).Scan(&elapsed))
	assert.Equal(t, int64(1500), elapsed)
}

func TestSQLiteSinkDuplicateRunRollsBack(t *testing.T) {
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "results.sqlite"))
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	run := RunInfo{RunID: "dup", StartedAt: time.Now()}
	require.NoError(t, sink.WriteRun(ctx, run, sampleResult()))
	require.Error(t, sink.WriteRun(ctx, run, sampleResult()))

	var n int
	require.NoError(t, sink.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestWritePlots(t *testing.T) {
	dir := t.TempDir()
	paths, err := WritePlots(dir, sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), p)
	}
}

func TestWriteSummary(t *testing.T) {
	report := &features.Report{
		Groups: []features.GroupReport{
			{
				Group: "base",
				Available: []features.ResolvedFeature{
					{Canonical: "living_sqft", Column: "living_sqft"},
					{Canonical: "year_built", Column: "year_built"},
				},
				Missing: []string{"lot_sqft"},
			},
		},
		Features: []string{"living_sqft", "year_built"},
	}

	var buf bytes.Buffer
	err := WriteSummary(&buf, SummaryInput{
		Run: RunInfo{
			RunID:       "abc",
			Elapsed:     2500 * time.Millisecond,
			InputPath:   "data/properties.csv",
			NumRecords:  12345,
			NumFeatures: 2,
		},
		Result: sampleResult(),
		Report: report,
		TopN:   1,
		Files:  []string{"output/predictions_depth_tuned.csv"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run abc")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "missing: lot_sqft")
	assert.Contains(t, out, "$12,500")
	assert.Contains(t, out, "6.25%")
	assert.Contains(t, out, "Top 1 features")
	assert.Contains(t, out, "living_sqft")
	assert.NotContains(t, out, "1. year_built")
	assert.Contains(t, out, "[6 8]")
	assert.Contains(t, out, "2.5s")
	assert.Contains(t, out, "predictions_depth_tuned.csv")
}
