package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/export"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
)

// tierCounts is the number of synthetic rows per price band.
type tierCounts struct {
	belowFloor, low, mid, veryHigh int
}

// writeProperties writes a synthetic MLS-style export where price grows
// with living area inside each band.
func writeProperties(t *testing.T, dir string, c tierCounts) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 7))

	var b strings.Builder
	b.WriteString("CurrentSalesPrice,SumLivingAreaSqft,LotSizeSqft,YearBuilt,Bedrooms,GarageParkingNbr,per_gop\n")
	row := func(lo, hi float64) {
		u := rng.Float64()
		sqft := 900 + 2500*u
		price := lo + (hi-lo)*(0.1+0.8*u)
		lot := sqft * (2 + rng.Float64())
		year := 1950 + rng.IntN(70)
		beds := 2 + rng.IntN(4)
		garage := rng.IntN(3)
		gop := ""
		if rng.IntN(5) > 0 {
			gop = fmt.Sprintf("%.3f", rng.Float64())
		}
		fmt.Fprintf(&b, "%.0f,%.1f,%.1f,%d,%d,%d,%s\n", price, sqft, lot, year, beds, garage, gop)
	}
	for range c.belowFloor {
		row(20_000, 90_000)
	}
	for range c.low {
		row(200_000, 300_000)
	}
	for range c.mid {
		row(400_000, 500_000)
	}
	for range c.veryHigh {
		row(900_000, 1_400_000)
	}

	path := filepath.Join(dir, "properties.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputPath = input
	cfg.OutputDir = filepath.Join(t.TempDir(), "output")
	cfg.TreeDepths = []int{2, 4}
	cfg.Booster.NEstimators = 30
	cfg.Booster.LearningRate = 0.2
	cfg.Booster.MaxBin = 32
	require.NoError(t, cfg.Validate())
	return cfg
}

func captureLogs(t *testing.T) *log.TestLogger {
	t.Helper()
	provider, _ := log.NewTestLoggerProvider(log.LevelInfo)
	log.SetProvider(provider)
	t.Cleanup(func() {
		log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo, "json"))
	})
	return provider.Logger()
}

func TestRunEndToEnd(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{belowFloor: 15, low: 120, mid: 100, veryHigh: 10}))
	cfg.Output.SQLite = true
	cfg.Output.Plots = true
	cfg.Output.Models = true

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 230, summary.NumRecords, "rows below the floor are dropped")
	assert.Contains(t, summary.Report.Features, "sumlivingareasqft")
	assert.Contains(t, summary.Report.Features, "log_sqft")
	assert.Contains(t, summary.Report.Features, "per_gop")

	res := summary.Result
	require.Len(t, res.TierMetrics, 2, "very_high has too few rows")
	assert.Equal(t, "low", res.TierMetrics[0].Tier)
	assert.Equal(t, "mid", res.TierMetrics[1].Tier)
	assert.Equal(t, 24, res.TierMetrics[0].NTest)
	assert.Equal(t, 96, res.TierMetrics[0].NTrain)
	assert.Len(t, res.Predictions, 24+20)
	assert.Len(t, res.DepthTrace, 4)
	assert.Equal(t, []int{2, 4}, res.DepthsTested)
	for _, tm := range res.TierMetrics {
		assert.Contains(t, []int{2, 4}, tm.BestDepth)
		assert.Less(t, tm.MAPE, 25.0, tm.Tier)
	}

	sum := 0.0
	for _, fi := range res.Importance {
		sum += fi.Importance
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for _, name := range []string{
		export.PredictionsFile,
		export.FeatureImportanceFile,
		export.TierMetricsFile,
		export.DepthComparisonFile,
		export.TierImportanceFile,
		export.DepthSearchPlot,
		export.ActualVsPredictedPlot,
		"results.sqlite",
		filepath.Join(export.ModelsDir, "low.json"),
		filepath.Join(export.ModelsDir, "mid.json"),
	} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, name))
	}
	assert.Len(t, summary.Files, 10)

	assert.Len(t, logs.TierEntries("very_high", "Tier skipped"), 1)
	assert.True(t, logs.ContainsMessage("Run finished"))

	var out bytes.Buffer
	require.NoError(t, summary.Print(&out))
	assert.Contains(t, out.String(), summary.RunID)
}

func TestRunParallelTiersKeepsOrder(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	input := writeProperties(t, dir, tierCounts{low: 80, mid: 80})

	seq := testConfig(t, input)
	par := testConfig(t, input)
	par.ParallelTiers = true

	a, err := Run(context.Background(), seq)
	require.NoError(t, err)
	b, err := Run(context.Background(), par)
	require.NoError(t, err)

	require.Len(t, b.Result.TierMetrics, 2)
	assert.Equal(t, "low", b.Result.TierMetrics[0].Tier)
	assert.Equal(t, "mid", b.Result.TierMetrics[1].Tier)
	assert.Equal(t, len(a.Result.Predictions), len(b.Result.Predictions))
	for i := range a.Result.Predictions {
		assert.Equal(t, a.Result.Predictions[i].Tier, b.Result.Predictions[i].Tier)
		assert.Equal(t, a.Result.Predictions[i].Actual, b.Result.Predictions[i].Actual)
	}
}

func TestRunNoEligibleTier(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{low: 20, mid: 30}))

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoTierResults))
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRunMissingPriceColumn(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "no_price.csv")
	require.NoError(t, os.WriteFile(path, []byte("sumlivingareasqft,yearbuilt\n1500,1990\n"), 0o644))
	cfg := testConfig(t, path)

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	var mce *errors.MissingColumnError
	assert.True(t, errors.As(err, &mce))
	assert.NoDirExists(t, cfg.OutputDir)
}

type failingRegressor struct {
	model.BaseEstimator
}

func (f *failingRegressor) Fit(X, y mat.Matrix) error { return errors.New("solver diverged") }

func (f *failingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return nil, errors.NewNotFittedError("failingRegressor", "Predict")
}

func (f *failingRegressor) FeatureImportances() ([]float64, error) { return nil, nil }

func TestRunFitFailureWritesNothing(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{low: 60, mid: 60}))

	p := New(cfg, WithFactory(func(int) model.Regressor { return &failingRegressor{} }))
	_, err := p.Run(context.Background())
	require.Error(t, err)

	var fe *errors.FitError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "low", fe.Tier)
	assert.NoDirExists(t, cfg.OutputDir)
}

// meanRegressor fits fine but has no model document to export.
type meanRegressor struct {
	model.BaseEstimator
	mean float64
}

func (m *meanRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	for i := 0; i < r; i++ {
		m.mean += y.At(i, 0) / float64(r)
	}
	m.SetFitted(c)
	return nil
}

func (m *meanRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.mean)
	}
	return out, nil
}

func (m *meanRegressor) FeatureImportances() ([]float64, error) {
	return make([]float64, m.NFeatures()), nil
}

// assertNoStaging checks that no staging directory is left next to dir.
func assertNoStaging(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".avm-"), "leftover %s", e.Name())
	}
}

func TestRunModelExportFailureWritesNothing(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{low: 60, mid: 60}))
	cfg.Output.Models = true

	p := New(cfg, WithFactory(func(int) model.Regressor { return &meanRegressor{} }))
	_, err := p.Run(context.Background())
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, export.PredictionsFile))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, export.TierMetricsFile))
	assert.NoDirExists(t, cfg.OutputDir)
	assertNoStaging(t, cfg.OutputDir)
}

func TestRunSQLiteFailureWritesNothing(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{low: 60, mid: 60}))
	cfg.Output.SQLite = true
	// a directory cannot be opened as a database
	cfg.Output.SQLitePath = t.TempDir()

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, export.PredictionsFile))
	assert.NoDirExists(t, cfg.OutputDir)
	assertNoStaging(t, cfg.OutputDir)
	assert.DirExists(t, cfg.Output.SQLitePath)
}

func TestRunCancelled(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := testConfig(t, writeProperties(t, dir, tierCounts{low: 60}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestBoosterParams(t *testing.T) {
	cfg := config.Default()
	cfg.Booster.NEstimators = 12
	cfg.Booster.QuantileAlpha = 0.4
	cfg.RandomSeed = 7

	p := BoosterParams(cfg)
	assert.Equal(t, 12, p.NEstimators)
	assert.Equal(t, 0.4, p.Alpha)
	assert.Equal(t, int64(7), p.Seed)
	assert.Equal(t, "quantile", p.Objective)
	require.NoError(t, p.Validate())
}

func TestRunRejectsInvalidBooster(t *testing.T) {
	captureLogs(t)
	cfg := testConfig(t, filepath.Join(t.TempDir(), "unused.csv"))
	cfg.Booster.Objective = "poisson"

	_, err := Run(context.Background(), cfg)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "objective", ve.ParamName)
}
