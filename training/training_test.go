package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/dataset"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// mockRegressor predicts a fixed log-price per depth and records its inputs.
type mockRegressor struct {
	model.BaseEstimator
	logPrice    float64
	importances []float64
	fitErr      error

	fitX     *mat.Dense
	fitY     []float64
	predictX *mat.Dense
}

func (m *mockRegressor) Fit(X, y mat.Matrix) error {
	if m.fitErr != nil {
		return m.fitErr
	}
	m.fitX = mat.DenseCopyOf(X)
	r, c := X.Dims()
	m.fitY = make([]float64, r)
	for i := range m.fitY {
		m.fitY[i] = y.At(i, 0)
	}
	m.SetFitted(c)
	return nil
}

func (m *mockRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	m.predictX = mat.DenseCopyOf(X)
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.logPrice)
	}
	return out, nil
}

func (m *mockRegressor) FeatureImportances() ([]float64, error) {
	return m.importances, nil
}

// mockFactory returns regressors predicting the given price per depth and
// keeps every regressor it built.
type mockFactory struct {
	prices      map[int]float64
	importances []float64
	fitErr      error
	built       []*mockRegressor
}

func (f *mockFactory) New(depth int) model.Regressor {
	reg := &mockRegressor{
		logPrice:    math.Log1p(f.prices[depth]),
		importances: f.importances,
		fitErr:      f.fitErr,
	}
	f.built = append(f.built, reg)
	return reg
}

// tierTable builds n rows with constant price and two features; every third
// value of "b" is missing.
func tierTable(t *testing.T, n int, price float64) *dataset.Table {
	t.Helper()
	prices := make([]float64, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = price
		a[i] = float64(i)
		b[i] = float64(i * 10)
		if i%3 == 0 {
			b[i] = math.NaN()
		}
	}
	tbl, err := dataset.NewTable([]string{"price", "a", "b"}, [][]float64{prices, a, b})
	require.NoError(t, err)
	return tbl
}

func newTestTrainer(f *mockFactory, depths ...int) *Trainer {
	cfg := config.Default()
	cfg.TreeDepths = depths
	return NewTrainer(cfg, f.New)
}

func TestTrainTestSplit(t *testing.T) {
	s1, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, s1.Test, 20)
	assert.Len(t, s1.Train, 80)

	s2, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, s1, s2, "same seed must give the same split")

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, s1.Train...), s1.Test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 100)

	s3, err := TrainTestSplit(51, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, s3.Test, 11, "test size is rounded up")

	_, err = TrainTestSplit(3, 0.2, 42)
	assert.Error(t, err)
	_, err = TrainTestSplit(10, 0, 42)
	assert.Error(t, err)
}

func TestTrainSelectsLowestMAPE(t *testing.T) {
	f := &mockFactory{
		prices:      map[int]float64{6: 260_000, 8: 210_000, 10: 230_000},
		importances: []float64{0.25, 0.75},
	}
	res, err := newTestTrainer(f, 6, 8, 10).Train(context.Background(), "low", tierTable(t, 60, 200_000), []string{"a", "b"}, "price")
	require.NoError(t, err)

	assert.Equal(t, 8, res.BestDepth)
	assert.InDelta(t, 5.0, res.Metrics.MAPE, 1e-6)
	assert.Equal(t, 48, res.NTrain)
	assert.Equal(t, 12, res.NTest)
	assert.Len(t, res.Actual, 12)
	assert.Len(t, res.Predicted, 12)
	assert.InDelta(t, 210_000, res.Predicted[0], 1e-6)
	assert.Same(t, f.built[1], res.Model)

	require.Len(t, res.Trace, 3)
	for i, depth := range []int{6, 8, 10} {
		assert.Equal(t, depth, res.Trace[i].Depth)
		assert.Equal(t, "low", res.Trace[i].Tier)
		assert.LessOrEqual(t, res.Metrics.MAPE, res.Trace[i].MAPE)
	}

	assert.Equal(t, []FeatureImportance{{"b", 0.75}, {"a", 0.25}}, res.Importances)
}

func TestTrainTieKeepsFirstDepth(t *testing.T) {
	f := &mockFactory{prices: map[int]float64{6: 210_000, 8: 210_000}, importances: []float64{1, 0}}
	res, err := newTestTrainer(f, 6, 8).Train(context.Background(), "low", tierTable(t, 60, 200_000), []string{"a", "b"}, "price")
	require.NoError(t, err)

	assert.Equal(t, 6, res.BestDepth)
	assert.Equal(t, res.Trace[0].MAPE, res.Trace[1].MAPE)
	assert.InDelta(t, 5.0, res.Metrics.MAPE, 1e-6)
}

func TestTrainFitsInLogSpaceOnTrainingRowsOnly(t *testing.T) {
	f := &mockFactory{prices: map[int]float64{6: 200_000}, importances: []float64{0, 0}}
	tbl := tierTable(t, 60, 200_000)
	tr := newTestTrainer(f, 6)

	res, err := tr.Train(context.Background(), "low", tbl, []string{"a", "b"}, "price")
	require.NoError(t, err)

	reg := f.built[0]
	r, c := reg.fitX.Dims()
	assert.Equal(t, res.NTrain, r)
	assert.Equal(t, 2, c)
	for _, y := range reg.fitY {
		assert.InDelta(t, math.Log1p(200_000), y, 1e-12)
	}
	for i := 0; i < r; i++ {
		assert.False(t, math.IsNaN(reg.fitX.At(i, 1)), "training matrix must be imputed")
	}
}

func TestTrainImputationIgnoresEvaluationRows(t *testing.T) {
	split, err := TrainTestSplit(60, 0.2, 42)
	require.NoError(t, err)

	fitWith := func(testValue float64) (fitX, predictX *mat.Dense) {
		tbl := tierTable(t, 60, 200_000)
		b, _ := tbl.Column("b")
		for _, i := range split.Test {
			if !math.IsNaN(b[i]) {
				b[i] = testValue
			}
		}
		f := &mockFactory{prices: map[int]float64{6: 200_000}, importances: []float64{0, 0}}
		_, err := newTestTrainer(f, 6).Train(context.Background(), "low", tbl, []string{"a", "b"}, "price")
		require.NoError(t, err)
		return f.built[0].fitX, f.built[0].predictX
	}

	lowFit, lowPredict := fitWith(-1e9)
	highFit, highPredict := fitWith(1e9)
	assert.True(t, mat.Equal(lowFit, highFit),
		"changing evaluation values must not change the imputed training matrix")

	// 評価側の欠損は学習側の中央値で埋まり、評価側の値に引きずられない
	imputed := 0
	for k, i := range split.Test {
		if i%3 != 0 {
			continue
		}
		imputed++
		low, high := lowPredict.At(k, 1), highPredict.At(k, 1)
		assert.Equal(t, low, high, "evaluation row %d", i)
		assert.Less(t, math.Abs(low), 1e6, "evaluation row %d", i)
	}
	require.Positive(t, imputed, "split must hold evaluation rows with a missing b")
}

func TestTrainSkipsSmallTier(t *testing.T) {
	f := &mockFactory{prices: map[int]float64{6: 1}}
	tr := newTestTrainer(f, 6)

	assert.False(t, tr.Eligible(40))
	res, err := tr.Train(context.Background(), "mid", tierTable(t, 40, 450_000), []string{"a"}, "price")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrInsufficientSamples))
	assert.Empty(t, f.built, "no model is trained for a skipped tier")
}

func TestTrainSkipsTierTooSmallToSplit(t *testing.T) {
	f := &mockFactory{prices: map[int]float64{6: 1}}
	tr := newTestTrainer(f, 6)
	tr.MinSamples = 2

	// ceil(0.2*5) = 1 evaluation row
	assert.False(t, tr.Eligible(5))
	assert.True(t, tr.Eligible(10))
	res, err := tr.Train(context.Background(), "very_high", tierTable(t, 5, 2_000_000), []string{"a"}, "price")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errors.ErrInsufficientSamples))
	assert.Empty(t, f.built)
}

func TestSplittable(t *testing.T) {
	assert.False(t, Splittable(5, 0.2))
	assert.True(t, Splittable(10, 0.2))
	assert.False(t, Splittable(4, 0.6), "one training row left")
	assert.True(t, Splittable(4, 0.5))
}

func TestTrainFitFailureIsFatal(t *testing.T) {
	f := &mockFactory{prices: map[int]float64{6: 1}, fitErr: errors.New("boom")}
	_, err := newTestTrainer(f, 6).Train(context.Background(), "mid", tierTable(t, 60, 450_000), []string{"a"}, "price")

	var fe *errors.FitError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "mid", fe.Tier)
	assert.Equal(t, 6, fe.Depth)
}

func TestTrainHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &mockFactory{prices: map[int]float64{6: 1}}
	_, err := newTestTrainer(f, 6).Train(ctx, "mid", tierTable(t, 60, 450_000), []string{"a"}, "price")
	assert.ErrorIs(t, err, context.Canceled)
}
