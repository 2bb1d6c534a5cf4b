// Package training trains and selects one regressor per price tier.
//
// For a tier the rows are split once, missing values are imputed with
// training medians, and one regressor per configured depth is fitted in
// log-price space. The depth with the lowest held-out MAPE wins; an exact tie
// keeps the earlier depth.
package training

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/dataset"
	"github.com/YuminosukeSato/tieravm/metrics"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
	"github.com/YuminosukeSato/tieravm/preprocessing"
)

// DepthMetrics is one row of the depth-search trace.
type DepthMetrics struct {
	Tier  string
	Depth int
	metrics.Regression
}

// FeatureImportance pairs a feature with the importance reported by a model.
type FeatureImportance struct {
	Feature    string
	Importance float64
}

// TierResult is the outcome of training one tier. It is not modified after
// Train returns.
type TierResult struct {
	Tier      string
	NTrain    int
	NTest     int
	BestDepth int
	Metrics   metrics.Regression

	Model model.Regressor

	// Held-out rows in split order, raw price units.
	Actual    []float64
	Predicted []float64

	// Importances of the selected model, sorted descending.
	Importances []FeatureImportance

	// Trace has one entry per depth candidate in configured order.
	Trace []DepthMetrics
}

// Trainer trains tiers with a fixed configuration.
type Trainer struct {
	Depths     []int
	TestSize   float64
	Seed       int64
	MinSamples int
	Factory    model.RegressorFactory
}

// NewTrainer creates a Trainer from the run configuration.
func NewTrainer(cfg *config.Config, factory model.RegressorFactory) *Trainer {
	return &Trainer{
		Depths:     append([]int(nil), cfg.TreeDepths...),
		TestSize:   cfg.TestSize,
		Seed:       cfg.RandomSeed,
		MinSamples: cfg.MinTierSamples,
		Factory:    factory,
	}
}

// Eligible reports whether a tier with n rows is trained at all: it needs
// MinSamples rows and enough of them to split.
func (t *Trainer) Eligible(n int) bool {
	return n >= t.MinSamples && Splittable(n, t.TestSize)
}

// Train runs the depth search for one tier. tbl holds only the tier's rows.
//
// A tier below the minimum size returns an error wrapping
// errors.ErrInsufficientSamples. Any regressor failure is returned as a
// FitError and must stop the run.
func (t *Trainer) Train(ctx context.Context, tier string, tbl *dataset.Table, features []string, priceCol string) (*TierResult, error) {
	logger := log.GetLoggerWithName("training").With(log.TierKey, tier)

	n := tbl.NumRows()
	if !t.Eligible(n) {
		logger.Info("Tier skipped", log.SamplesKey, n, "min_samples", t.MinSamples)
		return nil, errors.Wrapf(errors.ErrInsufficientSamples, "tier %s has %d rows, need %d", tier, n, t.MinSamples)
	}
	if len(t.Depths) == 0 {
		return nil, errors.NewValueError("Trainer.Train", "no depth candidates")
	}

	X, err := tbl.Matrix(features)
	if err != nil {
		return nil, err
	}
	prices, ok := tbl.Column(priceCol)
	if !ok {
		return nil, errors.NewMissingColumnError(priceCol, config.FeaturePrice)
	}

	split, err := TrainTestSplit(n, t.TestSize, t.Seed)
	if err != nil {
		return nil, errors.Wrapf(err, "split tier %s", tier)
	}

	// 中央値は学習側だけから計算し、評価側にもその値を使う
	imputer := preprocessing.NewMedianImputer(features)
	XTrain, err := imputer.FitTransform(selectRows(X, split.Train))
	if err != nil {
		return nil, err
	}
	XTest, err := imputer.Transform(selectRows(X, split.Test))
	if err != nil {
		return nil, err
	}

	yTrain := mat.NewVecDense(len(split.Train), nil)
	for k, i := range split.Train {
		yTrain.SetVec(k, math.Log1p(prices[i]))
	}
	actual := make([]float64, len(split.Test))
	for k, i := range split.Test {
		actual[k] = prices[i]
	}

	logger.Info("Training tier",
		log.TrainSamplesKey, len(split.Train),
		log.TestSamplesKey, len(split.Test),
		log.FeaturesKey, len(features),
	)

	result := &TierResult{
		Tier:   tier,
		NTrain: len(split.Train),
		NTest:  len(split.Test),
		Actual: actual,
		Trace:  make([]DepthMetrics, 0, len(t.Depths)),
	}

	found := false
	for _, depth := range t.Depths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		reg := t.Factory(depth)
		if err := reg.Fit(XTrain, yTrain); err != nil {
			return nil, errors.NewFitError(tier, depth, err)
		}
		predicted, err := predictPrices(reg, XTest)
		if err != nil {
			return nil, errors.NewFitError(tier, depth, err)
		}
		m, err := metrics.Evaluate(actual, predicted)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate tier %s depth %d", tier, depth)
		}

		result.Trace = append(result.Trace, DepthMetrics{Tier: tier, Depth: depth, Regression: m})
		logger.Info("Depth candidate scored",
			log.DepthKey, depth,
			log.MAEKey, m.MAE,
			log.MAPEKey, m.MAPE,
			log.R2ScoreKey, m.R2,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)

		// 厳密に改善した場合だけ更新する（同値なら先の深さを残す）
		if !found || m.MAPE < result.Metrics.MAPE {
			found = true
			result.BestDepth = depth
			result.Metrics = m
			result.Model = reg
			result.Predicted = predicted
		}
	}

	importances, err := result.Model.FeatureImportances()
	if err != nil {
		return nil, errors.NewFitError(tier, result.BestDepth, err)
	}
	result.Importances = rankImportances(features, importances)

	logger.Info("Tier trained",
		log.BestDepthKey, result.BestDepth,
		log.MAEKey, result.Metrics.MAE,
		log.MAPEKey, result.Metrics.MAPE,
		log.R2ScoreKey, result.Metrics.R2,
	)
	return result, nil
}

// predictPrices predicts in log space and maps back with exp(p)-1.
func predictPrices(reg model.Predictor, X mat.Matrix) ([]float64, error) {
	pred, err := reg.Predict(X)
	if err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	if r, c := pred.Dims(); r != rows || c != 1 {
		return nil, errors.NewDimensionError("predictPrices", rows, r, 0)
	}
	out := make([]float64, rows)
	for i := range out {
		out[i] = math.Expm1(pred.At(i, 0))
	}
	return out, nil
}

// rankImportances pairs importances with feature names, highest first.
func rankImportances(features []string, importances []float64) []FeatureImportance {
	ranked := make([]FeatureImportance, 0, len(features))
	for j, f := range features {
		var v float64
		if j < len(importances) {
			v = importances[j]
		}
		ranked = append(ranked, FeatureImportance{Feature: f, Importance: v})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	return ranked
}

func selectRows(X *mat.Dense, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for k, i := range rows {
		out.SetRow(k, X.RawRowView(i))
	}
	return out
}
