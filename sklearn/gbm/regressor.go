// Package gbm implements a histogram based gradient boosted tree regressor
// with XGBoost style defaults, used as the regressor behind each depth
// candidate of tier training.
package gbm

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/core/parallel"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Feature importance types
const (
	ImportanceGain      = "gain"       // mean gain per split
	ImportanceTotalGain = "total_gain" // summed gain
	ImportanceSplit     = "split"      // number of splits ("weight" in XGBoost)
)

// Params contains the boosting hyperparameters
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"` // <= 0 means unlimited
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Lambda          float64 `json:"reg_lambda"`
	MinChildWeight  float64 `json:"min_child_weight"`
	MaxBin          int     `json:"max_bin"`
	Objective       string  `json:"objective"`
	Alpha           float64 `json:"quantile_alpha"`
	Seed            int64   `json:"random_state"`
	NumThreads      int     `json:"n_jobs"` // <= 0 uses all cores
	ImportanceType  string  `json:"importance_type"`
}

// DefaultParams returns the median regression setup used for price models.
func DefaultParams() Params {
	return Params{
		NEstimators:     500,
		LearningRate:    0.05,
		MaxDepth:        6,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1.0,
		MinChildWeight:  1.0,
		MaxBin:          256,
		Objective:       "quantile",
		Alpha:           0.5,
		Seed:            42,
		NumThreads:      -1,
		ImportanceType:  ImportanceGain,
	}
}

// Validate checks the hyperparameters.
func (p Params) Validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.NewValidationError("n_estimators", "must be positive", p.NEstimators)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleByTree)
	case p.Lambda < 0:
		return errors.NewValidationError("reg_lambda", "must be non-negative", p.Lambda)
	case p.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be non-negative", p.MinChildWeight)
	case p.MaxBin < 2 || p.MaxBin > math.MaxUint16-1:
		return errors.NewValidationError("max_bin", "must be in [2, 65534]", p.MaxBin)
	case p.Alpha <= 0 || p.Alpha >= 1:
		return errors.NewValidationError("quantile_alpha", "must be in (0, 1)", p.Alpha)
	}
	switch p.ImportanceType {
	case ImportanceGain, ImportanceTotalGain, ImportanceSplit, "weight":
	default:
		return errors.NewValidationError("importance_type", "must be gain, total_gain or split", p.ImportanceType)
	}
	if _, err := CreateObjectiveFunction(p.Objective, p.Alpha); err != nil {
		return errors.NewValidationError("objective", err.Error(), p.Objective)
	}
	return nil
}

// Option configures a Regressor
type Option func(*Params)

// WithMaxDepth sets the maximum tree depth
func WithMaxDepth(depth int) Option {
	return func(p *Params) {
		p.MaxDepth = depth
	}
}

// WithNEstimators sets the number of boosting rounds
func WithNEstimators(n int) Option {
	return func(p *Params) {
		p.NEstimators = n
	}
}

// WithLearningRate sets the shrinkage applied to every tree
func WithLearningRate(lr float64) Option {
	return func(p *Params) {
		p.LearningRate = lr
	}
}

// WithSubsample sets the row sampling ratio per tree
func WithSubsample(ratio float64) Option {
	return func(p *Params) {
		p.Subsample = ratio
	}
}

// WithColsampleByTree sets the feature sampling ratio per tree
func WithColsampleByTree(ratio float64) Option {
	return func(p *Params) {
		p.ColsampleByTree = ratio
	}
}

// WithObjective sets the loss ("quantile" or "l2") and the quantile level
func WithObjective(name string, alpha float64) Option {
	return func(p *Params) {
		p.Objective = name
		p.Alpha = alpha
	}
}

// WithSeed sets the random seed for row and feature sampling
func WithSeed(seed int64) Option {
	return func(p *Params) {
		p.Seed = seed
	}
}

// WithNumThreads sets the number of worker goroutines
func WithNumThreads(n int) Option {
	return func(p *Params) {
		p.NumThreads = n
	}
}

// WithImportanceType selects what FeatureImportances reports
func WithImportanceType(kind string) Option {
	return func(p *Params) {
		p.ImportanceType = kind
	}
}

// Regressor is a gradient boosted tree regressor
type Regressor struct {
	model.BaseEstimator

	Params Params

	trees      []Tree
	initScore  float64
	gainSum    []float64
	splitCount []int
	nSamples   int
}

// NewRegressor creates a regressor with DefaultParams modified by opts
func NewRegressor(opts ...Option) *Regressor {
	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}
	return &Regressor{Params: p}
}

// NewRegressorWithParams creates a regressor with the given parameters
func NewRegressorWithParams(p Params) *Regressor {
	return &Regressor{Params: p}
}

// Fit trains the ensemble. X may contain NaN; y must be a single finite column.
func (r *Regressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "gbm.Regressor.Fit")

	if err := r.Params.Validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("gbm.Regressor.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("gbm.Regressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("gbm.Regressor.Fit", 1, yCols, 1)
	}

	targets := make([]float64, rows)
	for i := range targets {
		targets[i] = y.At(i, 0)
	}
	if err := errors.CheckNumericalStability("gbm.Regressor.Fit", targets, 0); err != nil {
		return err
	}

	objective, err := CreateObjectiveFunction(r.Params.Objective, r.Params.Alpha)
	if err != nil {
		return errors.Wrap(err, "gbm.Regressor.Fit")
	}

	logger := log.GetLoggerWithName("gbm.regressor").With(
		log.ModelNameKey, "gbm",
		log.DepthKey, r.Params.MaxDepth,
	)
	logger.Debug("Fitting",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.EstimatorsKey, r.Params.NEstimators,
		log.LearningRateKey, r.Params.LearningRate,
	)

	t := newTrainer(r.Params, objective, logger)
	trees, initScore, err := t.train(X, targets)
	if err != nil {
		return errors.NewModelError("gbm.Regressor.Fit", "training failed", err)
	}

	r.trees = trees
	r.initScore = initScore
	r.gainSum = t.gainSum
	r.splitCount = t.splitCount
	r.nSamples = rows
	r.SetFitted(cols)
	return nil
}

// Predict returns an n×1 vector of raw scores.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("gbm.Regressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != r.NFeatures() {
		return nil, errors.NewDimensionError("gbm.Regressor.Predict", r.NFeatures(), cols, 1)
	}
	if rows == 0 {
		return nil, errors.NewValueError("gbm.Regressor.Predict", "empty data")
	}

	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, len(r.trees), parallelThreshold, r.Params.NumThreads, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			score := r.initScore
			for k := range r.trees {
				score += r.trees[k].Predict(row)
			}
			out[i] = score
		}
	})
	return mat.NewVecDense(rows, out), nil
}

// FeatureImportances returns one value per training column, normalised to sum
// to 1. Features that were never split on get 0. When no tree split at all,
// every importance is 0.
func (r *Regressor) FeatureImportances() ([]float64, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("gbm.Regressor", "FeatureImportances")
	}

	imp := make([]float64, len(r.gainSum))
	for j := range imp {
		switch r.Params.ImportanceType {
		case ImportanceTotalGain:
			imp[j] = r.gainSum[j]
		case ImportanceSplit, "weight":
			imp[j] = float64(r.splitCount[j])
		default:
			if r.splitCount[j] > 0 {
				imp[j] = r.gainSum[j] / float64(r.splitCount[j])
			}
		}
	}

	if total := floats.Sum(imp); total > 0 {
		floats.Scale(1/total, imp)
	}
	return imp, nil
}

// NumTrees returns the number of fitted trees.
func (r *Regressor) NumTrees() int {
	return len(r.trees)
}

// Trees returns the fitted trees. The slice must not be modified.
func (r *Regressor) Trees() []Tree {
	return r.trees
}

// InitScore returns the constant the ensemble starts from.
func (r *Regressor) InitScore() float64 {
	return r.initScore
}

// GetParams returns the hyperparameters in scikit-learn naming
func (r *Regressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     r.Params.NEstimators,
		"learning_rate":    r.Params.LearningRate,
		"max_depth":        r.Params.MaxDepth,
		"subsample":        r.Params.Subsample,
		"colsample_bytree": r.Params.ColsampleByTree,
		"reg_lambda":       r.Params.Lambda,
		"min_child_weight": r.Params.MinChildWeight,
		"max_bin":          r.Params.MaxBin,
		"objective":        r.Params.Objective,
		"quantile_alpha":   r.Params.Alpha,
		"random_state":     r.Params.Seed,
		"n_jobs":           r.Params.NumThreads,
		"importance_type":  r.Params.ImportanceType,
	}
}

// String returns a short description
func (r *Regressor) String() string {
	if !r.IsFitted() {
		return fmt.Sprintf("gbm.Regressor(objective=%s, max_depth=%d, n_estimators=%d)",
			r.Params.Objective, r.Params.MaxDepth, r.Params.NEstimators)
	}
	return fmt.Sprintf("gbm.Regressor(objective=%s, max_depth=%d, n_trees=%d, n_samples=%d)",
		r.Params.Objective, r.Params.MaxDepth, len(r.trees), r.nSamples)
}

// Factory returns a RegressorFactory that builds regressors from base with
// the candidate depth substituted.
func Factory(base Params) model.RegressorFactory {
	return func(maxDepth int) model.Regressor {
		p := base
		p.MaxDepth = maxDepth
		return NewRegressorWithParams(p)
	}
}
