// Package log defines standard attribute keys for pipeline logging.
//
// Using these keys keeps per-tier progress, depth-search traces and failures
// filterable across the whole run. Keys follow a hierarchical naming
// convention (e.g. "avm.tier", "data.samples").

package log

// Run and component context
const (
	// RunIDKey identifies one pipeline execution.
	RunIDKey = "avm.run_id"

	// ComponentKey identifies which package is logging.
	// Examples: "features", "training", "export"
	ComponentKey = "ml.component"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "impute", "export"
	OperationKey = "ml.operation"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"

	// ModelNameKey identifies the regressor type.
	ModelNameKey = "model.name"
)

// Stratification and model search
const (
	// TierKey is the price tier name.
	TierKey = "avm.tier"

	// DepthKey is the tree depth of a candidate.
	DepthKey = "avm.depth"

	// BestDepthKey is the depth selected for a tier.
	BestDepthKey = "avm.best_depth"

	// FeatureGroupKey is a feature taxonomy group name.
	FeatureGroupKey = "avm.feature_group"

	// PathKey is an input or output file path.
	PathKey = "io.path"
)

// Data shape
const (
	// SamplesKey indicates the number of records.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features.
	FeaturesKey = "data.features"

	// TrainSamplesKey is the size of the training part of a tier.
	TrainSamplesKey = "data.train_samples"

	// TestSamplesKey is the size of the held-out part of a tier.
	TestSamplesKey = "data.test_samples"
)

// Metrics and timing
const (
	MAEKey     = "metrics.mae"
	MAPEKey    = "metrics.mape"
	R2ScoreKey = "metrics.r2_score"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// DurationSecondsKey records the execution time in seconds.
	DurationSecondsKey = "perf.duration_seconds"

	// IterationKey records the current boosting iteration.
	IterationKey = "training.iteration"

	// LossKey records training loss.
	LossKey = "metrics.loss"
)

// Hyperparameters
const (
	LearningRateKey = "hyperparams.learning_rate"
	EstimatorsKey   = "hyperparams.n_estimators"
	RandomSeedKey   = "config.random_seed"
)

// Error context
const (
	ErrorCodeKey  = "error.code"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationImpute  = "impute"
	OperationExport  = "export"

	PhaseLoading     = "loading"
	PhaseEngineering = "engineering"
	PhaseTraining    = "training"
	PhaseAggregation = "aggregation"
	PhaseExport      = "export"

	ErrorMissingColumn = "MISSING_COLUMN"
	ErrorFitFailure    = "FIT_FAILURE"
	ErrorNoResults     = "NO_RESULTS"
)
