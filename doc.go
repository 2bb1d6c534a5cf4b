// Package tieravm provides a depth-tuned, price-stratified automated
// valuation model (AVM) for residential property sales.
//
// Records are partitioned into fixed price tiers. Every tier with enough
// records gets its own gradient-boosted tree regressor trained on log-price,
// and the tree depth is chosen per tier by held-out MAPE. The per-tier
// predictions are pooled into overall metrics and an averaged feature
// importance ranking.
//
// # Features
//
// - Configurable feature taxonomy: base, census, political and image-derived
// boolean groups, resolved against whatever columns the input provides
// - Engineered features: sqft per bedroom, lot-to-living ratio, property age,
// garage flag and log living area
// - Histogram gradient boosting with a median (quantile) objective
// - Training-only median imputation, so held-out rows never leak
// - CSV tables, an optional SQLite results database, charts and saved models
//
// # Quick Start
//
// Run the pipeline from the command line:
//
//	go run ./cmd/avm -config avm.yaml
//
// or from Go:
//
//	cfg, err := config.Load("avm.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := pipeline.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary.Print(os.Stdout)
//
// # Configuration
//
// Every setting has a default. A YAML file overrides the defaults, and
// AVM_ prefixed environment variables (also read from a .env file)
// override scalar settings:
//
//	AVM_INPUT_PATH=data/sales.csv
//	AVM_TREE_DEPTHS=6,8,10
//	AVM_BOOSTER_N_ESTIMATORS=300
//	AVM_OUTPUT_SQLITE=true
//
// # Packages
//
//   - config: tiers, taxonomy, booster and output settings
//   - dataset: CSV loading into a column-oriented table
//   - features: taxonomy resolution and feature engineering
//   - training: train/test split and per-tier depth search
//   - sklearn/gbm: the gradient-boosted regressor
//   - aggregate: pooled metrics and importance ranking
//   - export: CSV, SQLite, chart and model sinks, console summary
//   - pipeline: the end-to-end driver
package tieravm
