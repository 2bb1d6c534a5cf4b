// Package config defines the immutable run configuration of the valuation
// pipeline: price floor, split, depth search, price tiers, the feature
// taxonomy and booster settings.
//
// Values come from Default(), overlaid by an optional YAML file, then by
// environment variables prefixed with AVM_ (a .env file in the working
// directory is loaded first when present).
package config

import (
	"math"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "AVM_"

// Config defines the structure for all pipeline configuration.
type Config struct {
	Settings `yaml:",inline"`

	Tiers          Tiers             `yaml:"tiers"`
	ColumnMappings map[string]string `yaml:"column_mappings"` // merged over the defaults
	FeatureGroups  []FeatureGroup    `yaml:"feature_groups"`
}

// Settings are the scalar options that environment variables may override.
type Settings struct {
	InputPath string `yaml:"input_path" env:"INPUT_PATH"`
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"` // json or console

	MinPrice       float64 `yaml:"min_price" env:"MIN_PRICE"`
	TestSize       float64 `yaml:"test_size" env:"TEST_SIZE"`
	RandomSeed     int64   `yaml:"random_state" env:"RANDOM_STATE"`
	TreeDepths     []int   `yaml:"tree_depths" env:"TREE_DEPTHS" envSeparator:","`
	MinTierSamples int     `yaml:"min_tier_samples" env:"MIN_TIER_SAMPLES"`
	ReferenceYear  int     `yaml:"reference_year" env:"REFERENCE_YEAR"`
	ParallelTiers  bool    `yaml:"parallel_tiers" env:"PARALLEL_TIERS"`

	Booster Booster `yaml:"booster" envPrefix:"BOOSTER_"`
	Output  Output  `yaml:"output" envPrefix:"OUTPUT_"`
}

// Booster holds the regressor settings shared by every depth candidate.
type Booster struct {
	NEstimators     int     `yaml:"n_estimators" env:"N_ESTIMATORS"`
	LearningRate    float64 `yaml:"learning_rate" env:"LEARNING_RATE"`
	Subsample       float64 `yaml:"subsample" env:"SUBSAMPLE"`
	ColsampleByTree float64 `yaml:"colsample_bytree" env:"COLSAMPLE_BYTREE"`
	Lambda          float64 `yaml:"reg_lambda" env:"REG_LAMBDA"`
	MinChildWeight  float64 `yaml:"min_child_weight" env:"MIN_CHILD_WEIGHT"`
	MaxBin          int     `yaml:"max_bin" env:"MAX_BIN"`
	Objective       string  `yaml:"objective" env:"OBJECTIVE"`
	QuantileAlpha   float64 `yaml:"quantile_alpha" env:"QUANTILE_ALPHA"`
	NumThreads      int     `yaml:"n_jobs" env:"N_JOBS"`
	ImportanceType  string  `yaml:"importance_type" env:"IMPORTANCE_TYPE"`
}

// Output selects the optional sinks. CSV files are always written.
type Output struct {
	SQLite     bool   `yaml:"sqlite" env:"SQLITE"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"` // relative to OutputDir
	Plots      bool   `yaml:"plots" env:"PLOTS"`
	Models     bool   `yaml:"models" env:"MODELS"` // one JSON model per tier under models/
	TopN       int    `yaml:"top_features" env:"TOP_FEATURES"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Settings: Settings{
			InputPath: "data/properties.csv",
			OutputDir: "output",
			LogLevel:  "info",
			LogFormat: "console",

			MinPrice:       100_000,
			TestSize:       0.2,
			RandomSeed:     42,
			TreeDepths:     []int{6, 8, 10, 12, 14, 16},
			MinTierSamples: 50,
			ReferenceYear:  2024,

			Booster: Booster{
				NEstimators:     500,
				LearningRate:    0.05,
				Subsample:       0.8,
				ColsampleByTree: 0.8,
				Lambda:          1.0,
				MinChildWeight:  1.0,
				MaxBin:          256,
				Objective:       "quantile",
				QuantileAlpha:   0.5,
				NumThreads:      -1,
				ImportanceType:  "gain",
			},
			Output: Output{
				SQLitePath: "results.sqlite",
				TopN:       20,
			},
		},
		Tiers:          DefaultTiers(),
		ColumnMappings: DefaultColumnMappings(),
		FeatureGroups:  DefaultFeatureGroups(),
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty), a .env file if present and AVM_ environment
// variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a validated configuration from YAML bytes over the defaults.
// The environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays AVM_ prefixed environment variables onto the scalar
// settings of cfg. Tiers and the taxonomy are file-only.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(&cfg.Settings, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

// loadDotEnv loads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// normalize lower-cases names so they compare with the lower-cased headers.
func (c *Config) normalize() {
	mappings := make(map[string]string, len(c.ColumnMappings))
	// 大文字を含むキーはYAMLで追加されたものなので、既存の小文字キーより優先する
	for _, exact := range []bool{true, false} {
		for k, v := range c.ColumnMappings {
			key := strings.ToLower(strings.TrimSpace(k))
			if (key == k) == exact {
				mappings[key] = strings.ToLower(strings.TrimSpace(v))
			}
		}
	}
	c.ColumnMappings = mappings

	for i := range c.FeatureGroups {
		for j, f := range c.FeatureGroups[i].Features {
			c.FeatureGroups[i].Features[j] = strings.ToLower(strings.TrimSpace(f))
		}
	}
}

// Column returns the actual column name for a canonical feature name.
func (c *Config) Column(canonical string) string {
	key := strings.ToLower(canonical)
	if actual, ok := c.ColumnMappings[key]; ok {
		return actual
	}
	return key
}

// PriceColumn returns the actual name of the target column.
func (c *Config) PriceColumn() string {
	return c.Column(FeaturePrice)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinPrice < 0 || math.IsNaN(c.MinPrice) {
		return errors.NewValidationError("min_price", "must be non-negative", c.MinPrice)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	}
	if len(c.TreeDepths) == 0 {
		return errors.NewValidationError("tree_depths", "at least one depth is required", c.TreeDepths)
	}
	seen := make(map[int]bool, len(c.TreeDepths))
	for _, d := range c.TreeDepths {
		if d <= 0 {
			return errors.NewValidationError("tree_depths", "depths must be positive", c.TreeDepths)
		}
		if seen[d] {
			return errors.NewValidationError("tree_depths", "depths must be unique", c.TreeDepths)
		}
		seen[d] = true
	}
	// 最小サンプル数の価格帯でも学習側・評価側に2行ずつ残ること
	// (n が増えても両側の行数は減らない)
	nTest := int(math.Ceil(c.TestSize * float64(c.MinTierSamples)))
	if nTest < 2 || c.MinTierSamples-nTest < 2 {
		return errors.NewValidationError("min_tier_samples",
			"too small to leave 2 training and 2 test rows with test_size", c.MinTierSamples)
	}
	if err := validateTiers(c.Tiers); err != nil {
		return err
	}
	if len(c.FeatureGroups) == 0 {
		return errors.NewValidationError("feature_groups", "at least one group is required", nil)
	}
	groups := make(map[string]bool, len(c.FeatureGroups))
	for _, g := range c.FeatureGroups {
		if g.Name == "" || groups[g.Name] {
			return errors.NewValidationError("feature_groups", "group names must be unique and non-empty", g.Name)
		}
		groups[g.Name] = true
	}
	if c.Booster.NEstimators <= 0 {
		return errors.NewValidationError("booster.n_estimators", "must be positive", c.Booster.NEstimators)
	}
	if c.Booster.LearningRate <= 0 {
		return errors.NewValidationError("booster.learning_rate", "must be positive", c.Booster.LearningRate)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return errors.NewValidationError("log_format", "must be json or console", c.LogFormat)
	}
	return nil
}

// validateTiers requires a non-empty, contiguous, disjoint partition of
// [0, +Inf): the first tier starts at or below 0, each tier starts where the
// previous one ends, and only the last tier is unbounded.
func validateTiers(tiers Tiers) error {
	if len(tiers) == 0 {
		return errors.NewValidationError("tiers", "at least one tier is required", nil)
	}
	if tiers[0].Low > 0 {
		return errors.NewValidationError("tiers", "first tier must start at 0", tiers[0].Low)
	}
	names := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.Name == "" || names[t.Name] {
			return errors.NewValidationError("tiers", "tier names must be unique and non-empty", t.Name)
		}
		names[t.Name] = true
		if !(t.Low < t.High) {
			return errors.NewValidationError("tiers", "low must be below high", t.Name)
		}
		if i > 0 && tiers[i-1].High != t.Low {
			return errors.NewValidationError("tiers", "tiers must be contiguous", t.Name)
		}
	}
	if last := tiers[len(tiers)-1]; !math.IsInf(last.High, 1) {
		return errors.NewValidationError("tiers", "last tier must be unbounded", last.Name)
	}
	return nil
}
