// Package pipeline drives a full valuation run: load, engineer, resolve,
// train every eligible tier, aggregate and export.
//
// Nothing is written to the output directory until every tier has finished
// and every sink has rendered, so a failed run leaves no partial artifacts
// behind.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/dataset"
	"github.com/YuminosukeSato/tieravm/export"
	"github.com/YuminosukeSato/tieravm/features"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
	"github.com/YuminosukeSato/tieravm/sklearn/gbm"
	"github.com/YuminosukeSato/tieravm/training"
)

// Summary describes a completed run.
type Summary struct {
	export.RunInfo
	Report *features.Report
	Result *aggregate.Result
	TopN   int
	Files  []string
}

// Print writes the console summary to w.
func (s *Summary) Print(w io.Writer) error {
	return export.WriteSummary(w, export.SummaryInput{
		Run:    s.RunInfo,
		Result: s.Result,
		Report: s.Report,
		TopN:   s.TopN,
		Files:  s.Files,
	})
}

// Pipeline runs the valuation flow for one configuration.
type Pipeline struct {
	cfg     *config.Config
	factory model.RegressorFactory
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFactory replaces the gradient-boosted regressor.
func WithFactory(f model.RegressorFactory) Option {
	return func(p *Pipeline) {
		p.factory = f
	}
}

// New creates a Pipeline. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		factory: gbm.Factory(BoosterParams(cfg)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline with the default regressor.
func Run(ctx context.Context, cfg *config.Config) (*Summary, error) {
	return New(cfg).Run(ctx)
}

// BoosterParams maps the booster settings onto regressor parameters. The
// depth is filled in per candidate.
func BoosterParams(cfg *config.Config) gbm.Params {
	b := cfg.Booster
	p := gbm.DefaultParams()
	p.NEstimators = b.NEstimators
	p.LearningRate = b.LearningRate
	p.Subsample = b.Subsample
	p.ColsampleByTree = b.ColsampleByTree
	p.Lambda = b.Lambda
	p.MinChildWeight = b.MinChildWeight
	p.MaxBin = b.MaxBin
	p.Objective = b.Objective
	p.Alpha = b.QuantileAlpha
	p.Seed = cfg.RandomSeed
	p.NumThreads = b.NumThreads
	p.ImportanceType = b.ImportanceType
	return p
}

// Run executes load, engineer, resolve, train, aggregate and export.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	cfg := p.cfg
	started := p.now()
	runID := uuid.NewString()
	logger := log.GetLoggerWithName("pipeline").With(log.RunIDKey, runID)

	logger.Info("Run started", log.PathKey, cfg.InputPath)

	if err := BoosterParams(cfg).Validate(); err != nil {
		return nil, errors.Wrap(err, "booster settings")
	}

	raw, err := dataset.LoadCSV(cfg.InputPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Data loaded",
		log.SamplesKey, raw.NumRows(),
		log.FeaturesKey, raw.NumColumns(),
	)

	eng, err := features.Engineer(raw, cfg)
	if err != nil {
		return nil, err
	}

	report := features.Resolve(eng.Table, cfg)
	if len(report.Features) == 0 {
		return nil, errors.NewValueError("pipeline.Run", "no configured feature is present in the input")
	}
	logger.Info("Features resolved", log.FeaturesKey, len(report.Features))

	results, err := p.trainTiers(ctx, eng, report.Features)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.Wrap(errors.ErrNoTierResults, "pipeline.Run")
	}

	res, err := aggregate.Aggregate(results)
	if err != nil {
		return nil, err
	}
	logger.Info("Overall metrics",
		log.MAEKey, res.Overall.MAE,
		log.MAPEKey, res.Overall.MAPE,
		log.R2ScoreKey, res.Overall.R2,
		log.SamplesKey, len(res.Predictions),
	)

	summary := &Summary{
		RunInfo: export.RunInfo{
			RunID:       runID,
			StartedAt:   started,
			InputPath:   cfg.InputPath,
			NumRecords:  eng.Table.NumRows(),
			NumFeatures: len(report.Features),
		},
		Report: report,
		Result: res,
		TopN:   cfg.Output.TopN,
	}

	files, err := p.export(ctx, summary, results)
	summary.Files = files
	summary.Elapsed = time.Since(started)
	if err != nil {
		return nil, err
	}

	logger.Info("Run finished",
		log.DurationSecondsKey, summary.Elapsed.Seconds(),
		"files", len(files),
	)
	return summary, nil
}

// trainTiers trains the eligible tiers and returns their results in
// configured tier order. Small tiers are skipped; any other error stops the
// run.
func (p *Pipeline) trainTiers(ctx context.Context, eng *features.Engineered, feats []string) ([]*training.TierResult, error) {
	logger := log.GetLoggerWithName("pipeline")
	trainer := training.NewTrainer(p.cfg, p.factory)
	byTier := eng.RowsByTier()

	type job struct {
		tier string
		tbl  *dataset.Table
	}
	var jobs []job
	for _, tier := range p.cfg.Tiers.Names() {
		rows := byTier[tier]
		if !trainer.Eligible(len(rows)) {
			logger.Info("Tier skipped",
				log.TierKey, tier,
				log.SamplesKey, len(rows),
				"min_samples", trainer.MinSamples,
			)
			continue
		}
		jobs = append(jobs, job{tier: tier, tbl: eng.Table.Take(rows)})
	}

	slots := make([]*training.TierResult, len(jobs))
	train := func(ctx context.Context, i int) error {
		return errors.SafeExecute("train tier "+jobs[i].tier, func() error {
			r, err := trainer.Train(ctx, jobs[i].tier, jobs[i].tbl, feats, eng.PriceColumn)
			if errors.Is(err, errors.ErrInsufficientSamples) {
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = r
			return nil
		})
	}

	if p.cfg.ParallelTiers {
		g, gctx := errgroup.WithContext(ctx)
		for i := range jobs {
			g.Go(func() error { return train(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range jobs {
			if err := train(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	results := make([]*training.TierResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	return results, nil
}

// export writes every enabled sink and returns the written paths.
//
// File sinks are rendered into a staging directory next to OutputDir and
// moved into place only after every sink, SQLite included, has succeeded.
// The SQLite run is one transaction, so a failed export leaves both the
// output directory and an existing database as they were.
func (p *Pipeline) export(ctx context.Context, s *Summary, results []*training.TierResult) ([]string, error) {
	cfg := p.cfg
	logger := log.GetLoggerWithName("export")

	outDir := filepath.Clean(cfg.OutputDir)
	if err := os.MkdirAll(filepath.Dir(outDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "create output parent")
	}
	stage, err := os.MkdirTemp(filepath.Dir(outDir), ".avm-*")
	if err != nil {
		return nil, errors.Wrap(err, "create staging dir")
	}
	defer func() {
		if rerr := os.RemoveAll(stage); rerr != nil {
			logger.Warn("Failed to remove staging dir", log.PathKey, stage, log.ErrAttrKey, rerr)
		}
	}()

	staged, err := export.WriteCSV(stage, s.Result)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Plots {
		plots, err := export.WritePlots(stage, s.Result)
		if err != nil {
			return nil, err
		}
		staged = append(staged, plots...)
	}
	if cfg.Output.Models {
		models, err := export.WriteModels(stage, s.Report.Features, results)
		if err != nil {
			return nil, err
		}
		staged = append(staged, models...)
	}

	var dbPath string
	if cfg.Output.SQLite {
		dbPath = cfg.Output.SQLitePath
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(outDir, dbPath)
		}
		if err := writeSQLite(ctx, dbPath, outDir, s); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(staged)+1)
	for _, src := range staged {
		rel, err := filepath.Rel(stage, src)
		if err != nil {
			return files, errors.Wrap(err, "resolve staged path")
		}
		dst := filepath.Join(outDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return files, errors.Wrapf(err, "create %s", filepath.Dir(dst))
		}
		if err := os.Rename(src, dst); err != nil {
			return files, errors.Wrapf(err, "move %s into place", rel)
		}
		files = append(files, dst)
	}
	if dbPath != "" {
		files = append(files, dbPath)
	}

	for _, f := range files {
		logger.Info("Exported", log.PathKey, f)
	}
	return files, nil
}

// writeSQLite records the run in the database at path. When the write fails,
// a database file or output directory created by this call is removed again.
func writeSQLite(ctx context.Context, path, outDir string, s *Summary) (err error) {
	_, statErr := os.Stat(path)
	dbExisted := statErr == nil
	_, statErr = os.Stat(outDir)
	outExisted := statErr == nil

	defer func() {
		if err == nil {
			return
		}
		if !dbExisted {
			_ = os.Remove(path)
			_ = os.Remove(path + "-journal")
		}
		if !outExisted {
			// 他のファイルが無いときだけ消える
			_ = os.Remove(outDir)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create sqlite dir")
	}
	sink, err := export.OpenSQLite(path)
	if err != nil {
		return err
	}
	run := s.RunInfo
	run.Elapsed = time.Since(s.StartedAt)
	werr := sink.WriteRun(ctx, run, s.Result)
	if cerr := sink.Close(); werr == nil {
		werr = cerr
	}
	return werr
}
