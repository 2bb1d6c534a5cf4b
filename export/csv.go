// Package export writes the run artifacts: CSV tables, an optional SQLite
// results database, optional charts, and the console summary.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// Output file names
const (
	PredictionsFile       = "predictions_depth_tuned.csv"
	FeatureImportanceFile = "feature_importance_depth_tuned.csv"
	TierMetricsFile       = "metrics_by_tier_depth_tuned.csv"
	DepthComparisonFile   = "depth_comparison_by_tier.csv"
	TierImportanceFile    = "feature_importance_by_tier.csv"
)

// WriteCSV writes every CSV table of res into dir and returns the paths.
func WriteCSV(dir string, res *aggregate.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}

	tables := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{PredictionsFile, []string{"actual", "predicted", "tier"}, predictionRows(res)},
		{FeatureImportanceFile, []string{"feature", "importance"}, importanceRows(res)},
		{TierMetricsFile, []string{"tier", "n_train", "n_test", "mae", "mape", "r2", "best_depth"}, tierMetricRows(res)},
		{DepthComparisonFile, []string{"depth", "mae", "mape", "r2", "tier"}, depthRows(res)},
		{TierImportanceFile, []string{"tier", "feature", "importance"}, tierImportanceRows(res)},
	}

	paths := make([]string, 0, len(tables))
	for _, tbl := range tables {
		path := filepath.Join(dir, tbl.name)
		if err := writeCSVFile(path, tbl.header, tbl.rows); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSVFile(path string, header []string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func predictionRows(res *aggregate.Result) [][]string {
	rows := make([][]string, len(res.Predictions))
	for i, p := range res.Predictions {
		rows[i] = []string{formatFloat(p.Actual), formatFloat(p.Predicted), p.Tier}
	}
	return rows
}

func importanceRows(res *aggregate.Result) [][]string {
	rows := make([][]string, len(res.Importance))
	for i, fi := range res.Importance {
		rows[i] = []string{fi.Feature, formatFloat(fi.Importance)}
	}
	return rows
}

func tierMetricRows(res *aggregate.Result) [][]string {
	rows := make([][]string, len(res.TierMetrics))
	for i, m := range res.TierMetrics {
		rows[i] = []string{
			m.Tier,
			strconv.Itoa(m.NTrain),
			strconv.Itoa(m.NTest),
			formatFloat(m.MAE),
			formatFloat(m.MAPE),
			formatFloat(m.R2),
			strconv.Itoa(m.BestDepth),
		}
	}
	return rows
}

func depthRows(res *aggregate.Result) [][]string {
	rows := make([][]string, len(res.DepthTrace))
	for i, d := range res.DepthTrace {
		rows[i] = []string{
			strconv.Itoa(d.Depth),
			formatFloat(d.MAE),
			formatFloat(d.MAPE),
			formatFloat(d.R2),
			d.Tier,
		}
	}
	return rows
}

func tierImportanceRows(res *aggregate.Result) [][]string {
	rows := make([][]string, len(res.TierImportance))
	for i, fi := range res.TierImportance {
		rows[i] = []string{fi.Tier, fi.Feature, formatFloat(fi.Importance)}
	}
	return rows
}
