package export

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/training"
)

// ModelsDir is the subdirectory holding one saved model per tier.
const ModelsDir = "models"

// WriteModels saves the selected model of every tier as <dir>/models/<tier>.json.
// Models that cannot be exported are reported as an error.
func WriteModels(dir string, features []string, results []*training.TierResult) ([]string, error) {
	root := filepath.Join(dir, ModelsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", root)
	}

	paths := make([]string, 0, len(results))
	for _, r := range results {
		exp, ok := r.Model.(model.Exporter)
		if !ok {
			return paths, errors.NewValueError("WriteModels", "model of tier "+r.Tier+" cannot be exported")
		}
		doc, err := exp.ExportModel()
		if err != nil {
			return paths, errors.Wrapf(err, "export model of tier %s", r.Tier)
		}
		doc.Features = features
		doc.Metadata = map[string]interface{}{
			"tier":       r.Tier,
			"best_depth": r.BestDepth,
			"n_train":    r.NTrain,
			"n_test":     r.NTest,
			"mae":        r.Metrics.MAE,
			"mape":       r.Metrics.MAPE,
			"r2":         r.Metrics.R2,
			"target":     "log1p(price)",
		}

		path := filepath.Join(root, r.Tier+".json")
		if err := model.SaveModel(doc, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
