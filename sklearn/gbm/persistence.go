package gbm

import (
	"encoding/json"

	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// ModelType identifies regressors of this package in saved documents.
const ModelType = "gbm.Regressor"

// ensemble is the fitted state of a Regressor.
type ensemble struct {
	Params     Params    `json:"params"`
	InitScore  float64   `json:"init_score"`
	NFeatures  int       `json:"n_features"`
	NSamples   int       `json:"n_samples"`
	GainSum    []float64 `json:"gain_sum"`
	SplitCount []int     `json:"split_count"`
	Trees      []Tree    `json:"trees"`
}

// ExportModel converts a fitted regressor into a saveable document.
func (r *Regressor) ExportModel() (*model.ModelDocument, error) {
	if !r.IsFitted() {
		return nil, errors.NewNotFittedError("gbm.Regressor", "ExportModel")
	}
	payload, err := json.Marshal(ensemble{
		Params:     r.Params,
		InitScore:  r.initScore,
		NFeatures:  r.NFeatures(),
		NSamples:   r.nSamples,
		GainSum:    r.gainSum,
		SplitCount: r.splitCount,
		Trees:      r.trees,
	})
	if err != nil {
		return nil, errors.Wrap(err, "gbm.Regressor.ExportModel")
	}
	return &model.ModelDocument{
		ModelType:       ModelType,
		Version:         model.DocumentVersion,
		Hyperparameters: r.GetParams(),
		Payload:         payload,
	}, nil
}

// ImportModel rebuilds a fitted regressor from a document written by
// ExportModel. The result predicts but cannot continue training.
func ImportModel(doc *model.ModelDocument) (*Regressor, error) {
	if doc.ModelType != ModelType {
		return nil, errors.NewValueError("gbm.ImportModel", "unexpected model type "+doc.ModelType)
	}
	var e ensemble
	if err := json.Unmarshal(doc.Payload, &e); err != nil {
		return nil, errors.Wrap(err, "gbm.ImportModel")
	}
	if e.NFeatures <= 0 || len(e.GainSum) != e.NFeatures || len(e.SplitCount) != e.NFeatures {
		return nil, errors.NewValueError("gbm.ImportModel", "inconsistent feature count")
	}
	for k := range e.Trees {
		for _, n := range e.Trees[k].Nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= e.NFeatures ||
				n.Left >= len(e.Trees[k].Nodes) || n.Right < 0 || n.Right >= len(e.Trees[k].Nodes) {
				return nil, errors.NewValueError("gbm.ImportModel", "corrupt tree")
			}
		}
	}

	r := NewRegressorWithParams(e.Params)
	r.trees = e.Trees
	r.initScore = e.InitScore
	r.gainSum = e.GainSum
	r.splitCount = e.SplitCount
	r.nSamples = e.NSamples
	r.SetFitted(e.NFeatures)
	return r, nil
}
