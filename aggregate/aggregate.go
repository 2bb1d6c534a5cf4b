// Package aggregate combines per-tier training results into the run-level
// tables that are exported and summarised.
package aggregate

import (
	"sort"

	"github.com/YuminosukeSato/tieravm/metrics"
	"github.com/YuminosukeSato/tieravm/training"
)

// Prediction is one pooled held-out prediction.
type Prediction struct {
	Actual    float64
	Predicted float64
	Tier      string
}

// TierMetrics is one row of the per-tier metrics table.
type TierMetrics struct {
	Tier      string
	NTrain    int
	NTest     int
	BestDepth int
	metrics.Regression
}

// TierFeatureImportance is one feature importance of one tier.
type TierFeatureImportance struct {
	Tier       string
	Feature    string
	Importance float64
}

// Result holds every cross-tier artifact.
type Result struct {
	// Overall is recomputed from the pooled predictions, not averaged.
	Overall     metrics.Regression
	Predictions []Prediction

	// Importance is the mean importance per feature over the tiers that
	// reported it, sorted descending.
	Importance     []training.FeatureImportance
	TierImportance []TierFeatureImportance

	TierMetrics  []TierMetrics
	DepthTrace   []training.DepthMetrics
	DepthsTested []int
}

// Empty reports whether no tier contributed.
func (r *Result) Empty() bool {
	return len(r.TierMetrics) == 0
}

// Aggregate combines results in the given order. An empty input yields an
// empty Result.
func Aggregate(results []*training.TierResult) (*Result, error) {
	out := &Result{}
	if len(results) == 0 {
		return out, nil
	}

	var actual, predicted []float64
	type acc struct {
		sum   float64
		count int
		order int
	}
	importance := make(map[string]*acc)
	depthSeen := make(map[int]bool)

	for _, r := range results {
		for i := range r.Actual {
			out.Predictions = append(out.Predictions, Prediction{
				Actual:    r.Actual[i],
				Predicted: r.Predicted[i],
				Tier:      r.Tier,
			})
		}
		actual = append(actual, r.Actual...)
		predicted = append(predicted, r.Predicted...)

		out.TierMetrics = append(out.TierMetrics, TierMetrics{
			Tier:       r.Tier,
			NTrain:     r.NTrain,
			NTest:      r.NTest,
			BestDepth:  r.BestDepth,
			Regression: r.Metrics,
		})

		for _, fi := range r.Importances {
			out.TierImportance = append(out.TierImportance, TierFeatureImportance{
				Tier: r.Tier, Feature: fi.Feature, Importance: fi.Importance,
			})
			a, ok := importance[fi.Feature]
			if !ok {
				a = &acc{order: len(importance)}
				importance[fi.Feature] = a
			}
			a.sum += fi.Importance
			a.count++
		}

		for _, d := range r.Trace {
			out.DepthTrace = append(out.DepthTrace, d)
			if !depthSeen[d.Depth] {
				depthSeen[d.Depth] = true
				out.DepthsTested = append(out.DepthsTested, d.Depth)
			}
		}
	}

	overall, err := metrics.Evaluate(actual, predicted)
	if err != nil {
		return nil, err
	}
	out.Overall = overall

	out.Importance = make([]training.FeatureImportance, len(importance))
	for name, a := range importance {
		out.Importance[a.order] = training.FeatureImportance{
			Feature:    name,
			Importance: a.sum / float64(a.count),
		}
	}
	sort.SliceStable(out.Importance, func(i, j int) bool {
		return out.Importance[i].Importance > out.Importance[j].Importance
	})

	return out, nil
}

// TopFeatures returns at most n features of the averaged ranking.
func (r *Result) TopFeatures(n int) []training.FeatureImportance {
	n = max(0, min(n, len(r.Importance)))
	return r.Importance[:n]
}
