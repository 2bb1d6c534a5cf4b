package gbm

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ObjectiveFunction defines the interface for different objective functions
type ObjectiveFunction interface {
	// CalculateGradient calculates the gradient for a single sample
	CalculateGradient(prediction, target float64) float64

	// CalculateHessian calculates the hessian for a single sample
	CalculateHessian(prediction, target float64) float64

	// CalculateLoss calculates the loss for a single sample
	CalculateLoss(prediction, target float64) float64

	// GetInitScore returns the initial score for this objective
	GetInitScore(targets []float64) float64

	// Name returns the name of the objective
	Name() string
}

// LeafRenewer is implemented by objectives whose Newton step is a poor leaf
// estimate. After a tree is grown, each leaf output is replaced by
// RenewLeafValue of the residuals (target - score) of the rows in that leaf.
type LeafRenewer interface {
	RenewLeafValue(residuals []float64) float64
}

// L2Objective implements L2 (Mean Squared Error) loss
type L2Objective struct{}

func NewL2Objective() *L2Objective {
	return &L2Objective{}
}

func (o *L2Objective) CalculateGradient(prediction, target float64) float64 {
	return prediction - target
}

func (o *L2Objective) CalculateHessian(prediction, target float64) float64 {
	return 1.0
}

func (o *L2Objective) CalculateLoss(prediction, target float64) float64 {
	diff := prediction - target
	return 0.5 * diff * diff
}

func (o *L2Objective) GetInitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0.0
	}
	return stat.Mean(targets, nil)
}

func (o *L2Objective) Name() string {
	return "l2"
}

// QuantileObjective implements Quantile (pinball) regression loss.
// alpha = 0.5 gives median regression.
type QuantileObjective struct {
	alpha float64 // Quantile level (0 < alpha < 1)
}

func NewQuantileObjective(alpha float64) *QuantileObjective {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.5 // Default to median
	}
	return &QuantileObjective{
		alpha: alpha,
	}
}

// Alpha returns the quantile level.
func (o *QuantileObjective) Alpha() float64 {
	return o.alpha
}

func (o *QuantileObjective) CalculateGradient(prediction, target float64) float64 {
	diff := prediction - target
	if diff > 0 {
		return 1.0 - o.alpha
	} else if diff < 0 {
		return -o.alpha
	}
	return 0.0
}

func (o *QuantileObjective) CalculateHessian(prediction, target float64) float64 {
	// Quantile loss has zero second derivative except at the non-differentiable point.
	// A constant hessian keeps leaf weights bounded.
	return 1.0
}

func (o *QuantileObjective) CalculateLoss(prediction, target float64) float64 {
	diff := target - prediction
	if diff >= 0 {
		return o.alpha * diff
	}
	return (o.alpha - 1.0) * diff
}

func (o *QuantileObjective) GetInitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0.0
	}
	return quantile(targets, o.alpha)
}

// RenewLeafValue returns the alpha-quantile of the leaf residuals.
func (o *QuantileObjective) RenewLeafValue(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0.0
	}
	return quantile(residuals, o.alpha)
}

func (o *QuantileObjective) Name() string {
	return "quantile"
}

// CreateObjectiveFunction creates an objective function by name
func CreateObjectiveFunction(name string, alpha float64) (ObjectiveFunction, error) {
	switch name {
	case "quantile", "reg:quantileerror", "":
		return NewQuantileObjective(alpha), nil
	case "l2", "regression", "reg:squarederror":
		return NewL2Objective(), nil
	default:
		return nil, fmt.Errorf("unknown objective: %s", name)
	}
}

// quantile returns the empirical q-quantile of values without modifying them.
func quantile(values []float64, q float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}
