package metrics

import (
	"math"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Regression は一つの評価セットに対する回帰指標をまとめたもの
type Regression struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"` // パーセント表記
	R2   float64 `json:"r2"`
}

// Evaluate は正解値と予測値からMAE、MAPE、R²をまとめて計算する
// 価格帯ごとの評価と、全価格帯をプールした評価の両方で使われる
func Evaluate(yTrue, yPred []float64) (Regression, error) {
	if len(yTrue) == 0 {
		return Regression{}, errors.NewValueError("Evaluate", "empty vector")
	}
	if len(yPred) != len(yTrue) {
		return Regression{}, errors.NewDimensionError("Evaluate", len(yTrue), len(yPred), 0)
	}

	t := mat.NewVecDense(len(yTrue), append([]float64(nil), yTrue...))
	p := mat.NewVecDense(len(yPred), append([]float64(nil), yPred...))

	mae, err := MAE(t, p)
	if err != nil {
		return Regression{}, err
	}
	mape, err := MAPE(t, p)
	if err != nil {
		return Regression{}, err
	}
	r2, err := R2Score(t, p)
	if err != nil {
		return Regression{}, err
	}
	return Regression{MAE: mae, MAPE: mape, R2: r2}, nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}

	return sum / float64(n), nil
}

// MAPE は平均絶対パーセンテージ誤差を計算する（単位: %）
// 正解値がゼロの行はゼロ除算を避けるため除外する
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAPE = (100/n) * Σ|yTrue - yPred|/|yTrue|
	var sum float64
	validCount := 0

	for i := 0; i < n; i++ {
		yTrueVal := yTrue.AtVec(i)
		if yTrueVal != 0 {
			sum += math.Abs(yTrueVal-yPred.AtVec(i)) / math.Abs(yTrueVal)
			validCount++
		}
	}

	if validCount == 0 {
		return 0, errors.NewValueError("MAPE", "all yTrue values are zero")
	}

	return (sum / float64(validCount)) * 100, nil
}

// R2Score は決定係数（R²）を計算する
//
// 正解値の分散がゼロの場合は、予測が完全一致なら1.0、そうでなければ0.0を返し
// UndefinedMetricWarningを発生させる（scikit-learnのforce_finiteと同じ扱い）
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		yTrueVal := yTrue.AtVec(i)
		diff := yTrueVal - yPred.AtVec(i)
		tss += (yTrueVal - yMean) * (yTrueVal - yMean)
		rss += diff * diff
	}

	if tss == 0 {
		result := 0.0
		if rss == 0 {
			result = 1.0
		}
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "zero variance in y_true", result))
		return result, nil
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.IsEmpty() {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.IsEmpty() || yPred.Len() != n {
		got := 0
		if !yPred.IsEmpty() {
			got = yPred.Len()
		}
		return 0, errors.NewDimensionError(op, n, got, 0)
	}
	return n, nil
}
