// Package preprocessing provides the data preparation steps that run inside a
// tier before a regressor sees the features.
package preprocessing

import (
	"fmt"
	"math"
	"slices"

	"github.com/YuminosukeSato/tieravm/core/model"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MedianImputer は欠損値（NaN）を列ごとの中央値で埋める
//
// 中央値はFitに渡したデータ（学習セット）だけから計算される。
// Transformは評価セットにも学習セットの中央値をそのまま適用するため、
// 評価セットの値が補完値に影響することはない。
type MedianImputer struct {
	model.BaseEstimator

	// Statistics は各特徴量の補完値（学習セットの中央値）
	Statistics []float64

	// Columns は警告メッセージ用の列名（任意）
	Columns []string
}

// NewMedianImputer は新しいMedianImputerを作成する
//
// 使用例:
//
//	imp := preprocessing.NewMedianImputer(features)
//	err := imp.Fit(XTrain)
//	XTest, err = imp.Transform(XTest)
func NewMedianImputer(columns []string) *MedianImputer {
	return &MedianImputer{Columns: columns}
}

// Fit は学習データから列ごとの中央値を計算する
//
// 学習データに値が一つもない列は0で補完し、DataConversionWarningを出す
func (m *MedianImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MedianImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.Columns != nil && len(m.Columns) != c {
		return errors.NewDimensionError("MedianImputer.Fit", len(m.Columns), c, 1)
	}

	m.Statistics = make([]float64, c)
	values := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		values = values[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			m.Statistics[j] = 0
			errors.Warn(errors.NewDataConversionWarning(m.columnName(j), "NaN", "float64",
				"no observed values in training data, filled with 0"))
			continue
		}
		m.Statistics[j] = median(values)
	}

	m.SetFitted(c)
	return nil
}

// Transform は学習済みの中央値で欠損値を埋めた新しい行列を返す
func (m *MedianImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MedianImputer", "Transform")
	}

	r, c := X.Dims()
	if c != m.NFeatures() {
		return nil, errors.NewDimensionError("MedianImputer.Transform", m.NFeatures(), c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				v = m.Statistics[j]
			}
			result.Set(i, j, v)
		}
	}

	return result, nil
}

// FitTransform は学習データで中央値を計算し、同じデータを補完する
func (m *MedianImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// String はImputerの文字列表現を返す
func (m *MedianImputer) String() string {
	if !m.IsFitted() {
		return "MedianImputer()"
	}
	return fmt.Sprintf("MedianImputer(n_features=%d)", m.NFeatures())
}

func (m *MedianImputer) columnName(j int) string {
	if j < len(m.Columns) {
		return m.Columns[j]
	}
	return fmt.Sprintf("x%d", j)
}

// median は値を並べ替えて中央値を返す（偶数個なら中央2値の平均）
// valuesは並べ替えられる
func median(values []float64) float64 {
	slices.Sort(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
