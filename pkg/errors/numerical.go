package errors

import "math"

// maxReportedValues は NumericalInstabilityError に残す値の上限
const maxReportedValues = 5

// CheckNumericalStability は values に NaN や ±Inf が含まれていれば
// 該当する値だけを持つ NumericalInstabilityError を返します。
// 学習ターゲット（対数価格）や勾配の検査に使います。
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, v)
			if len(bad) == maxReportedValues {
				break
			}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return NewNumericalInstabilityError(operation, bad, iteration)
}

// CheckScalar は初期スコアや反復ごとの損失のような単一の値を検査します。
func CheckScalar(operation string, value float64, iteration int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}
