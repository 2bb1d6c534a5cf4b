// Package model defines the capability interfaces shared by the regressors and
// preprocessing steps of the valuation pipeline.
//
// The pipeline never depends on a concrete boosted-tree engine. It asks a
// RegressorFactory for a fresh Regressor per depth candidate, fits it in
// log-price space and reads predictions and feature importances back. Tests
// substitute deterministic fakes through the same interfaces.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う (n×1 の行列を返す)
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ImportanceReporter は特徴量重要度を報告できるモデルのインターフェース
type ImportanceReporter interface {
	// FeatureImportances は学習時の列順に並んだ重要度を返す
	FeatureImportances() ([]float64, error)
}

// Regressor is the opaque regressor contract used by tier training:
// fit(features, target), predict(features), feature_importances().
type Regressor interface {
	Fitter
	Predictor
	ImportanceReporter
}

// RegressorFactory builds an unfitted Regressor for one depth candidate.
// Every call must return an independent instance.
type RegressorFactory func(maxDepth int) Regressor

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform は学習済みパラメータでデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)
}

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのモデルの基底となる構造体
// 学習状態と学習時の特徴量数を保持する
type BaseEstimator struct {
	state     EstimatorState
	nFeatures int
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted はモデルを学習済み状態に設定し、特徴量数を記録する
func (e *BaseEstimator) SetFitted(nFeatures int) {
	e.state = Fitted
	e.nFeatures = nFeatures
}

// NFeatures は学習時の特徴量数を返す（未学習なら0）
func (e *BaseEstimator) NFeatures() int {
	return e.nFeatures
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
	e.nFeatures = 0
}
