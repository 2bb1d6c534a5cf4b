package gbm

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tieravm/core/model"
)

func TestExportImportPredictsIdentically(t *testing.T) {
	X, y := makeStepData(150, 3)
	X.Set(4, 1, math.NaN())

	reg := NewRegressor(WithNEstimators(25), WithMaxDepth(3), WithLearningRate(0.3))
	require.NoError(t, reg.Fit(X, y))

	doc, err := reg.ExportModel()
	require.NoError(t, err)
	assert.Equal(t, ModelType, doc.ModelType)
	assert.Equal(t, 3, doc.Hyperparameters["max_depth"])

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(doc, &buf))
	loaded, err := model.LoadModelFromReader(&buf)
	require.NoError(t, err)

	restored, err := ImportModel(loaded)
	require.NoError(t, err)
	assert.Equal(t, reg.NumTrees(), restored.NumTrees())

	XTest := mat.NewDense(3, 2, []float64{0.1, 0.4, 0.8, math.NaN(), 0.55, 0.9})
	want, err := reg.Predict(XTest)
	require.NoError(t, err)
	got, err := restored.Predict(XTest)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want.At(i, 0), got.At(i, 0), 1e-12)
	}

	wantImp, err := reg.FeatureImportances()
	require.NoError(t, err)
	gotImp, err := restored.FeatureImportances()
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantImp, gotImp, 1e-12)
}

func TestExportRequiresFit(t *testing.T) {
	_, err := NewRegressor().ExportModel()
	assert.Error(t, err)
}

func TestImportRejectsForeignDocuments(t *testing.T) {
	_, err := ImportModel(&model.ModelDocument{ModelType: "linear", Payload: []byte(`{}`)})
	assert.Error(t, err)

	_, err = ImportModel(&model.ModelDocument{
		ModelType: ModelType,
		Payload:   []byte(`{"n_features":2,"gain_sum":[0,0],"split_count":[0,0],"trees":[{"nodes":[{"feature":5,"left":1,"right":2}]}]}`),
	})
	assert.Error(t, err)
}
