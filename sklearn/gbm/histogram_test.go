package gbm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFindBinBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		maxBin int
		want   []float64
	}{
		{"empty", nil, 8, nil},
		{"single value", []float64{3, 3, 3}, 8, []float64{}},
		{"few distinct use midpoints", []float64{1, 3, 2, 3}, 8, []float64{1.5, 2.5}},
		{"many distinct use ranks", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 4, []float64{3, 5, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findBinBoundaries(tt.values, tt.maxBin)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("findBinBoundaries() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinMapperRoutesConsistently(t *testing.T) {
	X := mat.NewDense(5, 1, []float64{1, 2, math.NaN(), 4, 8})
	bm := newBinMapper(X, 256)
	binned := bm.transform(X)

	assert.Equal(t, []uint16{0, 1, 4, 2, 3}, binned[0])
	assert.Equal(t, 4, bm.missingBin(0))

	// 分割閾値 cuts[b] 以下の値は必ず bin <= b に入る
	for b, cut := range bm.cuts[0] {
		assert.LessOrEqual(t, bm.binOf(0, cut), b)
		assert.Greater(t, bm.binOf(0, math.Nextafter(cut, math.Inf(1))), b)
	}
}

func TestFindBestSplitFromHistogram(t *testing.T) {
	// 2 value bins and a missing bin; gradients are opposite on both sides
	hist := featureHistogram{
		{SumGrad: -4, SumHess: 4, Count: 4},
		{SumGrad: 4, SumHess: 4, Count: 4},
		{SumGrad: -2, SumHess: 2, Count: 2},
	}
	split := findBestSplitFromHistogram(hist, 3, []float64{0.5}, -2, 10, 1, 1)

	assert.True(t, split.valid())
	assert.Equal(t, 3, split.Feature)
	assert.Equal(t, 0.5, split.Threshold)
	assert.True(t, split.DefaultLeft, "missing rows look like the left side")
	assert.Greater(t, split.Gain, 0.0)

	none := findBestSplitFromHistogram(featureHistogram{{Count: 1}, {}}, 0, nil, 0, 1, 1, 1)
	assert.False(t, none.valid())
}
