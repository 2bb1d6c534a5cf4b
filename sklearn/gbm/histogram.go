package gbm

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// binMapper discretises each feature into at most maxBin bins.
// A value v falls into the first bin b with v <= cuts[b]; values above the
// last cut fall into bin len(cuts). NaN is stored in the extra missing bin.
type binMapper struct {
	cuts [][]float64
}

// newBinMapper computes cut points per feature from the training matrix.
func newBinMapper(X mat.Matrix, maxBin int) *binMapper {
	rows, cols := X.Dims()
	bm := &binMapper{cuts: make([][]float64, cols)}

	values := make([]float64, 0, rows)
	for j := 0; j < cols; j++ {
		values = values[:0]
		for i := 0; i < rows; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		bm.cuts[j] = findBinBoundaries(values, maxBin)
	}
	return bm
}

// findBinBoundaries returns strictly increasing cut points. With few distinct
// values every gap between neighbours gets a cut at the midpoint; otherwise cuts
// are placed at evenly spaced ranks of the sorted sample.
func findBinBoundaries(values []float64, maxBin int) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	distinct := slices.Compact(slices.Clone(sorted))

	if len(distinct) <= maxBin {
		cuts := make([]float64, 0, len(distinct)-1)
		for i := 0; i+1 < len(distinct); i++ {
			cuts = append(cuts, (distinct[i]+distinct[i+1])/2)
		}
		return cuts
	}

	cuts := make([]float64, 0, maxBin-1)
	n := len(sorted)
	for k := 1; k < maxBin; k++ {
		c := sorted[k*n/maxBin]
		if len(cuts) == 0 || c > cuts[len(cuts)-1] {
			cuts = append(cuts, c)
		}
	}
	// 最大値と同じカットは右側が空になるため捨てる
	if len(cuts) > 0 && cuts[len(cuts)-1] >= sorted[n-1] {
		cuts = cuts[:len(cuts)-1]
	}
	return cuts
}

// numBins is the number of value bins of feature j (missing bin excluded).
func (bm *binMapper) numBins(j int) int {
	return len(bm.cuts[j]) + 1
}

// missingBin is the index of the NaN bin of feature j.
func (bm *binMapper) missingBin(j int) int {
	return len(bm.cuts[j]) + 1
}

func (bm *binMapper) binOf(j int, v float64) int {
	if math.IsNaN(v) {
		return bm.missingBin(j)
	}
	return sort.SearchFloat64s(bm.cuts[j], v)
}

// transform returns column-major bin indices for X.
func (bm *binMapper) transform(X mat.Matrix) [][]uint16 {
	rows, cols := X.Dims()
	binned := make([][]uint16, cols)
	for j := 0; j < cols; j++ {
		col := make([]uint16, rows)
		for i := 0; i < rows; i++ {
			col[i] = uint16(bm.binOf(j, X.At(i, j)))
		}
		binned[j] = col
	}
	return binned
}

// histogramBin accumulates gradient statistics of one bin.
type histogramBin struct {
	SumGrad float64
	SumHess float64
	Count   int
}

// featureHistogram holds numBins value bins followed by the missing bin.
type featureHistogram []histogramBin

// splitInfo contains information about a candidate split
type splitInfo struct {
	Feature     int
	Bin         int
	Threshold   float64
	DefaultLeft bool
	Gain        float64
	LeftGrad    float64
	LeftHess    float64
	RightGrad   float64
	RightHess   float64
}

func (s splitInfo) valid() bool {
	return s.Feature >= 0
}

// findBestSplitFromHistogram scans the value bins of one feature. Missing
// values are tried on both sides and the better direction is kept.
func findBestSplitFromHistogram(hist featureHistogram, feature int, cuts []float64,
	totalGrad, totalHess, lambda, minChildWeight float64) splitInfo {

	best := splitInfo{Feature: -1}
	if len(cuts) == 0 {
		return best
	}

	missing := hist[len(hist)-1]
	parentScore := leafScore(totalGrad, totalHess, lambda)

	var gl, hl float64
	for b := 0; b < len(cuts); b++ {
		gl += hist[b].SumGrad
		hl += hist[b].SumHess

		directions := []bool{true}
		if missing.Count > 0 {
			directions = []bool{true, false}
		}
		for _, defaultLeft := range directions {
			lg, lh := gl, hl
			if defaultLeft {
				lg += missing.SumGrad
				lh += missing.SumHess
			}
			rg, rh := totalGrad-lg, totalHess-lh
			if lh < minChildWeight || rh < minChildWeight {
				continue
			}

			gain := 0.5 * (leafScore(lg, lh, lambda) + leafScore(rg, rh, lambda) - parentScore)
			if gain > best.Gain {
				best = splitInfo{
					Feature:     feature,
					Bin:         b,
					Threshold:   cuts[b],
					DefaultLeft: defaultLeft,
					Gain:        gain,
					LeftGrad:    lg,
					LeftHess:    lh,
					RightGrad:   rg,
					RightHess:   rh,
				}
			}
		}
	}
	return best
}

func leafScore(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}
