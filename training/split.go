package training

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

// Split holds row indices of the training and held-out parts.
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a PCG source seeded by seed and
// takes the first ceil(testSize*n) as the test part, the rest as training.
// The same (n, testSize, seed) always yields the same split.
//
// Both parts must hold at least two rows.
func TrainTestSplit(n int, testSize float64, seed int64) (Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	if !Splittable(n, testSize) {
		return Split{}, errors.NewValueError("TrainTestSplit",
			"need at least 2 training and 2 test rows")
	}
	nTest := testCount(n, testSize)

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := rng.Perm(n)
	return Split{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// Splittable reports whether n rows leave at least two rows on each side.
func Splittable(n int, testSize float64) bool {
	nTest := testCount(n, testSize)
	return nTest >= 2 && n-nTest >= 2
}

func testCount(n int, testSize float64) int {
	return int(math.Ceil(testSize * float64(n)))
}
