package gbm

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/YuminosukeSato/tieravm/core/parallel"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
	"github.com/YuminosukeSato/tieravm/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// parallelThreshold is the rows×features work below which histogram
// building and score updates stay on the calling goroutine.
const parallelThreshold = 1 << 14

// trainer grows the ensemble depth-wise on binned features.
type trainer struct {
	params    Params
	objective ObjectiveFunction
	logger    log.Logger

	// Data
	bins   *binMapper
	binned [][]uint16 // column-major bin indices
	y      []float64
	nRows  int
	nCols  int

	// Boosting state
	scores    []float64 // cached raw predictions of the training rows
	gradients []float64
	hessians  []float64

	// Feature importance accumulators
	gainSum    []float64
	splitCount []int
}

func newTrainer(params Params, objective ObjectiveFunction, logger log.Logger) *trainer {
	return &trainer{
		params:    params,
		objective: objective,
		logger:    logger,
	}
}

// train fits params.NEstimators trees and returns them with the init score.
func (t *trainer) train(X mat.Matrix, y []float64) ([]Tree, float64, error) {
	t.nRows, t.nCols = X.Dims()
	t.y = y
	t.bins = newBinMapper(X, t.params.MaxBin)
	t.binned = t.bins.transform(X)

	t.gainSum = make([]float64, t.nCols)
	t.splitCount = make([]int, t.nCols)
	t.gradients = make([]float64, t.nRows)
	t.hessians = make([]float64, t.nRows)

	initScore := t.objective.GetInitScore(y)
	if err := errors.CheckScalar("gbm.initScore", initScore, 0); err != nil {
		return nil, 0, err
	}
	t.scores = make([]float64, t.nRows)
	for i := range t.scores {
		t.scores[i] = initScore
	}

	trees := make([]Tree, 0, t.params.NEstimators)
	for iter := 0; iter < t.params.NEstimators; iter++ {
		// 反復ごとに独立した乱数列を使い、同じseedなら同じ木が得られるようにする
		rng := rand.New(rand.NewPCG(uint64(t.params.Seed), uint64(iter)))
		rows := sampleIndices(rng, t.nRows, t.params.Subsample)
		features := sampleIndices(rng, t.nCols, t.params.ColsampleByTree)

		t.calculateGradients()

		tree, leafRows := t.buildTree(rows, features)
		t.renewLeaves(&tree, leafRows)
		t.updateScores(&tree)
		trees = append(trees, tree)

		if t.logger.Enabled(context.Background(), log.LevelDebug) && (iter%100 == 0 || iter == t.params.NEstimators-1) {
			loss := t.calculateLoss()
			if err := errors.CheckScalar("gbm.loss", loss, iter); err != nil {
				return nil, 0, err
			}
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, loss,
				"leaves", tree.NumLeaves())
		}
	}

	return trees, initScore, nil
}

// sampleIndices draws round(ratio*n) distinct indices (at least one) in
// ascending order. ratio >= 1 keeps everything.
func sampleIndices(rng *rand.Rand, n int, ratio float64) []int {
	if ratio >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	k := int(math.Round(ratio * float64(n)))
	k = max(1, min(k, n))
	idx := rng.Perm(n)[:k]
	slices.Sort(idx)
	return idx
}

func (t *trainer) calculateGradients() {
	parallel.ParallelizeWithThreshold(t.nRows, 1, parallelThreshold, t.params.NumThreads, func(start, end int) {
		for i := start; i < end; i++ {
			t.gradients[i] = t.objective.CalculateGradient(t.scores[i], t.y[i])
			t.hessians[i] = t.objective.CalculateHessian(t.scores[i], t.y[i])
		}
	})
}

// buildTree grows one tree on the sampled rows and features. It also returns
// the training rows that ended in each leaf.
func (t *trainer) buildTree(rows, features []int) (Tree, map[int][]int) {
	tree := Tree{Nodes: make([]Node, 0, 64)}
	leafRows := make(map[int][]int)
	t.grow(&tree, rows, features, 0, leafRows)
	return tree, leafRows
}

func (t *trainer) grow(tree *Tree, rows, features []int, depth int, leafRows map[int][]int) int {
	var sumGrad, sumHess float64
	for _, i := range rows {
		sumGrad += t.gradients[i]
		sumHess += t.hessians[i]
	}

	nodeIdx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{Feature: -1, Left: -1, Right: -1, Cover: sumHess})

	split := splitInfo{Feature: -1}
	if len(rows) >= 2 && (t.params.MaxDepth <= 0 || depth < t.params.MaxDepth) {
		split = t.findBestSplit(rows, features, sumGrad, sumHess)
	}
	if !split.valid() {
		tree.Nodes[nodeIdx].Value = t.calculateLeafValue(sumGrad, sumHess)
		leafRows[nodeIdx] = rows
		return nodeIdx
	}

	left, right := t.splitRows(rows, split)

	t.gainSum[split.Feature] += split.Gain
	t.splitCount[split.Feature]++

	leftIdx := t.grow(tree, left, features, depth+1, leafRows)
	rightIdx := t.grow(tree, right, features, depth+1, leafRows)

	// appendで再確保されるためポインタではなく添字で更新する
	n := &tree.Nodes[nodeIdx]
	n.Feature = split.Feature
	n.Threshold = split.Threshold
	n.DefaultLeft = split.DefaultLeft
	n.Gain = split.Gain
	n.bin = split.Bin
	n.Left = leftIdx
	n.Right = rightIdx
	return nodeIdx
}

// findBestSplit builds one histogram per sampled feature, in parallel when the
// node is large, and keeps the highest gain. Ties go to the lower feature index.
func (t *trainer) findBestSplit(rows, features []int, sumGrad, sumHess float64) splitInfo {
	candidates := make([]splitInfo, len(features))
	parallel.ParallelizeWithThreshold(len(features), len(rows), parallelThreshold, t.params.NumThreads, func(start, end int) {
		for k := start; k < end; k++ {
			f := features[k]
			hist := t.buildHistogram(rows, f)
			candidates[k] = findBestSplitFromHistogram(hist, f, t.bins.cuts[f],
				sumGrad, sumHess, t.params.Lambda, t.params.MinChildWeight)
		}
	})

	best := splitInfo{Feature: -1}
	for _, c := range candidates {
		if c.valid() && c.Gain > best.Gain {
			best = c
		}
	}
	return best
}

func (t *trainer) buildHistogram(rows []int, feature int) featureHistogram {
	hist := make(featureHistogram, t.bins.numBins(feature)+1)
	col := t.binned[feature]
	for _, i := range rows {
		b := &hist[col[i]]
		b.SumGrad += t.gradients[i]
		b.SumHess += t.hessians[i]
		b.Count++
	}
	return hist
}

func (t *trainer) splitRows(rows []int, split splitInfo) ([]int, []int) {
	col := t.binned[split.Feature]
	missing := t.bins.missingBin(split.Feature)
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		b := int(col[i])
		goLeft := b <= split.Bin
		if b == missing {
			goLeft = split.DefaultLeft
		}
		if goLeft {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// calculateLeafValue returns the shrunk Newton step -G/(H+λ).
func (t *trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	return -sumGrad / (sumHess + t.params.Lambda) * t.params.LearningRate
}

// renewLeaves replaces leaf outputs for objectives implementing LeafRenewer.
func (t *trainer) renewLeaves(tree *Tree, leafRows map[int][]int) {
	renewer, ok := t.objective.(LeafRenewer)
	if !ok {
		return
	}
	for idx, rows := range leafRows {
		residuals := make([]float64, len(rows))
		for k, i := range rows {
			residuals[k] = t.y[i] - t.scores[i]
		}
		tree.Nodes[idx].Value = renewer.RenewLeafValue(residuals) * t.params.LearningRate
	}
}

// updateScores adds the new tree's output to every training row, sampled or not.
func (t *trainer) updateScores(tree *Tree) {
	parallel.ParallelizeWithThreshold(t.nRows, tree.Depth()+1, parallelThreshold, t.params.NumThreads, func(start, end int) {
		for i := start; i < end; i++ {
			t.scores[i] += tree.Nodes[tree.leafIndex(t.binned, t.bins, i)].Value
		}
	})
}

func (t *trainer) calculateLoss() float64 {
	var loss float64
	for i, s := range t.scores {
		loss += t.objective.CalculateLoss(s, t.y[i])
	}
	return loss / float64(t.nRows)
}
