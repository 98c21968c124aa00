package app

import (
	"math"
	"math/rand"
)

// isolationForest is a standard isolation forest over dense float features.
// Seeded explicitly so scoring is reproducible across runs.
type isolationForest struct {
	trees     []*isoNode
	subsample int
	// average path length of the subsample size, used to normalize scores
	cNorm float64
}

type isoNode struct {
	left, right *isoNode
	splitAttr   int
	splitValue  float64
	// leaf fields
	size int
}

const (
	isoNumTrees  = 100
	isoSubsample = 256
)

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

// newIsolationForest fits a forest on X with a fixed seed.
func newIsolationForest(X [][]float64, seed int64) *isolationForest {
	rng := rand.New(rand.NewSource(seed))

	subsample := isoSubsample
	if len(X) < subsample {
		subsample = len(X)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(subsample))))

	forest := &isolationForest{
		subsample: subsample,
		cNorm:     avgPathLength(subsample),
	}
	for t := 0; t < isoNumTrees; t++ {
		sample := make([][]float64, subsample)
		for i := range sample {
			sample[i] = X[rng.Intn(len(X))]
		}
		forest.trees = append(forest.trees, buildIsoTree(sample, 0, maxDepth, rng))
	}
	return forest
}

func buildIsoTree(X [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(X) <= 1 {
		return &isoNode{size: len(X)}
	}

	nFeatures := len(X[0])
	attr := rng.Intn(nFeatures)

	lo, hi := X[0][attr], X[0][attr]
	for _, row := range X[1:] {
		if row[attr] < lo {
			lo = row[attr]
		}
		if row[attr] > hi {
			hi = row[attr]
		}
	}
	if lo == hi {
		// Constant attribute in this partition; cannot split further.
		return &isoNode{size: len(X)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range X {
		if row[attr] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isoNode{
		splitAttr:  attr,
		splitValue: split,
		left:       buildIsoTree(left, depth+1, maxDepth, rng),
		right:      buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func (n *isoNode) pathLength(x []float64, depth int) float64 {
	if n.left == nil {
		return float64(depth) + avgPathLength(n.size)
	}
	if x[n.splitAttr] < n.splitValue {
		return n.left.pathLength(x, depth+1)
	}
	return n.right.pathLength(x, depth+1)
}

// anomalyScore returns the iForest score in (0,1); values near 1 indicate
// isolation in few splits.
func (f *isolationForest) anomalyScore(x []float64) float64 {
	if len(f.trees) == 0 || f.cNorm == 0 {
		return 0
	}
	sum := 0.0
	for _, tree := range f.trees {
		sum += tree.pathLength(x, 0)
	}
	mean := sum / float64(len(f.trees))
	return math.Pow(2, -mean/f.cNorm)
}

// decisionFunction matches the sklearn convention: positive for inliers,
// negative for outliers, centered so the raw score maps back through
// 1 - (raw + 0.5).
func (f *isolationForest) decisionFunction(x []float64) float64 {
	return 0.5 - f.anomalyScore(x)
}
