package gbm

import "math"

// Node represents a single node in a regression tree.
// Leaves have Left == Right == -1.
type Node struct {
	// Split information (for non-leaf nodes)
	Feature     int     `json:"feature"`      // Feature index used for splitting
	Threshold   float64 `json:"threshold"`    // Samples with value <= Threshold go left
	DefaultLeft bool    `json:"default_left"` // Direction for missing values
	Gain        float64 `json:"gain"`         // Loss reduction of the split
	Left        int     `json:"left"`
	Right       int     `json:"right"`

	// Leaf information
	Value float64 `json:"value"` // Leaf output, learning rate already applied

	// Statistics
	Cover float64 `json:"cover"` // Sum of hessians of the training rows reaching the node

	bin int // split bin index, used to route binned training rows
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is one boosting round. Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict returns the output of the tree for a single sample.
func (t *Tree) Predict(features []float64) float64 {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		v := features[node.Feature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				idx = node.Left
			} else {
				idx = node.Right
			}
		case v <= node.Threshold:
			idx = node.Left
		default:
			idx = node.Right
		}
	}
}

// leafIndex routes a binned training row to its leaf.
func (t *Tree) leafIndex(binned [][]uint16, bm *binMapper, row int) int {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return idx
		}
		b := int(binned[node.Feature][row])
		switch {
		case b == bm.missingBin(node.Feature):
			if node.DefaultLeft {
				idx = node.Left
			} else {
				idx = node.Right
			}
		case b <= node.bin:
			idx = node.Left
		default:
			idx = node.Right
		}
	}
}

// NumLeaves returns the number of leaf nodes.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(idx int) int
	walk = func(idx int) int {
		n := &t.Nodes[idx]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}
