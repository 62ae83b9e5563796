// Package bvh implements a bounding volume hierarchy over indexed leaves.
// Leaves are inserted with their bounding points, the tree is finalized once
// with Balance and from then on is read-only: any number of goroutines may
// query a balanced tree concurrently.
package bvh

import (
	"fmt"
	"sort"

	"github.com/soypat/shrinkwrap/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	minTreeType = 2
	maxTreeType = 32
)

type leaf struct {
	bb    d3.Box
	c     r3.Vec // centroid of the bounding points, used for splitting.
	index int
}

type node struct {
	bb d3.Box
	// first child node for inner nodes, first leaf for leaf nodes.
	first int
	// number of children for inner nodes, number of leaves for leaf nodes.
	count  int
	isLeaf bool
}

// Tree is a bounding volume hierarchy. Each inner node has up to treeType
// children.
type Tree struct {
	leaves   []leaf
	nodes    []node
	epsilon  float64
	treeType int
	balanced bool
	freed    bool
}

// New returns an empty tree ready for Insert. capacity is a hint for the
// number of leaves, epsilon inflates every leaf's bounds on every axis and
// treeType is the branching factor, clamped to [2, 32].
func New(capacity int, epsilon float64, treeType int) *Tree {
	if treeType < minTreeType {
		treeType = minTreeType
	} else if treeType > maxTreeType {
		treeType = maxTreeType
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Tree{
		leaves:   make([]leaf, 0, capacity),
		epsilon:  epsilon,
		treeType: treeType,
	}
}

// Insert adds a leaf bounding pts under the caller's index.
func (t *Tree) Insert(index int, pts ...r3.Vec) {
	if t.balanced {
		panic("bvh: insert into balanced tree")
	}
	if len(pts) == 0 {
		panic("bvh: leaf needs at least one point")
	}
	var c r3.Vec
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	t.leaves = append(t.leaves, leaf{
		bb:    d3.BoxOf(pts...).Inflate(t.epsilon),
		c:     r3.Scale(1/float64(len(pts)), c),
		index: index,
	})
}

// Balance builds the hierarchy. It must be called exactly once after all
// leaves are inserted and before any query.
func (t *Tree) Balance() {
	if t.balanced {
		panic("bvh: tree balanced twice")
	}
	t.balanced = true
	if len(t.leaves) == 0 {
		return
	}
	// A full k-ary tree over n leaves has fewer than 2n nodes.
	t.nodes = make([]node, 1, 2*len(t.leaves)/t.treeType+1)
	t.subdivide(0, 0, len(t.leaves))
}

// subdivide splits leaves[lo:hi] into treeType groups along the longest axis
// of their centroids using the median as pivot.
func (t *Tree) subdivide(ni, lo, hi int) {
	bb := d3.EmptyBox()
	cb := d3.EmptyBox()
	for i := lo; i < hi; i++ {
		bb = bb.Extend(t.leaves[i].bb)
		cb = cb.Include(t.leaves[i].c)
	}
	n := hi - lo
	if n <= t.treeType {
		t.nodes[ni] = node{bb: bb, first: lo, count: n, isLeaf: true}
		return
	}
	axis := cb.LongestAxis()
	group := t.leaves[lo:hi]
	sort.Slice(group, func(i, j int) bool {
		return component(group[i].c, axis) < component(group[j].c, axis)
	})
	k := t.treeType
	first := len(t.nodes)
	for c := 0; c < k; c++ {
		t.nodes = append(t.nodes, node{})
	}
	for c := 0; c < k; c++ {
		t.subdivide(first+c, lo+c*n/k, lo+(c+1)*n/k)
	}
	t.nodes[ni] = node{bb: bb, first: first, count: k}
}

// Len returns the number of leaves in the tree.
func (t *Tree) Len() int { return len(t.leaves) }

// Epsilon returns the amount leaf bounds are inflated by.
func (t *Tree) Epsilon() float64 { return t.epsilon }

// TreeType returns the branching factor.
func (t *Tree) TreeType() int { return t.treeType }

// Balanced reports whether Balance has been called.
func (t *Tree) Balanced() bool { return t.balanced }

// Bounds returns the bounds of all leaves, inflation included.
func (t *Tree) Bounds() d3.Box {
	if len(t.nodes) == 0 {
		return d3.EmptyBox()
	}
	return t.nodes[0].bb
}

// Free releases the tree's storage. A freed tree reports no results.
func (t *Tree) Free() {
	t.leaves = nil
	t.nodes = nil
	t.freed = true
}

// Freed reports whether Free has been called.
func (t *Tree) Freed() bool { return t.freed }

// queryable panics on trees that are not ready and reports whether there
// is anything to query.
func (t *Tree) queryable() bool {
	if t == nil || t.freed {
		return false
	}
	if !t.balanced {
		panic("bvh: query on unbalanced tree")
	}
	return len(t.nodes) > 0
}

func (t *Tree) String() string {
	return fmt.Sprintf("bvh.Tree{leaves: %d, nodes: %d, treeType: %d, epsilon: %g}", len(t.leaves), len(t.nodes), t.treeType, t.epsilon)
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}
