package bvhutil

import (
	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/editmesh"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// BuildParams configures tree construction.
type BuildParams struct {
	// Epsilon inflates every leaf's bounds on every axis.
	Epsilon float64
	// TreeType is the branching factor, clamped to [2, 32].
	TreeType int
	// Mask selects the active elements. A nil mask selects all.
	Mask []bool
	// ActiveCount is the number of set bits in Mask. Zero means count them.
	ActiveCount int
	// CopyArrays makes wrappers own copies of the geometry they reference
	// instead of aliasing the caller's arrays.
	CopyArrays bool
}

// active returns the number of active elements out of n.
func (p BuildParams) active(n int) int {
	if n == 0 {
		return 0
	}
	if p.Mask == nil {
		return n
	}
	if p.ActiveCount > 0 {
		return p.ActiveCount
	}
	count := 0
	for _, on := range p.Mask[:n] {
		if on {
			count++
		}
	}
	return count
}

func (p BuildParams) skip(i int) bool {
	return p.Mask != nil && !p.Mask[i]
}

// newTree returns a tree for n elements or nil if none are active.
func (p BuildParams) newTree(n int) *bvh.Tree {
	active := p.active(n)
	if active == 0 {
		return nil
	}
	return bvh.New(active, p.Epsilon, p.TreeType)
}

// finish balances tree, returning nil for trees that ended up empty.
func finish(tree *bvh.Tree) *bvh.Tree {
	if tree == nil || tree.Len() == 0 {
		return nil
	}
	tree.Balance()
	return tree
}

// BuildVerts indexes positions as point leaves. It returns nil if no
// position is active.
func BuildVerts(positions []r3.Vec, p BuildParams) *bvh.Tree {
	tree := p.newTree(len(positions))
	if tree == nil {
		return nil
	}
	for i, co := range positions {
		if !p.skip(i) {
			tree.Insert(i, co)
		}
	}
	return finish(tree)
}

// BuildEdges indexes edges bounded by their endpoints.
func BuildEdges(positions []r3.Vec, edges [][2]int, p BuildParams) *bvh.Tree {
	tree := p.newTree(len(edges))
	if tree == nil {
		return nil
	}
	for i, e := range edges {
		if !p.skip(i) {
			tree.Insert(i, positions[e[0]], positions[e[1]])
		}
	}
	return finish(tree)
}

// BuildCornerTris indexes corner triangles bounded by their three vertices.
func BuildCornerTris(positions []r3.Vec, cornerVerts []int, tris []mesh.CornerTri, p BuildParams) *bvh.Tree {
	tree := p.newTree(len(tris))
	if tree == nil {
		return nil
	}
	for i, tri := range tris {
		if !p.skip(i) {
			tree.Insert(i, positions[cornerVerts[tri[0]]], positions[cornerVerts[tri[1]]], positions[cornerVerts[tri[2]]])
		}
	}
	return finish(tree)
}

// BuildFaces indexes polygons bounded by all their vertices.
func BuildFaces(positions []r3.Vec, faceOffsets, cornerVerts []int, p BuildParams) *bvh.Tree {
	nf := 0
	if len(faceOffsets) > 0 {
		nf = len(faceOffsets) - 1
	}
	tree := p.newTree(nf)
	if tree == nil {
		return nil
	}
	var pts []r3.Vec
	for f := 0; f < nf; f++ {
		if p.skip(f) {
			continue
		}
		pts = pts[:0]
		for _, v := range cornerVerts[faceOffsets[f]:faceOffsets[f+1]] {
			pts = append(pts, positions[v])
		}
		tree.Insert(f, pts...)
	}
	return finish(tree)
}

// BuildEditVerts indexes the visible vertices of an edit mesh. A non nil
// mask further restricts them.
func BuildEditVerts(em *editmesh.Mesh, p BuildParams) *bvh.Tree {
	p = editMask(p, len(em.Verts), func(i int) bool { return em.Verts[i].Hidden })
	tree := p.newTree(len(em.Verts))
	if tree == nil {
		return nil
	}
	for i, v := range em.Verts {
		if !p.skip(i) {
			tree.Insert(i, v.Co)
		}
	}
	return finish(tree)
}

// BuildEditEdges indexes the visible edges of an edit mesh.
func BuildEditEdges(em *editmesh.Mesh, p BuildParams) *bvh.Tree {
	p = editMask(p, len(em.Edges), func(i int) bool { return em.Edges[i].Hidden })
	tree := p.newTree(len(em.Edges))
	if tree == nil {
		return nil
	}
	for i, e := range em.Edges {
		if !p.skip(i) {
			tree.Insert(i, e.V[0].Co, e.V[1].Co)
		}
	}
	return finish(tree)
}

// BuildEditLoopTris indexes the triangles of visible faces of an edit mesh.
func BuildEditLoopTris(em *editmesh.Mesh, p BuildParams) *bvh.Tree {
	tris := em.LoopTris()
	p = editMask(p, len(tris), func(i int) bool { return tris[i][0].F.Hidden })
	tree := p.newTree(len(tris))
	if tree == nil {
		return nil
	}
	for i, tri := range tris {
		if !p.skip(i) {
			tree.Insert(i, tri[0].V.Co, tri[1].V.Co, tri[2].V.Co)
		}
	}
	return finish(tree)
}

// editMask combines the caller's mask with the hidden state of n elements.
func editMask(p BuildParams, n int, hidden func(int) bool) BuildParams {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = !hidden(i) && !p.skip(i)
	}
	p.Mask = mask
	p.ActiveCount = 0
	return p
}
