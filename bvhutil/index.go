// Package bvhutil builds bounding volume hierarchies over the elements of
// meshes and point clouds and caches them per mesh and element kind.
package bvhutil

import "github.com/soypat/shrinkwrap/bvh"

// CacheType selects which elements of a mesh a cached tree indexes.
type CacheType int

const (
	Verts CacheType = iota
	Edges
	// Faces has one leaf per polygon.
	Faces
	CornerTris
	// CornerTrisNoHidden skips triangles of hidden faces.
	CornerTrisNoHidden
	LooseVerts
	LooseEdges
	// Edit mesh element kinds skip hidden elements.
	EditVerts
	EditEdges
	EditCornerTris
	numCacheTypes
)

func (c CacheType) String() string {
	switch c {
	case Verts:
		return "verts"
	case Edges:
		return "edges"
	case Faces:
		return "faces"
	case CornerTris:
		return "corner tris"
	case CornerTrisNoHidden:
		return "corner tris no hidden"
	case LooseVerts:
		return "loose verts"
	case LooseEdges:
		return "loose edges"
	case EditVerts:
		return "edit verts"
	case EditEdges:
		return "edit edges"
	case EditCornerTris:
		return "edit corner tris"
	}
	return "invalid cache type"
}

// Index is a tree held by a wrapper. An owned index is destroyed by Free,
// a borrowed one belongs to a Cache and outlives the wrapper.
type Index interface {
	Tree() *bvh.Tree
	// Cached reports whether the tree is borrowed from a cache.
	Cached() bool
	Free()
}

// OwnedIndex is an Index whose tree is destroyed on Free.
type OwnedIndex struct {
	tree *bvh.Tree
}

func (o *OwnedIndex) Tree() *bvh.Tree { return o.tree }
func (o *OwnedIndex) Cached() bool    { return false }

func (o *OwnedIndex) Free() {
	if o.tree != nil {
		o.tree.Free()
		o.tree = nil
	}
}

// BorrowedIndex is an Index whose tree is owned by a Cache. Free is a no-op.
type BorrowedIndex struct {
	tree *bvh.Tree
}

func (b BorrowedIndex) Tree() *bvh.Tree { return b.tree }
func (b BorrowedIndex) Cached() bool    { return true }
func (b BorrowedIndex) Free()           {}

// own wraps tree in an owned index. A nil tree yields a nil Index.
func own(tree *bvh.Tree) Index {
	if tree == nil {
		return nil
	}
	return &OwnedIndex{tree: tree}
}

func borrow(tree *bvh.Tree) Index {
	if tree == nil {
		return nil
	}
	return BorrowedIndex{tree: tree}
}
