package bvhutil

import (
	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/editmesh"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/isect"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// BVHFromMesh is a tree over one kind of mesh element together with the
// geometry needed to answer exact queries against those elements. The
// slices alias the source mesh unless built with CopyArrays.
type BVHFromMesh struct {
	// Index is nil when there were no elements to index.
	Index Index
	Type  CacheType

	Positions   []r3.Vec
	Edges       [][2]int
	FaceOffsets []int
	CornerVerts []int
	CornerTris  []mesh.CornerTri
	// faceTris[f] is the first corner triangle of face f, faceTris[f+1] the end.
	faceTris []int
}

// Tree returns the underlying tree or nil if empty.
func (w *BVHFromMesh) Tree() *bvh.Tree {
	if w.Index == nil {
		return nil
	}
	return w.Index.Tree()
}

// Empty reports whether there is no tree to query.
func (w *BVHFromMesh) Empty() bool { return w.Tree() == nil }

// Free releases the tree if the wrapper owns it.
func (w *BVHFromMesh) Free() {
	if w.Index != nil {
		w.Index.Free()
	}
}

// Nearest updates nearest with the element closest to co. It returns
// nearest.Index.
func (w *BVHFromMesh) Nearest(co r3.Vec, nearest *bvh.Nearest) int {
	tree := w.Tree()
	if tree == nil {
		return nearest.Index
	}
	return tree.Nearest(co, nearest, w.nearestFunc())
}

// NearestTo returns the element closest to co within sqrt(maxDistSq).
func (w *BVHFromMesh) NearestTo(co r3.Vec, maxDistSq float64) bvh.Nearest {
	nearest := bvh.NoNearest(maxDistSq)
	w.Nearest(co, &nearest)
	return nearest
}

// RayCast updates hit with the closest element along ray thickened by
// radius. It returns hit.Index.
func (w *BVHFromMesh) RayCast(ray isect.Ray, radius float64, hit *bvh.RayHit) int {
	tree := w.Tree()
	if tree == nil {
		return hit.Index
	}
	return tree.RayCast(ray, radius, hit, w.rayCastFunc())
}

// RayCastTo returns the closest element along ray within maxDist.
func (w *BVHFromMesh) RayCastTo(ray isect.Ray, radius, maxDist float64) bvh.RayHit {
	hit := bvh.NoHit(maxDist)
	w.RayCast(ray, radius, &hit)
	return hit
}

func (w *BVHFromMesh) tri(i int) (a, b, c r3.Vec) {
	t := w.CornerTris[i]
	return w.Positions[w.CornerVerts[t[0]]], w.Positions[w.CornerVerts[t[1]]], w.Positions[w.CornerVerts[t[2]]]
}

func (w *BVHFromMesh) nearestFunc() bvh.NearestFunc {
	switch w.Type {
	case Verts, LooseVerts:
		return pointNearest(func(i int) r3.Vec { return w.Positions[i] })
	case Edges, LooseEdges:
		return segmentNearest(func(i int) (r3.Vec, r3.Vec) {
			e := w.Edges[i]
			return w.Positions[e[0]], w.Positions[e[1]]
		})
	case Faces:
		tri := triNearest(w.tri)
		return func(index int, co r3.Vec, nearest *bvh.Nearest) {
			// Report the face, not the triangle.
			best := *nearest
			for t := w.faceTris[index]; t < w.faceTris[index+1]; t++ {
				tri(t, co, &best)
			}
			if best.DistSq < nearest.DistSq {
				best.Index = index
				*nearest = best
			}
		}
	}
	return triNearest(w.tri)
}

func (w *BVHFromMesh) rayCastFunc() bvh.RayCastFunc {
	switch w.Type {
	case Verts, LooseVerts:
		return pointRayCast(func(i int) r3.Vec { return w.Positions[i] })
	case Edges, LooseEdges:
		return segmentRayCast(func(i int) (r3.Vec, r3.Vec) {
			e := w.Edges[i]
			return w.Positions[e[0]], w.Positions[e[1]]
		})
	case Faces:
		tri := triRayCast(w.tri)
		return func(index int, ray isect.Ray, radius float64, hit *bvh.RayHit) {
			best := *hit
			for t := w.faceTris[index]; t < w.faceTris[index+1]; t++ {
				tri(t, ray, radius, &best)
			}
			if best.Dist < hit.Dist {
				best.Index = index
				*hit = best
			}
		}
	}
	return triRayCast(w.tri)
}

// BVHFromEditMesh is a tree over one kind of edit mesh element.
type BVHFromEditMesh struct {
	Index    Index
	Type     CacheType
	Mesh     *editmesh.Mesh
	LoopTris [][3]*editmesh.Loop
}

func (w *BVHFromEditMesh) Tree() *bvh.Tree {
	if w.Index == nil {
		return nil
	}
	return w.Index.Tree()
}

func (w *BVHFromEditMesh) Empty() bool { return w.Tree() == nil }

func (w *BVHFromEditMesh) Free() {
	if w.Index != nil {
		w.Index.Free()
	}
}

func (w *BVHFromEditMesh) Nearest(co r3.Vec, nearest *bvh.Nearest) int {
	tree := w.Tree()
	if tree == nil {
		return nearest.Index
	}
	var fn bvh.NearestFunc
	switch w.Type {
	case EditVerts:
		fn = pointNearest(func(i int) r3.Vec { return w.Mesh.Verts[i].Co })
	case EditEdges:
		fn = segmentNearest(w.edge)
	default:
		fn = triNearest(w.tri)
	}
	return tree.Nearest(co, nearest, fn)
}

func (w *BVHFromEditMesh) NearestTo(co r3.Vec, maxDistSq float64) bvh.Nearest {
	nearest := bvh.NoNearest(maxDistSq)
	w.Nearest(co, &nearest)
	return nearest
}

func (w *BVHFromEditMesh) RayCast(ray isect.Ray, radius float64, hit *bvh.RayHit) int {
	tree := w.Tree()
	if tree == nil {
		return hit.Index
	}
	var fn bvh.RayCastFunc
	switch w.Type {
	case EditVerts:
		fn = pointRayCast(func(i int) r3.Vec { return w.Mesh.Verts[i].Co })
	case EditEdges:
		fn = segmentRayCast(w.edge)
	default:
		fn = triRayCast(w.tri)
	}
	return tree.RayCast(ray, radius, hit, fn)
}

func (w *BVHFromEditMesh) RayCastTo(ray isect.Ray, radius, maxDist float64) bvh.RayHit {
	hit := bvh.NoHit(maxDist)
	w.RayCast(ray, radius, &hit)
	return hit
}

func (w *BVHFromEditMesh) edge(i int) (r3.Vec, r3.Vec) {
	e := w.Mesh.Edges[i]
	return e.V[0].Co, e.V[1].Co
}

func (w *BVHFromEditMesh) tri(i int) (a, b, c r3.Vec) {
	t := w.LoopTris[i]
	return t[0].V.Co, t[1].V.Co, t[2].V.Co
}

// BVHFromPointCloud is a tree over a set of points.
type BVHFromPointCloud struct {
	Index     Index
	Positions []r3.Vec
}

// BuildPointCloud indexes positions. The result owns its tree.
func BuildPointCloud(positions []r3.Vec, p BuildParams) BVHFromPointCloud {
	if p.CopyArrays {
		positions = append([]r3.Vec(nil), positions...)
	}
	return BVHFromPointCloud{
		Index:     own(BuildVerts(positions, p)),
		Positions: positions,
	}
}

func (w *BVHFromPointCloud) Tree() *bvh.Tree {
	if w.Index == nil {
		return nil
	}
	return w.Index.Tree()
}

func (w *BVHFromPointCloud) Empty() bool { return w.Tree() == nil }

func (w *BVHFromPointCloud) Free() {
	if w.Index != nil {
		w.Index.Free()
	}
}

func (w *BVHFromPointCloud) Nearest(co r3.Vec, nearest *bvh.Nearest) int {
	tree := w.Tree()
	if tree == nil {
		return nearest.Index
	}
	return tree.Nearest(co, nearest, pointNearest(func(i int) r3.Vec { return w.Positions[i] }))
}

func (w *BVHFromPointCloud) NearestTo(co r3.Vec, maxDistSq float64) bvh.Nearest {
	nearest := bvh.NoNearest(maxDistSq)
	w.Nearest(co, &nearest)
	return nearest
}

func (w *BVHFromPointCloud) RayCast(ray isect.Ray, radius float64, hit *bvh.RayHit) int {
	tree := w.Tree()
	if tree == nil {
		return hit.Index
	}
	return tree.RayCast(ray, radius, hit, pointRayCast(func(i int) r3.Vec { return w.Positions[i] }))
}

func pointNearest(point func(int) r3.Vec) bvh.NearestFunc {
	return func(index int, co r3.Vec, nearest *bvh.Nearest) {
		p := point(index)
		if d2 := r3.Norm2(r3.Sub(p, co)); d2 < nearest.DistSq {
			*nearest = bvh.Nearest{Index: index, Co: p, DistSq: d2}
		}
	}
}

func segmentNearest(segment func(int) (r3.Vec, r3.Vec)) bvh.NearestFunc {
	return func(index int, co r3.Vec, nearest *bvh.Nearest) {
		a, b := segment(index)
		p, _ := isect.ClosestOnSegment(co, a, b)
		if d2 := r3.Norm2(r3.Sub(p, co)); d2 < nearest.DistSq {
			no, _ := d3.Unit(r3.Sub(b, a))
			*nearest = bvh.Nearest{Index: index, Co: p, No: no, DistSq: d2}
		}
	}
}

func triNearest(tri func(int) (r3.Vec, r3.Vec, r3.Vec)) bvh.NearestFunc {
	return func(index int, co r3.Vec, nearest *bvh.Nearest) {
		a, b, c := tri(index)
		p := isect.ClosestOnTriangle(co, a, b, c)
		if d2 := r3.Norm2(r3.Sub(p, co)); d2 < nearest.DistSq {
			*nearest = bvh.Nearest{Index: index, Co: p, No: isect.TriangleNormal(a, b, c), DistSq: d2}
		}
	}
}

func pointRayCast(point func(int) r3.Vec) bvh.RayCastFunc {
	return func(index int, ray isect.Ray, radius float64, hit *bvh.RayHit) {
		p := point(index)
		if d, ok := isect.RayPoint(ray, radius, hit.Dist, p); ok {
			no, _ := d3.Unit(r3.Sub(ray.At(d), p))
			*hit = bvh.RayHit{Index: index, Co: p, No: no, Dist: d}
		}
	}
}

func segmentRayCast(segment func(int) (r3.Vec, r3.Vec)) bvh.RayCastFunc {
	return func(index int, ray isect.Ray, radius float64, hit *bvh.RayHit) {
		a, b := segment(index)
		if d, ok := isect.RaySegment(ray, radius, hit.Dist, a, b); ok {
			co := ray.At(d)
			p, _ := isect.ClosestOnSegment(co, a, b)
			no, _ := d3.Unit(r3.Sub(co, p))
			*hit = bvh.RayHit{Index: index, Co: p, No: no, Dist: d}
		}
	}
}

func triRayCast(tri func(int) (r3.Vec, r3.Vec, r3.Vec)) bvh.RayCastFunc {
	return func(index int, ray isect.Ray, radius float64, hit *bvh.RayHit) {
		a, b, c := tri(index)
		var d float64
		var ok bool
		if radius == 0 {
			d, ok = isect.RayTriangle(ray, hit.Dist, a, b, c)
		} else {
			d, ok = isect.SphereRayTriangle(ray, radius, hit.Dist, a, b, c)
		}
		if ok {
			*hit = bvh.RayHit{Index: index, Co: ray.At(d), No: isect.TriangleNormal(a, b, c), Dist: d}
		}
	}
}
