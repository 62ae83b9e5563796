package shrinkwrap

import (
	"math"

	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/isect"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	newtonMaxIterations = 20
	lineSearchMax       = 64
)

// FindNearestSurface returns the target element closest to co within
// sqrt(maxDistSq). co is in the target's space. For TargetProject the
// result is the surface point whose interpolated vertex normal passes
// through co, falling back onto open boundary edges when no such point
// exists on a boundary triangle. For NearestVertex the tree must have been
// prepared for that mode.
func FindNearestSurface(tree *TreeData, co r3.Vec, mode Mode, maxDistSq float64) bvh.Nearest {
	nearest := bvh.NoNearest(maxDistSq)
	if tree == nil || tree.BVH.Empty() {
		return nearest
	}
	if _, ok := mode.(TargetProject); ok && tree.VertNormals != nil {
		tree.BVH.Tree().Nearest(co, &nearest, tree.targetProjectFunc())
		return nearest
	}
	tree.BVH.Nearest(co, &nearest)
	return nearest
}

func (d *TreeData) targetProjectFunc() bvh.NearestFunc {
	positions := d.Mesh.Positions
	return func(index int, co r3.Vec, nearest *bvh.Nearest) {
		v := d.triVerts(index)
		tri := [3]r3.Vec{positions[v[0]], positions[v[1]], positions[v[2]]}
		rawHit := isect.ClosestOnTriangle(co, tri[0], tri[1], tri[2])
		distSq := r3.Norm2(r3.Sub(co, rawHit))
		if distSq > nearest.DistSq {
			return
		}
		no := [3]r3.Vec{d.VertNormals[v[0]], d.VertNormals[v[1]], d.VertNormals[v[2]]}
		if hitCo, hitNo, ok := solvePointTri(tri, no, co, rawHit, distSq); ok {
			updateHit(nearest, index, co, hitCo, hitNo)
			return
		}
		if d.Boundary == nil || !d.Boundary.HasBoundary() || !d.Boundary.TriHasBoundary[index] {
			return
		}
		for _, e := range d.Mesh.CornerTriRealEdges(index) {
			if e >= 0 && d.Boundary.EdgeIsBoundary[e] {
				d.targetProjectEdge(index, co, nearest, e)
			}
		}
	}
}

func updateHit(nearest *bvh.Nearest, index int, co, hitCo, hitNo r3.Vec) {
	distSq := r3.Norm2(r3.Sub(hitCo, co))
	if distSq < nearest.DistSq {
		no, _ := d3.Unit(hitNo)
		*nearest = bvh.Nearest{Index: index, Co: hitCo, No: no, DistSq: distSq}
	}
}

// targetProjectEdge finds the points of boundary edge e where the normal
// plane direction, interpolated between the edge's boundary vertices, is
// perpendicular to the offset towards co.
func (d *TreeData) targetProjectEdge(index int, co r3.Vec, nearest *bvh.Nearest, e int) {
	edge := d.Edges[e]
	bid0, bid1 := d.Boundary.VertBoundaryID[edge[0]], d.Boundary.VertBoundaryID[edge[1]]
	if bid0 < 0 || bid1 < 0 {
		return
	}
	v0, v1 := d.Mesh.Positions[edge[0]], d.Mesh.Positions[edge[1]]
	bv0, bv1 := d.Boundary.Verts[bid0], d.Boundary.Verts[bid1]
	dir := r3.Sub(v1, v0)
	d0, d1 := bv0.NormalPlane, bv1.NormalPlane
	if r3.Dot(bv0.Direction, dir) < 0 {
		d0 = r3.Scale(-1, d0)
	}
	if r3.Dot(bv1.Direction, dir) < 0 {
		d1 = r3.Scale(-1, d1)
	}

	// lerp(d0,d1,x) . (co - lerp(v0,v1,x)) = 0
	d0v0, d0v1 := r3.Dot(d0, v0), r3.Dot(d0, v1)
	d1v0, d1v1 := r3.Dot(d1, v0), r3.Dot(d1, v1)
	d0co, d1co := r3.Dot(d0, co), r3.Dot(d1, co)
	a := d0v1 - d0v0 + d1v0 - d1v1
	b := 2*d0v0 - d0v1 - d0co - d1v0 + d1co
	c := d0co - d0v0

	const eps = 1e-6
	var roots [2]float64
	n := solveQuadratic(a, b, c, &roots)
	for _, x := range roots[:n] {
		if x < -eps || x > 1+eps {
			continue
		}
		x = math.Max(0, math.Min(1, x))
		hitCo := d3.Lerp(v0, v1, x)
		hitNo := d3.Lerp(d.VertNormals[edge[0]], d.VertNormals[edge[1]], x)
		updateHit(nearest, index, co, hitCo, hitNo)
	}
}

// solveQuadratic stores the real roots of a*x^2+b*x+c in roots and returns
// how many there are. A vanishing a degrades to the linear equation.
func solveQuadratic(a, b, c float64, roots *[2]float64) int {
	scale := math.Max(math.Abs(b), math.Abs(c))
	if math.Abs(a) <= 1e-12*scale || a == 0 {
		if b == 0 {
			return 0
		}
		roots[0] = -c / b
		return 1
	}
	disc := b*b - 4*a*c
	switch {
	case disc < 0:
		return 0
	case disc == 0:
		roots[0] = -b / (2 * a)
		return 1
	}
	sq := math.Sqrt(disc)
	// Avoid cancellation between -b and sq.
	q := -0.5 * (b + math.Copysign(sq, b))
	roots[0] = q / a
	if q == 0 {
		roots[1] = -roots[0]
	} else {
		roots[1] = c / q
	}
	return 2
}

// pointTriSolver solves for barycentric weights w0, w1 and offset t such
// that interp(co, w) + t*interp(no, w) equals the point.
type pointTriSolver struct {
	co, no [3]r3.Vec
	point  r3.Vec
	c02    r3.Vec
	c12    r3.Vec
	n02    r3.Vec
	n12    r3.Vec
}

func weights(x r3.Vec) [3]float64 {
	return [3]float64{x.X, x.Y, 1 - x.X - x.Y}
}

// deviation returns the residual at x with the interpolated position and normal.
func (s *pointTriSolver) deviation(x r3.Vec) (delta, co, no r3.Vec) {
	w := weights(x)
	co = d3.Interp3(s.co[0], s.co[1], s.co[2], w)
	no = d3.Interp3(s.no[0], s.no[1], s.no[2], w)
	delta = r3.Sub(r3.Add(co, r3.Scale(x.Z, no)), s.point)
	return delta, co, no
}

// jacobian returns the columns of the residual's derivative at x.
func (s *pointTriSolver) jacobian(x r3.Vec) (j0, j1, j2 r3.Vec) {
	j0 = r3.Add(s.c02, r3.Scale(x.Z, s.n02))
	j1 = r3.Add(s.c12, r3.Scale(x.Z, s.n12))
	j2 = r3.Add(r3.Add(s.no[2], r3.Scale(x.X, s.n02)), r3.Scale(x.Y, s.n12))
	return j0, j1, j2
}

// solveColumns solves [j0 j1 j2] * step = b by Cramer's rule.
func solveColumns(j0, j1, j2, b r3.Vec) (r3.Vec, bool) {
	c12 := r3.Cross(j1, j2)
	det := r3.Dot(j0, c12)
	if det == 0 || math.IsNaN(det) {
		return r3.Vec{}, false
	}
	inv := 1 / det
	return r3.Vec{
		X: r3.Dot(b, c12) * inv,
		Y: r3.Dot(j0, r3.Cross(b, j2)) * inv,
		Z: r3.Dot(j0, r3.Cross(j1, b)) * inv,
	}, true
}

// clampWeights keeps the first two components inside the barycentric domain.
func clampWeights(x *r3.Vec) {
	if x.X < 0 {
		x.X = 0
	}
	if x.Y < 0 {
		x.Y = 0
	}
	if sum := x.X + x.Y; sum > 1 {
		x.X /= sum
		x.Y = 1 - x.X
	}
}

// correct limits a Newton step x-step to the barycentric domain, sliding
// along its sides. It reports false when the step points clearly outside
// the triangle from a point already on its border.
func correct(x r3.Vec, step *r3.Vec, next *r3.Vec) bool {
	const (
		epsilon    = 1e-5
		dirEpsilon = 0.5
	)
	fixed, locked := false, false

	// Diagonal x+y=1. The step is subtracted.
	sum := x.X + x.Y
	sstep := -(step.X + step.Y)
	if sum+sstep > 1 {
		ldist := 1 - sum
		if ldist < epsilon*math.Sqrt2 {
			stepLen := math.Hypot(step.X, step.Y)
			if stepLen > epsilon && sstep > stepLen*dirEpsilon*math.Sqrt2 {
				return false
			}
			// Project onto the diagonal.
			off := (sum + sstep - 1) * 0.5
			step.X += off
			step.Y += off
			fixed, locked = true, true
		} else {
			*step = r3.Scale(ldist/sstep, *step)
			fixed = true
		}
	}

	// Axes x=0 and y=0.
	for i := 0; i < 2; i++ {
		xi, si := x.X, &step.X
		if i == 1 {
			xi, si = x.Y, &step.Y
		}
		if *si <= xi {
			continue
		}
		if xi < epsilon {
			stepLen := math.Hypot(step.X, step.Y)
			if stepLen > epsilon && (locked || *si > stepLen*dirEpsilon) {
				return false
			}
			*si = xi
		} else {
			*step = r3.Scale(xi / *si, *step)
		}
		fixed = true
	}

	if fixed {
		*next = r3.Sub(x, *step)
		clampWeights(next)
	}
	return true
}

// solvePointTri runs a damped Newton iteration starting from the closest
// point hitCo on the triangle. It returns the solved point and its
// interpolated normal.
func solvePointTri(co, no [3]r3.Vec, point, hitCo r3.Vec, hitDistSq float64) (r3.Vec, r3.Vec, bool) {
	s := pointTriSolver{
		co:    co,
		no:    no,
		point: point,
		c02:   r3.Sub(co[0], co[2]),
		c12:   r3.Sub(co[1], co[2]),
		n02:   r3.Sub(no[0], no[2]),
		n12:   r3.Sub(no[1], no[2]),
	}
	dist := math.Sqrt(hitDistSq)
	magnitude := dist + d3.ManhattanNorm(co[0]) + d3.ManhattanNorm(co[1]) + d3.ManhattanNorm(co[2])
	epsilon := magnitude * 1e-6
	epsilon *= epsilon

	w := isect.TriangleWeights(co[0], co[1], co[2], hitCo)
	x := r3.Vec{X: w[0], Y: w[1]}
	hitNo := d3.Interp3(no[0], no[1], no[2], w)
	x.Z = dist
	if r3.Dot(r3.Sub(point, hitCo), hitNo) < 0 {
		x.Z = -dist
	}

	fdelta, resCo, resNo := s.deviation(x)
	fdeltav := r3.Norm2(fdelta)
	for i := 0; i == 0 || (i < newtonMaxIterations && fdeltav > epsilon); i++ {
		j0, j1, j2 := s.jacobian(x)
		step, ok := solveColumns(j0, j1, j2, fdelta)
		if !ok {
			return r3.Vec{}, r3.Vec{}, false
		}
		next := r3.Sub(x, step)
		if !correct(x, &step, &next) {
			return r3.Vec{}, r3.Vec{}, false
		}
		fdelta, resCo, resNo = s.deviation(next)
		nextv := r3.Norm2(fdelta)
		for ls := 0; nextv > fdeltav && nextv > epsilon; ls++ {
			if ls == lineSearchMax {
				return r3.Vec{}, r3.Vec{}, false
			}
			g0, g1 := math.Sqrt(fdeltav), math.Sqrt(nextv)
			g01 := -g0 / r3.Norm(step)
			det := 2 * (g1 - g0 - g01)
			l := 0.1
			if det != 0 {
				l = math.Max(-g01/det, 0.1)
			}
			step = r3.Scale(l, step)
			next = r3.Sub(x, step)
			fdelta, resCo, resNo = s.deviation(next)
			nextv = r3.Norm2(fdelta)
		}
		x = next
		fdeltav = nextv
	}
	if fdeltav > epsilon {
		return r3.Vec{}, r3.Vec{}, false
	}
	return resCo, resNo, true
}
