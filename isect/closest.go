package isect

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// ClosestOnTriangle returns the point of the solid triangle a,b,c closest
// to p. Based on Geometric Tool's algorithm for the distance between a point
// and a solid triangle, licensed under the Boost Software License.
func ClosestOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	diff := r3.Sub(p, a)
	edge0 := r3.Sub(b, a)
	edge1 := r3.Sub(c, a)

	a00 := r3.Dot(edge0, edge0)
	a01 := r3.Dot(edge0, edge1)
	a11 := r3.Dot(edge1, edge1)
	b0 := -r3.Dot(diff, edge0)
	b1 := -r3.Dot(diff, edge1)

	f00 := b0
	f10 := b0 + a00
	f01 := b0 + a01

	var p0, p1, st [2]float64
	var dt1, h0, h1 float64

	switch {
	case f00 >= 0:
		if f01 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		p0 = [2]float64{0, f00 / (f00 - f01)}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	case f01 <= 0:
		if f10 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
			break
		}
		p0 = [2]float64{f00 / (f00 - f10), 0}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	case f10 <= 0:
		p0 = [2]float64{0, f00 / (f00 - f01)}
		p1[0] = f01 / (f01 - f10)
		p1[1] = 1 - p1[0]
		dt1 = p1[1] - p0[1]
		h0 = dt1 * (a11*p0[1] + b1)
		if h0 >= 0 {
			st = minEdge02(a11, b1)
			break
		}
		h1 = dt1 * (a01*p1[0] + a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge12(a01, a11, b1, f10, f01)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}

	default:
		p0 = [2]float64{f00 / (f00 - f10), 0}
		p1 = [2]float64{0, f00 / (f00 - f01)}
		h0 = p1[1] * (a01*p0[0] + b1)
		if h0 >= 0 {
			st = p0
			break
		}
		h1 = p1[1] * (a11*p1[1] + b1)
		if h1 <= 0 {
			st = minEdge02(a11, b1)
		} else {
			st = minInterior(p0, h0, p1, h1)
		}
	}
	return r3.Add(a, r3.Add(r3.Scale(st[0], edge0), r3.Scale(st[1], edge1)))
}

func minEdge02(a11, b1 float64) (st [2]float64) {
	switch {
	case b1 >= 0:
		st[1] = 0
	case a11+b1 <= 0:
		st[1] = 1
	default:
		st[1] = -b1 / a11
	}
	return st
}

func minEdge12(a01, a11, b1, f10, f01 float64) (st [2]float64) {
	h0 := a01 + b1 - f10
	if h0 >= 0 {
		st[1] = 0
	} else {
		h1 := a11 + b1 - f01
		if h1 <= 0 {
			st[1] = 1
		} else {
			st[1] = h0 / (h0 - h1)
		}
	}
	st[0] = 1 - st[1]
	return st
}

func minInterior(p0 [2]float64, h0 float64, p1 [2]float64, h1 float64) (st [2]float64) {
	z := h0 / (h0 - h1)
	omz := 1 - z
	st[0] = omz*p0[0] + z*p1[0]
	st[1] = omz*p0[1] + z*p1[1]
	return st
}

// ClosestOnSegment returns the point of segment a,b closest to p and its
// parameter along the segment in [0, 1].
func ClosestOnSegment(p, a, b r3.Vec) (r3.Vec, float64) {
	e := r3.Sub(b, a)
	ee := r3.Norm2(e)
	if ee == 0 {
		return a, 0
	}
	t := clamp01(r3.Dot(r3.Sub(p, a), e) / ee)
	return r3.Add(a, r3.Scale(t, e)), t
}

// TriangleWeights returns the barycentric weights of the projection of p onto
// the plane of triangle a,b,c. Degenerate triangles weigh all vertices equally.
func TriangleWeights(a, b, c, p r3.Vec) [3]float64 {
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	ep := r3.Sub(p, a)
	d00 := r3.Dot(e1, e1)
	d01 := r3.Dot(e1, e2)
	d11 := r3.Dot(e2, e2)
	d20 := r3.Dot(ep, e1)
	d21 := r3.Dot(ep, e2)
	denom := d00*d11 - d01*d01
	if denom == 0 {
		return [3]float64{1. / 3, 1. / 3, 1. / 3}
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	return [3]float64{1 - v - w, v, w}
}

// TriangleNormal returns the unit normal of triangle a,b,c following the
// right hand rule, or the zero vector for degenerate triangles.
func TriangleNormal(a, b, c r3.Vec) r3.Vec {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}
