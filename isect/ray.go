// Package isect implements the intersection and proximity primitives that
// the spatial index callbacks are built from. All routines are pure
// functions of their arguments.
package isect

import (
	"math"

	"github.com/soypat/shrinkwrap/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ray is a half line starting at Origin. Distances returned by the
// intersection routines are in units of Dir, so Dir should be normalized
// for them to be Euclidean lengths.
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

const (
	// baryEpsilon widens the barycentric acceptance range so rays through a
	// shared edge are not lost between both triangles.
	baryEpsilon = 1e-9
	// degenerateEpsilon is relative to the squared edge lengths.
	degenerateEpsilon = 1e-20
)

// RayTriangle intersects ray with triangle v0,v1,v2 using the Möller–Trumbore
// algorithm. It returns the hit distance along the ray if it is in
// [0, maxDist). Both faces of the triangle are hit. Degenerate (zero area)
// triangles are never hit.
func RayTriangle(ray Ray, maxDist float64, v0, v1, v2 r3.Vec) (float64, bool) {
	e1 := r3.Sub(v1, v0)
	e2 := r3.Sub(v2, v0)
	if isDegenerate(e1, e2) {
		return maxDist, false
	}
	p := r3.Cross(ray.Dir, e2)
	det := r3.Dot(e1, p)
	if det == 0 || math.Abs(det) <= 1e-12*r3.Norm(e1)*r3.Norm(e2)*r3.Norm(ray.Dir) {
		// Ray parallel to the triangle plane.
		return maxDist, false
	}
	f := 1 / det
	s := r3.Sub(ray.Origin, v0)
	u := f * r3.Dot(s, p)
	if u < -baryEpsilon || u > 1+baryEpsilon {
		return maxDist, false
	}
	q := r3.Cross(s, e1)
	v := f * r3.Dot(ray.Dir, q)
	if v < -baryEpsilon || u+v > 1+baryEpsilon {
		return maxDist, false
	}
	t := f * r3.Dot(e2, q)
	if t < 0 || t >= maxDist {
		return maxDist, false
	}
	return t, true
}

// SphereRayTriangle sweeps a sphere of the given radius along ray and
// returns the distance travelled when it first touches the triangle, if that
// is less than maxDist. Contacts against the face interior, the three
// vertices and the three edges are considered. A zero radius is exactly
// RayTriangle.
func SphereRayTriangle(ray Ray, radius, maxDist float64, v0, v1, v2 r3.Vec) (float64, bool) {
	if radius <= 0 {
		return RayTriangle(ray, maxDist, v0, v1, v2)
	}
	e1 := r3.Sub(v1, v0)
	e2 := r3.Sub(v2, v0)
	if isDegenerate(e1, e2) {
		return maxDist, false
	}
	n, _ := d3.Unit(r3.Cross(e1, e2))
	d0 := r3.Dot(n, r3.Sub(ray.Origin, v0))
	nd := r3.Dot(n, ray.Dir)
	if math.Abs(nd) < 1e-12 {
		if math.Abs(d0) >= radius {
			// Travelling parallel to the plane, out of reach.
			return maxDist, false
		}
	} else {
		t0 := (radius - d0) / nd
		t1 := (-radius - d0) / nd
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 >= maxDist || t1 < 0 {
			return maxDist, false
		}
		t0 = math.Max(t0, 0)
		// First contact with the plane. If it lands inside the triangle no
		// vertex or edge can be touched earlier.
		at := ray.At(t0)
		onPlane := r3.Sub(at, r3.Scale(r3.Dot(n, r3.Sub(at, v0)), n))
		if inTriangle(onPlane, v0, e1, e2) {
			return t0, true
		}
	}

	best := maxDist
	hit := false
	dd := r3.Norm2(ray.Dir)
	r2 := radius * radius
	for _, v := range [3]r3.Vec{v0, v1, v2} {
		ov := r3.Sub(ray.Origin, v)
		b := 2 * r3.Dot(ray.Dir, ov)
		c := r3.Norm2(ov) - r2
		if t, ok := lowestRoot(dd, b, c, best); ok {
			best, hit = t, true
		}
	}
	for _, edge := range [3][2]r3.Vec{{v0, v1}, {v1, v2}, {v2, v0}} {
		e := r3.Sub(edge[1], edge[0])
		base := r3.Sub(edge[0], ray.Origin)
		ee := r3.Norm2(e)
		ed := r3.Dot(e, ray.Dir)
		eb := r3.Dot(e, base)
		a := -ee*dd + ed*ed
		b := ee*2*r3.Dot(ray.Dir, base) - 2*ed*eb
		c := ee*(r2-r3.Norm2(base)) + eb*eb
		t, ok := lowestRoot(a, b, c, best)
		if !ok {
			continue
		}
		// Contact must be within the segment, not its infinite line.
		f := (ed*t - eb) / ee
		if f >= 0 && f <= 1 {
			best, hit = t, true
		}
	}
	return best, hit
}

// RaySegment treats segment a,b as a cylinder of the given radius and
// returns the distance along the ray to its point of closest approach if the
// ray passes within radius of the segment before maxDist.
func RaySegment(ray Ray, radius, maxDist float64, a, b r3.Vec) (float64, bool) {
	e := r3.Sub(b, a)
	ee := r3.Norm2(e)
	dd := r3.Norm2(ray.Dir)
	if dd == 0 {
		return maxDist, false
	}
	w := r3.Sub(ray.Origin, a)
	var s, t float64
	if ee == 0 {
		s = 0
		t = math.Max(0, -r3.Dot(w, ray.Dir)/dd)
	} else {
		de := r3.Dot(ray.Dir, e)
		denom := dd*ee - de*de
		if denom > 1e-12*dd*ee {
			s = (dd*r3.Dot(w, e) - de*r3.Dot(w, ray.Dir)) / denom
		}
		s = clamp01(s)
		t = math.Max(0, r3.Dot(r3.Sub(r3.Add(a, r3.Scale(s, e)), ray.Origin), ray.Dir)/dd)
		s = clamp01(r3.Dot(r3.Sub(ray.At(t), a), e) / ee)
	}
	closest := r3.Add(a, r3.Scale(s, e))
	if r3.Norm2(r3.Sub(ray.At(t), closest)) > radius*radius || t >= maxDist {
		return maxDist, false
	}
	return t, true
}

// RayPoint treats p as a sphere of the given radius and returns the distance
// along the ray to its point of closest approach to p.
func RayPoint(ray Ray, radius, maxDist float64, p r3.Vec) (float64, bool) {
	dd := r3.Norm2(ray.Dir)
	if dd == 0 {
		return maxDist, false
	}
	t := r3.Dot(r3.Sub(p, ray.Origin), ray.Dir) / dd
	if t < 0 || t >= maxDist {
		return maxDist, false
	}
	if r3.Norm2(r3.Sub(ray.At(t), p)) > radius*radius {
		return maxDist, false
	}
	return t, true
}

// lowestRoot returns the smallest root of a*x^2+b*x+c in (0, max).
func lowestRoot(a, b, c, max float64) (float64, bool) {
	if a == 0 {
		return 0, false
	}
	det := b*b - 4*a*c
	if det < 0 {
		return 0, false
	}
	sq := math.Sqrt(det)
	r1 := (-b - sq) / (2 * a)
	r2 := (-b + sq) / (2 * a)
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if r1 > 0 && r1 < max {
		return r1, true
	}
	if r2 > 0 && r2 < max {
		return r2, true
	}
	return 0, false
}

func inTriangle(p, v0, e1, e2 r3.Vec) bool {
	w := TriangleWeights(v0, r3.Add(v0, e1), r3.Add(v0, e2), p)
	return w[0] >= -baryEpsilon && w[1] >= -baryEpsilon && w[2] >= -baryEpsilon
}

func isDegenerate(e1, e2 r3.Vec) bool {
	return r3.Norm2(r3.Cross(e1, e2)) <= degenerateEpsilon*r3.Norm2(e1)*r3.Norm2(e2)
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
