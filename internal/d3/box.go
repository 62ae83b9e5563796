package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is a 3d axis aligned bounding box.
type Box r3.Box

// EmptyBox returns a box that contains nothing. Including any point in it
// yields a degenerate box around that point.
func EmptyBox() Box {
	return Box{Min: Elem(math.Inf(1)), Max: Elem(math.Inf(-1))}
}

// BoxOf returns the smallest box containing all of pts.
func BoxOf(pts ...r3.Vec) Box {
	bb := EmptyBox()
	for _, p := range pts {
		bb = bb.Include(p)
	}
	return bb
}

// IsEmpty reports whether the box contains no points.
func (a Box) IsEmpty() bool {
	return a.Min.X > a.Max.X || a.Min.Y > a.Max.Y || a.Min.Z > a.Max.Z
}

// Extend returns a box enclosing two 3d boxes.
func (a Box) Extend(b Box) Box {
	return Box{
		Min: MinElem(a.Min, b.Min),
		Max: MaxElem(a.Max, b.Max),
	}
}

// Include enlarges a 3d box to include a point.
func (a Box) Include(v r3.Vec) Box {
	return Box{
		Min: MinElem(a.Min, v),
		Max: MaxElem(a.Max, v),
	}
}

// Inflate grows the box by eps on every side of every axis.
func (a Box) Inflate(eps float64) Box {
	e := Elem(eps)
	return Box{Min: r3.Sub(a.Min, e), Max: r3.Add(a.Max, e)}
}

// Size returns the size of a 3d box.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// Center returns the center of a 3d box.
func (a Box) Center() r3.Vec {
	return r3.Add(a.Min, r3.Scale(0.5, a.Size()))
}

// LongestAxis returns 0, 1 or 2 for the X, Y or Z axis.
func (a Box) LongestAxis() int {
	dims := a.Size()
	switch {
	case dims.X >= dims.Y && dims.X >= dims.Z:
		return 0
	case dims.Y >= dims.Z:
		return 1
	}
	return 2
}

// Contains checks if the 3d box contains the given vector (considering bounds as inside).
func (a Box) Contains(v r3.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && a.Min.Z <= v.Z &&
		v.X <= a.Max.X && v.Y <= a.Max.Y && v.Z <= a.Max.Z
}

// Overlaps reports whether the boxes share at least one point.
func (a Box) Overlaps(b Box) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// Closest returns the point of the box closest to p.
func (a Box) Closest(p r3.Vec) r3.Vec {
	return Clamp(p, a.Min, a.Max)
}

// Dist2 returns the squared distance from p to the box. Points inside the
// box are at distance zero.
func (a Box) Dist2(p r3.Vec) float64 {
	dx := math.Max(0, math.Max(p.X-a.Max.X, a.Min.X-p.X))
	dy := math.Max(0, math.Max(p.Y-a.Max.Y, a.Min.Y-p.Y))
	dz := math.Max(0, math.Max(p.Z-a.Max.Z, a.Min.Z-p.Z))
	return dx*dx + dy*dy + dz*dz
}

// RayEntry intersects the ray origin+t*dir, t in [0, tmax], with the box
// using the slab method. invDir holds the componentwise inverse of the ray
// direction. It returns the entry parameter and whether the ray meets the box.
func (a Box) RayEntry(origin, invDir r3.Vec, tmax float64) (float64, bool) {
	tmin := 0.0
	for axis := 0; axis < 3; axis++ {
		o, inv := comp(origin, axis), comp(invDir, axis)
		lo, hi := comp(a.Min, axis), comp(a.Max, axis)
		if math.IsInf(inv, 0) {
			// Parallel to slab.
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t0 := (lo - o) * inv
		t1 := (hi - o) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func comp(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}
