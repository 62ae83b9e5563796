package shrinkwrap

import (
	"math"

	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/isect"
	"gonum.org/v1/gonum/spatial/r3"
)

// surfaceEpsilon is the distance under which a point counts as lying on
// the surface.
const surfaceEpsilon = 1.1920929e-07

// SnapPointToSurface returns where pointCo ends up given the surface point
// hitCo with normal hitNo found for it. keepDist is the distance to keep
// from the surface. hitIndex and transform are only read by AboveSurface to
// compute the smooth normal of corner triangle hitIndex; transform maps
// local space, where all arguments live, to the target's space and may be nil.
func SnapPointToSurface(tree *TreeData, transform *d3.SpaceTransform, snap Snap, hitIndex int, hitCo, hitNo r3.Vec, keepDist float64, pointCo r3.Vec) r3.Vec {
	switch snap {
	case OnSurface:
		return r3.Add(hitCo, r3.Scale(keepDist, hitNo))
	case Inside:
		return snapWithSide(pointCo, hitCo, hitNo, keepDist, -1, false)
	case Outside:
		return snapWithSide(pointCo, hitCo, hitNo, keepDist, 1, false)
	case OutsideSurface:
		if keepDist != 0 {
			return snapWithSide(pointCo, hitCo, hitNo, keepDist, 1, true)
		}
		return hitCo
	case AboveSurface:
		if keepDist != 0 {
			no := ComputeSmoothNormal(tree, transform, hitIndex, hitCo, hitNo)
			return r3.Add(hitCo, r3.Scale(keepDist, no))
		}
		return hitCo
	}
	return hitCo
}

// snapWithSide moves point to keepDist from hit on the side given by
// forceSign, +1 along hitNo and -1 against it. Without forceSnap a point
// already far enough on the correct side stays put.
func snapWithSide(point, hit, hitNo r3.Vec, keepDist, forceSign float64, forceSnap bool) r3.Vec {
	delta := r3.Sub(point, hit)
	dist := r3.Norm(delta)
	if dist < surfaceEpsilon {
		if forceSnap || keepDist > 0 {
			return r3.Add(hit, r3.Scale(keepDist*forceSign, hitNo))
		}
		return hit
	}
	dsign := 1.0
	if r3.Dot(delta, hitNo) < 0 {
		dsign = -1
	}
	if !forceSnap && dsign*dist*forceSign >= keepDist {
		return point
	}
	delta = r3.Scale(dsign/dist, delta)
	// Close to the surface the offset direction is noisy; lean on the normal.
	distEpsilon := (math.Abs(keepDist) + d3.ManhattanNorm(hit)) * 1e-4
	if dist < distEpsilon {
		delta, _ = d3.Unit(d3.Lerp(hitNo, delta, dist/distEpsilon))
	}
	return r3.Add(hit, r3.Scale(keepDist*forceSign, delta))
}

// ComputeSmoothNormal returns the normal at hitCo on corner triangle tri.
// Smooth faces interpolate corner or vertex normals, sharp faces use the
// face normal. hitCo and the result are in local space; transform may be
// nil. hitNo is returned when the tree holds no normals.
func ComputeSmoothNormal(tree *TreeData, transform *d3.SpaceTransform, tri int, hitCo, hitNo r3.Vec) r3.Vec {
	if tree == nil || tri < 0 || tri >= len(tree.CornerTris) {
		return hitNo
	}
	face := tree.TriFaces[tri]
	if !tree.faceSharp(face) && tree.VertNormals != nil {
		corners := tree.CornerTris[tri]
		verts := tree.triVerts(tri)
		var no [3]r3.Vec
		for i := range no {
			if tree.CornerNormals != nil {
				no[i] = tree.CornerNormals[corners[i]]
			} else {
				no[i] = tree.VertNormals[verts[i]]
			}
		}
		co := hitCo
		if transform != nil {
			co = transform.Apply(co)
		}
		p := tree.Mesh.Positions
		w := isect.TriangleWeights(p[verts[0]], p[verts[1]], p[verts[2]], co)
		n := d3.Interp3(no[0], no[1], no[2], w)
		if transform != nil {
			return transform.InvertNormal(n)
		}
		n, _ = d3.Unit(n)
		return n
	}
	if tree.FaceNormals != nil {
		n := tree.FaceNormals[face]
		if transform != nil {
			n = transform.InvertNormal(n)
		}
		return n
	}
	return hitNo
}
