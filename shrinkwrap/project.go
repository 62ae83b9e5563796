package shrinkwrap

import (
	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/isect"
	"gonum.org/v1/gonum/spatial/r3"
)

// ProjectNormal casts a ray from co along dir against the target and
// replaces hit when the closest hit accepted by cull is nearer than
// hit.Dist. co, dir and the returned hit are in local space; transform maps
// local space to the target's space and may be nil for identity. hit.Dist
// is measured in local space, so initializing it with a projection limit
// bounds the search. It reports whether hit was replaced.
func ProjectNormal(tree *TreeData, co, dir r3.Vec, radius float64, transform *d3.SpaceTransform, cull Cull, hit *bvh.RayHit) bool {
	if tree == nil || tree.BVH.Empty() {
		return false
	}
	origin, targetDir := co, dir
	if transform != nil {
		origin = transform.Apply(co)
		targetDir = transform.LocalToTarget.TransformDirection(dir)
	}
	localLen := r3.Norm(dir)
	targetLen := r3.Norm(targetDir)
	if localLen == 0 || targetLen == 0 {
		return false
	}
	// Distances along one ray scale uniformly under an affine transform.
	scale := targetLen / localLen

	tmp := bvh.NoHit(hit.Dist * scale)
	ray := isect.Ray{Origin: origin, Dir: targetDir}
	tree.BVH.Tree().RayCast(ray, radius, &tmp, tree.cullRayCastFunc(cull))
	if !tmp.Found() {
		return false
	}
	dist := tmp.Dist / scale
	if dist >= hit.Dist {
		return false
	}
	if transform != nil {
		tmp.Co = transform.Invert(tmp.Co)
		tmp.No = transform.InvertNormal(tmp.No)
	}
	tmp.Dist = dist
	*hit = tmp
	return true
}

// PickCloser returns whichever of a and b hit something closer.
func PickCloser(a, b bvh.RayHit) bvh.RayHit {
	switch {
	case !a.Found():
		return b
	case !b.Found():
		return a
	case b.Dist < a.Dist:
		return b
	}
	return a
}

// cullRayCastFunc intersects corner triangles and rejects culled faces
// before they can shadow hits farther along the ray.
func (d *TreeData) cullRayCastFunc(cull Cull) bvh.RayCastFunc {
	positions := d.Mesh.Positions
	return func(index int, ray isect.Ray, radius float64, hit *bvh.RayHit) {
		v := d.triVerts(index)
		a, b, c := positions[v[0]], positions[v[1]], positions[v[2]]
		var dist float64
		var ok bool
		if radius == 0 {
			dist, ok = isect.RayTriangle(ray, hit.Dist, a, b, c)
		} else {
			dist, ok = isect.SphereRayTriangle(ray, radius, hit.Dist, a, b, c)
		}
		if !ok {
			return
		}
		no := isect.TriangleNormal(a, b, c)
		if cull.culls(r3.Dot(ray.Dir, no)) {
			return
		}
		*hit = bvh.RayHit{Index: index, Co: ray.At(dist), No: no, Dist: dist}
	}
}
