package shrinkwrap

import (
	"github.com/soypat/shrinkwrap/bvhutil"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Branching factors of the cached target trees.
const (
	vertTreeType = 2
	triTreeType  = 4
)

// TreeData is a target mesh prepared for queries: a cached tree over its
// vertices or corner triangles plus the arrays queries read. All slices
// alias data owned by the target mesh.
type TreeData struct {
	Mesh *mesh.Mesh
	BVH  bvhutil.BVHFromMesh

	Edges       [][2]int
	CornerVerts []int
	CornerEdges []int
	CornerTris  []mesh.CornerTri
	TriFaces    []int

	// Normals are only set when the mode needs them. CornerNormals is only
	// set when some face is sharp.
	VertNormals   []r3.Vec
	FaceNormals   []r3.Vec
	CornerNormals []r3.Vec
	SharpFaces    []bool

	// Boundary is set for TargetProject.
	Boundary *BoundaryData
}

// InitTree prepares target for queries in mode. It reports false when the
// target has nothing to query: no vertices, or no faces for a mode that
// needs faces. forceNormals loads normals even when mode does not read them.
func InitTree(target *mesh.Mesh, mode Mode, forceNormals bool) (*TreeData, bool) {
	if target == nil || target.NumVerts() == 0 {
		return nil, false
	}
	data := &TreeData{
		Mesh:        target,
		Edges:       target.Edges,
		CornerVerts: target.CornerVerts,
		CornerEdges: target.CornerEdges,
	}
	if _, ok := mode.(NearestVertex); ok {
		data.BVH = bvhutil.FromMesh(target, bvhutil.Verts, vertTreeType)
		if data.BVH.Empty() {
			return nil, false
		}
		return data, true
	}
	if target.NumFaces() == 0 {
		logger.Debug("shrinkwrap target has no faces", zap.Stringer("mode", mode))
		return nil, false
	}
	data.BVH = bvhutil.FromMesh(target, bvhutil.CornerTris, triTreeType)
	if data.BVH.Empty() {
		return nil, false
	}
	data.CornerTris = target.CornerTris()
	data.TriFaces = target.CornerTriFaces()
	if forceNormals || NeedsNormals(mode) {
		data.FaceNormals = target.FaceNormals()
		data.SharpFaces = target.SharpFaces
		for _, sharp := range target.SharpFaces {
			if sharp {
				data.CornerNormals = target.CornerNormals()
				break
			}
		}
		data.VertNormals = target.VertNormals()
	}
	if _, ok := mode.(TargetProject); ok {
		data.Boundary = Boundary(target)
	}
	return data, true
}

// Free releases the tree if it is owned. Cached trees stay with the mesh.
func (d *TreeData) Free() {
	if d == nil {
		return
	}
	d.BVH.Free()
}

func (d *TreeData) faceSharp(f int) bool {
	return f < len(d.SharpFaces) && d.SharpFaces[f]
}

func (d *TreeData) triVerts(t int) [3]int {
	tri := d.CornerTris[t]
	return [3]int{d.CornerVerts[tri[0]], d.CornerVerts[tri[1]], d.CornerVerts[tri[2]]}
}
