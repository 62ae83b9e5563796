package shrinkwrap

import (
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// BoundaryVert describes an open boundary at one of its vertices.
type BoundaryVert struct {
	// Direction is the average direction along the boundary at the vertex.
	Direction r3.Vec
	// NormalPlane is Direction projected onto the plane orthogonal to the
	// vertex normal, normalized.
	NormalPlane r3.Vec
}

// BoundaryData marks the open boundary of a mesh. An edge is on the
// boundary when exactly one triangle of the tessellation uses it.
type BoundaryData struct {
	// EdgeIsBoundary is indexed by mesh edge.
	EdgeIsBoundary []bool
	// TriHasBoundary is indexed by corner triangle.
	TriHasBoundary []bool
	// VertBoundaryID maps a mesh vertex to its index in Verts or -1.
	VertBoundaryID []int
	Verts          []BoundaryVert
}

// HasBoundary reports whether any boundary edge was found.
func (b *BoundaryData) HasBoundary() bool {
	return b != nil && len(b.Verts) > 0
}

type boundaryKey struct{}

// Boundary returns the boundary data of m, computing it once per mesh
// state. A mesh without boundary edges yields an empty BoundaryData.
func Boundary(m *mesh.Mesh) *BoundaryData {
	return m.Derived(boundaryKey{}, func() any { return BuildBoundary(m) }).(*BoundaryData)
}

// BuildBoundary computes the boundary data of m without caching it.
func BuildBoundary(m *mesh.Mesh) *BoundaryData {
	tris := m.CornerTris()
	edgeUse := make([]uint8, m.NumEdges())
	for t := range tris {
		for _, e := range m.CornerTriRealEdges(t) {
			if e >= 0 && edgeUse[e] < 2 {
				edgeUse[e]++
			}
		}
	}
	numBoundary := 0
	for _, n := range edgeUse {
		if n == 1 {
			numBoundary++
		}
	}
	if numBoundary == 0 {
		return &BoundaryData{}
	}

	b := &BoundaryData{
		EdgeIsBoundary: make([]bool, m.NumEdges()),
		TriHasBoundary: make([]bool, len(tris)),
		VertBoundaryID: make([]int, m.NumVerts()),
	}
	for e, n := range edgeUse {
		b.EdgeIsBoundary[e] = n == 1
	}
	for t := range tris {
		for _, e := range m.CornerTriRealEdges(t) {
			if e >= 0 && b.EdgeIsBoundary[e] {
				b.TriHasBoundary[t] = true
				break
			}
		}
	}

	for v := range b.VertBoundaryID {
		b.VertBoundaryID[v] = -1
	}
	numVerts := 0
	for e, edge := range m.Edges {
		if !b.EdgeIsBoundary[e] {
			continue
		}
		for _, v := range edge {
			if b.VertBoundaryID[v] < 0 {
				b.VertBoundaryID[v] = numVerts
				numVerts++
			}
		}
	}

	b.Verts = make([]BoundaryVert, numVerts)
	// status per boundary vertex: 0 untouched, 1 or 2 the side that touched
	// it once, -1 touched more than once.
	status := make([]int8, numVerts)
	for e, edge := range m.Edges {
		if !b.EdgeIsBoundary[e] {
			continue
		}
		dir, _ := d3.Unit(r3.Sub(m.Positions[edge[1]], m.Positions[edge[0]]))
		mergeVertDir(b.Verts, status, b.VertBoundaryID[edge[0]], dir, 1)
		mergeVertDir(b.Verts, status, b.VertBoundaryID[edge[1]], dir, 2)
	}

	normals := m.VertNormals()
	for v, id := range b.VertBoundaryID {
		if id < 0 {
			continue
		}
		bv := &b.Verts[id]
		bv.Direction, _ = d3.Unit(bv.Direction)
		no := normals[v]
		bv.NormalPlane, _ = d3.Unit(r3.Cross(r3.Cross(no, bv.Direction), no))
	}
	return b
}

// mergeVertDir accumulates an edge direction into a boundary vertex so that
// directions of a boundary passing through the vertex reinforce each other.
func mergeVertDir(verts []BoundaryVert, status []int8, id int, dir r3.Vec, side int8) {
	bv := &verts[id]
	st := status[id]
	var subtract bool
	if st >= 0 {
		subtract = st == side
	} else {
		subtract = r3.Dot(bv.Direction, dir) < 0
	}
	if subtract {
		bv.Direction = r3.Sub(bv.Direction, dir)
	} else {
		bv.Direction = r3.Add(bv.Direction, dir)
	}
	if st == 0 {
		status[id] = side
	} else {
		status[id] = -1
	}
}
