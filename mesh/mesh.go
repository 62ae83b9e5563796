// Package mesh implements an indexed polygon mesh: positions, edges and
// faces stored as ranges of corners. Derived data (triangulation, normals,
// loose element masks and whatever other packages attach) is computed on
// first use and kept until Invalidate is called.
package mesh

import (
	"errors"
	"fmt"

	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/internal/derived"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a polygon mesh. Face f owns corners FaceOffsets[f] up to
// FaceOffsets[f+1]. Corner c references vertex CornerVerts[c] and the edge
// CornerEdges[c] going to the next corner of its face.
//
// The hide and sharp masks are either nil, meaning all false, or as long as
// the element array they refer to. A Mesh must not be copied.
type Mesh struct {
	Positions   []r3.Vec
	Edges       [][2]int
	FaceOffsets []int
	CornerVerts []int
	CornerEdges []int

	HideVert   []bool
	HideEdge   []bool
	HideFace   []bool
	SharpFaces []bool

	derived derived.Store
}

// Build creates a mesh from positions, polygons given as vertex index lists
// and edges that belong to no face. Edges are deduplicated.
func Build(positions []r3.Vec, faces [][]int, looseEdges [][2]int) (*Mesh, error) {
	m := &Mesh{
		Positions:   positions,
		FaceOffsets: make([]int, 1, len(faces)+1),
	}
	edgeIdx := make(map[[2]int]int)
	addEdge := func(a, b int) (int, error) {
		if a == b {
			return 0, fmt.Errorf("edge connects vertex %d to itself", a)
		}
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
		}
		if e, ok := edgeIdx[key]; ok {
			return e, nil
		}
		e := len(m.Edges)
		edgeIdx[key] = e
		m.Edges = append(m.Edges, key)
		return e, nil
	}
	nv := len(positions)
	for f, face := range faces {
		if len(face) < 3 {
			return nil, fmt.Errorf("face %d has %d vertices", f, len(face))
		}
		for _, v := range face {
			if v < 0 || v >= nv {
				return nil, fmt.Errorf("face %d references vertex %d out of %d", f, v, nv)
			}
		}
		for i, v := range face {
			e, err := addEdge(v, face[(i+1)%len(face)])
			if err != nil {
				return nil, fmt.Errorf("face %d: %w", f, err)
			}
			m.CornerVerts = append(m.CornerVerts, v)
			m.CornerEdges = append(m.CornerEdges, e)
		}
		m.FaceOffsets = append(m.FaceOffsets, len(m.CornerVerts))
	}
	for _, e := range looseEdges {
		if e[0] < 0 || e[0] >= nv || e[1] < 0 || e[1] >= nv {
			return nil, fmt.Errorf("loose edge %v out of %d vertices", e, nv)
		}
		if _, err := addEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustBuild is Build that panics on error. Intended for meshes constructed
// in code.
func MustBuild(positions []r3.Vec, faces [][]int, looseEdges [][2]int) *Mesh {
	m, err := Build(positions, faces, looseEdges)
	if err != nil {
		panic(err)
	}
	return m
}

// Validate checks the consistency of the mesh arrays.
func (m *Mesh) Validate() error {
	if len(m.FaceOffsets) == 0 || m.FaceOffsets[0] != 0 {
		return errors.New("face offsets must start at 0")
	}
	if m.FaceOffsets[len(m.FaceOffsets)-1] != len(m.CornerVerts) {
		return errors.New("face offsets do not cover all corners")
	}
	if len(m.CornerEdges) != len(m.CornerVerts) {
		return errors.New("corner edge and corner vertex count mismatch")
	}
	for f := 0; f < m.NumFaces(); f++ {
		if m.FaceOffsets[f+1]-m.FaceOffsets[f] < 3 {
			return fmt.Errorf("face %d has fewer than 3 corners", f)
		}
	}
	nv := len(m.Positions)
	for c, v := range m.CornerVerts {
		if v < 0 || v >= nv {
			return fmt.Errorf("corner %d references vertex %d out of %d", c, v, nv)
		}
		if e := m.CornerEdges[c]; e < 0 || e >= len(m.Edges) {
			return fmt.Errorf("corner %d references edge %d out of %d", c, e, len(m.Edges))
		}
	}
	for i, e := range m.Edges {
		if e[0] < 0 || e[0] >= nv || e[1] < 0 || e[1] >= nv {
			return fmt.Errorf("edge %d references vertex out of %d", i, nv)
		}
	}
	for _, mask := range []struct {
		name string
		bits []bool
		n    int
	}{
		{"hide vert", m.HideVert, nv},
		{"hide edge", m.HideEdge, len(m.Edges)},
		{"hide face", m.HideFace, m.NumFaces()},
		{"sharp faces", m.SharpFaces, m.NumFaces()},
	} {
		if mask.bits != nil && len(mask.bits) != mask.n {
			return fmt.Errorf("%s mask length %d, want %d", mask.name, len(mask.bits), mask.n)
		}
	}
	return nil
}

func (m *Mesh) NumVerts() int   { return len(m.Positions) }
func (m *Mesh) NumEdges() int   { return len(m.Edges) }
func (m *Mesh) NumCorners() int { return len(m.CornerVerts) }

func (m *Mesh) NumFaces() int {
	if len(m.FaceOffsets) == 0 {
		return 0
	}
	return len(m.FaceOffsets) - 1
}

// FaceCorners returns the corner range [start, end) of face f.
func (m *Mesh) FaceCorners(f int) (start, end int) {
	return m.FaceOffsets[f], m.FaceOffsets[f+1]
}

// FaceVerts returns the vertex indices of face f. The slice aliases the mesh.
func (m *Mesh) FaceVerts(f int) []int {
	return m.CornerVerts[m.FaceOffsets[f]:m.FaceOffsets[f+1]]
}

// Bounds returns the bounding box of all positions.
func (m *Mesh) Bounds() d3.Box {
	return d3.BoxOf(m.Positions...)
}

// Derived returns the derived value stored under key, building it on first
// use. Keys should be of a type private to the calling package.
func (m *Mesh) Derived(key any, build func() any) any {
	return m.derived.Get(key, build)
}

// PeekDerived returns the derived value under key if it was built.
func (m *Mesh) PeekDerived(key any) (any, bool) {
	return m.derived.Peek(key)
}

// Invalidate drops all derived data. It must be called after positions or
// topology change and must not run concurrently with readers of derived data.
func (m *Mesh) Invalidate() {
	m.derived.Invalidate()
}

// Triangles returns the mesh triangulation as position triples.
func (m *Mesh) Triangles() [][3]r3.Vec {
	tris := m.CornerTris()
	out := make([][3]r3.Vec, len(tris))
	for i, tri := range tris {
		for j, c := range tri {
			out[i][j] = m.Positions[m.CornerVerts[c]]
		}
	}
	return out
}

func maskAt(mask []bool, i int) bool {
	return mask != nil && mask[i]
}

// VertHidden reports whether vertex v is hidden.
func (m *Mesh) VertHidden(v int) bool { return maskAt(m.HideVert, v) }

// EdgeHidden reports whether edge e is hidden.
func (m *Mesh) EdgeHidden(e int) bool { return maskAt(m.HideEdge, e) }

// FaceHidden reports whether face f is hidden.
func (m *Mesh) FaceHidden(f int) bool { return maskAt(m.HideFace, f) }

// FaceSharp reports whether face f is flat shaded.
func (m *Mesh) FaceSharp(f int) bool { return maskAt(m.SharpFaces, f) }
