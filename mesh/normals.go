package mesh

import (
	"math"

	"github.com/soypat/shrinkwrap/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// newellNormal returns the unnormalized normal of the polygon formed by
// corners [start, end). Its length is twice the polygon's area.
func (m *Mesh) newellNormal(start, end int) r3.Vec {
	var n r3.Vec
	for c := start; c < end; c++ {
		next := c + 1
		if next == end {
			next = start
		}
		n = r3.Add(n, r3.Cross(m.Positions[m.CornerVerts[c]], m.Positions[m.CornerVerts[next]]))
	}
	return n
}

// FaceNormals returns the unit normal of every face. Degenerate faces have
// a zero normal.
func (m *Mesh) FaceNormals() []r3.Vec {
	return m.Derived(keyFaceNormals, func() any {
		normals := make([]r3.Vec, m.NumFaces())
		for f := range normals {
			normals[f], _ = d3.Unit(m.newellNormal(m.FaceCorners(f)))
		}
		return normals
	}).([]r3.Vec)
}

// VertNormals returns vertex normals as the sum of the normals of the faces
// around each vertex weighted by the face's opening angle at the vertex.
// Vertices used by no face take their normalized position as normal.
func (m *Mesh) VertNormals() []r3.Vec {
	return m.Derived(keyVertNormals, func() any {
		faceNormals := m.FaceNormals()
		normals := make([]r3.Vec, m.NumVerts())
		used := make([]bool, m.NumVerts())
		for f := 0; f < m.NumFaces(); f++ {
			start, end := m.FaceCorners(f)
			for c := start; c < end; c++ {
				prev, next := c-1, c+1
				if c == start {
					prev = end - 1
				}
				if next == end {
					next = start
				}
				v := m.CornerVerts[c]
				p := m.Positions[v]
				s1 := r3.Sub(m.Positions[m.CornerVerts[prev]], p)
				s2 := r3.Sub(m.Positions[m.CornerVerts[next]], p)
				used[v] = true
				if r3.Norm2(s1) == 0 || r3.Norm2(s2) == 0 {
					continue
				}
				alpha := math.Acos(math.Max(-1, math.Min(1, r3.Cos(s1, s2))))
				normals[v] = r3.Add(normals[v], r3.Scale(alpha, faceNormals[f]))
			}
		}
		for v := range normals {
			if !used[v] {
				normals[v], _ = d3.Unit(m.Positions[v])
				continue
			}
			normals[v], _ = d3.Unit(normals[v])
		}
		return normals
	}).([]r3.Vec)
}

// CornerNormals returns a normal per corner: the face normal for corners of
// sharp faces and the vertex normal otherwise.
func (m *Mesh) CornerNormals() []r3.Vec {
	return m.Derived(keyCornerNormals, func() any {
		faceNormals := m.FaceNormals()
		vertNormals := m.VertNormals()
		normals := make([]r3.Vec, m.NumCorners())
		for f := 0; f < m.NumFaces(); f++ {
			start, end := m.FaceCorners(f)
			for c := start; c < end; c++ {
				if m.FaceSharp(f) {
					normals[c] = faceNormals[f]
				} else {
					normals[c] = vertNormals[m.CornerVerts[c]]
				}
			}
		}
		return normals
	}).([]r3.Vec)
}

// Loose marks elements that are not used by higher dimensional elements.
type Loose struct {
	Bits  []bool
	Count int
}

// LooseVerts marks vertices that no edge uses.
func (m *Mesh) LooseVerts() Loose {
	return m.Derived(keyLooseVerts, func() any {
		bits := make([]bool, m.NumVerts())
		for i := range bits {
			bits[i] = true
		}
		count := len(bits)
		for _, e := range m.Edges {
			for _, v := range e {
				if bits[v] {
					bits[v] = false
					count--
				}
			}
		}
		return Loose{Bits: bits, Count: count}
	}).(Loose)
}

// LooseEdges marks edges that no face uses.
func (m *Mesh) LooseEdges() Loose {
	return m.Derived(keyLooseEdges, func() any {
		bits := make([]bool, m.NumEdges())
		for i := range bits {
			bits[i] = true
		}
		count := len(bits)
		for _, e := range m.CornerEdges {
			if bits[e] {
				bits[e] = false
				count--
			}
		}
		return Loose{Bits: bits, Count: count}
	}).(Loose)
}
