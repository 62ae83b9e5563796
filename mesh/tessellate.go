package mesh

import (
	"math"

	"github.com/soypat/shrinkwrap/internal/d3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

type key int

const (
	keyTessellation key = iota
	keyFaceNormals
	keyVertNormals
	keyCornerNormals
	keyLooseVerts
	keyLooseEdges
)

// CornerTri is a triangle of a face's triangulation, stored as three corner
// indices of that face.
type CornerTri [3]int

type tessellation struct {
	tris  []CornerTri
	faces []int
}

// CornerTris returns the triangulation of every face. Triangles of a face
// are contiguous and faces appear in order. A face with n corners yields
// n-2 triangles.
func (m *Mesh) CornerTris() []CornerTri {
	return m.tessellation().tris
}

// CornerTriFaces returns the face each corner triangle belongs to.
func (m *Mesh) CornerTriFaces() []int {
	return m.tessellation().faces
}

// CornerTriVerts returns the vertex indices of corner triangle t.
func (m *Mesh) CornerTriVerts(t int) [3]int {
	tri := m.CornerTris()[t]
	return [3]int{m.CornerVerts[tri[0]], m.CornerVerts[tri[1]], m.CornerVerts[tri[2]]}
}

// CornerTriPositions returns the positions of corner triangle t.
func (m *Mesh) CornerTriPositions(t int) (a, b, c r3.Vec) {
	v := m.CornerTriVerts(t)
	return m.Positions[v[0]], m.Positions[v[1]], m.Positions[v[2]]
}

// CornerTriRealEdges returns, for the sides (0,1), (1,2) and (2,0) of
// corner triangle t, the mesh edge on that side or -1 when the side is a
// diagonal introduced by triangulation.
func (m *Mesh) CornerTriRealEdges(t int) [3]int {
	tri := m.CornerTris()[t]
	start, end := m.FaceCorners(m.CornerTriFaces()[t])
	next := func(c int) int {
		if c+1 == end {
			return start
		}
		return c + 1
	}
	var edges [3]int
	for j := range tri {
		c0, c1 := tri[j], tri[(j+1)%3]
		switch {
		case next(c0) == c1:
			edges[j] = m.CornerEdges[c0]
		case next(c1) == c0:
			edges[j] = m.CornerEdges[c1]
		default:
			edges[j] = -1
		}
	}
	return edges
}

func (m *Mesh) tessellation() *tessellation {
	return m.Derived(keyTessellation, func() any {
		nf := m.NumFaces()
		tess := &tessellation{
			tris:  make([]CornerTri, 0, len(m.CornerVerts)-2*nf),
			faces: make([]int, 0, len(m.CornerVerts)-2*nf),
		}
		for f := 0; f < nf; f++ {
			before := len(tess.tris)
			tess.tris = m.triangulateFace(f, tess.tris)
			for i := before; i < len(tess.tris); i++ {
				tess.faces = append(tess.faces, f)
			}
		}
		return tess
	}).(*tessellation)
}

// triangulateFace appends the triangles of face f to dst.
func (m *Mesh) triangulateFace(f int, dst []CornerTri) []CornerTri {
	start, end := m.FaceCorners(f)
	switch end - start {
	case 3:
		return append(dst, CornerTri{start, start + 1, start + 2})
	case 4:
		return append(dst, CornerTri{start, start + 1, start + 2}, CornerTri{start, start + 2, start + 3})
	}
	pts := make([]r3.Vec, end-start)
	for i := range pts {
		pts[i] = m.Positions[m.CornerVerts[start+i]]
	}
	for _, tri := range TriangulatePolygon(pts, nil) {
		dst = append(dst, CornerTri{start + tri[0], start + tri[1], start + tri[2]})
	}
	return dst
}

// TriangulatePolygon appends to dst the triangulation of the planar polygon
// pts as index triples into pts, keeping the polygon's winding. Quads are
// split along their first diagonal, larger polygons are ear clipped in
// their plane. A polygon with n points yields n-2 triangles.
func TriangulatePolygon(pts []r3.Vec, dst [][3]int) [][3]int {
	n := len(pts)
	switch {
	case n < 3:
		return dst
	case n == 3:
		return append(dst, [3]int{0, 1, 2})
	case n == 4:
		return append(dst, [3]int{0, 1, 2}, [3]int{0, 2, 3})
	}
	var newell r3.Vec
	for i, p := range pts {
		newell = r3.Add(newell, r3.Cross(p, pts[(i+1)%n]))
	}
	normal, area := d3.Unit(newell)
	if area == 0 {
		return fan(n, dst)
	}
	// Orthonormal basis of the polygon plane with u x v = normal.
	u := r3.Cross(normal, r3.Vec{X: 1})
	if math.Abs(normal.X) > 0.9 {
		u = r3.Cross(normal, r3.Vec{Y: 1})
	}
	u = r3.Unit(u)
	v := r3.Cross(normal, u)
	flat := make([]r2.Vec, n)
	for i, p := range pts {
		flat[i] = r2.Vec{X: r3.Dot(p, u), Y: r3.Dot(p, v)}
	}
	return earClip(flat, dst)
}

func fan(n int, dst [][3]int) [][3]int {
	for i := 1; i+1 < n; i++ {
		dst = append(dst, [3]int{0, i, i + 1})
	}
	return dst
}

// earClip triangulates the counter clockwise polygon pts.
func earClip(pts []r2.Vec, dst [][3]int) [][3]int {
	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}
	for len(idx) > 3 {
		n := len(idx)
		ear := -1
		for i := 0; i < n && ear < 0; i++ {
			a, b, c := pts[idx[(i+n-1)%n]], pts[idx[i]], pts[idx[(i+1)%n]]
			if r2.Cross(r2.Sub(b, a), r2.Sub(c, b)) <= 0 {
				continue // Reflex or flat.
			}
			ear = i
			for j := 0; j < n; j++ {
				if j == i || j == (i+n-1)%n || j == (i+1)%n {
					continue
				}
				if inTriangle2(pts[idx[j]], a, b, c) {
					ear = -1
					break
				}
			}
		}
		if ear < 0 {
			// Self intersecting or degenerate remainder.
			for i := 1; i+1 < n; i++ {
				dst = append(dst, [3]int{idx[0], idx[i], idx[i+1]})
			}
			return dst
		}
		dst = append(dst, [3]int{idx[(ear+n-1)%n], idx[ear], idx[(ear+1)%n]})
		idx = append(idx[:ear], idx[ear+1:]...)
	}
	return append(dst, [3]int{idx[0], idx[1], idx[2]})
}

func inTriangle2(p, a, b, c r2.Vec) bool {
	return r2.Cross(r2.Sub(b, a), r2.Sub(p, a)) >= 0 &&
		r2.Cross(r2.Sub(c, b), r2.Sub(p, b)) >= 0 &&
		r2.Cross(r2.Sub(a, c), r2.Sub(p, c)) >= 0
}
