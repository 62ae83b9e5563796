// Package editmesh implements a half-edge mesh suited to interactive
// editing. Faces are cycles of loops, and the loops of all faces sharing an
// edge are linked in that edge's radial cycle.
package editmesh

import (
	"errors"
	"fmt"

	"github.com/soypat/shrinkwrap/internal/derived"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

type Vert struct {
	Co     r3.Vec
	No     r3.Vec
	Index  int
	Hidden bool
	edges  []*Edge
}

// Edges returns the edges using v.
func (v *Vert) Edges() []*Edge { return v.edges }

type Edge struct {
	V      [2]*Vert
	Index  int
	Hidden bool
	// loop is any loop of the radial cycle, nil for wire edges.
	loop *Loop
}

// Other returns the vertex of e that is not v.
func (e *Edge) Other(v *Vert) *Vert {
	if e.V[0] == v {
		return e.V[1]
	}
	return e.V[0]
}

// Loops returns the face loops using e.
func (e *Edge) Loops() []*Loop {
	if e.loop == nil {
		return nil
	}
	var loops []*Loop
	l := e.loop
	for {
		loops = append(loops, l)
		l = l.RadialNext
		if l == e.loop {
			return loops
		}
	}
}

// IsBoundary reports whether exactly one face uses e.
func (e *Edge) IsBoundary() bool {
	return e.loop != nil && e.loop.RadialNext == e.loop
}

// IsWire reports whether no face uses e.
func (e *Edge) IsWire() bool { return e.loop == nil }

// Loop is a face corner. It references the vertex it starts at and the
// edge towards the next loop of its face.
type Loop struct {
	V          *Vert
	E          *Edge
	F          *Face
	Next, Prev *Loop
	// Radial cycle around E.
	RadialNext, RadialPrev *Loop
	Index                  int
}

type Face struct {
	First  *Loop
	Len    int
	No     r3.Vec
	Index  int
	Hidden bool
	Sharp  bool
}

// Loops returns the loops of f in winding order.
func (f *Face) Loops() []*Loop {
	loops := make([]*Loop, 0, f.Len)
	l := f.First
	for i := 0; i < f.Len; i++ {
		loops = append(loops, l)
		l = l.Next
	}
	return loops
}

// Mesh is a half-edge mesh. Element indices are their position in the
// element slices. A Mesh must not be copied.
type Mesh struct {
	Verts []*Vert
	Edges []*Edge
	Faces []*Face
	Loops []*Loop

	edgeMap map[[2]int]*Edge
	derived derived.Store
}

func New() *Mesh {
	return &Mesh{edgeMap: make(map[[2]int]*Edge)}
}

func (m *Mesh) AddVert(co r3.Vec) *Vert {
	v := &Vert{Co: co, Index: len(m.Verts)}
	m.Verts = append(m.Verts, v)
	return v
}

// FindEdge returns the edge joining a and b or nil.
func (m *Mesh) FindEdge(a, b *Vert) *Edge {
	return m.edgeMap[edgeKey(a, b)]
}

// AddEdge returns the edge joining a and b, creating it if needed.
func (m *Mesh) AddEdge(a, b *Vert) (*Edge, error) {
	if a == b {
		return nil, fmt.Errorf("edge connects vertex %d to itself", a.Index)
	}
	if e := m.FindEdge(a, b); e != nil {
		return e, nil
	}
	e := &Edge{V: [2]*Vert{a, b}, Index: len(m.Edges)}
	m.Edges = append(m.Edges, e)
	m.edgeMap[edgeKey(a, b)] = e
	a.edges = append(a.edges, e)
	b.edges = append(b.edges, e)
	return e, nil
}

// AddFace creates a face over verts in winding order, creating missing edges.
func (m *Mesh) AddFace(verts ...*Vert) (*Face, error) {
	if len(verts) < 3 {
		return nil, fmt.Errorf("face needs 3 vertices, got %d", len(verts))
	}
	seen := make(map[*Vert]bool, len(verts))
	for _, v := range verts {
		if seen[v] {
			return nil, fmt.Errorf("vertex %d repeated in face", v.Index)
		}
		seen[v] = true
	}
	edges := make([]*Edge, len(verts))
	for i, v := range verts {
		e, err := m.AddEdge(v, verts[(i+1)%len(verts)])
		if err != nil {
			return nil, err
		}
		edges[i] = e
	}
	f := &Face{Len: len(verts), Index: len(m.Faces)}
	loops := make([]*Loop, len(verts))
	for i, v := range verts {
		loops[i] = &Loop{V: v, E: edges[i], F: f, Index: len(m.Loops) + i}
	}
	for i, l := range loops {
		l.Next = loops[(i+1)%len(loops)]
		l.Prev = loops[(i+len(loops)-1)%len(loops)]
		radialInsert(l)
	}
	f.First = loops[0]
	m.Faces = append(m.Faces, f)
	m.Loops = append(m.Loops, loops...)
	return f, nil
}

func radialInsert(l *Loop) {
	e := l.E
	if e.loop == nil {
		l.RadialNext, l.RadialPrev = l, l
		e.loop = l
		return
	}
	first := e.loop
	l.RadialNext = first
	l.RadialPrev = first.RadialPrev
	first.RadialPrev.RadialNext = l
	first.RadialPrev = l
}

func edgeKey(a, b *Vert) [2]int {
	if a.Index > b.Index {
		return [2]int{b.Index, a.Index}
	}
	return [2]int{a.Index, b.Index}
}

// Derived returns the derived value stored under key, building it on first use.
func (m *Mesh) Derived(key any, build func() any) any {
	return m.derived.Get(key, build)
}

// Invalidate drops all derived data after an edit.
func (m *Mesh) Invalidate() {
	m.derived.Invalidate()
}

type key int

const keyLoopTris key = iota

// LoopTris returns the triangulation of all faces as loop triples.
// Triangles of a face are contiguous and faces appear in order.
func (m *Mesh) LoopTris() [][3]*Loop {
	return m.Derived(keyLoopTris, func() any {
		tris := make([][3]*Loop, 0, len(m.Loops)-2*len(m.Faces))
		var pts []r3.Vec
		var local [][3]int
		for _, f := range m.Faces {
			loops := f.Loops()
			pts = pts[:0]
			for _, l := range loops {
				pts = append(pts, l.V.Co)
			}
			local = mesh.TriangulatePolygon(pts, local[:0])
			for _, tri := range local {
				tris = append(tris, [3]*Loop{loops[tri[0]], loops[tri[1]], loops[tri[2]]})
			}
		}
		return tris
	}).([][3]*Loop)
}

// UpdateNormals recomputes face and vertex normals and drops derived data.
func (m *Mesh) UpdateNormals() {
	m.Invalidate()
	tmp, err := m.ToMesh()
	if err != nil {
		panic(err)
	}
	for i, n := range tmp.FaceNormals() {
		m.Faces[i].No = n
	}
	for i, n := range tmp.VertNormals() {
		m.Verts[i].No = n
	}
}

// FromMesh converts an indexed mesh to an edit mesh keeping element order
// and hidden state.
func FromMesh(src *mesh.Mesh) (*Mesh, error) {
	m := New()
	for v, co := range src.Positions {
		vert := m.AddVert(co)
		vert.Hidden = src.VertHidden(v)
	}
	for e, ev := range src.Edges {
		edge, err := m.AddEdge(m.Verts[ev[0]], m.Verts[ev[1]])
		if err != nil {
			return nil, err
		}
		if edge.Index != e {
			return nil, fmt.Errorf("duplicate edge %d", e)
		}
		edge.Hidden = src.EdgeHidden(e)
	}
	verts := make([]*Vert, 0, 4)
	for f := 0; f < src.NumFaces(); f++ {
		verts = verts[:0]
		for _, v := range src.FaceVerts(f) {
			verts = append(verts, m.Verts[v])
		}
		face, err := m.AddFace(verts...)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", f, err)
		}
		face.Hidden = src.FaceHidden(f)
		face.Sharp = src.FaceSharp(f)
	}
	m.UpdateNormals()
	return m, nil
}

// ToMesh converts the edit mesh to an indexed mesh.
func (m *Mesh) ToMesh() (*mesh.Mesh, error) {
	if len(m.Verts) == 0 && len(m.Faces) != 0 {
		return nil, errors.New("faces without vertices")
	}
	out := &mesh.Mesh{
		Positions:   make([]r3.Vec, len(m.Verts)),
		Edges:       make([][2]int, len(m.Edges)),
		FaceOffsets: make([]int, 1, len(m.Faces)+1),
		CornerVerts: make([]int, 0, len(m.Loops)),
		CornerEdges: make([]int, 0, len(m.Loops)),
	}
	var hideVert, hideEdge, hideFace, sharp bool
	for i, v := range m.Verts {
		out.Positions[i] = v.Co
		hideVert = hideVert || v.Hidden
	}
	for i, e := range m.Edges {
		out.Edges[i] = [2]int{e.V[0].Index, e.V[1].Index}
		hideEdge = hideEdge || e.Hidden
	}
	for _, f := range m.Faces {
		for _, l := range f.Loops() {
			out.CornerVerts = append(out.CornerVerts, l.V.Index)
			out.CornerEdges = append(out.CornerEdges, l.E.Index)
		}
		out.FaceOffsets = append(out.FaceOffsets, len(out.CornerVerts))
		hideFace = hideFace || f.Hidden
		sharp = sharp || f.Sharp
	}
	if hideVert {
		out.HideVert = make([]bool, len(m.Verts))
		for i, v := range m.Verts {
			out.HideVert[i] = v.Hidden
		}
	}
	if hideEdge {
		out.HideEdge = make([]bool, len(m.Edges))
		for i, e := range m.Edges {
			out.HideEdge[i] = e.Hidden
		}
	}
	if hideFace || sharp {
		out.HideFace = make([]bool, len(m.Faces))
		out.SharpFaces = make([]bool, len(m.Faces))
		for i, f := range m.Faces {
			out.HideFace[i] = f.Hidden
			out.SharpFaces[i] = f.Sharp
		}
	}
	return out, out.Validate()
}
