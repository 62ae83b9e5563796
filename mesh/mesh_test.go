package mesh_test

import (
	"math"
	"sync"
	"testing"

	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func unitCube(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.Build([]r3.Vec{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}, [][]int{
		{0, 3, 2, 1}, {4, 5, 6, 7}, {0, 1, 5, 4}, {3, 7, 6, 2}, {0, 4, 7, 3}, {1, 2, 6, 5},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBuildCube(t *testing.T) {
	m := unitCube(t)
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if m.NumVerts() != 8 || m.NumEdges() != 12 || m.NumFaces() != 6 || m.NumCorners() != 24 {
		t.Fatalf("got %d verts %d edges %d faces %d corners", m.NumVerts(), m.NumEdges(), m.NumFaces(), m.NumCorners())
	}
	if got := len(m.CornerTris()); got != 12 {
		t.Fatalf("got %d corner triangles, want 12", got)
	}
	faces := m.CornerTriFaces()
	for i := range m.CornerTris() {
		if faces[i] != i/2 {
			t.Errorf("triangle %d belongs to face %d, want %d", i, faces[i], i/2)
		}
	}
	if loose := m.LooseVerts(); loose.Count != 0 {
		t.Errorf("cube has %d loose verts", loose.Count)
	}
	if loose := m.LooseEdges(); loose.Count != 0 {
		t.Errorf("cube has %d loose edges", loose.Count)
	}
}

func TestBuildErrors(t *testing.T) {
	pos := []r3.Vec{{}, {X: 1}, {Y: 1}}
	for name, test := range map[string]struct {
		faces [][]int
		loose [][2]int
	}{
		"short face":     {faces: [][]int{{0, 1}}},
		"out of range":   {faces: [][]int{{0, 1, 3}}},
		"repeated vert":  {faces: [][]int{{0, 1, 1}}},
		"bad loose edge": {loose: [][2]int{{0, 5}}},
	} {
		if _, err := mesh.Build(pos, test.faces, test.loose); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCornerTriRealEdges(t *testing.T) {
	m := unitCube(t)
	for tri := range m.CornerTris() {
		edges := m.CornerTriRealEdges(tri)
		diagonals := 0
		for j, e := range edges {
			if e < 0 {
				diagonals++
				continue
			}
			verts := m.CornerTriVerts(tri)
			a, b := verts[j], verts[(j+1)%3]
			edge := m.Edges[e]
			if !(edge == [2]int{a, b} || edge == [2]int{b, a}) {
				t.Errorf("triangle %d side %d: edge %v does not join %d and %d", tri, j, edge, a, b)
			}
		}
		if diagonals != 1 {
			t.Errorf("quad triangle %d has %d diagonals, want 1", tri, diagonals)
		}
	}
}

func TestEarClipConcave(t *testing.T) {
	// L shaped hexagon with area 3.
	m := mesh.MustBuild([]r3.Vec{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2},
	}, [][]int{{0, 1, 2, 3, 4, 5}}, nil)
	tris := m.CornerTris()
	if len(tris) != 4 {
		t.Fatalf("got %d triangles, want 4", len(tris))
	}
	area := 0.0
	for i := range tris {
		a, b, c := m.CornerTriPositions(i)
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if n.Z <= 0 {
			t.Errorf("triangle %d is flipped or degenerate: %v", i, n)
		}
		area += n.Z / 2
	}
	if math.Abs(area-3) > 1e-12 {
		t.Errorf("triangulated area %g, want 3", area)
	}
}

func TestNormals(t *testing.T) {
	m := unitCube(t)
	want := []r3.Vec{{Z: -1}, {Z: 1}, {Y: -1}, {Y: 1}, {X: -1}, {X: 1}}
	for f, n := range m.FaceNormals() {
		if !d3.EqualWithin(n, want[f], 1e-12) {
			t.Errorf("face %d normal %v, want %v", f, n, want[f])
		}
	}
	center := r3.Vec{X: .5, Y: .5, Z: .5}
	for v, n := range m.VertNormals() {
		outward := r3.Unit(r3.Sub(m.Positions[v], center))
		if !d3.EqualWithin(n, outward, 1e-12) {
			t.Errorf("vertex %d normal %v, want %v", v, n, outward)
		}
	}
	m.SharpFaces = make([]bool, m.NumFaces())
	m.SharpFaces[1] = true
	m.Invalidate()
	normals := m.CornerNormals()
	start, end := m.FaceCorners(1)
	for c := start; c < end; c++ {
		if normals[c] != (r3.Vec{Z: 1}) {
			t.Errorf("sharp face corner %d normal %v", c, normals[c])
		}
	}
	if normals[0] == (r3.Vec{Z: -1}) {
		t.Error("smooth corner got face normal")
	}
}

func TestLooseElements(t *testing.T) {
	m := mesh.MustBuild([]r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}, {Z: 2}, {Z: 3}},
		[][]int{{0, 1, 2}}, [][2]int{{3, 4}, {0, 1}})
	if m.NumEdges() != 4 {
		t.Fatalf("edge shared with face not deduplicated: %d edges", m.NumEdges())
	}
	lv := m.LooseVerts()
	if lv.Count != 1 || !lv.Bits[5] {
		t.Errorf("loose verts %+v, want only vertex 5", lv)
	}
	le := m.LooseEdges()
	if le.Count != 1 || !le.Bits[3] {
		t.Errorf("loose edges %+v, want only edge 3", le)
	}
	if n := m.VertNormals()[5]; n != (r3.Vec{Z: 1}) {
		t.Errorf("loose vertex normal %v, want normalized position", n)
	}
}

func TestDerivedInvalidate(t *testing.T) {
	m := unitCube(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.FaceNormals()
		}()
	}
	wg.Wait()
	before := m.FaceNormals()[2]
	for i := range m.Positions {
		m.Positions[i].Z = -m.Positions[i].Z
	}
	m.Invalidate()
	after := m.FaceNormals()[2]
	if before == after {
		t.Fatalf("face normal %v did not change after invalidation", after)
	}
}
