package shrinkwrap

import (
	"math"
	"sync"
	"testing"

	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// grid returns an n by n quad patch over [0,size]^2 at height z(x,y),
// facing +Z.
func grid(t testing.TB, n int, size float64, z func(x, y float64) float64) *mesh.Mesh {
	t.Helper()
	var pos []r3.Vec
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, y := size*float64(i)/float64(n), size*float64(j)/float64(n)
			pos = append(pos, r3.Vec{X: x, Y: y, Z: z(x, y)})
		}
	}
	var faces [][]int
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a := j*(n+1) + i
			faces = append(faces, []int{a, a + 1, a + n + 2, a + n + 1})
		}
	}
	m, err := mesh.Build(pos, faces, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func flat(x, y float64) float64 { return 0 }

func cube(t testing.TB) *mesh.Mesh {
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

func TestBoundaryClosedMesh(t *testing.T) {
	b := BuildBoundary(cube(t))
	if b.HasBoundary() {
		t.Fatal("closed cube has boundary")
	}
	for e, isBoundary := range b.EdgeIsBoundary {
		if isBoundary {
			t.Errorf("edge %d marked boundary", e)
		}
	}
	if len(b.Verts) != 0 || b.VertBoundaryID != nil || b.TriHasBoundary != nil {
		t.Errorf("closed mesh boundary data not empty: %+v", b)
	}
}

func TestBoundaryOpenGrid(t *testing.T) {
	const n = 4
	m := grid(t, n, 1, flat)
	b := BuildBoundary(m)
	if !b.HasBoundary() {
		t.Fatal("open grid has no boundary")
	}
	onBorder := func(v int) (i, j int, ok bool) {
		i, j = v%(n+1), v/(n+1)
		return i, j, i == 0 || i == n || j == 0 || j == n
	}
	for e, edge := range m.Edges {
		i0, j0, _ := onBorder(edge[0])
		i1, j1, _ := onBorder(edge[1])
		want := (i0 == i1 && (i0 == 0 || i0 == n)) || (j0 == j1 && (j0 == 0 || j0 == n))
		if b.EdgeIsBoundary[e] != want {
			t.Errorf("edge %d %v: boundary %v, want %v", e, edge, b.EdgeIsBoundary[e], want)
		}
	}
	perimeter := 0
	for v, id := range b.VertBoundaryID {
		_, _, want := onBorder(v)
		if (id >= 0) != want {
			t.Errorf("vertex %d boundary id %d, on border %v", v, id, want)
		}
		if want {
			perimeter++
		}
	}
	if len(b.Verts) != perimeter || perimeter != 4*n {
		t.Fatalf("got %d boundary verts, want %d", len(b.Verts), 4*n)
	}
	flagged := 0
	for tri := range m.CornerTris() {
		want := false
		for _, e := range m.CornerTriRealEdges(tri) {
			want = want || (e >= 0 && b.EdgeIsBoundary[e])
		}
		if b.TriHasBoundary[tri] != want {
			t.Errorf("triangle %d: has boundary %v, want %v", tri, b.TriHasBoundary[tri], want)
		}
		if want {
			flagged++
		}
	}
	// Each border quad contributes at least one triangle, corner quads may
	// contribute both.
	if flagged < 4*(n-1) {
		t.Errorf("only %d triangles flagged on a %dx%d grid border", flagged, n, n)
	}

	// Vertex (2,0) lies in the middle of the bottom border.
	bv := b.Verts[b.VertBoundaryID[2]]
	if math.Abs(math.Abs(bv.Direction.X)-1) > 1e-12 || math.Abs(bv.Direction.Y) > 1e-12 {
		t.Errorf("bottom border direction %v, want along X", bv.Direction)
	}
	if math.Abs(r3.Dot(bv.NormalPlane, bv.Direction)-1) > 1e-12 {
		t.Errorf("flat normal plane %v differs from direction %v", bv.NormalPlane, bv.Direction)
	}
	for id, bv := range b.Verts {
		if math.Abs(r3.Norm(bv.Direction)-1) > 1e-12 || math.Abs(r3.Norm(bv.NormalPlane)-1) > 1e-12 {
			t.Errorf("boundary vert %d not unit: %+v", id, bv)
		}
	}
}

func TestBoundaryCached(t *testing.T) {
	m := grid(t, 3, 1, flat)
	var wg sync.WaitGroup
	got := make([]*BoundaryData, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = Boundary(m)
		}(i)
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("concurrent Boundary calls returned different data")
		}
	}
	m.Invalidate()
	if Boundary(m) == got[0] {
		t.Error("boundary data survived invalidation")
	}
}
