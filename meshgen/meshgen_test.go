package meshgen

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestGrid(t *testing.T) {
	m := Grid(3, 1.5, func(x, y float64) float64 { return x * y })
	if m.NumVerts() != 16 || m.NumFaces() != 9 || m.NumEdges() != 24 {
		t.Fatalf("got %d verts, %d faces, %d edges", m.NumVerts(), m.NumFaces(), m.NumEdges())
	}
	last := m.Positions[15]
	if last != (r3.Vec{X: 1.5, Y: 1.5, Z: 2.25}) {
		t.Errorf("far corner at %v", last)
	}
	for f, no := range m.FaceNormals() {
		if no.Z <= 0 {
			t.Errorf("face %d normal %v does not face +Z", f, no)
		}
	}
}

func TestBox(t *testing.T) {
	m := Box(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 2, Z: 3})
	if m.NumVerts() != 8 || m.NumFaces() != 6 || m.NumEdges() != 12 {
		t.Fatalf("got %d verts, %d faces, %d edges", m.NumVerts(), m.NumFaces(), m.NumEdges())
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if v := signedVolume(m.Triangles()); math.Abs(v-24) > 1e-12 {
		t.Errorf("volume %g, want 24", v)
	}
}

func TestSphere(t *testing.T) {
	const radius = 1.0
	m, err := Sphere(radius, 32)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumFaces() == 0 {
		t.Fatal("no faces")
	}
	// Vertices lie on cube edges, within a cell of the surface.
	cell := 2.2 * radius / 32
	for i, p := range m.Positions {
		if d := math.Abs(r3.Norm(p) - radius); d > cell {
			t.Fatalf("vertex %d at distance %g from surface", i, d)
		}
	}
	want := 4 * math.Pi / 3 * radius * radius * radius
	if v := signedVolume(m.Triangles()); math.Abs(v-want) > 0.1*want {
		t.Errorf("volume %g, want about %g", v, want)
	}
}

func TestRoundedBox(t *testing.T) {
	size := r3.Vec{X: 2, Y: 1, Z: 1}
	m, err := RoundedBox(size, 0.1, 24)
	if err != nil {
		t.Fatal(err)
	}
	bb := m.Bounds()
	got := bb.Size()
	if math.Abs(got.X-size.X) > 0.2 || math.Abs(got.Y-size.Y) > 0.2 || math.Abs(got.Z-size.Z) > 0.2 {
		t.Errorf("bounds size %v, want about %v", got, size)
	}
}

func TestSolidErrors(t *testing.T) {
	if _, err := Sphere(1, 1); err == nil {
		t.Error("expected error for too few cells")
	}
	if _, err := Sphere(-1, 8); err == nil {
		t.Error("expected error for negative radius")
	}
}

// signedVolume is positive for closed meshes wound counter clockwise seen
// from outside.
func signedVolume(tris [][3]r3.Vec) float64 {
	var v float64
	for _, tri := range tris {
		v += r3.Dot(tri[0], r3.Cross(tri[1], tri[2]))
	}
	return v / 6
}
