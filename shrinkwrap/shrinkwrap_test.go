package shrinkwrap

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func square(t testing.TB, z float64, flip bool) *mesh.Mesh {
	t.Helper()
	face := []int{0, 1, 2, 3}
	if flip {
		face = []int{0, 3, 2, 1}
	}
	m, err := mesh.Build([]r3.Vec{
		{X: 0, Y: 0, Z: z}, {X: 1, Y: 0, Z: z}, {X: 1, Y: 1, Z: z}, {X: 0, Y: 1, Z: z},
	}, [][]int{face}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// stacked returns two unit squares, one at z=0 facing +Z and one at z=-1
// facing -Z when flipBottom is set.
func stacked(t testing.TB, flipBottom bool) *mesh.Mesh {
	t.Helper()
	bottom := []int{4, 5, 6, 7}
	if flipBottom {
		bottom = []int{4, 7, 6, 5}
	}
	m, err := mesh.Build([]r3.Vec{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
		{X: 0, Y: 0, Z: -1}, {X: 1, Y: 0, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 0, Y: 1, Z: -1},
	}, [][]int{{0, 1, 2, 3}, bottom}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newCalc(t *testing.T, p Params) *Calc {
	t.Helper()
	c, err := NewCalc(p)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Free)
	return c
}

func expectVec(t *testing.T, name string, got, want r3.Vec) {
	t.Helper()
	if !d3.EqualWithin(got, want, tol) {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func TestEndToEndNearestSurface(t *testing.T) {
	c := newCalc(t, Params{
		Target:       square(t, 0, false),
		KeepDistance: 0.1,
		Mode:         NearestSurface{Snap: OnSurface},
	})
	got := c.Vertex(r3.Vec{X: 0.5, Y: 0.5, Z: 1}, r3.Vec{}, 1)
	expectVec(t, "on surface", got, r3.Vec{X: 0.5, Y: 0.5, Z: 0.1})
	// The offset follows the hit normal, not the side the point starts on.
	got = c.Vertex(r3.Vec{X: 0.5, Y: 0.5, Z: -1}, r3.Vec{}, 1)
	expectVec(t, "from below", got, r3.Vec{X: 0.5, Y: 0.5, Z: 0.1})
}

func TestNearestVertexIdentity(t *testing.T) {
	target := grid(t, 5, 2, func(x, y float64) float64 { return 0.2 * math.Sin(3*x) * math.Cos(2*y) })
	c := newCalc(t, Params{Target: target, Mode: NearestVertex{}})
	positions := append([]r3.Vec(nil), target.Positions...)
	if err := c.Run(positions, nil, nil); err != nil {
		t.Fatal(err)
	}
	for i, p := range positions {
		if p != target.Positions[i] {
			t.Errorf("vertex %d moved from %v to %v", i, target.Positions[i], p)
		}
	}
}

func TestNearestVertexKeepDistance(t *testing.T) {
	m, err := mesh.Build([]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 5, Y: 5, Z: 5}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := newCalc(t, Params{Target: m, KeepDistance: 0.5, Mode: NearestVertex{}})
	got := c.Vertex(r3.Vec{X: 2}, r3.Vec{}, 1)
	expectVec(t, "keep distance", got, r3.Vec{X: 0.5})
}

func TestKeepDistanceSnaps(t *testing.T) {
	const keep = 0.25
	above := r3.Vec{X: 0.5, Y: 0.5, Z: 1}
	below := r3.Vec{X: 0.5, Y: 0.5, Z: -1}
	for _, test := range []struct {
		snap         Snap
		above, below float64
	}{
		{OnSurface, keep, keep},
		{Inside, -keep, -1},
		{Outside, 1, keep},
		{OutsideSurface, keep, keep},
		{AboveSurface, keep, keep},
	} {
		t.Run(test.snap.String(), func(t *testing.T) {
			c := newCalc(t, Params{
				Target:       grid(t, 2, 1, flat),
				KeepDistance: keep,
				Mode:         NearestSurface{Snap: test.snap},
			})
			expectVec(t, "above", c.Vertex(above, r3.Vec{}, 1), r3.Vec{X: 0.5, Y: 0.5, Z: test.above})
			expectVec(t, "below", c.Vertex(below, r3.Vec{}, 1), r3.Vec{X: 0.5, Y: 0.5, Z: test.below})
		})
	}
}

func TestSnapOnSurfacePoint(t *testing.T) {
	hit := r3.Vec{X: 1, Y: 2, Z: 3}
	no := r3.Vec{Z: 1}
	if got := SnapPointToSurface(nil, nil, OnSurface, 0, hit, no, 0, r3.Vec{Z: -5}); got != hit {
		t.Errorf("on surface without keep distance: got %v, want hit", got)
	}
	expectVec(t, "on surface", SnapPointToSurface(nil, nil, OnSurface, 0, hit, no, 0.2, hit), r3.Vec{X: 1, Y: 2, Z: 3.2})
	expectVec(t, "on surface from behind", SnapPointToSurface(nil, nil, OnSurface, 0, hit, no, 0.2, r3.Vec{X: 1, Y: 2, Z: -4}), r3.Vec{X: 1, Y: 2, Z: 3.2})
	expectVec(t, "outside", SnapPointToSurface(nil, nil, Outside, 0, hit, no, 0.2, hit), r3.Vec{X: 1, Y: 2, Z: 3.2})
	expectVec(t, "inside", SnapPointToSurface(nil, nil, Inside, 0, hit, no, 0.2, hit), r3.Vec{X: 1, Y: 2, Z: 2.8})
	if got := SnapPointToSurface(nil, nil, OutsideSurface, 0, hit, no, 0, r3.Vec{Z: 10}); got != hit {
		t.Errorf("outside surface without keep distance: got %v, want hit", got)
	}
}

func TestProjectCull(t *testing.T) {
	co := r3.Vec{X: 0.5, Y: 0.5, Z: 1}
	for _, test := range []struct {
		name       string
		flipBottom bool
		cull       Cull
		invert     bool
		wantZ      float64
		moved      bool
	}{
		{name: "no cull", cull: CullNone, wantZ: 0, moved: true},
		{name: "cull back", cull: CullBack, wantZ: 0, moved: true},
		{name: "cull front", cull: CullFront},
		{name: "cull front passes to back face", flipBottom: true, cull: CullFront, wantZ: -1, moved: true},
		{name: "inverted cull back", flipBottom: true, cull: CullBack, invert: true, wantZ: -1, moved: true},
		{name: "cull both", flipBottom: true, cull: CullBoth},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := newCalc(t, Params{
				Target: stacked(t, test.flipBottom),
				Mode:   Project{Axes: AxisZ, Negative: true, Cull: test.cull, InvertCull: test.invert},
			})
			got := c.Vertex(co, r3.Vec{}, 1)
			want := co
			if test.moved {
				want.Z = test.wantZ
			}
			expectVec(t, test.name, got, want)
		})
	}
}

func TestProjectLimit(t *testing.T) {
	co := r3.Vec{X: 0.5, Y: 0.5, Z: 1}
	for _, test := range []struct {
		limit float64
		want  r3.Vec
	}{
		{0, r3.Vec{X: 0.5, Y: 0.5}},
		{0.5, co},
		{2, r3.Vec{X: 0.5, Y: 0.5}},
	} {
		c := newCalc(t, Params{
			Target: square(t, 0, false),
			Mode:   Project{Axes: AxisZ, Positive: true, Negative: true, Limit: test.limit},
		})
		expectVec(t, "limit", c.Vertex(co, r3.Vec{}, 1), test.want)
	}
}

func TestProjectAlongNormal(t *testing.T) {
	c := newCalc(t, Params{
		Target:       square(t, 0, false),
		KeepDistance: 0.1,
		Mode:         Project{Positive: true},
	})
	co := r3.Vec{X: 0.25, Y: 0.75, Z: 2}
	expectVec(t, "normal", c.Vertex(co, r3.Vec{Z: -3}, 1), r3.Vec{X: 0.25, Y: 0.75, Z: 0.1})
	// Degenerate directions are never cast.
	if got := c.Vertex(co, r3.Vec{}, 1); got != co {
		t.Errorf("zero normal moved point to %v", got)
	}
	if got := c.Vertex(co, r3.Vec{Z: 1}, 1); got != co {
		t.Errorf("ray pointing away moved point to %v", got)
	}
}

func TestProjectAux(t *testing.T) {
	c := newCalc(t, Params{
		Target: square(t, 0, false),
		Aux:    square(t, 0.5, false),
		Mode:   Project{Axes: AxisZ, Negative: true},
	})
	expectVec(t, "aux closer", c.Vertex(r3.Vec{X: 0.5, Y: 0.5, Z: 1}, r3.Vec{}, 1), r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	expectVec(t, "target closer", c.Vertex(r3.Vec{X: 0.5, Y: 0.5, Z: 0.25}, r3.Vec{}, 1), r3.Vec{X: 0.5, Y: 0.5})
}

func TestProjectAuxCull(t *testing.T) {
	co := r3.Vec{X: 0.5, Y: 0.5, Z: 1}
	for _, test := range []struct {
		name    string
		flipAux bool
		mode    Project
		want    r3.Vec
	}{
		// Both squares face the ray, so neither may be hit.
		{name: "cull front on both", mode: Project{Axes: AxisZ, Negative: true, Cull: CullFront}, want: co},
		// The aux square faces away and is kept, the target square is culled.
		{name: "aux back face kept", flipAux: true, mode: Project{Axes: AxisZ, Negative: true, Cull: CullFront}, want: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}},
		// Inverted cull on the negative pass turns CullBack into CullFront.
		{name: "inverted cull reaches aux", mode: Project{Axes: AxisZ, Negative: true, Cull: CullBack, InvertCull: true}, want: co},
		{name: "cull back keeps aux", mode: Project{Axes: AxisZ, Negative: true, Cull: CullBack}, want: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := newCalc(t, Params{
				Target: square(t, 0, false),
				Aux:    square(t, 0.5, test.flipAux),
				Mode:   test.mode,
			})
			expectVec(t, test.name, c.Vertex(co, r3.Vec{}, 1), test.want)
		})
	}
}

func TestCullSet(t *testing.T) {
	for _, test := range []struct {
		cull, inverted Cull
		front, back    bool
	}{
		{CullNone, CullNone, false, false},
		{CullFront, CullBack, true, false},
		{CullBack, CullFront, false, true},
		{CullBoth, CullBoth, true, true},
	} {
		if got := test.cull.invert(); got != test.inverted {
			t.Errorf("invert(%d) = %d, want %d", test.cull, got, test.inverted)
		}
		if got := test.cull.culls(-1); got != test.front {
			t.Errorf("cull %d front face culled %v, want %v", test.cull, got, test.front)
		}
		if got := test.cull.culls(1); got != test.back {
			t.Errorf("cull %d back face culled %v, want %v", test.cull, got, test.back)
		}
		if test.cull.culls(0) {
			t.Errorf("cull %d rejected an edge on face", test.cull)
		}
	}
}

func TestProjectTransform(t *testing.T) {
	// The target sits at local z=2.
	toTarget := d3.Transform{}.Translate(r3.Vec{Z: -2})
	c := newCalc(t, Params{
		Target:        square(t, 0, false),
		LocalToTarget: toTarget,
		Mode:          Project{Axes: AxisZ, Positive: true, Limit: 2.5},
	})
	expectVec(t, "transformed", c.Vertex(r3.Vec{X: 0.5, Y: 0.5}, r3.Vec{}, 1), r3.Vec{X: 0.5, Y: 0.5, Z: 2})
	if got := c.Vertex(r3.Vec{X: 0.5, Y: 0.5, Z: -1}, r3.Vec{}, 1); got.Z != -1 {
		t.Errorf("hit beyond limit in local space accepted: %v", got)
	}
}

func TestProjectNormalKeepsCloser(t *testing.T) {
	tree, ok := InitTree(square(t, 0, false), Project{}, false)
	if !ok {
		t.Fatal("no tree")
	}
	defer tree.Free()
	hit := bvh.NoHit(math.Inf(1))
	co, dir := r3.Vec{X: 0.5, Y: 0.5, Z: 3}, r3.Vec{Z: -1}
	if !ProjectNormal(tree, co, dir, 0, nil, CullNone, &hit) {
		t.Fatal("missed the square")
	}
	if math.Abs(hit.Dist-3) > tol {
		t.Errorf("hit distance %g, want 3", hit.Dist)
	}
	closer := bvh.RayHit{Index: 7, Dist: 1}
	if ProjectNormal(tree, co, dir, 0, nil, CullNone, &closer) || closer.Index != 7 {
		t.Error("farther hit replaced closer one")
	}
	if got := PickCloser(hit, closer); got.Index != 7 {
		t.Errorf("PickCloser picked %+v", got)
	}
	if got := PickCloser(bvh.NoHit(math.Inf(1)), hit); got != hit {
		t.Errorf("PickCloser ignored the only hit")
	}
}

func TestTargetProjectPlane(t *testing.T) {
	c := newCalc(t, Params{Target: grid(t, 3, 1, flat), Mode: TargetProject{}})
	expectVec(t, "inside", c.Vertex(r3.Vec{X: 0.3, Y: 0.4, Z: 2}, r3.Vec{}, 1), r3.Vec{X: 0.3, Y: 0.4})
}

func TestTargetProjectSlidesOnBoundary(t *testing.T) {
	tree, ok := InitTree(grid(t, 2, 1, flat), TargetProject{}, false)
	if !ok {
		t.Fatal("no tree")
	}
	defer tree.Free()
	if !tree.Boundary.HasBoundary() {
		t.Fatal("target project tree lacks boundary data")
	}
	nearest := FindNearestSurface(tree, r3.Vec{X: -0.5, Y: 0.5}, TargetProject{}, math.Inf(1))
	if !nearest.Found() {
		t.Fatal("nothing found beside the boundary")
	}
	expectVec(t, "boundary", nearest.Co, r3.Vec{Y: 0.5})
	if math.Abs(nearest.DistSq-0.25) > tol {
		t.Errorf("distance squared %g, want 0.25", nearest.DistSq)
	}
}

func TestTargetProjectAlongSmoothNormal(t *testing.T) {
	target := grid(t, 6, 2, func(x, y float64) float64 { return 0.3 * math.Sin(2*x) * math.Sin(2*y) })
	tree, ok := InitTree(target, TargetProject{}, false)
	if !ok {
		t.Fatal("no tree")
	}
	defer tree.Free()
	for _, q := range []r3.Vec{
		{X: 0.7, Y: 0.9, Z: 1},
		{X: 1.3, Y: 1, Z: -0.6},
		{X: 1, Y: 1, Z: 0.5},
	} {
		nearest := FindNearestSurface(tree, q, TargetProject{}, math.Inf(1))
		if !nearest.Found() {
			t.Errorf("%v: nothing found", q)
			continue
		}
		off := r3.Sub(q, nearest.Co)
		if r3.Norm(r3.Cross(off, nearest.No)) > 1e-3*r3.Norm(off) {
			t.Errorf("%v: offset %v not along normal %v", q, off, nearest.No)
		}
	}
}

func TestComputeSmoothNormal(t *testing.T) {
	// A roof: two faces meeting at the ridge x=1.
	target, err := mesh.Build([]r3.Vec{
		{X: 0, Y: 0}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1},
		{X: 2, Y: 0}, {X: 2, Y: 1},
	}, [][]int{{0, 1, 2, 3}, {1, 4, 5, 2}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mode := NearestSurface{Snap: AboveSurface}
	tree, ok := InitTree(target, mode, false)
	if !ok {
		t.Fatal("no tree")
	}
	ridge := r3.Vec{X: 1, Y: 0.5, Z: 1}
	tri := -1
	for i, f := range tree.TriFaces {
		if f == 0 {
			tri = i
			break
		}
	}
	got := ComputeSmoothNormal(tree, nil, tri, ridge, r3.Vec{})
	expectVec(t, "ridge", got, r3.Vec{Z: 1})

	target.SharpFaces = []bool{true, false}
	target.Invalidate()
	tree, ok = InitTree(target, mode, false)
	if !ok {
		t.Fatal("no tree")
	}
	got = ComputeSmoothNormal(tree, nil, tri, ridge, r3.Vec{})
	expectVec(t, "sharp", got, tree.FaceNormals[0])
	if tree.CornerNormals == nil {
		t.Error("sharp faces did not load corner normals")
	}

	// Translation leaves normals alone.
	st := d3.NewSpaceTransform(d3.Transform{}.Translate(r3.Vec{X: 5}))
	got = ComputeSmoothNormal(tree, &st, tri, r3.Sub(ridge, r3.Vec{X: 5}), r3.Vec{})
	expectVec(t, "transformed", got, tree.FaceNormals[0])
}

func TestWeights(t *testing.T) {
	c := newCalc(t, Params{Target: square(t, 0, false), Mode: NearestSurface{}})
	positions := []r3.Vec{{X: 0.5, Y: 0.5, Z: 1}, {X: 0.5, Y: 0.5, Z: 1}, {X: 0.5, Y: 0.5, Z: 1}}
	if err := c.Run(positions, nil, []float64{0, 0.5, 1}); err != nil {
		t.Fatal(err)
	}
	for i, z := range []float64{1, 0.5, 0} {
		if math.Abs(positions[i].Z-z) > tol {
			t.Errorf("weight %d: z=%g, want %g", i, positions[i].Z, z)
		}
	}

	inv := newCalc(t, Params{Target: square(t, 0, false), Mode: NearestSurface{}, InvertWeights: true})
	positions = []r3.Vec{{X: 0.5, Y: 0.5, Z: 1}}
	if err := inv.Run(positions, nil, []float64{1}); err != nil {
		t.Fatal(err)
	}
	if positions[0].Z != 1 {
		t.Errorf("inverted full weight moved point to %v", positions[0])
	}
	if err := c.Run(positions, nil, []float64{1, 1}); err == nil {
		t.Error("mismatched weights accepted")
	}
	proj := newCalc(t, Params{Target: square(t, 0, false), Mode: Project{Positive: true}})
	if err := proj.Run(positions, nil, nil); err == nil {
		t.Error("normal projection without normals accepted")
	}
}

func TestNewCalcErrors(t *testing.T) {
	verts, err := mesh.Build([]r3.Vec{{}, {X: 1}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	empty, err := mesh.Build(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for name, test := range map[string]struct {
		p    Params
		want error
	}{
		"no mode":        {Params{Target: verts}, ErrNoMode},
		"nil target":     {Params{Mode: NearestVertex{}}, ErrEmptyTarget},
		"empty target":   {Params{Target: empty, Mode: NearestVertex{}}, ErrEmptyTarget},
		"no faces":       {Params{Target: verts, Mode: NearestSurface{}}, ErrEmptyTarget},
		"singular":       {Params{Target: verts, Mode: NearestVertex{}, LocalToTarget: d3.NewTransform(nil)}, ErrSingularTransform},
		"target project": {Params{Target: verts, Mode: TargetProject{}}, ErrEmptyTarget},
	} {
		_, err := NewCalc(test.p)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: got %v, want %v", name, err, test.want)
		}
	}
	c := newCalc(t, Params{Target: verts, Mode: NearestVertex{}})
	if c.Tree() == nil {
		t.Error("vertex only target rejected for nearest vertex")
	}
}

func TestCalcConcurrent(t *testing.T) {
	target := grid(t, 8, 2, func(x, y float64) float64 { return 0.1 * math.Cos(3*x+y) })
	var source []r3.Vec
	for i := 0; i < 200; i++ {
		f := float64(i)
		source = append(source, r3.Vec{X: math.Mod(f*0.37, 2), Y: math.Mod(f*0.53, 2), Z: 0.5 - math.Mod(f*0.11, 1)})
	}
	for _, mode := range []Mode{NearestVertex{}, NearestSurface{Snap: AboveSurface}, TargetProject{}, Project{Axes: AxisZ, Positive: true, Negative: true}} {
		c := newCalc(t, Params{Target: target, KeepDistance: 0.05, Mode: mode})
		want := make([]r3.Vec, len(source))
		for i, co := range source {
			want[i] = c.Vertex(co, r3.Vec{}, 1)
		}
		got := make([]r3.Vec, len(source))
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(source); i += 4 {
					got[i] = c.Vertex(source[i], r3.Vec{}, 1)
				}
			}(w)
		}
		wg.Wait()
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("%s: vertex %d concurrent %v, sequential %v", mode, i, got[i], want[i])
			}
		}
	}
}

func TestNeedsNormals(t *testing.T) {
	for _, test := range []struct {
		mode Mode
		want bool
	}{
		{NearestVertex{}, false},
		{NearestSurface{}, false},
		{NearestSurface{Snap: AboveSurface}, true},
		{Project{Snap: Outside}, false},
		{Project{Snap: AboveSurface}, true},
		{TargetProject{}, true},
	} {
		if got := NeedsNormals(test.mode); got != test.want {
			t.Errorf("%s: got %v, want %v", test.mode, got, test.want)
		}
	}
}

func TestSolveQuadratic(t *testing.T) {
	var roots [2]float64
	if n := solveQuadratic(1, -3, 2, &roots); n != 2 || math.Abs(roots[0]*roots[1]-2) > tol || math.Abs(roots[0]+roots[1]-3) > tol {
		t.Errorf("x^2-3x+2: %d roots %v", n, roots)
	}
	if n := solveQuadratic(0, 2, -1, &roots); n != 1 || roots[0] != 0.5 {
		t.Errorf("2x-1: %d roots %v", n, roots)
	}
	if n := solveQuadratic(1, 0, 1, &roots); n != 0 {
		t.Errorf("x^2+1: %d roots", n)
	}
}
