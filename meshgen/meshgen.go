// Package meshgen builds meshes for tests and demos: quad grids and boxes
// directly, and smooth solids by tessellating signed distance functions.
package meshgen

import (
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/meshio"
	"github.com/soypat/shrinkwrap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Grid returns an open patch of n by n quads spanning [0,size]^2 in XY
// with heights given by z, facing +Z. A nil z gives a flat patch.
func Grid(n int, size float64, z func(x, y float64) float64) *mesh.Mesh {
	if n < 1 {
		panic("meshgen: grid needs at least one cell")
	}
	positions := make([]r3.Vec, 0, (n+1)*(n+1))
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, y := size*float64(i)/float64(n), size*float64(j)/float64(n)
			var h float64
			if z != nil {
				h = z(x, y)
			}
			positions = append(positions, r3.Vec{X: x, Y: y, Z: h})
		}
	}
	faces := make([][]int, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			a := j*(n+1) + i
			faces = append(faces, []int{a, a + 1, a + n + 2, a + n + 1})
		}
	}
	return mesh.MustBuild(positions, faces, nil)
}

// Box returns a closed box of quads with outward facing normals spanning
// the given bounds.
func Box(min, max r3.Vec) *mesh.Mesh {
	c := func(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }
	return mesh.MustBuild([]r3.Vec{
		c(min.X, min.Y, min.Z), c(max.X, min.Y, min.Z), c(max.X, max.Y, min.Z), c(min.X, max.Y, min.Z),
		c(min.X, min.Y, max.Z), c(max.X, min.Y, max.Z), c(max.X, max.Y, max.Z), c(min.X, max.Y, max.Z),
	}, [][]int{
		{0, 3, 2, 1}, {4, 5, 6, 7}, {0, 1, 5, 4}, {3, 7, 6, 2}, {0, 4, 7, 3}, {1, 2, 6, 5},
	}, nil)
}

// Sphere tessellates a sphere centered at the origin. cells is the number
// of marching cubes cells along the longest side of its bounds.
func Sphere(radius float64, cells int) (*mesh.Mesh, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, errors.Wrap(err, "sphere")
	}
	return Solid(s, cells)
}

// RoundedBox tessellates a box of the given size centered at the origin with
// edges rounded by round.
func RoundedBox(size r3.Vec, round float64, cells int) (*mesh.Mesh, error) {
	s, err := sdf.Box3D(v3.Vec{X: size.X, Y: size.Y, Z: size.Z}, round)
	if err != nil {
		return nil, errors.Wrap(err, "rounded box")
	}
	return Solid(s, cells)
}

// Cylinder tessellates a cylinder along Z centered at the origin.
func Cylinder(height, radius, round float64, cells int) (*mesh.Mesh, error) {
	s, err := sdf.Cylinder3D(height, radius, round)
	if err != nil {
		return nil, errors.Wrap(err, "cylinder")
	}
	return Solid(s, cells)
}

// Solid tessellates s with uniform marching cubes and welds the result.
func Solid(s sdf.SDF3, cells int) (*mesh.Mesh, error) {
	if cells < 2 {
		return nil, errors.Errorf("need at least 2 cells, got %d", cells)
	}
	triangles := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))
	if len(triangles) == 0 {
		return nil, errors.Errorf("tessellation of %d cells produced no triangles", cells)
	}
	tris := make([][3]r3.Vec, 0, len(triangles))
	for _, tri := range triangles {
		tris = append(tris, [3]r3.Vec{vec(tri[0]), vec(tri[1]), vec(tri[2])})
	}
	bb := s.BoundingBox()
	size := bb.Size()
	cell := math.Max(size.X, math.Max(size.Y, size.Z)) / float64(cells)
	return meshio.Weld(tris, cell*1e-3)
}

func vec(v v3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}
