package meshio

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// SuggestTolerance returns a welding tolerance of the order of a fraction
// of the shortest triangle side.
func SuggestTolerance(tris [][3]r3.Vec) float64 {
	minDist2 := math.MaxFloat64
	for _, tri := range tris {
		for j, v := range tri {
			if side2 := r3.Norm2(r3.Sub(tri[(j+1)%3], v)); side2 > 0 {
				minDist2 = math.Min(minDist2, side2)
			}
		}
	}
	if minDist2 == math.MaxFloat64 {
		return 0
	}
	return math.Sqrt(minDist2) / 256
}

// Weld builds an indexed mesh from a triangle soup, merging vertices closer
// than tol. A zero tol is inferred with SuggestTolerance and a negative tol
// only merges identical positions. Triangles that collapse are dropped.
func Weld(tris [][3]r3.Vec, tol float64) (*mesh.Mesh, error) {
	if len(tris) == 0 {
		return nil, errors.New("no triangles to weld")
	}
	maxDist2 := 0.0
	for _, tri := range tris {
		for j, v := range tri {
			maxDist2 = math.Max(maxDist2, r3.Norm2(r3.Sub(tri[(j+1)%3], v)))
		}
	}
	if tol == 0 {
		tol = SuggestTolerance(tris)
	}
	if tol > math.Sqrt(maxDist2)/2 {
		return nil, fmt.Errorf("vertex tolerance %g is too large to weld, suggested tolerance: %g", tol, SuggestTolerance(tris))
	}

	// Identical positions first.
	exact := make(map[r3.Vec]int)
	var unique []r3.Vec
	for _, tri := range tris {
		for _, v := range tri {
			if _, ok := exact[v]; !ok {
				exact[v] = len(unique)
				unique = append(unique, v)
			}
		}
	}

	remap := make([]int, len(unique))
	positions := unique
	if tol > 0 {
		remap, positions = mergeWithin(unique, exact, tol)
	} else {
		for i := range remap {
			remap[i] = i
		}
	}

	faces := make([][]int, 0, len(tris))
	dropped := 0
	for _, tri := range tris {
		a, b, c := remap[exact[tri[0]]], remap[exact[tri[1]]], remap[exact[tri[2]]]
		if a == b || b == c || c == a {
			dropped++
			continue
		}
		faces = append(faces, []int{a, b, c})
	}
	if len(faces) == 0 {
		return nil, errors.New("every triangle collapsed while welding")
	}
	m, err := mesh.Build(positions, faces, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building welded mesh")
	}
	logger.Debug("welded triangle soup",
		zap.Int("triangles", len(tris)),
		zap.Int("vertices", len(positions)),
		zap.Int("dropped", dropped),
		zap.Float64("tolerance", tol),
	)
	return m, nil
}

// mergeWithin clusters unique positions greedily in input order: each
// unassigned position claims every unassigned position within tol.
func mergeWithin(unique []r3.Vec, index map[r3.Vec]int, tol float64) (remap []int, merged []r3.Vec) {
	pts := make(kdtree.Points, len(unique))
	for i, v := range unique {
		pts[i] = kdtree.Point{v.X, v.Y, v.Z}
	}
	// kdtree.New reorders pts; positions are recovered through index.
	tree := kdtree.New(pts, false)
	remap = make([]int, len(unique))
	for i := range remap {
		remap[i] = -1
	}
	for i, v := range unique {
		if remap[i] >= 0 {
			continue
		}
		id := len(merged)
		merged = append(merged, v)
		remap[i] = id
		keep := kdtree.NewDistKeeper(tol * tol)
		tree.NearestSet(keep, kdtree.Point{v.X, v.Y, v.Z})
		for _, cd := range keep.Heap {
			p, ok := cd.Comparable.(kdtree.Point)
			if !ok {
				continue
			}
			j := index[r3.Vec{X: p[0], Y: p[1], Z: p[2]}]
			if remap[j] < 0 {
				remap[j] = id
			}
		}
	}
	return remap, merged
}
