package shrinkwrap

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrNoMode            = errors.New("shrinkwrap: no mode")
	ErrEmptyTarget       = errors.New("shrinkwrap: target has nothing to project onto")
	ErrSingularTransform = errors.New("shrinkwrap: singular space transform")
)

// Params configures a shrinkwrap pass.
type Params struct {
	Target *mesh.Mesh
	// Aux is an optional second target. Only Project reads it.
	Aux *mesh.Mesh
	// LocalToTarget maps source coordinates into the target's space. The
	// zero value is the identity.
	LocalToTarget d3.Transform
	LocalToAux    d3.Transform
	// KeepDistance is the offset kept from the surface.
	KeepDistance float64
	// InvertWeights uses 1-w instead of each vertex weight w.
	InvertWeights bool
	Mode          Mode
}

// Calc holds the prepared targets of a shrinkwrap pass. It is read-only
// once built and may be shared between goroutines.
type Calc struct {
	params   Params
	tree     *TreeData
	aux      *TreeData
	toTarget d3.SpaceTransform
	toAux    d3.SpaceTransform
}

// NewCalc prepares the targets of p. The returned Calc must be freed.
func NewCalc(p Params) (*Calc, error) {
	if p.Mode == nil {
		return nil, ErrNoMode
	}
	if math.Abs(p.LocalToTarget.Det()) < 1e-16 {
		return nil, fmt.Errorf("target: %w", ErrSingularTransform)
	}
	tree, ok := InitTree(p.Target, p.Mode, false)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.Mode, ErrEmptyTarget)
	}
	c := &Calc{
		params:   p,
		tree:     tree,
		toTarget: d3.NewSpaceTransform(p.LocalToTarget),
	}
	if _, ok := p.Mode.(Project); ok && p.Aux != nil {
		if math.Abs(p.LocalToAux.Det()) < 1e-16 {
			tree.Free()
			return nil, fmt.Errorf("aux: %w", ErrSingularTransform)
		}
		// An aux target with nothing to hit is ignored.
		c.aux, _ = InitTree(p.Aux, p.Mode, false)
		c.toAux = d3.NewSpaceTransform(p.LocalToAux)
	}
	return c, nil
}

// Free releases the prepared targets.
func (c *Calc) Free() {
	c.tree.Free()
	c.aux.Free()
}

// Tree returns the prepared primary target.
func (c *Calc) Tree() *TreeData { return c.tree }

// Vertex returns where the point co with normal no moves to. weight blends
// between co at 0 and the projected point at 1. no is only read by Project
// without axes. Points that find no target stay where they are.
func (c *Calc) Vertex(co, no r3.Vec, weight float64) r3.Vec {
	if weight == 0 {
		return co
	}
	switch m := c.params.Mode.(type) {
	case NearestVertex:
		return c.nearestVertex(co, weight)
	case Project:
		return c.project(m, co, no, weight)
	default:
		return c.nearestSurface(co, weight)
	}
}

// Run moves positions in place. normals may be nil unless the mode projects
// along vertex normals. weights may be nil for a weight of one everywhere.
func (c *Calc) Run(positions, normals []r3.Vec, weights []float64) error {
	if normals != nil && len(normals) != len(positions) {
		return fmt.Errorf("shrinkwrap: %d normals for %d positions", len(normals), len(positions))
	}
	if weights != nil && len(weights) != len(positions) {
		return fmt.Errorf("shrinkwrap: %d weights for %d positions", len(weights), len(positions))
	}
	if m, ok := c.params.Mode.(Project); ok && m.Axes == 0 && normals == nil {
		return errors.New("shrinkwrap: projecting along normals requires normals")
	}
	start := time.Now()
	moved := 0
	for i, co := range positions {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if c.params.InvertWeights {
			w = 1 - w
		}
		var no r3.Vec
		if normals != nil {
			no = normals[i]
		}
		next := c.Vertex(co, no, w)
		if next != co {
			moved++
		}
		positions[i] = next
	}
	logger.Debug("shrinkwrap done",
		zap.Stringer("mode", c.params.Mode),
		zap.Int("vertices", len(positions)),
		zap.Int("moved", moved),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (c *Calc) nearestVertex(co r3.Vec, weight float64) r3.Vec {
	tco := c.toTarget.Apply(co)
	nearest := c.tree.BVH.NearestTo(tco, math.Inf(1))
	if !nearest.Found() {
		return co
	}
	if nearest.DistSq > surfaceEpsilon {
		dist := math.Sqrt(nearest.DistSq)
		weight *= (dist - c.params.KeepDistance) / dist
	}
	return d3.Lerp(co, c.toTarget.Invert(nearest.Co), weight)
}

func (c *Calc) nearestSurface(co r3.Vec, weight float64) r3.Vec {
	tco := c.toTarget.Apply(co)
	nearest := FindNearestSurface(c.tree, tco, c.params.Mode, math.Inf(1))
	if !nearest.Found() {
		return co
	}
	goal := SnapPointToSurface(c.tree, nil, c.params.Mode.snap(), nearest.Index, nearest.Co, nearest.No, c.params.KeepDistance, tco)
	return d3.Lerp(co, c.toTarget.Invert(goal), weight)
}

func (c *Calc) project(m Project, co, no r3.Vec, weight float64) r3.Vec {
	dir := no
	if m.Axes != 0 {
		dir = r3.Vec{}
		if m.Axes&AxisX != 0 {
			dir.X = 1
		}
		if m.Axes&AxisY != 0 {
			dir.Y = 1
		}
		if m.Axes&AxisZ != 0 {
			dir.Z = 1
		}
	}
	dir, length := d3.Unit(dir)
	if length == 0 {
		return co
	}

	limit := math.Inf(1)
	if m.Limit > 0 {
		limit = m.Limit
	}
	hit := m.castTarget(c.tree, &c.toTarget, co, dir, limit)
	tree, transform := c.tree, &c.toTarget
	if c.aux != nil {
		auxHit := m.castTarget(c.aux, &c.toAux, co, dir, limit)
		if best := PickCloser(hit, auxHit); best != hit {
			hit, tree, transform = best, c.aux, &c.toAux
		}
	}
	if !hit.Found() {
		return co
	}
	goal := SnapPointToSurface(tree, transform, m.Snap, hit.Index, hit.Co, hit.No, c.params.KeepDistance, co)
	return d3.Lerp(co, goal, weight)
}

// castTarget returns the closest hit on one target among the enabled
// directions, each filtered by its cull policy.
func (m Project) castTarget(tree *TreeData, transform *d3.SpaceTransform, co, dir r3.Vec, limit float64) bvh.RayHit {
	hit := bvh.NoHit(limit)
	if m.Positive {
		ProjectNormal(tree, co, dir, 0, transform, m.Cull, &hit)
	}
	if m.Negative {
		cull := m.Cull
		if m.InvertCull {
			cull = cull.invert()
		}
		ProjectNormal(tree, co, r3.Scale(-1, dir), 0, transform, cull, &hit)
	}
	return hit
}
