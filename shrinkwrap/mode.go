// Package shrinkwrap moves points onto, or to a fixed distance from, a target
// mesh surface. Targets are prepared once with InitTree and may then be
// queried from any number of goroutines.
package shrinkwrap

import "fmt"

// Snap selects how a point is placed relative to the surface point found
// for it.
type Snap uint8

const (
	// OnSurface places the point at keep distance from the surface along
	// the hit normal, whichever side the point came from.
	OnSurface Snap = iota
	// Inside keeps the point at least keep distance inside the surface.
	Inside
	// Outside keeps the point at least keep distance outside the surface.
	Outside
	// OutsideSurface places the point at keep distance outside the surface.
	OutsideSurface
	// AboveSurface offsets the surface point along the smooth normal.
	AboveSurface
)

func (s Snap) String() string {
	switch s {
	case OnSurface:
		return "on surface"
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	case OutsideSurface:
		return "outside surface"
	case AboveSurface:
		return "above surface"
	}
	return fmt.Sprintf("Snap(%d)", uint8(s))
}

// Axis is a set of projection axes.
type Axis uint8

const (
	AxisX Axis = 1 << iota
	AxisY
	AxisZ
)

// Cull is a set of face orientations a projection ray ignores.
type Cull uint8

const (
	CullNone Cull = 0
	// CullFront ignores faces whose normal faces the ray.
	CullFront Cull = 1 << 0
	// CullBack ignores faces whose normal points along the ray.
	CullBack Cull = 1 << 1
	// CullBoth ignores every face that is not edge on to the ray.
	CullBoth = CullFront | CullBack
)

// culls reports whether a face whose normal has dot product facing with
// the ray direction is ignored.
func (c Cull) culls(facing float64) bool {
	return (c&CullFront != 0 && facing < 0) || (c&CullBack != 0 && facing > 0)
}

// invert swaps the front and back bits.
func (c Cull) invert() Cull {
	inv := c &^ CullBoth
	if c&CullFront != 0 {
		inv |= CullBack
	}
	if c&CullBack != 0 {
		inv |= CullFront
	}
	return inv
}

// Mode is one of NearestVertex, NearestSurface, Project or TargetProject.
type Mode interface {
	snap() Snap
	fmt.Stringer
}

// NearestVertex moves points to the closest target vertex.
type NearestVertex struct{}

// NearestSurface moves points to the closest point of the target surface.
type NearestSurface struct {
	Snap Snap
}

// Project casts rays from each point along its normal or along a fixed
// set of axes and moves the point to the closest accepted hit.
type Project struct {
	// Axes to project along. Zero projects along the vertex normal.
	Axes Axis
	// Positive and Negative enable casting along and against the direction.
	Positive, Negative bool
	Cull               Cull
	// InvertCull swaps the culled side for rays cast in the negative direction.
	InvertCull bool
	// Limit is the maximum distance a point may move. Zero is unlimited.
	Limit float64
	// SubsurfLevels is carried for callers that subdivide the source before
	// projecting. The projection itself does not subdivide.
	SubsurfLevels int
	Snap          Snap
}

// TargetProject moves points to the target point whose interpolated smooth
// normal passes through them, sliding along open boundaries.
type TargetProject struct {
	Snap Snap
}

func (NearestVertex) snap() Snap    { return OnSurface }
func (m NearestSurface) snap() Snap { return m.Snap }
func (m Project) snap() Snap        { return m.Snap }
func (m TargetProject) snap() Snap  { return m.Snap }

func (NearestVertex) String() string    { return "nearest vertex" }
func (m NearestSurface) String() string { return "nearest surface (" + m.Snap.String() + ")" }
func (m Project) String() string        { return "project (" + m.Snap.String() + ")" }
func (m TargetProject) String() string  { return "target project (" + m.Snap.String() + ")" }

// NeedsNormals reports whether mode reads target normals.
func NeedsNormals(mode Mode) bool {
	switch mode.(type) {
	case TargetProject:
		return true
	case NearestVertex:
		return false
	}
	return mode.snap() == AboveSurface
}
