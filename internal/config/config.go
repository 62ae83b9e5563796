// Package config handles loading the shrinkwrap command's settings.
package config

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/mesh"
	"github.com/soypat/shrinkwrap/shrinkwrap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds all command settings.
type Config struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	// Aux is an optional second projection target.
	Aux    string `yaml:"aux"`
	Output string `yaml:"output"`
	// WeldTolerance merges input vertices closer than it. Zero infers one.
	WeldTolerance float64          `yaml:"weld_tolerance"`
	Shrinkwrap    ShrinkwrapConfig `yaml:"shrinkwrap"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// ShrinkwrapConfig holds the modifier settings.
type ShrinkwrapConfig struct {
	Mode          string          `yaml:"mode"`
	Snap          string          `yaml:"snap"`
	KeepDistance  float64         `yaml:"keep_distance"`
	InvertWeights bool            `yaml:"invert_weights"`
	Project       ProjectConfig   `yaml:"project"`
	Transform     TransformConfig `yaml:"transform"`
}

// ProjectConfig holds settings read only by the project mode.
type ProjectConfig struct {
	// Axes is a subset of "xyz". Empty projects along vertex normals.
	Axes          string  `yaml:"axes"`
	Positive      bool    `yaml:"positive"`
	Negative      bool    `yaml:"negative"`
	Cull          string  `yaml:"cull"`
	InvertCull    bool    `yaml:"invert_cull"`
	Limit         float64 `yaml:"limit"`
	SubsurfLevels int     `yaml:"subsurf_levels"`
}

// TransformConfig places the source in the target's space. It is applied
// as scale, then rotation, then offset.
type TransformConfig struct {
	Offset     [3]float64 `yaml:"offset"`
	Scale      float64    `yaml:"scale"`
	RotateAxis [3]float64 `yaml:"rotate_axis"`
	RotateDeg  float64    `yaml:"rotate_deg"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: "out.stl",
		Shrinkwrap: ShrinkwrapConfig{
			Mode: "nearest_surface",
			Snap: "on_surface",
			Project: ProjectConfig{
				Positive: true,
				Cull:     "none",
			},
			Transform: TransformConfig{Scale: 1},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the settings that do not depend on loaded meshes.
func (c *Config) Validate() error {
	if c.Source == "" {
		return errors.New("no source mesh")
	}
	if c.Target == "" {
		return errors.New("no target mesh")
	}
	if c.Output == "" {
		return errors.New("no output path")
	}
	_, err := c.Shrinkwrap.mode()
	return err
}

// Params maps the settings onto calculation parameters.
func (c *Config) Params(target, aux *mesh.Mesh) (shrinkwrap.Params, error) {
	mode, err := c.Shrinkwrap.mode()
	if err != nil {
		return shrinkwrap.Params{}, err
	}
	tf, err := c.Shrinkwrap.Transform.transform()
	if err != nil {
		return shrinkwrap.Params{}, err
	}
	return shrinkwrap.Params{
		Target:        target,
		Aux:           aux,
		LocalToTarget: tf,
		LocalToAux:    tf,
		KeepDistance:  c.Shrinkwrap.KeepDistance,
		InvertWeights: c.Shrinkwrap.InvertWeights,
		Mode:          mode,
	}, nil
}

func (s ShrinkwrapConfig) mode() (shrinkwrap.Mode, error) {
	snap, err := ParseSnap(s.Snap)
	if err != nil {
		return nil, err
	}
	switch s.Mode {
	case "nearest_vertex":
		return shrinkwrap.NearestVertex{}, nil
	case "nearest_surface", "":
		return shrinkwrap.NearestSurface{Snap: snap}, nil
	case "target_project":
		return shrinkwrap.TargetProject{Snap: snap}, nil
	case "project":
	default:
		return nil, errors.Errorf("unknown mode %q", s.Mode)
	}
	p := s.Project
	axes, err := ParseAxes(p.Axes)
	if err != nil {
		return nil, err
	}
	cull, err := ParseCull(p.Cull)
	if err != nil {
		return nil, err
	}
	if !p.Positive && !p.Negative {
		return nil, errors.New("project mode needs positive or negative direction enabled")
	}
	if p.Limit < 0 {
		return nil, errors.Errorf("negative projection limit %g", p.Limit)
	}
	return shrinkwrap.Project{
		Axes:          axes,
		Positive:      p.Positive,
		Negative:      p.Negative,
		Cull:          cull,
		InvertCull:    p.InvertCull,
		Limit:         p.Limit,
		SubsurfLevels: p.SubsurfLevels,
		Snap:          snap,
	}, nil
}

func (t TransformConfig) transform() (d3.Transform, error) {
	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	var q r3.Rotation
	if t.RotateDeg != 0 {
		axis := r3.Vec{X: t.RotateAxis[0], Y: t.RotateAxis[1], Z: t.RotateAxis[2]}
		if r3.Norm(axis) == 0 {
			return d3.Transform{}, errors.New("rotation needs a non zero axis")
		}
		q = r3.NewRotation(t.RotateDeg*math.Pi/180, r3.Unit(axis))
	}
	offset := r3.Vec{X: t.Offset[0], Y: t.Offset[1], Z: t.Offset[2]}
	return d3.ComposeTransform(offset, r3.Vec{X: scale, Y: scale, Z: scale}, q), nil
}

// ParseSnap parses a snap name such as "outside_surface".
func ParseSnap(s string) (shrinkwrap.Snap, error) {
	switch s {
	case "on_surface", "":
		return shrinkwrap.OnSurface, nil
	case "inside":
		return shrinkwrap.Inside, nil
	case "outside":
		return shrinkwrap.Outside, nil
	case "outside_surface":
		return shrinkwrap.OutsideSurface, nil
	case "above_surface":
		return shrinkwrap.AboveSurface, nil
	}
	return 0, errors.Errorf("unknown snap %q", s)
}

// ParseCull parses "none", "front", "back" or "both".
func ParseCull(s string) (shrinkwrap.Cull, error) {
	switch s {
	case "none", "":
		return shrinkwrap.CullNone, nil
	case "front":
		return shrinkwrap.CullFront, nil
	case "back":
		return shrinkwrap.CullBack, nil
	case "both":
		return shrinkwrap.CullBoth, nil
	}
	return 0, errors.Errorf("unknown cull %q", s)
}

// ParseAxes parses a subset of "xyz" in any case and order.
func ParseAxes(s string) (shrinkwrap.Axis, error) {
	var axes shrinkwrap.Axis
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'x':
			axes |= shrinkwrap.AxisX
		case 'y':
			axes |= shrinkwrap.AxisY
		case 'z':
			axes |= shrinkwrap.AxisZ
		default:
			return 0, errors.Errorf("unknown axis %q in %q", c, s)
		}
	}
	return axes, nil
}
