// Command shrinkwrap deforms a source mesh onto a target mesh and writes the
// result. Settings come from a YAML file overridden by flags, see
// internal/config. A mesh path of the form gen:name[:size] generates a
// mesh instead of loading one, for example gen:sphere:1.5.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/internal/config"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/mesh"
	"github.com/soypat/shrinkwrap/meshgen"
	"github.com/soypat/shrinkwrap/meshio"
	"github.com/soypat/shrinkwrap/shrinkwrap"
	"github.com/unixpickle/essentials"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

func main() {
	config.ParseFlags()
	cfg, err := config.Load()
	essentials.Must(err)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("shrinkwrap failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	start := time.Now()
	source, err := loadMesh(cfg.Source, cfg.WeldTolerance)
	if err != nil {
		return errors.Wrap(err, "source")
	}
	target, err := loadMesh(cfg.Target, cfg.WeldTolerance)
	if err != nil {
		return errors.Wrap(err, "target")
	}
	var aux *mesh.Mesh
	if cfg.Aux != "" {
		aux, err = loadMesh(cfg.Aux, cfg.WeldTolerance)
		if err != nil {
			return errors.Wrap(err, "aux")
		}
	}
	params, err := cfg.Params(target, aux)
	if err != nil {
		return err
	}
	calc, err := shrinkwrap.NewCalc(params)
	if err != nil {
		return err
	}
	defer calc.Free()

	positions := append([]r3.Vec(nil), source.Positions...)
	var normals []r3.Vec
	if p, ok := params.Mode.(shrinkwrap.Project); ok && p.Axes == 0 {
		normals = source.VertNormals()
	}
	if err := calc.Run(positions, normals, nil); err != nil {
		return err
	}
	copy(source.Positions, positions)
	source.Invalidate()

	if err := meshio.Save(cfg.Output, source); err != nil {
		return errors.Wrap(err, "saving result")
	}
	logger.Info("wrote mesh",
		zap.String("path", cfg.Output),
		zap.Stringer("mode", params.Mode),
		zap.Int("verts", source.NumVerts()),
		zap.Int("faces", source.NumFaces()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

const genCells = 48

// loadMesh reads path from disk or generates it if it has the gen: prefix.
func loadMesh(path string, tol float64) (*mesh.Mesh, error) {
	gen, ok := strings.CutPrefix(path, "gen:")
	if !ok {
		return meshio.Load(path, tol)
	}
	name, arg, _ := strings.Cut(gen, ":")
	size := 1.0
	if arg != "" {
		var err error
		size, err = strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "generator %q size", name)
		}
	}
	switch name {
	case "sphere":
		return meshgen.Sphere(size, genCells)
	case "box":
		h := size / 2
		return meshgen.Box(r3.Vec{X: -h, Y: -h, Z: -h}, r3.Vec{X: h, Y: h, Z: h}), nil
	case "roundbox":
		return meshgen.RoundedBox(r3.Vec{X: size, Y: size, Z: size}, size/10, genCells)
	case "cylinder":
		return meshgen.Cylinder(size, size/2, 0, genCells)
	case "grid":
		return meshgen.Grid(16, size, nil), nil
	}
	return nil, errors.Errorf("unknown generator %q", name)
}
