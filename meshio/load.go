// Package meshio reads triangle meshes from STL, OFF, OBJ and PLY files into
// welded indexed meshes and writes meshes as binary STL.
package meshio

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/mesh"
	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/spatial/r3"
)

// Load reads the mesh at path, choosing the format by extension, and welds
// it with tolerance tol as Weld does.
func Load(path string, tol float64) (*mesh.Mesh, error) {
	tris, err := LoadTriangles(path)
	if err != nil {
		return nil, err
	}
	m, err := Weld(tris, tol)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// LoadTriangles reads the triangle soup at path.
func LoadTriangles(path string) ([][3]r3.Vec, error) {
	var (
		tris [][3]r3.Vec
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		tris, err = loadSTL(path)
	case ".off":
		tris, err = loadOFF(path)
	case ".obj":
		tris, err = loadFauxgl(path, fauxgl.LoadOBJ)
	case ".ply":
		tris, err = loadFauxgl(path, fauxgl.LoadPLY)
	default:
		return nil, errors.Errorf("%s: unsupported mesh format %q", path, ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return tris, nil
}

// Save writes m to path as binary STL.
func Save(path string, m *mesh.Mesh) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fp)
	if err := WriteMeshSTL(w, m); err != nil {
		fp.Close()
		return errors.Wrap(err, path)
	}
	if err := w.Flush(); err != nil {
		fp.Close()
		return errors.Wrap(err, path)
	}
	return fp.Close()
}

func loadSTL(path string) ([][3]r3.Vec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		// Most likely ASCII, though some binary writers start their header
		// with "solid" too.
		if tris, err := ReadSTL(bytes.NewReader(data)); err == nil {
			return tris, nil
		}
		return loadFauxgl(path, fauxgl.LoadSTL)
	}
	return ReadSTL(bytes.NewReader(data))
}

func loadOFF(path string) ([][3]r3.Vec, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadOFF(fp)
}

// ReadOFF reads an Object File Format stream.
func ReadOFF(r io.Reader) ([][3]r3.Vec, error) {
	triangles, err := model3d.ReadOFF(r)
	if err != nil {
		return nil, errors.Wrap(err, "read OFF")
	}
	tris := make([][3]r3.Vec, len(triangles))
	for i, t := range triangles {
		for j, c := range t {
			tris[i][j] = r3.Vec{X: c.X, Y: c.Y, Z: c.Z}
		}
	}
	return tris, nil
}

func loadFauxgl(path string, load func(string) (*fauxgl.Mesh, error)) ([][3]r3.Vec, error) {
	fm, err := load(path)
	if err != nil {
		return nil, err
	}
	tris := make([][3]r3.Vec, len(fm.Triangles))
	for i, t := range fm.Triangles {
		tris[i] = [3]r3.Vec{fauxglVec(t.V1.Position), fauxglVec(t.V2.Position), fauxglVec(t.V3.Position)}
	}
	return tris, nil
}

func fauxglVec(v fauxgl.Vector) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}
