package meshio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/isect"
	"github.com/soypat/shrinkwrap/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

const stlTriangleSize = 50

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // Attribute byte count
}

var errNormalMismatch = errors.New("stored normal differs from the normal computed from vertices")

// WriteSTL writes triangles to w in binary STL format.
func WriteSTL(w io.Writer, tris [][3]r3.Vec) error {
	if len(tris) == 0 {
		return errors.New("empty triangle slice")
	}
	header := stlHeader{Count: uint32(len(tris))}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return errors.Wrap(err, "writing STL header")
	}
	var (
		d   stlTriangle
		buf [stlTriangleSize]byte
	)
	for i, tri := range tris {
		d.Normal = f32(isect.TriangleNormal(tri[0], tri[1], tri[2]))
		d.Vertex1 = f32(tri[0])
		d.Vertex2 = f32(tri[1])
		d.Vertex3 = f32(tri[2])
		d.put(buf[:])
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrapf(err, "writing STL triangle %d", i)
		}
	}
	return nil
}

// WriteMeshSTL triangulates m and writes it to w in binary STL format.
func WriteMeshSTL(w io.Writer, m *mesh.Mesh) error {
	return WriteSTL(w, m.Triangles())
}

// ReadSTL reads a binary STL stream. Triangles whose stored normal
// disagrees with their winding are kept and counted in a warning.
func ReadSTL(r io.Reader) ([][3]r3.Vec, error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("encountered EOF while reading STL header")
		}
		return nil, errors.Wrap(err, "STL header read failed")
	}
	if header.Count == 0 {
		return nil, errors.New("STL header indicates 0 triangles present")
	}
	var (
		buf        [stlTriangleSize]byte
		d          stlTriangle
		mismatches int
	)
	output := make([][3]r3.Vec, 0, min(int(header.Count), 1<<16))
	for i := 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, errors.Wrapf(err, "%d/%d STL triangles read", i, header.Count)
		}
		d.get(buf[:])
		if err := d.validate(); err != nil {
			if !errors.Is(err, errNormalMismatch) {
				return nil, errors.Wrapf(err, "STL triangle %d", i)
			}
			mismatches++
		}
		output = append(output, d.toTriangle())
	}
	if mismatches > 0 {
		logger.Warn("STL normals disagree with vertex winding",
			zap.Int("triangles", len(output)),
			zap.Int("mismatches", mismatches),
		)
	}
	return output, nil
}

func (t stlTriangle) put(b []byte) {
	if len(b) < stlTriangleSize {
		panic("need length 50 to marshal stlTriangle")
	}
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	if len(b) < stlTriangleSize {
		panic("need length 50 to unmarshal stlTriangle")
	}
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}

func (t stlTriangle) validate() error {
	const normTol = 5e-2
	if bad3F32(t.Normal) {
		return errors.New("inf/NaN STL triangle normal")
	}
	if bad3F32(t.Vertex1) || bad3F32(t.Vertex2) || bad3F32(t.Vertex3) {
		return errors.New("inf/NaN STL triangle vertex")
	}
	if t.Normal == ([3]float32{}) {
		// Writers may leave the normal for readers to compute.
		return nil
	}
	calc := f32(isect.TriangleNormal(r3From32(t.Vertex1), r3From32(t.Vertex2), r3From32(t.Vertex3)))
	if !equalWithin3F32(calc, t.Normal, normTol) {
		return errNormalMismatch
	}
	return nil
}

func equalWithin3F32(a, b [3]float32, tol float32) bool {
	return math32.Abs(a[0]-b[0]) <= tol &&
		math32.Abs(a[1]-b[1]) <= tol &&
		math32.Abs(a[2]-b[2]) <= tol
}

func f32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func r3From32(f [3]float32) r3.Vec {
	return r3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}

func (t stlTriangle) toTriangle() [3]r3.Vec {
	return [3]r3.Vec{r3From32(t.Vertex1), r3From32(t.Vertex2), r3From32(t.Vertex3)}
}
