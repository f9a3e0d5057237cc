package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// FBX format errors.
var (
	ErrInvalidFBXAxis = errors.New("invalid FBX axis")
	ErrEmptyFBXScene  = errors.New("FBX scene has no models")
)

// FBX versions written by WriteFBX.
const (
	FBXVersion         = 7400
	fbxGeometryVersion = 124
	fbxModelVersion    = 232
)

// FBXModel is one mesh object of an FBX scene. World is the object's world
// transform in source space (right X, forward Y, up Z).
type FBXModel struct {
	Name  string
	Mesh  *mesh.Mesh
	World math.Mat4
}

// FBXOptions controls how models are converted on write.
type FBXOptions struct {
	Creator string
	// Forward and Up name the target axes, e.g. "X", "-Z", "Y".
	Forward string
	Up      string
	// Scale multiplies all geometry. Zero means 1.
	Scale float32
}

// fbxAxis is a signed coordinate axis.
type fbxAxis struct {
	axis math.Axis
	sign float32
}

func parseFBXAxis(s string) (fbxAxis, error) {
	sign := float32(1)
	name := s
	if strings.HasPrefix(s, "-") {
		sign, name = -1, s[1:]
	}
	a, ok := math.ParseAxis(name)
	if !ok {
		return fbxAxis{}, fmt.Errorf("%w: %q", ErrInvalidFBXAxis, s)
	}
	return fbxAxis{axis: a, sign: sign}, nil
}

func (a fbxAxis) vector() math.Vec3 {
	return math.Vec3{}.With(a.axis, a.sign)
}

// AxisConversion returns the matrix taking source space (right X,
// forward Y, up Z) into a space with the given forward and up axes.
func AxisConversion(forward, up string) (math.Mat4, error) {
	f, err := parseFBXAxis(forward)
	if err != nil {
		return math.Mat4{}, err
	}
	u, err := parseFBXAxis(up)
	if err != nil {
		return math.Mat4{}, err
	}
	if f.axis == u.axis {
		return math.Mat4{}, fmt.Errorf("%w: forward %s and up %s share an axis", ErrInvalidFBXAxis, forward, up)
	}
	fv, uv := f.vector(), u.vector()
	return math.Basis(fv.Cross(uv), fv, uv), nil
}

// WriteFBX writes models as an ASCII FBX 7.4 scene. Each model's world
// transform, the axis conversion and the scale are baked into its
// vertices, so every model node carries an identity local transform.
// Normals and every UV layer are written per polygon vertex.
func WriteFBX(w io.Writer, models []FBXModel, opts FBXOptions) error {
	if len(models) == 0 {
		return ErrEmptyFBXScene
	}
	conv, err := AxisConversion(opts.Forward, opts.Up)
	if err != nil {
		return err
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	conv = math.Scale(math.Vec3{X: scale, Y: scale, Z: scale}).Mul(conv)

	creator := opts.Creator
	if creator == "" {
		creator = "assetforge"
	}

	fw := &fbxWriter{w: bufio.NewWriter(w)}
	fw.header(creator)
	fw.globalSettings(opts.Forward, opts.Up)
	fw.definitions(len(models))

	fw.open("Objects")
	for i, model := range models {
		fw.geometry(fbxGeometryID(i), model, conv.Mul(model.World))
		fw.model(fbxModelID(i), model.Name)
	}
	fw.close()

	fw.open("Connections")
	for i := range models {
		fw.line(`C: "OO",%d,0`, fbxModelID(i))
		fw.line(`C: "OO",%d,%d`, fbxGeometryID(i), fbxModelID(i))
	}
	fw.close()

	if fw.err != nil {
		return fw.err
	}
	return fw.w.Flush()
}

// WriteFBXFile writes an FBX scene to disk.
func WriteFBXFile(path string, models []FBXModel, opts FBXOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating FBX file: %w", err)
	}
	if err := WriteFBX(f, models, opts); err != nil {
		f.Close()
		return fmt.Errorf("writing FBX file: %w", err)
	}
	return f.Close()
}

func fbxGeometryID(i int) int64 { return 1000000 + int64(i)*2 }
func fbxModelID(i int) int64    { return 1000001 + int64(i)*2 }

type fbxWriter struct {
	w      *bufio.Writer
	indent int
	err    error
}

func (fw *fbxWriter) line(format string, args ...any) {
	if fw.err != nil {
		return
	}
	_, fw.err = fmt.Fprintf(fw.w, "%s%s\n", strings.Repeat("\t", fw.indent), fmt.Sprintf(format, args...))
}

func (fw *fbxWriter) open(format string, args ...any) {
	fw.line("%s:  {", fmt.Sprintf(format, args...))
	fw.indent++
}

// openValue starts a node that carries a value, e.g. ObjectType: "Model".
func (fw *fbxWriter) openValue(name, value string) {
	fw.line("%s: %s {", name, value)
	fw.indent++
}

func (fw *fbxWriter) close() {
	fw.indent--
	fw.line("}")
}

func (fw *fbxWriter) header(creator string) {
	fw.line("; FBX 7.4.0 project file")
	fw.line("; ----------------------------------------------------")
	fw.line("")
	fw.open("FBXHeaderExtension")
	fw.line("FBXHeaderVersion: 1003")
	fw.line("FBXVersion: %d", FBXVersion)
	fw.line("Creator: %q", creator)
	fw.close()
	fw.line("Creator: %q", creator)
}

func (fw *fbxWriter) globalSettings(forward, up string) {
	// Errors were caught by AxisConversion.
	f, _ := parseFBXAxis(forward)
	u, _ := parseFBXAxis(up)
	right := f.vector().Cross(u.vector())
	r := fbxAxis{axis: math.AxisX, sign: right.X}
	switch {
	case right.Y != 0:
		r = fbxAxis{axis: math.AxisY, sign: right.Y}
	case right.Z != 0:
		r = fbxAxis{axis: math.AxisZ, sign: right.Z}
	}

	fw.open("GlobalSettings")
	fw.line("Version: 1000")
	fw.open("Properties70")
	fw.line(`P: "UpAxis", "int", "Integer", "",%d`, int(u.axis))
	fw.line(`P: "UpAxisSign", "int", "Integer", "",%d`, int(u.sign))
	fw.line(`P: "FrontAxis", "int", "Integer", "",%d`, int(f.axis))
	fw.line(`P: "FrontAxisSign", "int", "Integer", "",%d`, int(f.sign))
	fw.line(`P: "CoordAxis", "int", "Integer", "",%d`, int(r.axis))
	fw.line(`P: "CoordAxisSign", "int", "Integer", "",%d`, int(r.sign))
	fw.line(`P: "UnitScaleFactor", "double", "Number", "",1`)
	fw.close()
	fw.close()
}

func (fw *fbxWriter) definitions(models int) {
	fw.open("Definitions")
	fw.line("Version: 100")
	fw.line("Count: %d", 2*models+1)
	fw.openValue("ObjectType", `"GlobalSettings"`)
	fw.line("Count: 1")
	fw.close()
	fw.openValue("ObjectType", `"Model"`)
	fw.line("Count: %d", models)
	fw.close()
	fw.openValue("ObjectType", `"Geometry"`)
	fw.line("Count: %d", models)
	fw.close()
	fw.close()
}

func (fw *fbxWriter) geometry(id int64, model FBXModel, mat math.Mat4) {
	m := model.Mesh
	faces := m.Faces()

	positions := make([]float64, 0, m.VertCount()*3)
	for i := 0; i < m.VertCount(); i++ {
		p := mat.TransformPoint(m.Vert(mesh.VertID(i)).Position)
		positions = append(positions, float64(p.X), float64(p.Y), float64(p.Z))
	}

	var indices []int64
	var normals []float64
	for _, f := range faces {
		loops := m.Face(f).Loops
		for k, l := range loops {
			idx := int64(l.Vert)
			if k == len(loops)-1 {
				// The last corner of a polygon is stored as -(index+1).
				idx = -idx - 1
			}
			indices = append(indices, idx)
			n := mat.TransformDirection(m.Vert(l.Vert).Normal).Normalize()
			normals = append(normals, float64(n.X), float64(n.Y), float64(n.Z))
		}
	}

	fw.line(`Geometry: %d, "Geometry::%s", "Mesh" {`, id, model.Name)
	fw.indent++
	fw.floatArray("Vertices", positions)
	fw.intArray("PolygonVertexIndex", indices)
	fw.line("GeometryVersion: %d", fbxGeometryVersion)

	fw.line("LayerElementNormal: 0 {")
	fw.indent++
	fw.line("Version: 101")
	fw.line(`Name: ""`)
	fw.line(`MappingInformationType: "ByPolygonVertex"`)
	fw.line(`ReferenceInformationType: "Direct"`)
	fw.floatArray("Normals", normals)
	fw.close()

	for layer, name := range m.UVLayers {
		uvs, uvIndex := fbxUVLayer(m, faces, layer)
		fw.line("LayerElementUV: %d {", layer)
		fw.indent++
		fw.line("Version: 101")
		fw.line("Name: %q", name)
		fw.line(`MappingInformationType: "ByPolygonVertex"`)
		fw.line(`ReferenceInformationType: "IndexToDirect"`)
		fw.floatArray("UV", uvs)
		fw.intArray("UVIndex", uvIndex)
		fw.close()
	}

	layers := len(m.UVLayers)
	if layers == 0 {
		layers = 1
	}
	for layer := 0; layer < layers; layer++ {
		fw.line("Layer: %d {", layer)
		fw.indent++
		fw.line("Version: 100")
		if layer == 0 {
			fw.layerElement("LayerElementNormal", 0)
		}
		if layer < len(m.UVLayers) {
			fw.layerElement("LayerElementUV", layer)
		}
		fw.close()
	}
	fw.close()
}

func (fw *fbxWriter) layerElement(kind string, index int) {
	fw.open("LayerElement")
	fw.line("Type: %q", kind)
	fw.line("TypedIndex: %d", index)
	fw.close()
}

func (fw *fbxWriter) model(id int64, name string) {
	fw.line(`Model: %d, "Model::%s", "Mesh" {`, id, name)
	fw.indent++
	fw.line("Version: %d", fbxModelVersion)
	fw.open("Properties70")
	fw.line(`P: "Lcl Translation", "Lcl Translation", "", "A",0,0,0`)
	fw.line(`P: "Lcl Rotation", "Lcl Rotation", "", "A",0,0,0`)
	fw.line(`P: "Lcl Scaling", "Lcl Scaling", "", "A",1,1,1`)
	fw.close()
	fw.line("Shading: T")
	fw.line(`Culling: "CullingOff"`)
	fw.close()
}

func (fw *fbxWriter) floatArray(name string, vals []float64) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 32)
	}
	fw.array(name, parts)
}

func (fw *fbxWriter) intArray(name string, vals []int64) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	fw.array(name, parts)
}

func (fw *fbxWriter) array(name string, parts []string) {
	fw.line("%s: *%d {", name, len(parts))
	fw.indent++
	fw.line("a: %s", strings.Join(parts, ","))
	fw.close()
}

// fbxUVLayer returns the distinct UVs of a layer in first-use order and the
// per polygon vertex index into them.
func fbxUVLayer(m *mesh.Mesh, faces []mesh.FaceID, layer int) ([]float64, []int64) {
	seen := make(map[math.Vec2]int64)
	var uvs []float64
	var index []int64
	for _, f := range faces {
		for _, l := range m.Face(f).Loops {
			uv := l.UV[layer]
			idx, ok := seen[uv]
			if !ok {
				idx = int64(len(seen))
				seen[uv] = idx
				uvs = append(uvs, float64(uv.X), float64(uv.Y))
			}
			index = append(index, idx)
		}
	}
	return uvs, index
}
