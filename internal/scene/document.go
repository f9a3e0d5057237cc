package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// ErrInvalidDocument is returned for scene documents that do not describe
// a consistent scene.
var ErrInvalidDocument = errors.New("invalid scene document")

type document struct {
	ExportPath   string      `yaml:"export_path"`
	FrameStart   int         `yaml:"frame_start"`
	FrameEnd     int         `yaml:"frame_end"`
	FrameStep    int         `yaml:"frame_step"`
	FrameCurrent int         `yaml:"frame_current"`
	Active       string      `yaml:"active,omitempty"`
	Mode         Mode        `yaml:"mode,omitempty"`
	Objects      []objectDoc `yaml:"objects"`
}

type objectDoc struct {
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"`
	Parent   string    `yaml:"parent,omitempty"`
	Location []float32 `yaml:"location,omitempty,flow"`
	Rotation []float32 `yaml:"rotation,omitempty,flow"` // w, x, y, z
	Scale    []float32 `yaml:"scale,omitempty,flow"`
	Selected bool      `yaml:"selected,omitempty"`
	Export   exportDoc `yaml:"export,omitempty"`
	Mesh     *meshDoc  `yaml:"mesh,omitempty"`
	Keys     []keyDoc  `yaml:"shape_keys,omitempty"`
	Bones    []boneDoc `yaml:"bones,omitempty"`
}

type exportDoc struct {
	EnableExport    bool `yaml:"enable_export,omitempty"`
	CombineChild    bool `yaml:"combine_child,omitempty"`
	VertexAnimation bool `yaml:"vertex_animation,omitempty"`
}

type meshDoc struct {
	File          string       `yaml:"file,omitempty"`
	Vertices      [][]float32  `yaml:"vertices,omitempty"`
	Faces         [][]int      `yaml:"faces,omitempty"`
	UVLayers      []uvLayerDoc `yaml:"uv_layers,omitempty"`
	ActiveUV      int          `yaml:"active_uv,omitempty"`
	SelectedVerts []int        `yaml:"selected_verts,omitempty,flow"`
	SelectedEdges [][]int      `yaml:"selected_edges,omitempty"`
	ActiveEdge    []int        `yaml:"active_edge,omitempty,flow"`
}

// uvLayerDoc holds one UV per face corner, indexed [face][corner].
type uvLayerDoc struct {
	Name string        `yaml:"name"`
	UVs  [][][]float32 `yaml:"uvs,omitempty"`
}

type keyDoc struct {
	Frame     int         `yaml:"frame"`
	Positions [][]float32 `yaml:"positions"`
}

type boneDoc struct {
	Name        string          `yaml:"name"`
	Selected    bool            `yaml:"selected,omitempty"`
	Constraints []constraintDoc `yaml:"constraints,omitempty"`
}

type constraintDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	Mute bool   `yaml:"mute,omitempty"`
}

// Load reads a scene document. Mesh files referenced by the document are
// resolved relative to its directory.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes a scene document. baseDir resolves relative mesh files.
func Parse(data []byte, baseDir string) (*Scene, error) {
	return ParseWith(data, assets.NewManager(baseDir))
}

// ParseWith decodes a scene document, loading mesh files through am.
func ParseWith(data []byte, am *assets.Manager) (*Scene, error) {
	sc := New()
	doc := document{
		FrameStart: sc.FrameStart,
		FrameEnd:   sc.FrameEnd,
		FrameStep:  sc.FrameStep,
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	sc.ExportPath = doc.ExportPath
	sc.FrameStart = doc.FrameStart
	sc.FrameEnd = doc.FrameEnd
	sc.FrameStep = doc.FrameStep
	sc.FrameCurrent = doc.FrameCurrent

	for i := range doc.Objects {
		obj, err := buildObject(&doc.Objects[i], am)
		if err != nil {
			return nil, err
		}
		if err := sc.Add(obj, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	for _, od := range doc.Objects {
		if od.Parent == "" {
			continue
		}
		parent := sc.Object(od.Parent)
		if parent == nil {
			return nil, fmt.Errorf("%w: %q has unknown parent %q", ErrInvalidDocument, od.Name, od.Parent)
		}
		if err := sc.SetParent(sc.Object(od.Name), parent); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}

	if doc.Active != "" {
		active := sc.Object(doc.Active)
		if active == nil {
			return nil, fmt.Errorf("%w: unknown active object %q", ErrInvalidDocument, doc.Active)
		}
		sc.active = active
	}
	if doc.Mode != "" {
		if err := sc.SetMode(doc.Mode); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	return sc, nil
}

func buildObject(od *objectDoc, am *assets.Manager) (*Object, error) {
	if od.Name == "" {
		return nil, fmt.Errorf("%w: object without name", ErrInvalidDocument)
	}
	typ, ok := ParseObjectType(od.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q has unknown type %q", ErrInvalidDocument, od.Name, od.Type)
	}
	obj := NewObject(od.Name, typ)
	obj.Selected = od.Selected
	obj.Export = ExportFlags(od.Export)

	var err error
	if od.Location != nil {
		if obj.Location, err = vec3(od.Location); err != nil {
			return nil, fmt.Errorf("%q location: %w", od.Name, err)
		}
	}
	if od.Scale != nil {
		if obj.Scale, err = vec3(od.Scale); err != nil {
			return nil, fmt.Errorf("%q scale: %w", od.Name, err)
		}
	}
	if od.Rotation != nil {
		if len(od.Rotation) != 4 {
			return nil, fmt.Errorf("%w: %q rotation needs 4 values", ErrInvalidDocument, od.Name)
		}
		r := od.Rotation
		obj.Rotation = math.Quat{W: r[0], X: r[1], Y: r[2], Z: r[3]}
	}

	if od.Mesh != nil {
		if obj.Mesh, obj.ActiveEdge, err = buildMesh(od.Name, od.Mesh, am); err != nil {
			return nil, err
		}
	}

	for _, kd := range od.Keys {
		key := ShapeKey{Frame: kd.Frame, Positions: make([]math.Vec3, len(kd.Positions))}
		for i, p := range kd.Positions {
			if key.Positions[i], err = vec3(p); err != nil {
				return nil, fmt.Errorf("%q shape key %d: %w", od.Name, kd.Frame, err)
			}
		}
		obj.Keys = append(obj.Keys, key)
	}

	for _, bd := range od.Bones {
		bone := &PoseBone{Name: bd.Name, Selected: bd.Selected}
		for _, cd := range bd.Constraints {
			bone.Constraints = append(bone.Constraints, &Constraint{Name: cd.Name, Type: cd.Type, Mute: cd.Mute})
		}
		obj.Bones = append(obj.Bones, bone)
	}
	return obj, nil
}

func buildMesh(name string, md *meshDoc, am *assets.Manager) (*mesh.Mesh, mesh.EdgeID, error) {
	var m *mesh.Mesh
	if md.File != "" {
		var err error
		if m, err = am.LoadMesh(md.File); err != nil {
			return nil, mesh.NoEdge, fmt.Errorf("%q mesh: %w", name, err)
		}
		m.Name = name
	} else {
		m = mesh.New(name)
		for _, p := range md.Vertices {
			v, err := vec3(p)
			if err != nil {
				return nil, mesh.NoEdge, fmt.Errorf("%q vertex: %w", name, err)
			}
			m.AddVertex(v)
		}
		for _, layer := range md.UVLayers {
			m.AddUVLayer(layer.Name)
		}
		for fi, face := range md.Faces {
			verts := make([]mesh.VertID, len(face))
			for k, v := range face {
				verts[k] = mesh.VertID(v)
			}
			uvs := make([][]math.Vec2, len(md.UVLayers))
			for li, layer := range md.UVLayers {
				if fi >= len(layer.UVs) {
					continue
				}
				for _, uv := range layer.UVs[fi] {
					if len(uv) != 2 {
						return nil, mesh.NoEdge, fmt.Errorf("%w: %q uv needs 2 values", ErrInvalidDocument, name)
					}
					uvs[li] = append(uvs[li], math.Vec2{X: uv[0], Y: uv[1]})
				}
			}
			if _, err := m.AddFace(verts, uvs...); err != nil {
				return nil, mesh.NoEdge, fmt.Errorf("%q face %d: %w", name, fi, err)
			}
		}
		m.ComputeNormals()
	}
	if md.ActiveUV < 0 || (md.ActiveUV > 0 && md.ActiveUV >= len(m.UVLayers)) {
		return nil, mesh.NoEdge, fmt.Errorf("%w: %q active uv %d out of range", ErrInvalidDocument, name, md.ActiveUV)
	}
	m.ActiveUV = md.ActiveUV

	for _, v := range md.SelectedVerts {
		if v < 0 || v >= m.VertCount() {
			return nil, mesh.NoEdge, fmt.Errorf("%w: %q selected vertex %d", ErrInvalidDocument, name, v)
		}
		m.Vert(mesh.VertID(v)).Selected = true
	}
	for _, pair := range md.SelectedEdges {
		e, err := findEdge(m, pair)
		if err != nil {
			return nil, mesh.NoEdge, fmt.Errorf("%q selected edge: %w", name, err)
		}
		m.SelectEdge(e)
	}
	active := mesh.NoEdge
	if md.ActiveEdge != nil {
		e, err := findEdge(m, md.ActiveEdge)
		if err != nil {
			return nil, mesh.NoEdge, fmt.Errorf("%q active edge: %w", name, err)
		}
		active = e
	}
	return m, active, nil
}

func findEdge(m *mesh.Mesh, pair []int) (mesh.EdgeID, error) {
	if len(pair) != 2 {
		return mesh.NoEdge, fmt.Errorf("%w: edge needs 2 vertices", ErrInvalidDocument)
	}
	e := m.FindEdge(mesh.VertID(pair[0]), mesh.VertID(pair[1]))
	if e == mesh.NoEdge {
		return mesh.NoEdge, fmt.Errorf("%w: no edge %d-%d", ErrInvalidDocument, pair[0], pair[1])
	}
	return e, nil
}

func vec3(p []float32) (math.Vec3, error) {
	if len(p) != 3 {
		return math.Vec3{}, fmt.Errorf("%w: expected 3 values, got %d", ErrInvalidDocument, len(p))
	}
	return math.Vec3{X: p[0], Y: p[1], Z: p[2]}, nil
}

// Marshal encodes the scene as a YAML document. Meshes are always written
// inline, without removed elements.
func Marshal(sc *Scene) ([]byte, error) {
	doc := document{
		ExportPath:   sc.ExportPath,
		FrameStart:   sc.FrameStart,
		FrameEnd:     sc.FrameEnd,
		FrameStep:    sc.FrameStep,
		FrameCurrent: sc.FrameCurrent,
		Mode:         sc.mode,
	}
	if sc.active != nil {
		doc.Active = sc.active.Name
	}
	for _, obj := range sc.objects {
		doc.Objects = append(doc.Objects, objectDocument(obj))
	}
	return yaml.Marshal(&doc)
}

// Save writes the scene document to path.
func Save(sc *Scene, path string) error {
	data, err := Marshal(sc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func objectDocument(obj *Object) objectDoc {
	r := obj.Rotation
	od := objectDoc{
		Name:     obj.Name,
		Type:     string(obj.Type),
		Location: floats(obj.Location),
		Rotation: []float32{r.W, r.X, r.Y, r.Z},
		Scale:    floats(obj.Scale),
		Selected: obj.Selected,
		Export:   exportDoc(obj.Export),
	}
	if obj.parent != nil {
		od.Parent = obj.parent.Name
	}
	if obj.Mesh != nil {
		od.Mesh = meshDocument(obj.Mesh, obj.ActiveEdge)
	}
	for _, k := range obj.Keys {
		kd := keyDoc{Frame: k.Frame}
		for _, p := range k.Positions {
			kd.Positions = append(kd.Positions, floats(p))
		}
		od.Keys = append(od.Keys, kd)
	}
	for _, b := range obj.Bones {
		bd := boneDoc{Name: b.Name, Selected: b.Selected}
		for _, c := range b.Constraints {
			bd.Constraints = append(bd.Constraints, constraintDoc{Name: c.Name, Type: c.Type, Mute: c.Mute})
		}
		od.Bones = append(od.Bones, bd)
	}
	return od
}

func meshDocument(m *mesh.Mesh, active mesh.EdgeID) *meshDoc {
	md := &meshDoc{ActiveUV: m.ActiveUV}
	for i := 0; i < m.VertCount(); i++ {
		v := m.Vert(mesh.VertID(i))
		md.Vertices = append(md.Vertices, floats(v.Position))
		if v.Selected {
			md.SelectedVerts = append(md.SelectedVerts, i)
		}
	}
	for _, name := range m.UVLayers {
		md.UVLayers = append(md.UVLayers, uvLayerDoc{Name: name})
	}
	for _, fid := range m.Faces() {
		f := m.Face(fid)
		verts := make([]int, f.Len())
		for k, l := range f.Loops {
			verts[k] = int(l.Vert)
		}
		md.Faces = append(md.Faces, verts)
		for li := range md.UVLayers {
			corners := make([][]float32, f.Len())
			for k, l := range f.Loops {
				corners[k] = []float32{l.UV[li].X, l.UV[li].Y}
			}
			md.UVLayers[li].UVs = append(md.UVLayers[li].UVs, corners)
		}
	}
	for _, e := range m.SelectedEdges() {
		v := m.Edge(e).Verts
		md.SelectedEdges = append(md.SelectedEdges, []int{int(v[0]), int(v[1])})
	}
	if m.EdgeLive(active) {
		v := m.Edge(active).Verts
		md.ActiveEdge = []int{int(v[0]), int(v[1])}
	}
	return md
}

func floats(v math.Vec3) []float32 {
	return []float32{v.X, v.Y, v.Z}
}
