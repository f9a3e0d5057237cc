package export_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/assetforge/internal/export"
	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/internal/texture"
	"github.com/Faultbox/assetforge/internal/vertexanim"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/mesh/meshtest"
)

var errBroken = errors.New("broken exporter")

// call is what the exporter saw for one file.
type call struct {
	file     string
	selected []string
	active   string
	verts    int
	layers   []string
	frame    int
	mode     scene.Mode
}

type recorder struct {
	calls []call
	fail  map[string]bool
}

func (r *recorder) Export(sc *scene.Scene, s export.Settings) error {
	c := call{file: filepath.Base(s.FilePath), frame: sc.FrameCurrent, mode: sc.Mode()}
	for _, o := range sc.SelectedObjects() {
		c.selected = append(c.selected, o.Name)
	}
	if a := sc.Active(); a != nil {
		c.active = a.Name
		if a.Mesh != nil {
			c.verts = a.Mesh.VertCount()
			c.layers = append([]string(nil), a.Mesh.UVLayers...)
		}
	}
	r.calls = append(r.calls, c)
	if r.fail[c.file] {
		return errBroken
	}
	return nil
}

func (r *recorder) files() []string {
	var out []string
	for _, c := range r.calls {
		out = append(out, c.file)
	}
	return out
}

func exportable(name string) *scene.Object {
	obj := scene.NewMeshObject(name, meshtest.Grid(1, 1, false))
	obj.Export.EnableExport = true
	return obj
}

func newScene(t *testing.T, objs ...*scene.Object) *scene.Scene {
	t.Helper()
	sc := scene.New()
	sc.ExportPath = t.TempDir()
	for _, o := range objs {
		require.NoError(t, sc.Add(o, nil))
	}
	return sc
}

func TestJobsOrder(t *testing.T) {
	disabled := exportable("Aardvark")
	disabled.Export.EnableExport = false
	empty := scene.NewObject("A_empty", scene.TypeEmpty)
	empty.Export.EnableExport = true

	sc := newScene(t, exportable("C"), exportable("b"), exportable("a"), exportable("B"), disabled, empty)
	o := export.New(sc, &recorder{}, export.Options{})

	var names []string
	for _, j := range o.Jobs() {
		names = append(names, j.Object.Name)
	}
	assert.Equal(t, []string{"a", "B", "b", "C"}, names)

	o.Options.AllowedTypes = []scene.ObjectType{scene.TypeMesh, scene.TypeEmpty}
	assert.Len(t, o.Jobs(), 5)
}

func TestRunExportsOneFilePerObject(t *testing.T) {
	other := scene.NewObject("Camera", scene.TypeCamera)
	other.Selected = true
	sc := newScene(t, exportable("C"), exportable("a"), exportable("B"), other)
	require.NoError(t, sc.SetActive(other))
	sc.SetFrame(42)

	rec := &recorder{}
	rep, err := export.New(sc, rec, export.Options{}).Run()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.fbx", "B.fbx", "C.fbx"}, rec.files())
	for _, c := range rec.calls {
		name := strings.TrimSuffix(c.file, ".fbx")
		assert.Equal(t, []string{name}, c.selected)
		assert.Equal(t, name, c.active)
		assert.Equal(t, 0, c.frame)
		assert.Equal(t, scene.ModeObject, c.mode)
	}
	assert.Equal(t, []string{"a", "B", "C"}, rep.Exported)
	assert.Len(t, rep.Files, 3)
	assert.Empty(t, rep.Failed)
	assert.NotEqual(t, uuid.Nil, rep.RunID)

	// Ambient state is back.
	assert.Equal(t, 42, sc.FrameCurrent)
	assert.Equal(t, other, sc.Active())
	assert.Equal(t, []*scene.Object{other}, sc.SelectedObjects())
}

func TestRunCombineChild(t *testing.T) {
	body := exportable("Body")
	body.Export.CombineChild = true
	body.Location = math.Vec3{X: 5}
	hat := scene.NewMeshObject("Hat", meshtest.Grid(1, 1, false))
	hat.Location = math.Vec3{Z: 2}
	nested := scene.NewMeshObject("Feather", meshtest.Grid(1, 1, false))
	pivot := scene.NewObject("Pivot", scene.TypeEmpty)

	sc := newScene(t, body)
	require.NoError(t, sc.Add(hat, body))
	require.NoError(t, sc.Add(pivot, hat))
	require.NoError(t, sc.Add(nested, pivot))

	rec := &recorder{}
	_, err := export.New(sc, rec, export.Options{}).Run()
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "Body", rec.calls[0].active)
	assert.Equal(t, 12, rec.calls[0].verts)

	// The temporary object is gone and the original keeps its name.
	assert.Len(t, sc.Objects(), 4)
	assert.Equal(t, body, sc.Object("Body"))
}

func TestCombineUsesParentSpace(t *testing.T) {
	sc := scene.New()
	body := scene.NewMeshObject("Body", meshtest.Grid(1, 1, false))
	body.Location = math.Vec3{X: 5}
	hat := scene.NewMeshObject("Hat", meshtest.Grid(1, 1, false))
	hat.Location = math.Vec3{Z: 2}
	require.NoError(t, sc.Add(body, nil))
	require.NoError(t, sc.Add(hat, body))

	m, err := export.Combine(body, 0)
	require.NoError(t, err)
	require.Equal(t, 8, m.VertCount())
	assert.Equal(t, 2, m.FaceCount())

	p := m.Vert(mesh.VertID(4 + 3)).Position
	assert.InDelta(t, 1, p.X, 1e-5)
	assert.InDelta(t, 1, p.Y, 1e-5)
	assert.InDelta(t, 2, p.Z, 1e-5)
}

func TestRunVertexAnimation(t *testing.T) {
	flag := exportable("Flag")
	flag.Export.VertexAnimation = true
	base := make([]math.Vec3, 4)
	for i := range base {
		base[i] = flag.Mesh.Vert(mesh.VertID(i)).Position
	}
	moved := make([]math.Vec3, 4)
	for i := range moved {
		moved[i] = base[i].Add(math.Vec3{X: 1})
	}
	flag.Keys = []scene.ShapeKey{{Frame: 0, Positions: base}, {Frame: 2, Positions: moved}}

	sc := newScene(t, flag)
	sc.FrameStart, sc.FrameEnd, sc.FrameStep = 0, 3, 1
	sc.SetFrame(1)

	rec := &recorder{}
	rep, err := export.New(sc, rec, export.Options{NormalFormat: texture.FormatTGA}).Run()
	require.NoError(t, err)

	dir := sc.ExportPath
	assert.Equal(t, []string{
		filepath.Join(dir, "Flag_offsets.exr"),
		filepath.Join(dir, "Flag_normals.tga"),
		filepath.Join(dir, "Flag.fbx"),
	}, rep.Files)
	_, err = os.Stat(filepath.Join(dir, "Flag_normals.tga"))
	assert.NoError(t, err)

	offsets, err := texture.LoadEXR(filepath.Join(dir, "Flag_offsets.exr"))
	require.NoError(t, err)
	assert.Equal(t, 4, offsets.Width)
	assert.Equal(t, 3, offsets.Height)
	// Row 0 holds the last frame: +1 on X is stored in the blue channel.
	px, err := offsets.At(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, px[2], 1e-5)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "Flag", rec.calls[0].active)
	assert.Equal(t, vertexanim.LayerName, rec.calls[0].layers[1])

	assert.Equal(t, 1, sc.FrameCurrent)
	assert.Len(t, sc.Objects(), 1)
}

func TestRunAbortStopsAtFirstFailure(t *testing.T) {
	sc := newScene(t, exportable("a"), exportable("B"), exportable("C"))
	rec := &recorder{fail: map[string]bool{"B.fbx": true}}

	rep, err := export.New(sc, rec, export.Options{}).Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, []string{"a.fbx", "B.fbx"}, rec.files())
	assert.Equal(t, []string{"a"}, rep.Exported)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "B", rep.Failed[0].Name)
}

func TestRunContinueCollectsFailures(t *testing.T) {
	sc := newScene(t, exportable("a"), exportable("B"), exportable("C"))
	rec := &recorder{fail: map[string]bool{"a.fbx": true, "C.fbx": true}}

	rep, err := export.New(sc, rec, export.Options{OnError: export.Continue}).Run()
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, []string{"a.fbx", "B.fbx", "C.fbx"}, rec.files())
	assert.Equal(t, []string{"B"}, rep.Exported)
	assert.Len(t, rep.Failed, 2)
}

func TestRunRestoresStateAfterFailure(t *testing.T) {
	body := exportable("Body")
	body.Export.CombineChild = true
	sc := newScene(t, body)
	require.NoError(t, sc.Add(scene.NewMeshObject("Hat", meshtest.Grid(1, 1, false)), body))
	rec := &recorder{fail: map[string]bool{"Body.fbx": true}}

	_, err := export.New(sc, rec, export.Options{}).Run()
	require.Error(t, err)
	assert.NotErrorIs(t, err, fault.ErrCleanup)
	assert.Len(t, sc.Objects(), 2)
	assert.Equal(t, "Body", body.Name)
}

func TestRunBakeFailureIsPrecondition(t *testing.T) {
	flag := exportable("Flag")
	flag.Export.VertexAnimation = true
	sc := newScene(t, flag)
	sc.FrameStart, sc.FrameEnd = 5, 5

	rep, err := export.New(sc, &recorder{}, export.Options{}).Run()
	assert.ErrorIs(t, err, vertexanim.ErrEmptyRange)
	assert.Empty(t, rep.Exported)
}

func TestFBXExporter(t *testing.T) {
	crate := exportable("Crate")
	crate.Selected = true
	sc := newScene(t, crate, exportable("Unselected"))
	path := filepath.Join(sc.ExportPath, "sub", "Crate.fbx")

	require.NoError(t, export.FBXExporter{}.Export(sc, export.DefaultSettings(path)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, `"Model::Crate"`)
	assert.NotContains(t, doc, "Unselected")
}

func TestFBXExporterWriteMesh(t *testing.T) {
	m := vertexanim.BuildExportMesh(meshtest.Grid(1, 1, false))
	path := filepath.Join(t.TempDir(), "Flag_vertex_anim.fbx")

	require.NoError(t, export.FBXExporter{}.WriteMesh("Flag", m, export.DefaultSettings(path)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, `"Model::Flag"`)
	assert.Contains(t, doc, `Name: "vertex_anim"`)
	assert.Contains(t, doc, "LayerElementUV: 1 {")

	s := export.DefaultSettings(path)
	s.ScaleMode = "FBX_SCALE_NONE"
	assert.ErrorIs(t, export.FBXExporter{}.WriteMesh("Flag", m, s), export.ErrUnsupportedSettings)
}

func TestFBXExporterErrors(t *testing.T) {
	sc := newScene(t, exportable("Crate"))
	path := filepath.Join(sc.ExportPath, "Crate.fbx")

	err := export.FBXExporter{}.Export(sc, export.DefaultSettings(path))
	assert.ErrorIs(t, err, export.ErrNothingToExport)

	s := export.DefaultSettings(path)
	s.BakeSpaceTransform = false
	assert.ErrorIs(t, export.FBXExporter{}.Export(sc, s), export.ErrUnsupportedSettings)

	for _, mode := range []string{"FBX_SCALE_NONE", "FBX_SCALE_UNITS"} {
		s := export.DefaultSettings(path)
		s.ScaleMode = mode
		assert.ErrorIs(t, export.FBXExporter{}.Export(sc, s), export.ErrUnsupportedSettings, mode)
	}
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "rejected settings must not write a file")
}

func TestRunWithFBXExporter(t *testing.T) {
	sc := newScene(t, exportable("b"), exportable("A"))
	rep, err := export.New(sc, export.FBXExporter{}, export.Options{}).Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "b"}, rep.Exported)
	for _, name := range []string{"A.fbx", "b.fbx"} {
		_, err := os.Stat(filepath.Join(sc.ExportPath, name))
		assert.NoError(t, err, name)
	}
}
