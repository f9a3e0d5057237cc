package scene_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/mesh/meshtest"
)

func TestAddRejectsDuplicateNames(t *testing.T) {
	sc := scene.New()
	require.NoError(t, sc.Add(scene.NewObject("Cube", scene.TypeMesh), nil))

	err := sc.Add(scene.NewObject("Cube", scene.TypeEmpty), nil)
	assert.ErrorIs(t, err, scene.ErrDuplicateName)
	assert.Len(t, sc.Objects(), 1)
}

func TestParenting(t *testing.T) {
	sc := scene.New()
	root := scene.NewObject("Root", scene.TypeEmpty)
	child := scene.NewObject("Child", scene.TypeMesh)
	grandchild := scene.NewObject("Grandchild", scene.TypeMesh)
	require.NoError(t, sc.Add(root, nil))
	require.NoError(t, sc.Add(child, root))
	require.NoError(t, sc.Add(grandchild, child))

	assert.Equal(t, []*scene.Object{child, grandchild}, root.Descendants())
	assert.ErrorIs(t, sc.SetParent(root, grandchild), scene.ErrParentCycle)

	root.Location = math.Vec3{X: 1}
	child.Location = math.Vec3{Y: 2}
	p := grandchild.WorldMatrix().TransformPoint(math.Vec3{})
	assert.Equal(t, math.Vec3{X: 1, Y: 2}, p)

	require.NoError(t, sc.Remove(child))
	assert.Nil(t, grandchild.Parent())
	assert.Empty(t, root.Children())
}

func TestSetMode(t *testing.T) {
	sc := scene.New()
	arm := scene.NewObject("Armature", scene.TypeArmature)
	require.NoError(t, sc.Add(arm, nil))

	assert.ErrorIs(t, sc.SetMode(scene.ModePose), fault.ErrPrecondition)

	require.NoError(t, sc.SetActive(arm))
	require.NoError(t, sc.SetMode(scene.ModePose))
	assert.ErrorIs(t, sc.SetMode(scene.ModeEdit), scene.ErrModeChange)
	assert.Equal(t, scene.ModePose, sc.Mode())
}

func TestEvaluateShapeKeys(t *testing.T) {
	obj := scene.NewMeshObject("Plane", meshtest.Grid(1, 1, false))
	base := make([]math.Vec3, 4)
	raised := make([]math.Vec3, 4)
	for i := range base {
		base[i] = obj.Mesh.Vert(mesh.VertID(i)).Position
		raised[i] = base[i].Add(math.Vec3{Z: 2})
	}
	obj.Keys = []scene.ShapeKey{{Frame: 10, Positions: raised}, {Frame: 0, Positions: base}}

	tests := []struct {
		frame int
		z     float32
	}{
		{-5, 0},
		{0, 0},
		{5, 1},
		{10, 2},
		{20, 2},
	}
	for _, tt := range tests {
		m, err := obj.Evaluate(tt.frame)
		require.NoError(t, err)
		assert.InDelta(t, tt.z, m.Vert(2).Position.Z, 1e-6, "frame %d", tt.frame)
	}

	// The object's own mesh is untouched.
	assert.Equal(t, float32(0), obj.Mesh.Vert(2).Position.Z)
}

func TestEvaluateErrors(t *testing.T) {
	empty := scene.NewObject("Empty", scene.TypeEmpty)
	_, err := empty.Evaluate(0)
	assert.ErrorIs(t, err, scene.ErrNoMesh)

	obj := scene.NewMeshObject("Plane", meshtest.Grid(1, 1, false))
	obj.Keys = []scene.ShapeKey{{Frame: 0, Positions: make([]math.Vec3, 3)}}
	_, err = obj.Evaluate(0)
	assert.ErrorIs(t, err, fault.ErrInconsistent)
}

func TestFrameEvaluatorMovesFrame(t *testing.T) {
	sc := scene.New()
	obj := scene.NewMeshObject("Plane", meshtest.Grid(1, 1, false))
	require.NoError(t, sc.Add(obj, nil))

	_, err := scene.FrameEvaluator{Scene: sc, Object: obj}.Evaluate(7)
	require.NoError(t, err)
	assert.Equal(t, 7, sc.FrameCurrent)
}

func TestStateGuardRestores(t *testing.T) {
	sc := scene.New()
	a := scene.NewObject("A", scene.TypeArmature)
	b := scene.NewObject("B", scene.TypeMesh)
	require.NoError(t, sc.Add(a, nil))
	require.NoError(t, sc.Add(b, nil))
	a.Selected = true
	require.NoError(t, sc.SetActive(a))
	require.NoError(t, sc.SetMode(scene.ModePose))
	sc.SetFrame(12)

	guard := sc.SaveState()

	require.NoError(t, sc.SetMode(scene.ModeObject))
	sc.DeselectAll()
	b.Selected = true
	require.NoError(t, sc.SetActive(b))
	require.NoError(t, sc.Rename(a, "A.tmp"))
	sc.SetFrame(0)

	require.NoError(t, guard.Restore())
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, a, sc.Active())
	assert.Equal(t, scene.ModePose, sc.Mode())
	assert.Equal(t, []*scene.Object{a}, sc.SelectedObjects())
	assert.Equal(t, 12, sc.FrameCurrent)
}

func TestStateGuardReportsLeftovers(t *testing.T) {
	sc := scene.New()
	require.NoError(t, sc.Add(scene.NewObject("A", scene.TypeMesh), nil))
	guard := sc.SaveState()

	require.NoError(t, sc.Add(scene.NewObject("temp", scene.TypeMesh), nil))
	err := guard.Restore()
	assert.ErrorIs(t, err, fault.ErrCleanup)
}

const sceneDoc = `
export_path: out
frame_start: 0
frame_end: 4
frame_step: 2
active: Body
mode: EDIT
objects:
  - name: Body
    type: MESH
    location: [1, 0, 0]
    selected: true
    export:
      enable_export: true
      combine_child: true
    mesh:
      vertices:
        - [0, 0, 0]
        - [1, 0, 0]
        - [1, 1, 0]
        - [0, 1, 0]
      faces:
        - [0, 1, 2]
        - [0, 2, 3]
      uv_layers:
        - name: UVMap
          uvs:
            - [[0, 0], [1, 0], [1, 1]]
            - [[0, 0], [1, 1], [0, 1]]
      selected_edges:
        - [0, 1]
      active_edge: [0, 2]
  - name: Hat
    type: MESH
    parent: Body
    mesh:
      file: hat.obj
  - name: Rig
    type: ARMATURE
    bones:
      - name: spine
        selected: true
        constraints:
          - {name: IK, type: IK}
`

const hatOBJ = `o hat
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`

func TestParseDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hat.obj"), []byte(hatOBJ), 0644))
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sceneDoc), 0644))

	sc, err := scene.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "out", sc.ExportPath)
	assert.Equal(t, []int{0, 2}, mustFrames(t, sc))
	assert.Equal(t, scene.ModeEdit, sc.Mode())

	body := sc.Object("Body")
	require.NotNil(t, body)
	assert.Equal(t, body, sc.Active())
	assert.True(t, body.Export.EnableExport)
	assert.True(t, body.Export.CombineChild)
	assert.False(t, body.Export.VertexAnimation)
	assert.Equal(t, math.Vec3{X: 1}, body.Location)
	assert.Equal(t, 2, body.Mesh.FaceCount())
	assert.Len(t, body.Mesh.SelectedEdges(), 1)
	assert.Equal(t, body.Mesh.FindEdge(0, 2), body.ActiveEdge)

	hat := sc.Object("Hat")
	require.NotNil(t, hat)
	assert.Equal(t, body, hat.Parent())
	assert.Equal(t, "Hat", hat.Mesh.Name)
	assert.Equal(t, 1, hat.Mesh.FaceCount())

	rig := sc.Object("Rig")
	require.Len(t, rig.Bones, 1)
	assert.Equal(t, "IK", rig.Bones[0].Constraints[0].Name)
}

func TestParseWithSharesMeshFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hat.obj"), []byte(hatOBJ), 0644))
	doc := `
objects:
  - {name: HatA, type: MESH, mesh: {file: hat.obj}}
  - {name: HatB, type: MESH, mesh: {file: hat.obj}}
`
	am := assets.NewManager(dir)
	sc, err := scene.ParseWith([]byte(doc), am)
	require.NoError(t, err)

	a, b := sc.Object("HatA"), sc.Object("HatB")
	assert.NotSame(t, a.Mesh, b.Mesh)
	assert.Equal(t, "HatA", a.Mesh.Name)
	hits, misses := am.Cache().Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func mustFrames(t *testing.T, sc *scene.Scene) []int {
	t.Helper()
	frames, err := sc.FrameRange().Frames()
	require.NoError(t, err)
	return frames
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "objects: [\n"},
		{"unknown type", "objects:\n  - {name: A, type: BLOB}\n"},
		{"duplicate", "objects:\n  - {name: A, type: EMPTY}\n  - {name: A, type: EMPTY}\n"},
		{"unknown parent", "objects:\n  - {name: A, type: EMPTY, parent: B}\n"},
		{"unknown active", "active: B\nobjects:\n  - {name: A, type: EMPTY}\n"},
		{"missing edge", "objects:\n  - name: A\n    type: MESH\n    mesh:\n      vertices: [[0,0,0],[1,0,0],[0,1,0]]\n      faces: [[0,1,2]]\n      active_edge: [0, 5]\n"},
		{"short vector", "objects:\n  - {name: A, type: EMPTY, location: [1, 2]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scene.Parse([]byte(tt.doc), t.TempDir())
			assert.True(t, errors.Is(err, scene.ErrInvalidDocument), "got %v", err)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	sc := scene.New()
	sc.ExportPath = "exports"
	body := scene.NewMeshObject("Body", meshtest.Grid(2, 1, true))
	body.Mesh.SelectEdge(body.Mesh.FindEdge(0, 1))
	body.ActiveEdge = body.Mesh.FindEdge(1, 4)
	body.Export.VertexAnimation = true
	require.NoError(t, sc.Add(body, nil))
	require.NoError(t, sc.Add(scene.NewObject("Null", scene.TypeEmpty), body))
	require.NoError(t, sc.SetActive(body))

	path := filepath.Join(t.TempDir(), "out", "scene.yaml")
	require.NoError(t, scene.Save(sc, path))
	loaded, err := scene.Load(path)
	require.NoError(t, err)

	lb := loaded.Object("Body")
	require.NotNil(t, lb)
	assert.Equal(t, "exports", loaded.ExportPath)
	assert.True(t, lb.Export.VertexAnimation)
	assert.Equal(t, body.Mesh.FaceCount(), lb.Mesh.FaceCount())
	assert.Equal(t, body.Mesh.UVLayers, lb.Mesh.UVLayers)
	assert.Equal(t, lb.Mesh.FindEdge(1, 4), lb.ActiveEdge)
	require.Len(t, lb.Mesh.SelectedEdges(), 1)
	assert.Equal(t, lb, loaded.Object("Null").Parent())
	assert.Equal(t, lb, loaded.Active())
}
