package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/assetforge/internal/config"
	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/pkg/formats"
)

const flagScene = `
export_path: out
frame_start: 1
frame_end: 3
frame_step: 1
active: Flag
objects:
  - name: Flag
    type: MESH
    selected: true
    export:
      enable_export: true
    mesh:
      vertices: [[0, 0, 0], [1, 0, 0], [1, 1, 0], [0, 1, 0]]
      faces: [[0, 1, 2, 3]]
      uv_layers:
        - name: UVMap
          uvs:
            - [[0, 0], [1, 0], [1, 1], [0, 1]]
    shape_keys:
      - frame: 1
        positions: [[0, 0, 0], [1, 0, 0], [1, 1, 0], [0, 1, 0]]
      - frame: 2
        positions: [[0, 0, 1], [1, 0, 1], [1, 1, 1], [0, 1, 1]]
  - name: Rig
    type: ARMATURE
    selected: true
    bones:
      - name: spine
        constraints:
          - {name: IK, type: IK}
`

// setup installs a default config without progress output and writes the
// test scene into a temp dir.
func setup(t *testing.T) string {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	cfg.Progress.Enabled = false
	t.Cleanup(func() { cfg = prev })

	path := filepath.Join(t.TempDir(), "flag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(flagScene), 0644))
	return path
}

func TestBakeKeepsLookupLayer(t *testing.T) {
	path := setup(t)
	out := filepath.Join(filepath.Dir(path), "baked")

	require.NoError(t, cmdBake([]string{"-out", out, path}))

	img, err := formats.ParseEXRFile(filepath.Join(out, "Flag_offsets.exr"))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 2, img.Height)

	_, err = os.Stat(filepath.Join(out, "Flag_normals.webp"))
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "Flag_vertex_anim.fbx"))
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, `Name: "UVMap"`)
	assert.Contains(t, doc, `Name: "vertex_anim"`)
	assert.Contains(t, doc, "LayerElementUV: 1 {")
	// Vertex i samples column (i+0.5)/4 at v = 128/255.
	assert.Contains(t, doc, "a: 0.125,0.5019608,0.375,0.5019608,0.625,0.5019608,0.875,0.5019608")

	_, err = os.Stat(filepath.Join(out, "Flag_vertex_anim.obj"))
	assert.True(t, os.IsNotExist(err), "the lookup layer cannot be stored as OBJ")
}

func TestExportUsesSceneRelativePath(t *testing.T) {
	path := setup(t)

	require.NoError(t, cmdExport([]string{path}))

	_, err := os.Stat(filepath.Join(filepath.Dir(path), "out", "Flag.fbx"))
	assert.NoError(t, err)
}

func TestConstraintsWritesOutput(t *testing.T) {
	path := setup(t)
	out := filepath.Join(filepath.Dir(path), "muted.yaml")

	require.NoError(t, cmdConstraints([]string{"mute", "-o", out, path}))

	sc, err := scene.Load(out)
	require.NoError(t, err)
	rig := sc.Object("Rig")
	require.NotNil(t, rig)
	assert.True(t, rig.Bones[0].Constraints[0].Mute)

	orig, err := scene.Load(path)
	require.NoError(t, err)
	assert.False(t, orig.Object("Rig").Bones[0].Constraints[0].Mute, "input scene must be untouched")
}

func TestConfigInit(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("APPDATA", dir)

	require.NoError(t, cmdConfig([]string{"init"}))
	_, err := os.Stat(config.DefaultPath())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPath(), cfg.Source())

	assert.Error(t, cmdConfig([]string{"init"}), "existing file needs -force")
	assert.NoError(t, cmdConfig([]string{"init", "-force"}))

	custom := filepath.Join(dir, "project", config.FileName)
	require.NoError(t, cmdConfig([]string{"init", "-o", custom}))
	_, err = os.Stat(custom)
	assert.NoError(t, err)

	assert.NoError(t, cmdConfig([]string{"show"}))
	assert.Error(t, cmdConfig([]string{"edit"}))
}
