package formats

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/mesh/meshtest"
)

const quadOBJ = `# unit quad split in two
o Plane
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
s off
f 1/1/1 2/2/1 3/3/1
f -4/-4/1 -2/-2/1 -1/-1/1
`

func TestParseOBJ_ValidFile(t *testing.T) {
	m, err := ParseOBJ([]byte(quadOBJ))
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}

	if m.Name != "Plane" {
		t.Errorf("expected name Plane, got %q", m.Name)
	}
	if m.VertCount() != 4 {
		t.Errorf("expected 4 vertices, got %d", m.VertCount())
	}
	if m.FaceCount() != 2 {
		t.Errorf("expected 2 faces, got %d", m.FaceCount())
	}
	if len(m.UVLayers) != 1 || m.UVLayers[0] != "UVMap" {
		t.Errorf("expected one UVMap layer, got %v", m.UVLayers)
	}

	second := m.Face(1)
	if got := second.Verts(); got[0] != 0 || got[1] != 2 || got[2] != 3 {
		t.Errorf("negative indices resolved to %v", got)
	}
	if uv := second.Loops[2].UV[0]; uv != (math.Vec2{X: 0, Y: 1}) {
		t.Errorf("expected uv (0,1), got %v", uv)
	}
	if n := m.Vert(0).Normal; n != (math.Vec3{Z: 1}) {
		t.Errorf("expected recomputed normal +Z, got %v", n)
	}
}

func TestParseOBJ_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"short vertex", "v 1 2\n", ErrInvalidOBJLine},
		{"bad float", "v 1 x 2\n", ErrInvalidOBJLine},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n", ErrInvalidOBJIndex},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n", ErrInvalidOBJIndex},
		{"two corners", "v 0 0 0\nv 1 0 0\nf 1 2\n", ErrInvalidOBJLine},
		{"repeated corner", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 2\n", mesh.ErrDegenerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOBJ([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseOBJ_NoTexcoords(t *testing.T) {
	m, err := ParseOBJ([]byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1//1 2//1 3//1\n"))
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if len(m.UVLayers) != 0 {
		t.Errorf("expected no UV layers, got %v", m.UVLayers)
	}
	if m.Name != "untitled" {
		t.Errorf("expected default name, got %q", m.Name)
	}
}

func TestWriteOBJ_RoundTrip(t *testing.T) {
	src := meshtest.Grid(2, 2, false)
	src.Name = "Grid"

	path := filepath.Join(t.TempDir(), "grid.obj")
	if err := WriteOBJFile(path, src); err != nil {
		t.Fatalf("WriteOBJFile failed: %v", err)
	}
	got, err := ParseOBJFile(path)
	if err != nil {
		t.Fatalf("ParseOBJFile failed: %v", err)
	}

	if got.Name != "Grid" {
		t.Errorf("expected name Grid, got %q", got.Name)
	}
	if got.VertCount() != src.VertCount() || got.FaceCount() != src.FaceCount() {
		t.Fatalf("expected %s, got %s", src, got)
	}
	for i := 0; i < src.VertCount(); i++ {
		if a, b := src.Vert(mesh.VertID(i)).Position, got.Vert(mesh.VertID(i)).Position; a != b {
			t.Errorf("vertex %d: expected %v, got %v", i, a, b)
		}
	}
	wantUV, _ := src.AverageUVs(0)
	gotUV, _ := got.AverageUVs(0)
	for i := range wantUV {
		if wantUV[i] != gotUV[i] {
			t.Errorf("vertex %d uv: expected %v, got %v", i, wantUV[i], gotUV[i])
		}
	}
}

func TestWriteOBJ_WithoutUVs(t *testing.T) {
	m := mesh.New("tri")
	m.AddVertex(math.Vec3{})
	m.AddVertex(math.Vec3{X: 1})
	m.AddVertex(math.Vec3{Y: 1})
	if _, err := m.AddFace([]mesh.VertID{0, 1, 2}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteOBJ(&buf, m); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("f 1//1 2//2 3//3\n")) {
		t.Errorf("unexpected face line in:\n%s", buf.String())
	}
}
