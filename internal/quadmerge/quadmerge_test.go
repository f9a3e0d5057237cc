package quadmerge

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/pkg/mesh"
	"github.com/Faultbox/assetforge/pkg/mesh/meshtest"
)

func edge(t *testing.T, m *mesh.Mesh, a, b mesh.VertID) mesh.EdgeID {
	t.Helper()
	e := m.FindEdge(a, b)
	require.NotEqual(t, mesh.NoEdge, e, "edge %d-%d", a, b)
	return e
}

func TestSolve_TrianglePairBecomesQuad(t *testing.T) {
	// 2 --- 3
	// |   / |
	// | /   |
	// 0 --- 1
	tests := []struct {
		name   string
		locked [2]mesh.VertID
		chosen [2]mesh.VertID
	}{
		{"one open edge", [2]mesh.VertID{1, 3}, [2]mesh.VertID{0, 2}},
		{"two open edges", [2]mesh.VertID{0, 2}, [2]mesh.VertID{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meshtest.Grid(1, 1, true)
			active := edge(t, m, 0, 1)
			m.SelectEdge(active)
			m.SelectEdge(edge(t, m, tt.locked[0], tt.locked[1]))
			diag := edge(t, m, 0, 3)
			want := edge(t, m, tt.chosen[0], tt.chosen[1])

			res, err := Solve(m, active, Options{})
			require.NoError(t, err)

			assert.Equal(t, 1, res.Dissolved)
			assert.Equal(t, []mesh.EdgeID{want}, res.Selected)
			assert.False(t, m.EdgeLive(diag))
			require.Equal(t, 1, m.FaceCount())

			quad := m.Face(m.Faces()[0])
			assert.ElementsMatch(t, []mesh.VertID{0, 1, 2, 3}, quad.Verts())
			assert.NoError(t, m.Validate())
			assert.Equal(t, []mesh.EdgeID{want}, m.SelectedEdges())
		})
	}
}

func TestSolve_StripWithLockedRail(t *testing.T) {
	// Three cells along X, two rows. The bottom boundary is locked and the
	// left edge of the lower row is active.
	m := meshtest.Grid(3, 2, true)
	v := func(i, j int) mesh.VertID { return meshtest.GridVert(3, i, j) }

	for i := 0; i < 3; i++ {
		m.SelectEdge(edge(t, m, v(i, 0), v(i+1, 0)))
	}
	active := edge(t, m, v(0, 0), v(0, 1))

	res, err := Solve(m, active, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dissolved)
	require.Len(t, res.Selected, 3)
	for i := 0; i < 3; i++ {
		assert.Contains(t, res.Selected, edge(t, m, v(i, 1), v(i+1, 1)))
	}

	// Lower row is now quads; the upper row is untouched.
	assert.Equal(t, 9, m.FaceCount())
	quads := 0
	for _, f := range m.Faces() {
		if m.Face(f).Len() == 4 {
			quads++
		}
	}
	assert.Equal(t, 3, quads)
	assert.NoError(t, m.Validate())

	// Continue straight up from the top of the active edge.
	assert.Equal(t, edge(t, m, v(0, 1), v(0, 2)), res.NextActive)
}

func TestSolve_LockedEdgesAreNeverDissolved(t *testing.T) {
	m := meshtest.Grid(1, 1, true)
	active := edge(t, m, 0, 1)
	diag := edge(t, m, 0, 3)
	m.SelectEdge(active)
	m.SelectEdge(diag)

	res, err := Solve(m, active, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Dissolved)
	assert.Empty(t, res.Selected)
	assert.True(t, m.EdgeLive(diag))
	assert.Equal(t, 2, m.FaceCount())
	assert.Equal(t, mesh.NoEdge, res.NextActive)
}

func TestSolve_NoActiveEdge(t *testing.T) {
	m := meshtest.Grid(1, 1, true)
	m.SelectEdge(edge(t, m, 0, 2))

	for _, active := range []mesh.EdgeID{mesh.NoEdge, 99} {
		_, err := Solve(m, active, Options{})
		assert.ErrorIs(t, err, ErrNoActiveEdge)
		assert.ErrorIs(t, err, fault.ErrPrecondition)
	}
	assert.Equal(t, 2, m.FaceCount())
	assert.Len(t, m.SelectedEdges(), 1, "selection must be untouched")
}

func TestSolve_AmbiguousQuadFailsWithoutMutation(t *testing.T) {
	// A quad whose opposite edge is locked leaves only the two side edges
	// open, neither of which is away from the active edge.
	m := meshtest.Grid(1, 1, false)
	active := edge(t, m, 0, 1)
	m.SelectEdge(active)
	m.SelectEdge(edge(t, m, 2, 3))

	_, err := Solve(m, active, Options{})
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, fault.ErrInconsistent, fault.Kind(err))
	assert.Len(t, m.SelectedEdges(), 2)
}

func TestSolve_ReportsProgress(t *testing.T) {
	m := meshtest.Grid(1, 1, true)
	active := edge(t, m, 0, 1)
	m.SelectEdge(active)
	m.SelectEdge(edge(t, m, 1, 3))

	var out bytes.Buffer
	rep := progress.New("Tris to Quads", &out).WithInterval(0)
	_, err := Solve(m, active, Options{Progress: rep})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), " DONE\r\n"), "got %q", out.String())
}

func TestSolve_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cols := rapid.IntRange(1, 4).Draw(t, "cols")
		rows := rapid.IntRange(1, 4).Draw(t, "rows")
		m := meshtest.Grid(cols, rows, true)

		edges := m.Edges()
		active := rapid.SampledFrom(edges).Draw(t, "active")
		locked := map[mesh.EdgeID]bool{active: true}
		m.SelectEdge(active)
		for _, e := range edges {
			if rapid.Bool().Draw(t, "lock") {
				m.SelectEdge(e)
				locked[e] = true
			}
		}
		faces := m.FaceCount()

		res, err := Solve(m, active, Options{})
		if err != nil {
			if !errors.Is(err, fault.ErrInconsistent) && !errors.Is(err, mesh.ErrDegenerate) {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.FaceCount() != faces {
				t.Fatalf("failed solve changed face count from %d to %d", faces, m.FaceCount())
			}
			return
		}

		for e := range locked {
			if !m.EdgeLive(e) {
				t.Fatalf("locked edge %d was dissolved", e)
			}
		}
		for _, e := range res.Selected {
			if locked[e] {
				t.Fatalf("locked edge %d was reclassified as selected", e)
			}
		}
		if got := faces - m.FaceCount(); got != res.Dissolved {
			t.Fatalf("dissolved %d edges but lost %d faces", res.Dissolved, got)
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})
}
