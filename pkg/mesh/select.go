package mesh

import "github.com/Faultbox/assetforge/pkg/math"

// DeselectAll clears the selection flag on every vertex and edge.
func (m *Mesh) DeselectAll() {
	for i := range m.verts {
		m.verts[i].Selected = false
	}
	for i := range m.edges {
		m.edges[i].Selected = false
	}
}

// SelectEdge sets the selection flag on an edge and its two vertices.
func (m *Mesh) SelectEdge(e EdgeID) {
	edge := &m.edges[e]
	edge.Selected = true
	m.verts[edge.Verts[0]].Selected = true
	m.verts[edge.Verts[1]].Selected = true
}

// SelectedEdges returns the selected live edges in ascending order.
func (m *Mesh) SelectedEdges() []EdgeID {
	var out []EdgeID
	for _, e := range m.Edges() {
		if m.edges[e].Selected {
			out = append(out, e)
		}
	}
	return out
}

// SelectedVerts returns the selected vertices in ascending order.
func (m *Mesh) SelectedVerts() []VertID {
	var out []VertID
	for i := range m.verts {
		if m.verts[i].Selected {
			out = append(out, VertID(i))
		}
	}
	return out
}

// AverageUVs returns, for every vertex, the mean UV of all loops using it
// on the given layer. ok[v] is false for vertices without loops.
func (m *Mesh) AverageUVs(layer int) (uvs []math.Vec2, ok []bool) {
	sums := make([]math.Vec2, len(m.verts))
	counts := make([]int, len(m.verts))
	for _, fid := range m.Faces() {
		for _, l := range m.faces[fid].Loops {
			sums[l.Vert] = sums[l.Vert].Add(l.UV[layer])
			counts[l.Vert]++
		}
	}

	uvs = make([]math.Vec2, len(m.verts))
	ok = make([]bool, len(m.verts))
	for i, n := range counts {
		if n == 0 {
			continue
		}
		uvs[i] = sums[i].Scale(1 / float32(n))
		ok[i] = true
	}
	return uvs, ok
}
