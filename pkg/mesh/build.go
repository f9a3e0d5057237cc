package mesh

import (
	"fmt"

	"github.com/Faultbox/assetforge/pkg/math"
)

// AddVertex appends a vertex and returns its ID.
func (m *Mesh) AddVertex(pos math.Vec3) VertID {
	m.verts = append(m.verts, Vertex{Position: pos})
	return VertID(len(m.verts) - 1)
}

// AddUVLayer appends a UV layer and returns its index. Existing loops get a
// zero UV on the new layer.
func (m *Mesh) AddUVLayer(name string) int {
	m.UVLayers = append(m.UVLayers, name)
	for i := range m.faces {
		for j := range m.faces[i].Loops {
			m.faces[i].Loops[j].UV = append(m.faces[i].Loops[j].UV, math.Vec2{})
		}
	}
	return len(m.UVLayers) - 1
}

// EnsureUVLayers adds default-named UV layers until the mesh has at least n.
func (m *Mesh) EnsureUVLayers(n int) {
	for len(m.UVLayers) < n {
		name := "UVMap"
		if k := len(m.UVLayers); k > 0 {
			name = fmt.Sprintf("UVMap.%03d", k)
		}
		m.AddUVLayer(name)
	}
}

// AddFace creates a polygon from the given vertices, creating edges as
// needed. uvs is indexed [layer][corner]; missing layers or corners are
// zero.
func (m *Mesh) AddFace(verts []VertID, uvs ...[]math.Vec2) (FaceID, error) {
	if len(verts) < 3 {
		return NoFace, ErrDegenerate
	}

	seen := make(map[VertID]bool, len(verts))
	for _, v := range verts {
		if v < 0 || int(v) >= len(m.verts) {
			return NoFace, fmt.Errorf("%w: %d", ErrInvalidVertex, v)
		}
		if seen[v] {
			return NoFace, ErrDegenerate
		}
		seen[v] = true
	}

	// Reject before creating anything so a failed face leaves no stray edges.
	for i := range verts {
		a, b := verts[i], verts[(i+1)%len(verts)]
		if e := m.FindEdge(a, b); e != NoEdge && len(m.edges[e].faces) >= 2 {
			return NoFace, fmt.Errorf("%w: %d-%d", ErrNonManifold, a, b)
		}
	}

	id := FaceID(len(m.faces))
	face := Face{Loops: make([]Loop, len(verts))}
	for i, v := range verts {
		loop := Loop{Vert: v, UV: make([]math.Vec2, len(m.UVLayers))}
		for layer := range loop.UV {
			if layer < len(uvs) && i < len(uvs[layer]) {
				loop.UV[layer] = uvs[layer][i]
			}
		}
		face.Loops[i] = loop
	}
	m.faces = append(m.faces, face)
	m.linkFace(id)
	return id, nil
}

// ensureEdge returns the edge between a and b, creating it if needed.
func (m *Mesh) ensureEdge(a, b VertID) EdgeID {
	if e := m.FindEdge(a, b); e != NoEdge {
		return e
	}
	id := EdgeID(len(m.edges))
	m.edges = append(m.edges, Edge{Verts: [2]VertID{a, b}})
	m.lookup[makeEdgeKey(a, b)] = id
	m.verts[a].edges = append(m.verts[a].edges, id)
	m.verts[b].edges = append(m.verts[b].edges, id)
	return id
}

// linkFace rebuilds the face's edge list from its loops and registers the
// face on each edge.
func (m *Mesh) linkFace(id FaceID) {
	face := &m.faces[id]
	n := len(face.Loops)
	face.edges = make([]EdgeID, n)
	for i := 0; i < n; i++ {
		e := m.ensureEdge(face.Loops[i].Vert, face.Loops[(i+1)%n].Vert)
		face.edges[i] = e
		if !containsFace(m.edges[e].faces, id) {
			m.edges[e].faces = append(m.edges[e].faces, id)
		}
	}
}

func containsFace(faces []FaceID, id FaceID) bool {
	for _, f := range faces {
		if f == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Name:     m.Name,
		UVLayers: append([]string(nil), m.UVLayers...),
		ActiveUV: m.ActiveUV,
		verts:    make([]Vertex, len(m.verts)),
		edges:    make([]Edge, len(m.edges)),
		faces:    make([]Face, len(m.faces)),
		lookup:   make(map[edgeKey]EdgeID, len(m.lookup)),
	}
	for i, v := range m.verts {
		v.edges = append([]EdgeID(nil), v.edges...)
		c.verts[i] = v
	}
	for i, e := range m.edges {
		e.faces = append([]FaceID(nil), e.faces...)
		c.edges[i] = e
	}
	for i, f := range m.faces {
		loops := make([]Loop, len(f.Loops))
		for j, l := range f.Loops {
			loops[j] = Loop{Vert: l.Vert, UV: append([]math.Vec2(nil), l.UV...)}
		}
		f.Loops = loops
		f.edges = append([]EdgeID(nil), f.edges...)
		c.faces[i] = f
	}
	for k, v := range m.lookup {
		c.lookup[k] = v
	}
	return c
}

// Compact returns a copy without removed elements. Vertex IDs are kept;
// edges and faces are renumbered. Edge selection is carried over.
func (m *Mesh) Compact() *Mesh {
	c := New(m.Name)
	c.ActiveUV = m.ActiveUV
	c.UVLayers = append([]string(nil), m.UVLayers...)
	for _, v := range m.verts {
		id := c.AddVertex(v.Position)
		c.verts[id].Normal = v.Normal
		c.verts[id].Selected = v.Selected
	}
	for _, fid := range m.Faces() {
		f := &m.faces[fid]
		loops := make([]Loop, len(f.Loops))
		for j, l := range f.Loops {
			loops[j] = Loop{Vert: l.Vert, UV: append([]math.Vec2(nil), l.UV...)}
		}
		c.faces = append(c.faces, Face{Loops: loops})
		c.linkFace(FaceID(len(c.faces) - 1))
	}
	for _, eid := range m.Edges() {
		e := &m.edges[eid]
		if !e.Selected {
			continue
		}
		if ne := c.FindEdge(e.Verts[0], e.Verts[1]); ne != NoEdge {
			c.edges[ne].Selected = true
		}
	}
	return c
}
