// Package mesh provides an editable polygon mesh with explicit vertex, edge
// and face adjacency, per-loop UV layers and selection state.
//
// Elements are addressed by integer IDs. Removing an element tombstones its
// slot so IDs stay stable for the duration of an operation; Compact returns
// a reindexed copy.
package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/assetforge/pkg/math"
)

// Mesh errors.
var (
	ErrInvalidVertex  = errors.New("vertex index out of range")
	ErrDegenerate     = errors.New("face needs at least 3 distinct vertices")
	ErrNonManifold    = errors.New("edge already has two faces")
	ErrNotDissolvable = errors.New("edge is not shared by exactly two faces")
)

// Element IDs.
type (
	VertID int
	EdgeID int
	FaceID int
)

// Sentinel IDs for "no element".
const (
	NoVert VertID = -1
	NoEdge EdgeID = -1
	NoFace FaceID = -1
)

// Vertex is a mesh vertex.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	Selected bool

	edges []EdgeID
}

// Edge connects two vertices and is shared by one or two faces.
type Edge struct {
	Verts    [2]VertID
	Selected bool

	faces   []FaceID
	removed bool
}

// Loop is one face corner: the vertex plus one UV per UV layer.
type Loop struct {
	Vert VertID
	UV   []math.Vec2
}

// Face is a polygon described by its ordered loops. The edge between
// Loops[i] and Loops[i+1] (wrapping) is the face's i-th edge.
type Face struct {
	Loops []Loop

	edges   []EdgeID
	removed bool
}

type edgeKey [2]VertID

func makeEdgeKey(a, b VertID) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Mesh is an editable polygon mesh.
type Mesh struct {
	Name     string
	UVLayers []string
	ActiveUV int

	verts  []Vertex
	edges  []Edge
	faces  []Face
	lookup map[edgeKey]EdgeID
}

// New creates an empty mesh.
func New(name string) *Mesh {
	return &Mesh{
		Name:   name,
		lookup: make(map[edgeKey]EdgeID),
	}
}

// Len returns the number of vertices in the face.
func (f *Face) Len() int {
	return len(f.Loops)
}

// Verts returns the face's vertices in loop order.
func (f *Face) Verts() []VertID {
	ids := make([]VertID, len(f.Loops))
	for i, l := range f.Loops {
		ids[i] = l.Vert
	}
	return ids
}

// Edges returns the face's edges in loop order.
func (f *Face) Edges() []EdgeID {
	return append([]EdgeID(nil), f.edges...)
}

// Other returns the endpoint of e opposite to v.
func (e *Edge) Other(v VertID) VertID {
	if e.Verts[0] == v {
		return e.Verts[1]
	}
	return e.Verts[0]
}

// Has reports whether v is an endpoint of e.
func (e *Edge) Has(v VertID) bool {
	return e.Verts[0] == v || e.Verts[1] == v
}

// Vert returns the vertex with the given ID.
func (m *Mesh) Vert(id VertID) *Vertex {
	return &m.verts[id]
}

// Edge returns the edge with the given ID.
func (m *Mesh) Edge(id EdgeID) *Edge {
	return &m.edges[id]
}

// Face returns the face with the given ID.
func (m *Mesh) Face(id FaceID) *Face {
	return &m.faces[id]
}

// VertCount returns the number of vertices.
func (m *Mesh) VertCount() int {
	return len(m.verts)
}

// EdgeCount returns the number of live edges.
func (m *Mesh) EdgeCount() int {
	n := 0
	for i := range m.edges {
		if !m.edges[i].removed {
			n++
		}
	}
	return n
}

// FaceCount returns the number of live faces.
func (m *Mesh) FaceCount() int {
	n := 0
	for i := range m.faces {
		if !m.faces[i].removed {
			n++
		}
	}
	return n
}

// Edges returns the IDs of all live edges in ascending order.
func (m *Mesh) Edges() []EdgeID {
	ids := make([]EdgeID, 0, len(m.edges))
	for i := range m.edges {
		if !m.edges[i].removed {
			ids = append(ids, EdgeID(i))
		}
	}
	return ids
}

// Faces returns the IDs of all live faces in ascending order.
func (m *Mesh) Faces() []FaceID {
	ids := make([]FaceID, 0, len(m.faces))
	for i := range m.faces {
		if !m.faces[i].removed {
			ids = append(ids, FaceID(i))
		}
	}
	return ids
}

// EdgeLive reports whether id refers to an existing, non-removed edge.
func (m *Mesh) EdgeLive(id EdgeID) bool {
	return id >= 0 && int(id) < len(m.edges) && !m.edges[id].removed
}

// FaceLive reports whether id refers to an existing, non-removed face.
func (m *Mesh) FaceLive(id FaceID) bool {
	return id >= 0 && int(id) < len(m.faces) && !m.faces[id].removed
}

// FindEdge returns the edge between a and b, or NoEdge.
func (m *Mesh) FindEdge(a, b VertID) EdgeID {
	if id, ok := m.lookup[makeEdgeKey(a, b)]; ok {
		return id
	}
	return NoEdge
}

// EdgeFaces returns the faces using e in ascending order.
func (m *Mesh) EdgeFaces(e EdgeID) []FaceID {
	faces := append([]FaceID(nil), m.edges[e].faces...)
	sort.Slice(faces, func(i, j int) bool { return faces[i] < faces[j] })
	return faces
}

// OtherFaces returns the faces using e other than f.
func (m *Mesh) OtherFaces(e EdgeID, f FaceID) []FaceID {
	var out []FaceID
	for _, id := range m.EdgeFaces(e) {
		if id != f {
			out = append(out, id)
		}
	}
	return out
}

// VertEdges returns the live edges incident to v in ascending order.
func (m *Mesh) VertEdges(v VertID) []EdgeID {
	edges := append([]EdgeID(nil), m.verts[v].edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })
	return edges
}

// EdgesTouch reports whether a and b share at least one vertex.
func (m *Mesh) EdgesTouch(a, b EdgeID) bool {
	ea, eb := &m.edges[a], &m.edges[b]
	return eb.Has(ea.Verts[0]) || eb.Has(ea.Verts[1])
}

// EdgeVector returns the vector from the edge's first to second vertex.
func (m *Mesh) EdgeVector(e EdgeID) math.Vec3 {
	edge := &m.edges[e]
	return m.verts[edge.Verts[1]].Position.Sub(m.verts[edge.Verts[0]].Position)
}

// String returns a short summary of the mesh.
func (m *Mesh) String() string {
	return fmt.Sprintf("Mesh(%q verts=%d edges=%d faces=%d uv=%d)",
		m.Name, m.VertCount(), m.EdgeCount(), m.FaceCount(), len(m.UVLayers))
}
