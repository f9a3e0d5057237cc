package vertexanim

import (
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// Snapshot is the evaluated geometry of one frame. It is immutable once
// captured.
type Snapshot struct {
	frame     int
	positions []math.Vec3
	normals   []math.Vec3
}

// Capture copies the vertex positions and normals of m.
func Capture(frame int, m *mesh.Mesh) *Snapshot {
	s := &Snapshot{
		frame:     frame,
		positions: make([]math.Vec3, m.VertCount()),
		normals:   make([]math.Vec3, m.VertCount()),
	}
	for i := range s.positions {
		v := m.Vert(mesh.VertID(i))
		s.positions[i] = v.Position
		s.normals[i] = v.Normal
	}
	return s
}

// Frame returns the frame number the snapshot was taken at.
func (s *Snapshot) Frame() int { return s.frame }

// VertexCount returns the number of captured vertices.
func (s *Snapshot) VertexCount() int { return len(s.positions) }

// Position returns the position of vertex i.
func (s *Snapshot) Position(i int) math.Vec3 { return s.positions[i] }

// Normal returns the normal of vertex i.
func (s *Snapshot) Normal(i int) math.Vec3 { return s.normals[i] }
