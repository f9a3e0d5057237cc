package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/assetforge/pkg/math"
)

// ErrInvalidTopology is returned by Validate.
var ErrInvalidTopology = errors.New("invalid mesh topology")

// FaceNormal returns the unit normal of a face using Newell's method,
// which tolerates non-planar polygons.
func (m *Mesh) FaceNormal(f FaceID) math.Vec3 {
	return m.newell(f).Normalize()
}

func (m *Mesh) newell(f FaceID) math.Vec3 {
	loops := m.faces[f].Loops
	var n math.Vec3
	for i := range loops {
		cur := m.verts[loops[i].Vert].Position
		next := m.verts[loops[(i+1)%len(loops)].Vert].Position
		n.X += (cur.Y - next.Y) * (cur.Z + next.Z)
		n.Y += (cur.Z - next.Z) * (cur.X + next.X)
		n.Z += (cur.X - next.X) * (cur.Y + next.Y)
	}
	return n
}

// ComputeNormals recalculates vertex normals as the area-weighted mean of
// the adjacent face normals. Loose vertices keep their normal.
func (m *Mesh) ComputeNormals() {
	sums := make([]math.Vec3, len(m.verts))
	used := make([]bool, len(m.verts))
	for _, f := range m.Faces() {
		// Newell's vector has length twice the polygon area.
		n := m.newell(f)
		for _, l := range m.faces[f].Loops {
			sums[l.Vert] = sums[l.Vert].Add(n)
			used[l.Vert] = true
		}
	}
	for i := range m.verts {
		if used[i] {
			m.verts[i].Normal = sums[i].Normalize()
		}
	}
}

// Transform applies mat to all vertex positions and recomputes normals.
func (m *Mesh) Transform(mat math.Mat4) {
	for i := range m.verts {
		m.verts[i].Position = mat.TransformPoint(m.verts[i].Position)
	}
	m.ComputeNormals()
}

// Append copies every vertex and live face of other into m, transforming
// positions by mat. UV layers are matched by index; layers missing on
// either side are zero-filled.
func (m *Mesh) Append(other *Mesh, mat math.Mat4) error {
	for len(m.UVLayers) < len(other.UVLayers) {
		m.AddUVLayer(other.UVLayers[len(m.UVLayers)])
	}

	base := VertID(len(m.verts))
	for i := range other.verts {
		id := m.AddVertex(mat.TransformPoint(other.verts[i].Position))
		m.verts[id].Normal = mat.TransformDirection(other.verts[i].Normal).Normalize()
	}

	for _, fid := range other.Faces() {
		f := &other.faces[fid]
		verts := make([]VertID, len(f.Loops))
		uvs := make([][]math.Vec2, len(other.UVLayers))
		for layer := range uvs {
			uvs[layer] = make([]math.Vec2, len(f.Loops))
		}
		for i, l := range f.Loops {
			verts[i] = base + l.Vert
			for layer := range uvs {
				uvs[layer][i] = l.UV[layer]
			}
		}
		if _, err := m.AddFace(verts, uvs...); err != nil {
			return fmt.Errorf("appending face %d of %q: %w", fid, other.Name, err)
		}
	}
	return nil
}

// Validate checks the structural invariants: every live edge has one or
// two live faces, every live face has at least 3 distinct vertices and its
// edge list matches its loops.
func (m *Mesh) Validate() error {
	for _, e := range m.Edges() {
		n := len(m.edges[e].faces)
		if n < 1 || n > 2 {
			return fmt.Errorf("%w: edge %d has %d faces", ErrInvalidTopology, e, n)
		}
		for _, f := range m.edges[e].faces {
			if !m.FaceLive(f) {
				return fmt.Errorf("%w: edge %d references removed face %d", ErrInvalidTopology, e, f)
			}
		}
	}
	for _, fid := range m.Faces() {
		f := &m.faces[fid]
		if len(f.Loops) < 3 {
			return fmt.Errorf("%w: face %d has %d loops", ErrInvalidTopology, fid, len(f.Loops))
		}
		seen := make(map[VertID]bool, len(f.Loops))
		for i, l := range f.Loops {
			if seen[l.Vert] {
				return fmt.Errorf("%w: face %d repeats vertex %d", ErrInvalidTopology, fid, l.Vert)
			}
			seen[l.Vert] = true
			next := f.Loops[(i+1)%len(f.Loops)].Vert
			if e := m.FindEdge(l.Vert, next); e == NoEdge || f.edges[i] != e {
				return fmt.Errorf("%w: face %d edge %d out of sync", ErrInvalidTopology, fid, i)
			}
		}
	}
	return nil
}
