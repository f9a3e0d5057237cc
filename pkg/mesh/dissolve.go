package mesh

import "fmt"

// DissolveEdges removes each edge and merges its two faces into one
// polygon. Vertices are never moved or merged; loop data of the surviving
// corners is preserved. The batch is applied atomically: on error the mesh
// is left unchanged. Edges whose faces were already merged into the same
// polygon by an earlier edge of the batch are skipped.
// Returns the number of edges dissolved.
func (m *Mesh) DissolveEdges(ids []EdgeID) (int, error) {
	work := m.Clone()
	dissolved := 0
	for _, e := range ids {
		if !work.EdgeLive(e) {
			return 0, fmt.Errorf("%w: edge %d removed", ErrNotDissolvable, e)
		}
		faces := work.edges[e].faces
		if len(faces) != 2 {
			return 0, fmt.Errorf("%w: edge %d has %d faces", ErrNotDissolvable, e, len(faces))
		}
		if faces[0] == faces[1] {
			continue
		}
		if err := work.joinFaces(e); err != nil {
			return 0, err
		}
		dissolved++
	}
	*m = *work
	return dissolved, nil
}

// joinFaces merges the two faces of e. The lower face ID survives.
func (m *Mesh) joinFaces(e EdgeID) error {
	fa, fb := m.edges[e].faces[0], m.edges[e].faces[1]
	if fb < fa {
		fa, fb = fb, fa
	}
	keep, drop := &m.faces[fa], &m.faces[fb]

	i := loopIndexOfEdge(keep, e)
	n1 := len(keep.Loops)
	u := keep.Loops[i].Vert
	w := keep.Loops[(i+1)%n1].Vert

	other := drop.Loops
	j := findDirected(other, w, u)
	if j < 0 {
		// Opposite winding: walk the other face backwards.
		other = reversedLoops(other)
		j = findDirected(other, w, u)
		if j < 0 {
			return fmt.Errorf("%w: edge %d not found in face %d", ErrNotDissolvable, e, fb)
		}
	}
	n2 := len(other)

	merged := make([]Loop, 0, n1+n2-2)
	for k := 0; k < n1; k++ {
		merged = append(merged, keep.Loops[(i+1+k)%n1])
	}
	for k := 2; k < n2; k++ {
		merged = append(merged, other[(j+k)%n2])
	}

	seen := make(map[VertID]bool, len(merged))
	for _, l := range merged {
		if seen[l.Vert] {
			return fmt.Errorf("%w: dissolving edge %d would repeat vertex %d", ErrDegenerate, e, l.Vert)
		}
		seen[l.Vert] = true
	}

	// Detach both faces, drop the edge, then relink the merged face.
	for _, fe := range keep.edges {
		m.edges[fe].faces = removeFace(m.edges[fe].faces, fa)
	}
	for _, fe := range drop.edges {
		m.edges[fe].faces = removeFace(m.edges[fe].faces, fb)
	}
	m.removeEdge(e)

	drop.removed = true
	drop.Loops = nil
	drop.edges = nil

	keep.Loops = merged
	m.linkFace(fa)
	return nil
}

func (m *Mesh) removeEdge(e EdgeID) {
	edge := &m.edges[e]
	edge.removed = true
	edge.Selected = false
	edge.faces = nil
	delete(m.lookup, makeEdgeKey(edge.Verts[0], edge.Verts[1]))
	for _, v := range edge.Verts {
		m.verts[v].edges = removeEdgeID(m.verts[v].edges, e)
	}
}

func loopIndexOfEdge(f *Face, e EdgeID) int {
	for i, fe := range f.edges {
		if fe == e {
			return i
		}
	}
	return -1
}

// findDirected returns the loop index k with loops[k]=from and
// loops[k+1]=to, or -1.
func findDirected(loops []Loop, from, to VertID) int {
	n := len(loops)
	for k := 0; k < n; k++ {
		if loops[k].Vert == from && loops[(k+1)%n].Vert == to {
			return k
		}
	}
	return -1
}

func reversedLoops(loops []Loop) []Loop {
	out := make([]Loop, len(loops))
	for i, l := range loops {
		out[len(loops)-1-i] = l
	}
	return out
}

func removeFace(faces []FaceID, id FaceID) []FaceID {
	out := faces[:0]
	for _, f := range faces {
		if f != id {
			out = append(out, f)
		}
	}
	return out
}

func removeEdgeID(edges []EdgeID, id EdgeID) []EdgeID {
	out := edges[:0]
	for _, e := range edges {
		if e != id {
			out = append(out, e)
		}
	}
	return out
}
