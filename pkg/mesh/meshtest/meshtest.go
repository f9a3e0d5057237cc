// Package meshtest builds small meshes for tests.
package meshtest

import (
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// GridVert returns the vertex ID at column i, row j of a grid built by
// Grid with the given column count.
func GridVert(cols, i, j int) mesh.VertID {
	return mesh.VertID(j*(cols+1) + i)
}

// Grid builds a flat cols x rows grid in the XY plane with unit spacing and
// one UV layer mapping the grid onto [0,1]². When triangulate is set, every
// cell is split along its (i,j)-(i+1,j+1) diagonal.
func Grid(cols, rows int, triangulate bool) *mesh.Mesh {
	m := mesh.New("grid")
	m.AddUVLayer("UVMap")

	uv := make([]math.Vec2, 0, (cols+1)*(rows+1))
	for j := 0; j <= rows; j++ {
		for i := 0; i <= cols; i++ {
			m.AddVertex(math.Vec3{X: float32(i), Y: float32(j)})
			uv = append(uv, math.Vec2{X: float32(i) / float32(cols), Y: float32(j) / float32(rows)})
		}
	}

	add := func(verts ...mesh.VertID) {
		uvs := make([]math.Vec2, len(verts))
		for k, v := range verts {
			uvs[k] = uv[v]
		}
		if _, err := m.AddFace(verts, uvs); err != nil {
			panic(err)
		}
	}

	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			a := GridVert(cols, i, j)
			b := GridVert(cols, i+1, j)
			c := GridVert(cols, i+1, j+1)
			d := GridVert(cols, i, j+1)
			if triangulate {
				add(a, b, c)
				add(a, c, d)
			} else {
				add(a, b, c, d)
			}
		}
	}
	m.ComputeNormals()
	return m
}
