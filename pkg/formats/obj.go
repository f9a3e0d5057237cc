package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// OBJ format errors.
var (
	ErrInvalidOBJLine  = errors.New("invalid OBJ line")
	ErrInvalidOBJIndex = errors.New("OBJ index out of range")
)

// ParseOBJ parses a Wavefront OBJ file into a mesh. Positions and texture
// coordinates are read; vertex normals are recomputed from the faces.
// Materials, groups and smoothing directives are ignored. The first "o"
// statement names the mesh.
func ParseOBJ(data []byte) (*mesh.Mesh, error) {
	m := mesh.New("")
	var texcoords []math.Vec2

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		ident, args := fields[0], fields[1:]

		switch ident {
		case "o":
			if m.Name == "" && len(args) > 0 {
				m.Name = strings.Join(args, " ")
			}
		case "v":
			vals, err := parseFloats(args, 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			m.AddVertex(math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]})
		case "vt":
			vals, err := parseFloats(args, 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			texcoords = append(texcoords, math.Vec2{X: vals[0], Y: vals[1]})
		case "f":
			if err := parseOBJFace(m, args, texcoords); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}

	if m.Name == "" {
		m.Name = "untitled"
	}
	m.ComputeNormals()
	return m, nil
}

// ParseOBJFile parses an OBJ file from disk.
func ParseOBJFile(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}

func parseFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidOBJLine, n, len(args))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOBJLine, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseOBJFace handles "f v", "f v/vt", "f v//vn" and "f v/vt/vn" corners,
// including negative (relative) indices.
func parseOBJFace(m *mesh.Mesh, args []string, texcoords []math.Vec2) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: face with %d corners", ErrInvalidOBJLine, len(args))
	}

	verts := make([]mesh.VertID, len(args))
	uvs := make([]math.Vec2, len(args))
	hasUV := false
	for i, corner := range args {
		parts := strings.Split(corner, "/")

		v, err := resolveOBJIndex(parts[0], m.VertCount())
		if err != nil {
			return err
		}
		verts[i] = mesh.VertID(v)

		if len(parts) > 1 && parts[1] != "" {
			t, err := resolveOBJIndex(parts[1], len(texcoords))
			if err != nil {
				return err
			}
			uvs[i] = texcoords[t]
			hasUV = true
		}
	}

	if hasUV && len(m.UVLayers) == 0 {
		m.AddUVLayer("UVMap")
	}
	if _, err := m.AddFace(verts, uvs); err != nil {
		return err
	}
	return nil
}

// resolveOBJIndex converts a 1-based or negative OBJ index into a 0-based one.
func resolveOBJIndex(s string, count int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidOBJLine, err)
	}
	switch {
	case idx > 0:
		idx--
	case idx < 0:
		idx += count
	default:
		return 0, fmt.Errorf("%w: 0", ErrInvalidOBJIndex)
	}
	if idx < 0 || idx >= count {
		return 0, fmt.Errorf("%w: %s", ErrInvalidOBJIndex, s)
	}
	return idx, nil
}

// WriteOBJ writes the mesh's live faces with positions, normals and the
// active UV layer. OBJ holds a single UV set; other layers are dropped.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# assetforge\no %s\n", m.Name)
	for i := 0; i < m.VertCount(); i++ {
		p := m.Vert(mesh.VertID(i)).Position
		fmt.Fprintf(bw, "v %s %s %s\n", fmtFloat(p.X), fmtFloat(p.Y), fmtFloat(p.Z))
	}
	for i := 0; i < m.VertCount(); i++ {
		n := m.Vert(mesh.VertID(i)).Normal
		fmt.Fprintf(bw, "vn %s %s %s\n", fmtFloat(n.X), fmtFloat(n.Y), fmtFloat(n.Z))
	}

	layer := -1
	if len(m.UVLayers) > 0 {
		layer = m.ActiveUV
		if layer < 0 || layer >= len(m.UVLayers) {
			layer = 0
		}
	}

	faces := m.Faces()
	if layer >= 0 {
		for _, f := range faces {
			for _, l := range m.Face(f).Loops {
				fmt.Fprintf(bw, "vt %s %s\n", fmtFloat(l.UV[layer].X), fmtFloat(l.UV[layer].Y))
			}
		}
	}

	vt := 1
	for _, f := range faces {
		bw.WriteString("f")
		for _, l := range m.Face(f).Loops {
			v := int(l.Vert) + 1
			if layer >= 0 {
				fmt.Fprintf(bw, " %d/%d/%d", v, vt, v)
				vt++
			} else {
				fmt.Fprintf(bw, " %d//%d", v, v)
			}
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteOBJFile writes the mesh to an OBJ file on disk.
func WriteOBJFile(path string, m *mesh.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating OBJ file: %w", err)
	}
	if err := WriteOBJ(f, m); err != nil {
		f.Close()
		return fmt.Errorf("writing OBJ file: %w", err)
	}
	return f.Close()
}

func fmtFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
