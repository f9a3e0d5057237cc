package export

import (
	"fmt"

	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// Combine merges root's geometry and that of all its recursive mesh
// children into one mesh in root's local space, evaluated at frame.
func Combine(root *scene.Object, frame int) (*mesh.Mesh, error) {
	var out *mesh.Mesh
	if root.Mesh != nil {
		m, err := root.Evaluate(frame)
		if err != nil {
			return nil, err
		}
		out = m
	} else {
		out = mesh.New(root.Name)
	}

	toLocal := root.WorldMatrix().Inverse()
	for _, child := range root.Descendants() {
		if child.Type != scene.TypeMesh || child.Mesh == nil {
			continue
		}
		m, err := child.Evaluate(frame)
		if err != nil {
			return nil, err
		}
		if err := out.Append(m, toLocal.Mul(child.WorldMatrix())); err != nil {
			return nil, fmt.Errorf("combining %q into %q: %w", child.Name, root.Name, err)
		}
	}
	out.ComputeNormals()
	return out, nil
}

// combinedEvaluator evaluates the combination of an object and its
// children, moving the scene to each frame.
type combinedEvaluator struct {
	sc   *scene.Scene
	root *scene.Object
}

func (e combinedEvaluator) Evaluate(frame int) (*mesh.Mesh, error) {
	e.sc.SetFrame(frame)
	return Combine(e.root, frame)
}
