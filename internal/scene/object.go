package scene

import (
	"fmt"
	"sort"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// ObjectType is the kind of data an object carries.
type ObjectType string

const (
	TypeMesh     ObjectType = "MESH"
	TypeArmature ObjectType = "ARMATURE"
	TypeEmpty    ObjectType = "EMPTY"
	TypeCurve    ObjectType = "CURVE"
	TypeCamera   ObjectType = "CAMERA"
	TypeLight    ObjectType = "LIGHT"
)

// ParseObjectType accepts any of the known type names.
func ParseObjectType(s string) (ObjectType, bool) {
	switch t := ObjectType(s); t {
	case TypeMesh, TypeArmature, TypeEmpty, TypeCurve, TypeCamera, TypeLight:
		return t, true
	}
	return "", false
}

// ExportFlags are the per-object export settings.
type ExportFlags struct {
	EnableExport    bool
	CombineChild    bool
	VertexAnimation bool
}

// Constraint is a bone constraint. Only its mute state is edited here.
type Constraint struct {
	Name string
	Type string
	Mute bool
}

// PoseBone is a bone of an armature in pose mode.
type PoseBone struct {
	Name        string
	Selected    bool
	Constraints []*Constraint
}

// ShapeKey is one keyed pose of a mesh: absolute vertex positions at a
// frame. Frames between keys are linearly interpolated.
type ShapeKey struct {
	Frame     int
	Positions []math.Vec3
}

// Object is a scene object.
type Object struct {
	Name string
	Type ObjectType

	Location math.Vec3
	Rotation math.Quat
	Scale    math.Vec3

	Mesh       *mesh.Mesh
	ActiveEdge mesh.EdgeID

	Export   ExportFlags
	Selected bool

	Keys  []ShapeKey
	Bones []*PoseBone

	parent   *Object
	children []*Object
}

// NewObject creates an object with an identity transform.
func NewObject(name string, typ ObjectType) *Object {
	return &Object{
		Name:       name,
		Type:       typ,
		Rotation:   math.QuatIdentity(),
		Scale:      math.Vec3{X: 1, Y: 1, Z: 1},
		ActiveEdge: mesh.NoEdge,
	}
}

// NewMeshObject creates a mesh object owning m.
func NewMeshObject(name string, m *mesh.Mesh) *Object {
	obj := NewObject(name, TypeMesh)
	obj.Mesh = m
	return obj
}

// Parent returns the parent object, or nil.
func (o *Object) Parent() *Object {
	return o.parent
}

// Children returns the direct children in insertion order.
func (o *Object) Children() []*Object {
	return append([]*Object(nil), o.children...)
}

// Descendants returns all recursive children, depth first.
func (o *Object) Descendants() []*Object {
	var out []*Object
	for _, c := range o.children {
		out = append(out, c)
		out = append(out, c.Descendants()...)
	}
	return out
}

// LocalMatrix returns the transform relative to the parent.
func (o *Object) LocalMatrix() math.Mat4 {
	return math.Compose(o.Location, o.Rotation, o.Scale)
}

// WorldMatrix returns the transform relative to the scene origin.
func (o *Object) WorldMatrix() math.Mat4 {
	if o.parent == nil {
		return o.LocalMatrix()
	}
	return o.parent.WorldMatrix().Mul(o.LocalMatrix())
}

// Evaluate returns the object's geometry at a frame with shape keys
// applied. The result is a fresh mesh the caller owns.
func (o *Object) Evaluate(frame int) (*mesh.Mesh, error) {
	if o.Mesh == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoMesh, o.Name)
	}
	m := o.Mesh.Clone()
	if len(o.Keys) == 0 {
		return m, nil
	}

	pos, err := o.keyedPositions(frame)
	if err != nil {
		return nil, err
	}
	if len(pos) != m.VertCount() {
		return nil, fmt.Errorf("%w: %q frame %d keys %d positions for %d vertices",
			fault.ErrInconsistent, o.Name, frame, len(pos), m.VertCount())
	}
	for i, p := range pos {
		m.Vert(mesh.VertID(i)).Position = p
	}
	m.ComputeNormals()
	return m, nil
}

func (o *Object) keyedPositions(frame int) ([]math.Vec3, error) {
	keys := append([]ShapeKey(nil), o.Keys...)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Frame < keys[j].Frame })

	if frame <= keys[0].Frame {
		return keys[0].Positions, nil
	}
	last := keys[len(keys)-1]
	if frame >= last.Frame {
		return last.Positions, nil
	}

	i := sort.Search(len(keys), func(i int) bool { return keys[i].Frame > frame }) - 1
	a, b := keys[i], keys[i+1]
	if len(a.Positions) != len(b.Positions) {
		return nil, fmt.Errorf("%w: %q keys at frames %d and %d differ in size",
			fault.ErrInconsistent, o.Name, a.Frame, b.Frame)
	}
	t := float32(frame-a.Frame) / float32(b.Frame-a.Frame)
	out := make([]math.Vec3, len(a.Positions))
	for k := range out {
		out[k] = a.Positions[k].Add(b.Positions[k].Sub(a.Positions[k]).Scale(t))
	}
	return out, nil
}
