// Package scene models the host scene the tools operate on: objects with
// transforms and parenting, their meshes, export flags, pose bones, the
// active object, the interaction mode and the frame range.
//
// Scenes are usually loaded from a YAML document (see Load) and written
// back after an operation.
package scene

import (
	"errors"
	"fmt"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/vertexanim"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// Scene errors.
var (
	ErrDuplicateName = errors.New("object name already in use")
	ErrUnknownObject = errors.New("object is not part of the scene")
	ErrParentCycle   = errors.New("parenting would create a cycle")
	ErrNoMesh        = fmt.Errorf("%w: object has no mesh", fault.ErrPrecondition)
	ErrModeChange    = fmt.Errorf("%w: mode not available", fault.ErrPrecondition)
)

// Mode is the interaction mode of the active object.
type Mode string

const (
	ModeObject Mode = "OBJECT"
	ModeEdit   Mode = "EDIT"
	ModePose   Mode = "POSE"
)

// Scene holds the objects and the ambient editing state.
type Scene struct {
	ExportPath string

	FrameStart   int
	FrameEnd     int
	FrameStep    int
	FrameCurrent int

	mode    Mode
	active  *Object
	objects []*Object
}

// New creates an empty scene with the default frame range 1..250.
func New() *Scene {
	return &Scene{
		FrameStart: 1,
		FrameEnd:   250,
		FrameStep:  1,
		mode:       ModeObject,
	}
}

// Add inserts obj into the scene under parent (nil for a root object).
func (s *Scene) Add(obj, parent *Object) error {
	if s.Object(obj.Name) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateName, obj.Name)
	}
	if parent != nil && !s.contains(parent) {
		return fmt.Errorf("%w: parent %q", ErrUnknownObject, parent.Name)
	}
	s.objects = append(s.objects, obj)
	obj.parent = nil
	obj.children = nil
	if parent != nil {
		s.link(obj, parent)
	}
	return nil
}

// Remove deletes obj from the scene. Its children become root objects.
func (s *Scene) Remove(obj *Object) error {
	idx := s.index(obj)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownObject, obj.Name)
	}
	s.objects = append(s.objects[:idx], s.objects[idx+1:]...)
	s.unlink(obj)
	for _, c := range obj.children {
		c.parent = nil
	}
	obj.children = nil
	if s.active == obj {
		s.active = nil
	}
	return nil
}

// SetParent moves obj under parent, or to the root when parent is nil.
func (s *Scene) SetParent(obj, parent *Object) error {
	if !s.contains(obj) {
		return fmt.Errorf("%w: %q", ErrUnknownObject, obj.Name)
	}
	if parent != nil {
		if !s.contains(parent) {
			return fmt.Errorf("%w: parent %q", ErrUnknownObject, parent.Name)
		}
		for p := parent; p != nil; p = p.parent {
			if p == obj {
				return fmt.Errorf("%w: %q under %q", ErrParentCycle, obj.Name, parent.Name)
			}
		}
	}
	s.unlink(obj)
	if parent != nil {
		s.link(obj, parent)
	}
	return nil
}

func (s *Scene) link(obj, parent *Object) {
	obj.parent = parent
	parent.children = append(parent.children, obj)
}

func (s *Scene) unlink(obj *Object) {
	p := obj.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == obj {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	obj.parent = nil
}

// Rename changes an object's name, keeping names unique.
func (s *Scene) Rename(obj *Object, name string) error {
	if !s.contains(obj) {
		return fmt.Errorf("%w: %q", ErrUnknownObject, obj.Name)
	}
	if other := s.Object(name); other != nil && other != obj {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	obj.Name = name
	return nil
}

// Object finds an object by exact name.
func (s *Scene) Object(name string) *Object {
	for _, o := range s.objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Objects returns all objects in insertion order.
func (s *Scene) Objects() []*Object {
	return append([]*Object(nil), s.objects...)
}

func (s *Scene) index(obj *Object) int {
	for i, o := range s.objects {
		if o == obj {
			return i
		}
	}
	return -1
}

func (s *Scene) contains(obj *Object) bool {
	return s.index(obj) >= 0
}

// Active returns the active object, or nil.
func (s *Scene) Active() *Object {
	return s.active
}

// SetActive makes obj the active object. Nil clears it. Changing the
// active object drops back to object mode.
func (s *Scene) SetActive(obj *Object) error {
	if obj != nil && !s.contains(obj) {
		return fmt.Errorf("%w: %q", ErrUnknownObject, obj.Name)
	}
	if obj != s.active {
		s.mode = ModeObject
	}
	s.active = obj
	return nil
}

// Mode returns the current interaction mode.
func (s *Scene) Mode() Mode {
	return s.mode
}

// SetMode switches the interaction mode. Edit mode needs an active mesh
// object, pose mode an active armature.
func (s *Scene) SetMode(mode Mode) error {
	switch mode {
	case ModeObject:
	case ModeEdit:
		if s.active == nil || s.active.Type != TypeMesh {
			return fmt.Errorf("%w: %s needs an active mesh", ErrModeChange, mode)
		}
	case ModePose:
		if s.active == nil || s.active.Type != TypeArmature {
			return fmt.Errorf("%w: %s needs an active armature", ErrModeChange, mode)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrModeChange, mode)
	}
	s.mode = mode
	return nil
}

// SelectedObjects returns the selected objects in insertion order.
func (s *Scene) SelectedObjects() []*Object {
	var out []*Object
	for _, o := range s.objects {
		if o.Selected {
			out = append(out, o)
		}
	}
	return out
}

// DeselectAll clears the object selection.
func (s *Scene) DeselectAll() {
	for _, o := range s.objects {
		o.Selected = false
	}
}

// SetFrame sets the current frame.
func (s *Scene) SetFrame(frame int) {
	s.FrameCurrent = frame
}

// FrameRange returns the sampled animation range [FrameStart, FrameEnd)
// stepped by FrameStep.
func (s *Scene) FrameRange() vertexanim.FrameRange {
	return vertexanim.FrameRange{Start: s.FrameStart, End: s.FrameEnd, Step: s.FrameStep}
}

// FrameEvaluator evaluates an object's geometry, moving the scene to the
// requested frame first.
type FrameEvaluator struct {
	Scene  *Scene
	Object *Object
}

// Evaluate implements vertexanim.Evaluator.
func (e FrameEvaluator) Evaluate(frame int) (*mesh.Mesh, error) {
	e.Scene.SetFrame(frame)
	return e.Object.Evaluate(frame)
}
