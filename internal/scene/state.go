package scene

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/assetforge/internal/fault"
)

// StateGuard remembers the ambient editing state so an operation can
// restore it on every exit path:
//
//	guard := sc.SaveState()
//	defer func() { err = multierr.Append(err, guard.Restore()) }()
type StateGuard struct {
	sc       *Scene
	selected []*Object
	active   *Object
	mode     Mode
	frame    int
	names    map[*Object]string
	objects  []*Object
}

// SaveState captures selection, active object, mode, current frame and
// object names.
func (s *Scene) SaveState() *StateGuard {
	g := &StateGuard{
		sc:       s,
		selected: s.SelectedObjects(),
		active:   s.active,
		mode:     s.mode,
		frame:    s.FrameCurrent,
		names:    make(map[*Object]string, len(s.objects)),
		objects:  s.Objects(),
	}
	for _, o := range s.objects {
		g.names[o] = o.Name
	}
	return g
}

// Restore puts the captured state back. It restores as much as it can and
// returns every problem it met, each wrapping fault.ErrCleanup. Objects
// added since SaveState must be removed by their owner first, otherwise
// they are reported and left in place.
func (g *StateGuard) Restore() error {
	s := g.sc
	var err error

	for _, o := range s.objects {
		if _, ok := g.names[o]; !ok {
			err = multierr.Append(err, fmt.Errorf("%w: temporary object %q still in scene", fault.ErrCleanup, o.Name))
		}
	}

	// Names are assigned directly; uniqueness is checked afterwards so
	// swapped names resolve in any order.
	for _, o := range g.objects {
		if !s.contains(o) {
			err = multierr.Append(err, fmt.Errorf("%w: object %q was removed", fault.ErrCleanup, g.names[o]))
			continue
		}
		o.Name = g.names[o]
	}
	seen := make(map[string]bool, len(s.objects))
	for _, o := range s.objects {
		if seen[o.Name] {
			err = multierr.Append(err, fmt.Errorf("%w: %w %q", fault.ErrCleanup, ErrDuplicateName, o.Name))
		}
		seen[o.Name] = true
	}

	s.DeselectAll()
	for _, o := range g.selected {
		if s.contains(o) {
			o.Selected = true
		}
	}

	if g.active != nil && !s.contains(g.active) {
		s.active = nil
	} else {
		s.active = g.active
	}
	s.mode = ModeObject
	if s.active != nil && g.mode != ModeObject {
		if e := s.SetMode(g.mode); e != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %w", fault.ErrCleanup, e))
		}
	}

	s.FrameCurrent = g.frame
	return err
}
