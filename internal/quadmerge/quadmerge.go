// Package quadmerge converts strips of adjacent triangle pairs into quads.
//
// The solver walks outwards from an active edge. Every edge it reaches is
// confirmed and never classified again; the diagonals it finds are dissolved
// in one batch at the end and the strip's side edges become the new
// selection, ready for the next run.
package quadmerge

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// Solver errors.
var (
	ErrNoActiveEdge = fmt.Errorf("%w: no active edge", fault.ErrPrecondition)
	ErrInconsistent = fmt.Errorf("%w: ambiguous edge classification", fault.ErrInconsistent)
)

// Options configures a solver run.
type Options struct {
	// Progress receives coarse progress updates. Nil disables reporting.
	Progress *progress.Reporter
}

// Result describes what a run changed.
type Result struct {
	Dissolved  int
	Selected   []mesh.EdgeID
	NextActive mesh.EdgeID
}

type solver struct {
	m      *mesh.Mesh
	active mesh.EdgeID

	confirmed map[mesh.EdgeID]bool
	visited   map[mesh.EdgeID]bool
	dissolve  map[mesh.EdgeID]bool
	selected  map[mesh.EdgeID]bool

	dissolveOrder []mesh.EdgeID
	selectOrder   []mesh.EdgeID
	stack         []mesh.EdgeID
}

// classification is the outcome for one face next to the current edge.
type classification struct {
	dissolve, recurse, sel mesh.EdgeID
}

var none = classification{mesh.NoEdge, mesh.NoEdge, mesh.NoEdge}

// Solve merges triangle pairs reachable from the active edge. Edges that
// are selected on entry are locked: they are never dissolved. On success
// the selection is replaced by the new strip boundary and Result.NextActive
// proposes the edge to continue from. On error the mesh is unchanged.
func Solve(m *mesh.Mesh, active mesh.EdgeID, opts Options) (*Result, error) {
	if !m.EdgeLive(active) {
		return nil, ErrNoActiveEdge
	}

	s := &solver{
		m:         m,
		active:    active,
		confirmed: make(map[mesh.EdgeID]bool),
		visited:   make(map[mesh.EdgeID]bool),
		dissolve:  make(map[mesh.EdgeID]bool),
		selected:  make(map[mesh.EdgeID]bool),
	}
	for _, e := range m.SelectedEdges() {
		s.confirmed[e] = true
	}

	log := logger.Named("quadmerge")
	log.Debug("solve started",
		zap.Int("active", int(active)),
		zap.Int("locked", len(s.confirmed)),
		zap.Stringer("mesh", m))

	if err := s.walk(opts.Progress); err != nil {
		return nil, err
	}

	dissolved, err := m.DissolveEdges(s.dissolveOrder)
	if err != nil {
		return nil, fmt.Errorf("dissolving %d edges: %w", len(s.dissolveOrder), err)
	}

	m.DeselectAll()
	for _, e := range s.selectOrder {
		m.SelectEdge(e)
	}
	sort.Slice(s.selectOrder, func(i, j int) bool { return s.selectOrder[i] < s.selectOrder[j] })

	res := &Result{
		Dissolved:  dissolved,
		Selected:   s.selectOrder,
		NextActive: s.nextActive(),
	}
	opts.Progress.Done()

	log.Info("tris to quads",
		zap.Int("dissolved", res.Dissolved),
		zap.Int("selected", len(res.Selected)),
		zap.Int("next_active", int(res.NextActive)))
	return res, nil
}

func (s *solver) walk(rep *progress.Reporter) error {
	total := s.m.EdgeCount()
	s.stack = append(s.stack, s.active)

	for len(s.stack) > 0 {
		edge := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		if s.visited[edge] || s.dissolve[edge] {
			continue
		}
		s.visited[edge] = true
		s.confirmed[edge] = true
		rep.Step(len(s.visited), total+1)

		for _, f := range s.m.EdgeFaces(edge) {
			c, err := s.classify(edge, f)
			if err != nil {
				return fmt.Errorf("edge %d, face %d: %w", edge, f, err)
			}
			s.apply(c)
		}
	}
	return nil
}

func (s *solver) apply(c classification) {
	if c.dissolve != mesh.NoEdge && !s.dissolve[c.dissolve] {
		s.dissolve[c.dissolve] = true
		s.confirmed[c.dissolve] = true
		s.dissolveOrder = append(s.dissolveOrder, c.dissolve)
	}
	if c.recurse != mesh.NoEdge && !s.confirmed[c.recurse] {
		s.stack = append(s.stack, c.recurse)
	}
	if c.sel != mesh.NoEdge && !s.confirmed[c.sel] {
		s.selected[c.sel] = true
		s.confirmed[c.sel] = true
		s.selectOrder = append(s.selectOrder, c.sel)
	}
}

func (s *solver) classify(edge mesh.EdgeID, f mesh.FaceID) (classification, error) {
	face := s.m.Face(f)
	open := s.unconfirmed(face.Edges(), mesh.NoEdge)

	switch face.Len() {
	case 4:
		if len(open) != 2 {
			return none, nil
		}
		recurse, err := single(s.farFrom(edge, open))
		if err != nil {
			return none, err
		}
		return classification{mesh.NoEdge, recurse, siblingOf(open, recurse)}, nil

	case 3:
		switch len(open) {
		case 1:
			return s.classifyPair(edge, f, open[0])
		case 2:
			return s.classifyFan(f, open), nil
		}
	}
	return none, nil
}

// classifyPair handles a triangle with one open edge: the open edge is the
// diagonal of a pair if the face across it is also a triangle.
func (s *solver) classifyPair(edge mesh.EdgeID, f mesh.FaceID, target mesh.EdgeID) (classification, error) {
	across := s.m.OtherFaces(target, f)
	if len(across) != 1 || s.m.Face(across[0]).Len() != 3 {
		return none, nil
	}

	rest := without(s.m.Face(across[0]).Edges(), target)
	recurse, err := single(s.farFrom(edge, rest))
	if err != nil {
		return none, err
	}
	sel, err := single(without(rest, recurse))
	if err != nil {
		return none, err
	}
	return classification{target, recurse, sel}, nil
}

// classifyFan handles a triangle with two open edges. The first open edge,
// in ascending ID order, whose neighbouring triangle has exactly one more
// open edge becomes the diagonal.
func (s *solver) classifyFan(f mesh.FaceID, open []mesh.EdgeID) classification {
	for _, cand := range open {
		for _, g := range s.m.OtherFaces(cand, f) {
			if s.m.Face(g).Len() != 3 {
				continue
			}
			further := s.unconfirmed(s.m.Face(g).Edges(), cand)
			if len(further) == 1 {
				return classification{cand, further[0], siblingOf(open, cand)}
			}
		}
	}
	return none
}

// unconfirmed returns the edges of ids that are not confirmed and differ
// from skip, in ascending order.
func (s *solver) unconfirmed(ids []mesh.EdgeID, skip mesh.EdgeID) []mesh.EdgeID {
	var out []mesh.EdgeID
	for _, e := range ids {
		if e != skip && !s.confirmed[e] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// farFrom returns the edges of ids sharing no vertex with edge.
func (s *solver) farFrom(edge mesh.EdgeID, ids []mesh.EdgeID) []mesh.EdgeID {
	var out []mesh.EdgeID
	for _, e := range ids {
		if !s.m.EdgesTouch(edge, e) {
			out = append(out, e)
		}
	}
	return out
}

// nextActive picks, around the vertices of the previous active edge that
// touch the new selection, the open edge most parallel to that edge.
func (s *solver) nextActive() mesh.EdgeID {
	prev := s.m.EdgeVector(s.active).Normalize()

	var candidates []mesh.EdgeID
	seen := make(map[mesh.EdgeID]bool)
	for _, v := range s.m.Edge(s.active).Verts {
		incident := s.m.VertEdges(v)
		if !s.touchesSelection(incident) {
			continue
		}
		for _, e := range incident {
			if !s.confirmed[e] && !seen[e] {
				seen[e] = true
				candidates = append(candidates, e)
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	best := mesh.NoEdge
	bestDot := float32(-1)
	for _, e := range candidates {
		d := float32(math.Abs(float64(s.m.EdgeVector(e).Normalize().Dot(prev))))
		if d > bestDot {
			best, bestDot = e, d
		}
	}
	return best
}

func (s *solver) touchesSelection(ids []mesh.EdgeID) bool {
	for _, e := range ids {
		if s.selected[e] {
			return true
		}
	}
	return false
}

func single(ids []mesh.EdgeID) (mesh.EdgeID, error) {
	if len(ids) != 1 {
		return mesh.NoEdge, fmt.Errorf("%w: expected a single edge, got %d", ErrInconsistent, len(ids))
	}
	return ids[0], nil
}

func siblingOf(pair []mesh.EdgeID, e mesh.EdgeID) mesh.EdgeID {
	for _, o := range pair {
		if o != e {
			return o
		}
	}
	return mesh.NoEdge
}

func without(ids []mesh.EdgeID, drop mesh.EdgeID) []mesh.EdgeID {
	var out []mesh.EdgeID
	for _, e := range ids {
		if e != drop {
			out = append(out, e)
		}
	}
	return out
}
