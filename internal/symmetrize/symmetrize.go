// Package symmetrize mirrors one half of a mesh onto the other using UV
// space correspondence instead of geometric proximity.
package symmetrize

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// DefaultTolerance is used when Options.Tolerance is not positive.
const DefaultTolerance = 0.001

// ErrNoUVLayer is returned for meshes without UV layers.
var ErrNoUVLayer = fmt.Errorf("%w: no UV layer found", fault.ErrPrecondition)

// Options configures a symmetrize run.
type Options struct {
	// Tolerance bounds both the seam test and the UV candidate search.
	Tolerance float32
	// Axis is the mirrored coordinate. The zero value is X.
	Axis     math.Axis
	Progress *progress.Reporter
}

// Result counts what happened to the working vertices.
type Result struct {
	Matched   int
	Unmatched int
	OnSeam    int
	// UnmatchedVerts are left selected so they can be fixed by hand.
	UnmatchedVerts []mesh.VertID
}

// Symmetrize processes every selected vertex whose axis coordinate is at
// most the tolerance. A vertex whose averaged UV lies on the u = 0.5 seam
// is snapped onto the mirror plane. Any other vertex takes the position of
// the vertex closest to its mirrored UV, reflected across the plane.
// Vertices without a counterpart are reselected.
func Symmetrize(m *mesh.Mesh, opts Options) (*Result, error) {
	if len(m.UVLayers) == 0 {
		return nil, ErrNoUVLayer
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	axis := opts.Axis

	layer := m.ActiveUV
	if layer < 0 || layer >= len(m.UVLayers) {
		layer = 0
	}

	var work []mesh.VertID
	for _, v := range m.SelectedVerts() {
		if m.Vert(v).Position.Get(axis) <= tol {
			work = append(work, v)
		}
	}
	uvs, hasUV := m.AverageUVs(layer)

	log := logger.Named("symmetrize")
	log.Debug("symmetrize started",
		zap.String("uv_layer", m.UVLayers[layer]),
		zap.Stringer("axis", axis),
		zap.Float32("tolerance", tol),
		zap.Int("working", len(work)))

	res := &Result{}
	m.DeselectAll()
	for i, v := range work {
		opts.Progress.Step(i, len(work))

		if !hasUV[v] {
			res.unmatched(m, v)
			continue
		}
		uv := uvs[v]
		if abs(uv.X-0.5) <= tol {
			vert := m.Vert(v)
			vert.Position = vert.Position.With(axis, 0)
			res.OnSeam++
			continue
		}

		match := closest(uvs, hasUV, v, uv.MirrorU(), tol)
		if match == mesh.NoVert {
			res.unmatched(m, v)
			continue
		}
		m.Vert(v).Position = m.Vert(match).Position.Mirror(axis)
		res.Matched++
	}
	opts.Progress.Done()

	log.Info("symmetrize finished",
		zap.Int("matched", res.Matched),
		zap.Int("unmatched", res.Unmatched),
		zap.Int("on_seam", res.OnSeam))
	return res, nil
}

func (r *Result) unmatched(m *mesh.Mesh, v mesh.VertID) {
	m.Vert(v).Selected = true
	r.Unmatched++
	r.UnmatchedVerts = append(r.UnmatchedVerts, v)
}

// closest returns the vertex other than self whose UV is nearest to target
// and strictly within tol, or NoVert. Ties go to the lower index.
func closest(uvs []math.Vec2, ok []bool, self mesh.VertID, target math.Vec2, tol float32) mesh.VertID {
	best := mesh.NoVert
	bestDist := tol
	for i, uv := range uvs {
		id := mesh.VertID(i)
		if id == self || !ok[i] {
			continue
		}
		if d := uv.Distance(target); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
