// Package vertexanim bakes per-frame mesh deformation into textures.
//
// Every vertex gets one texture column and every frame one row. The
// offsets texture stores the displacement from the first frame, the
// normals texture the packed vertex normal. A second UV layer on the
// exported mesh tells the shader which column belongs to each vertex.
package vertexanim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/internal/texture"
	"github.com/Faultbox/assetforge/pkg/formats"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// LayerName is the name of the lookup UV layer.
const LayerName = "vertex_anim"

// LookupV is the V coordinate of every lookup UV.
const LookupV = float32(128) / 255

// Texture names.
const (
	OffsetsName = "offsets"
	NormalsName = "normals"
)

// Baker errors.
var (
	ErrEmptyRange      = fmt.Errorf("%w: frame range is empty", fault.ErrPrecondition)
	ErrInvalidStep     = fmt.Errorf("%w: frame step must be positive", fault.ErrPrecondition)
	ErrEmptyMesh       = fmt.Errorf("%w: mesh has no vertices", fault.ErrPrecondition)
	ErrTopologyChanged = fmt.Errorf("%w: vertex count changed between frames", fault.ErrInconsistent)
)

// FrameRange is a half-open range of frames [Start, End) sampled every
// Step frames.
type FrameRange struct {
	Start int
	End   int
	Step  int
}

// Frames lists the frames of the range.
func (r FrameRange) Frames() ([]int, error) {
	if r.Step <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, r.Step)
	}
	var frames []int
	for f := r.Start; f < r.End; f += r.Step {
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrEmptyRange, r.Start, r.End)
	}
	return frames, nil
}

// Evaluator returns the final deformed geometry of an object at a frame.
type Evaluator interface {
	Evaluate(frame int) (*mesh.Mesh, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(frame int) (*mesh.Mesh, error)

// Evaluate calls f(frame).
func (f EvaluatorFunc) Evaluate(frame int) (*mesh.Mesh, error) {
	return f(frame)
}

// Sample evaluates every frame of the range and captures a snapshot of
// each. The mesh of the first frame is returned as the reference pose.
func Sample(ev Evaluator, rng FrameRange, rep *progress.Reporter) ([]*Snapshot, *mesh.Mesh, error) {
	frames, err := rng.Frames()
	if err != nil {
		return nil, nil, err
	}

	log := logger.Named("vertexanim")
	var base *mesh.Mesh
	snaps := make([]*Snapshot, 0, len(frames))
	for i, frame := range frames {
		rep.Step(i, len(frames))

		m, err := ev.Evaluate(frame)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluating frame %d: %w", frame, err)
		}
		if i == 0 {
			if m.VertCount() == 0 {
				return nil, nil, ErrEmptyMesh
			}
			base = m
		} else if m.VertCount() != base.VertCount() {
			return nil, nil, fmt.Errorf("%w: frame %d has %d vertices, frame %d has %d",
				ErrTopologyChanged, frame, m.VertCount(), frames[0], base.VertCount())
		}
		snap := Capture(frame, m)
		log.Debug("sampled frame", zap.Int("frame", snap.Frame()), zap.Int("vertices", snap.VertexCount()))
		snaps = append(snaps, snap)
	}
	return snaps, base, nil
}

// BuildExportMesh returns a copy of base carrying the lookup UV layer:
// layer 1 is named LayerName and every corner of vertex i maps to
// ((i + 0.5) / vertexCount, LookupV).
func BuildExportMesh(base *mesh.Mesh) *mesh.Mesh {
	m := base.Clone()
	m.EnsureUVLayers(2)
	m.UVLayers[1] = LayerName

	n := float32(m.VertCount())
	for _, f := range m.Faces() {
		loops := m.Face(f).Loops
		for k := range loops {
			loops[k].UV[1] = math.Vec2{X: (float32(loops[k].Vert) + 0.5) / n, Y: LookupV}
		}
	}
	return m
}

// Encode packs the snapshots into flat RGBA sequences, one row per frame
// starting with the last frame. Offsets are relative to the first
// snapshot and stored as (-y, z, x, 1). Normals are stored as
// ((x+1)/2, (1-y)/2, (z+1)/2, 1).
func Encode(snaps []*Snapshot) (offsets, normals []float32) {
	if len(snaps) == 0 {
		return nil, nil
	}
	ref := snaps[0]
	size := len(snaps) * ref.VertexCount() * 4
	offsets = make([]float32, 0, size)
	normals = make([]float32, 0, size)

	for k := len(snaps) - 1; k >= 0; k-- {
		s := snaps[k]
		for i := 0; i < s.VertexCount(); i++ {
			d := s.Position(i).Sub(ref.Position(i))
			offsets = append(offsets, -d.Y, d.Z, d.X, 1)

			n := s.Normal(i)
			normals = append(normals, (n.X+1)*0.5, (-n.Y+1)*0.5, (n.Z+1)*0.5, 1)
		}
	}
	return offsets, normals
}

// Options configures Bake.
type Options struct {
	// PixelType of the offsets file. The zero value writes 32-bit floats.
	PixelType formats.EXRPixelType
	Progress  *progress.Reporter
}

// Result holds the bake outputs. The caller owns all of them.
type Result struct {
	ExportMesh  *mesh.Mesh
	Offsets     *texture.Buffer
	Normals     *texture.Buffer
	VertexCount int
	FrameCount  int
}

// Bake samples the range, builds the export mesh and both textures, and
// writes the offsets texture to offsetPath as OpenEXR. The normals texture
// is returned unsaved.
func Bake(ev Evaluator, rng FrameRange, offsetPath string, opts Options) (*Result, error) {
	snaps, base, err := Sample(ev, rng, opts.Progress)
	if err != nil {
		return nil, err
	}
	vertexCount, frameCount := base.VertCount(), len(snaps)

	offsetData, normalData := Encode(snaps)
	offsets, err := newTexture(OffsetsName, vertexCount, frameCount, offsetData)
	if err != nil {
		return nil, err
	}
	normals, err := newTexture(NormalsName, vertexCount, frameCount, normalData)
	if err != nil {
		return nil, err
	}

	pt := opts.PixelType
	if pt == 0 {
		pt = formats.EXRFloat
	}
	if err := texture.SaveEXR(offsets, offsetPath, pt); err != nil {
		return nil, fmt.Errorf("saving offsets: %w", err)
	}
	opts.Progress.Done()

	logger.Named("vertexanim").Info("baked vertex animation",
		zap.String("mesh", base.Name),
		zap.Int("vertices", vertexCount),
		zap.Int("frames", frameCount),
		zap.String("offsets", offsetPath))

	return &Result{
		ExportMesh:  BuildExportMesh(base),
		Offsets:     offsets,
		Normals:     normals,
		VertexCount: vertexCount,
		FrameCount:  frameCount,
	}, nil
}

func newTexture(name string, width, height int, data []float32) (*texture.Buffer, error) {
	b, err := texture.NewBuffer(name, width, height)
	if err != nil {
		return nil, err
	}
	if err := b.SetPixels(data); err != nil {
		return nil, fmt.Errorf("filling %s: %w", name, err)
	}
	return b, nil
}
