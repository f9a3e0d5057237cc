package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/pkg/formats"
	"github.com/Faultbox/assetforge/pkg/math"
	"github.com/Faultbox/assetforge/pkg/mesh"
)

// Exporter errors.
var (
	ErrUnsupportedSettings = errors.New("unsupported export settings")
	ErrNothingToExport     = errors.New("no objects match the export settings")
)

// ScaleAll applies the global scale to geometry and transforms alike. It
// is the only scale mode the FBX writer supports.
const ScaleAll = "FBX_SCALE_ALL"

// Settings are the options passed to the interchange exporter for one
// file.
type Settings struct {
	FilePath           string
	SelectionOnly      bool
	ObjectTypes        []scene.ObjectType
	ScaleMode          string
	GlobalScale        float32
	BakeSpaceTransform bool
	Forward            string
	Up                 string
}

// DefaultSettings returns the settings the orchestrator uses for every
// job: selected meshes only, all scales applied, space transform baked,
// forward X and up Y.
func DefaultSettings(path string) Settings {
	return Settings{
		FilePath:           path,
		SelectionOnly:      true,
		ObjectTypes:        []scene.ObjectType{scene.TypeMesh},
		ScaleMode:          ScaleAll,
		GlobalScale:        1,
		BakeSpaceTransform: true,
		Forward:            "X",
		Up:                 "Y",
	}
}

// Exporter writes part of a scene to an interchange file.
type Exporter interface {
	Export(sc *scene.Scene, s Settings) error
}

// FBXExporter writes ASCII FBX files.
type FBXExporter struct {
	Creator string
}

// Export writes the matching objects, evaluated at the scene's current
// frame, to s.FilePath.
func (e FBXExporter) Export(sc *scene.Scene, s Settings) error {
	if err := checkSettings(s); err != nil {
		return err
	}

	candidates := sc.Objects()
	if s.SelectionOnly {
		candidates = sc.SelectedObjects()
	}

	var models []formats.FBXModel
	for _, obj := range candidates {
		if obj.Mesh == nil || !typeAllowed(obj.Type, s.ObjectTypes) {
			continue
		}
		m, err := obj.Evaluate(sc.FrameCurrent)
		if err != nil {
			return fmt.Errorf("evaluating %q: %w", obj.Name, err)
		}
		models = append(models, formats.FBXModel{Name: obj.Name, Mesh: m, World: obj.WorldMatrix()})
	}
	if len(models) == 0 {
		return fmt.Errorf("%w: %s", ErrNothingToExport, s.FilePath)
	}

	return e.write(models, s)
}

// WriteMesh writes m alone, untransformed, with the axes and scale of s.
// The selection and type filters of s do not apply.
func (e FBXExporter) WriteMesh(name string, m *mesh.Mesh, s Settings) error {
	if err := checkSettings(s); err != nil {
		return err
	}
	return e.write([]formats.FBXModel{{Name: name, Mesh: m, World: math.Identity()}}, s)
}

func (e FBXExporter) write(models []formats.FBXModel, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.FilePath), 0755); err != nil {
		return err
	}
	return formats.WriteFBXFile(s.FilePath, models, formats.FBXOptions{
		Creator: e.Creator,
		Forward: s.Forward,
		Up:      s.Up,
		Scale:   s.GlobalScale,
	})
}

func checkSettings(s Settings) error {
	if !s.BakeSpaceTransform {
		return fmt.Errorf("%w: space transform must be baked", ErrUnsupportedSettings)
	}
	if s.ScaleMode != ScaleAll && s.ScaleMode != "" {
		return fmt.Errorf("%w: scale mode %q", ErrUnsupportedSettings, s.ScaleMode)
	}
	return nil
}

func typeAllowed(t scene.ObjectType, allowed []scene.ObjectType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
