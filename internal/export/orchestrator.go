// Package export batch-exports the scene's flagged objects, one
// interchange file per object, optionally combining child meshes and
// baking vertex animation textures alongside.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/fault"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/internal/texture"
	"github.com/Faultbox/assetforge/internal/vertexanim"
	"github.com/Faultbox/assetforge/pkg/formats"
)

// Policy decides what happens after a job fails.
type Policy string

const (
	// Abort stops at the first failure. Files written by earlier jobs
	// stay valid.
	Abort Policy = "abort"
	// Continue runs every job and collects the failures.
	Continue Policy = "continue"
)

// Name suffixes of the objects a job creates or renames.
const (
	originalSuffix = ".export_orig"
	combinedSuffix = ".combined"
	bakedSuffix    = ".vertex_anim"
)

// Options configures an export run.
type Options struct {
	// ExportPath overrides the scene's export directory.
	ExportPath string
	// AllowedTypes lists the eligible object types. Empty means meshes.
	AllowedTypes []scene.ObjectType
	OnError      Policy
	NormalFormat texture.Format
	EXRPixelType formats.EXRPixelType
	Progress     *progress.Reporter
}

// Job is one object to export.
type Job struct {
	Object *scene.Object
	Flags  scene.ExportFlags
}

// ItemError is the failure of one job.
type ItemError struct {
	Name string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Report summarizes a run.
type Report struct {
	RunID    uuid.UUID
	Exported []string
	Files    []string
	Failed   []ItemError
	Elapsed  time.Duration
}

// Orchestrator runs export jobs against a scene.
type Orchestrator struct {
	Scene    *scene.Scene
	Exporter Exporter
	Options  Options
}

// New creates an orchestrator.
func New(sc *scene.Scene, exp Exporter, opts Options) *Orchestrator {
	return &Orchestrator{
		Scene:    sc,
		Exporter: exp,
		Options:  opts,
	}
}

// Jobs lists the eligible objects sorted by case-insensitive name, ties
// broken by the exact name.
func (o *Orchestrator) Jobs() []Job {
	allowed := o.Options.AllowedTypes
	if len(allowed) == 0 {
		allowed = []scene.ObjectType{scene.TypeMesh}
	}

	var jobs []Job
	for _, obj := range o.Scene.Objects() {
		if obj.Export.EnableExport && typeAllowed(obj.Type, allowed) {
			jobs = append(jobs, Job{Object: obj, Flags: obj.Export})
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].Object.Name, jobs[j].Object.Name
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
	return jobs
}

// Dir returns the directory files are written to.
func (o *Orchestrator) Dir() string {
	switch {
	case o.Options.ExportPath != "":
		return o.Options.ExportPath
	case o.Scene.ExportPath != "":
		return o.Scene.ExportPath
	}
	return "."
}

// Run exports every job. The report is returned even when err is not nil.
func (o *Orchestrator) Run() (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.New()}
	log := logger.Named("export").With(zap.String("run", rep.RunID.String()))

	dir := o.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return rep, fmt.Errorf("creating export directory: %w", err)
	}

	jobs := o.Jobs()
	log.Info("exporting assets", zap.String("dir", dir), zap.Int("jobs", len(jobs)))

	var errs error
	for i, job := range jobs {
		o.Options.Progress.Step(i, len(jobs))
		name := job.Object.Name

		files, err := o.runJob(job, dir, log)
		rep.Files = append(rep.Files, files...)
		if err != nil {
			rep.Failed = append(rep.Failed, ItemError{Name: name, Err: err})
			errs = multierr.Append(errs, &ItemError{Name: name, Err: err})
			log.Error("export failed", zap.String("object", name), zap.Error(err))
			if o.Options.OnError != Continue {
				break
			}
			continue
		}
		rep.Exported = append(rep.Exported, name)
		log.Info("exported mesh",
			zap.String("object", name),
			zap.Int("count", len(rep.Exported)),
			zap.Strings("files", files))
	}
	o.Options.Progress.Done()

	rep.Elapsed = time.Since(start)
	log.Info(fmt.Sprintf("Exported %d meshes in %.2f seconds.", len(rep.Exported), rep.Elapsed.Seconds()))
	return rep, errs
}

// runJob exports one object. Temporary objects are removed and the scene
// state is restored on every path; cleanup problems are appended to err.
func (o *Orchestrator) runJob(job Job, dir string, log *zap.Logger) (files []string, err error) {
	sc := o.Scene
	obj := job.Object
	name := obj.Name

	guard := sc.SaveState()
	defer func() {
		if rerr := guard.Restore(); rerr != nil {
			log.Warn("restoring scene state", zap.String("object", name), zap.Error(rerr))
			err = multierr.Append(err, rerr)
		}
	}()

	var temps []*scene.Object
	defer func() {
		for i := len(temps) - 1; i >= 0; i-- {
			if rerr := sc.Remove(temps[i]); rerr != nil {
				err = multierr.Append(err, fmt.Errorf("%w: removing %q: %w", fault.ErrCleanup, temps[i].Name, rerr))
			}
		}
	}()
	addTemp := func(tmp, parent *scene.Object) error {
		if err := sc.Add(tmp, parent); err != nil {
			return err
		}
		temps = append(temps, tmp)
		return nil
	}

	if err := sc.SetMode(scene.ModeObject); err != nil {
		return nil, err
	}
	sc.SetFrame(0)

	target := obj
	var ev vertexanim.Evaluator = scene.FrameEvaluator{Scene: sc, Object: obj}

	if job.Flags.CombineChild {
		m, err := Combine(obj, 0)
		if err != nil {
			return nil, err
		}
		tmp := scene.NewMeshObject(name+combinedSuffix, m)
		tmp.Location, tmp.Rotation, tmp.Scale = obj.Location, obj.Rotation, obj.Scale
		if err := addTemp(tmp, obj.Parent()); err != nil {
			return nil, err
		}
		target = tmp
		ev = combinedEvaluator{sc: sc, root: obj}
	}

	if job.Flags.VertexAnimation {
		offsets := filepath.Join(dir, name+"_offsets.exr")
		res, err := vertexanim.Bake(ev, sc.FrameRange(), offsets, vertexanim.Options{PixelType: o.Options.EXRPixelType})
		if err != nil {
			return files, fmt.Errorf("baking %q: %w", name, err)
		}
		files = append(files, offsets)

		format := o.Options.NormalFormat
		if format == "" {
			format = texture.FormatWebP
		}
		normals := filepath.Join(dir, name+"_normals."+string(format))
		if err := texture.Save(res.Normals, normals, format, o.Options.EXRPixelType); err != nil {
			return files, fmt.Errorf("saving normals of %q: %w", name, err)
		}
		files = append(files, normals)

		// Offsets are relative to the object, so the bake mesh sits at
		// the origin.
		baked := scene.NewMeshObject(name+bakedSuffix, res.ExportMesh)
		if err := addTemp(baked, nil); err != nil {
			return files, err
		}
		target = baked
		sc.SetFrame(0)
	}

	if target != obj {
		if err := sc.Rename(obj, name+originalSuffix); err != nil {
			return files, err
		}
		if err := sc.Rename(target, name); err != nil {
			return files, err
		}
	}

	sc.DeselectAll()
	target.Selected = true
	if err := sc.SetActive(target); err != nil {
		return files, err
	}

	path := filepath.Join(dir, name+".fbx")
	log.Debug("exporting mesh", zap.String("object", name), zap.String("file", path))
	if err := o.Exporter.Export(sc, DefaultSettings(path)); err != nil {
		return files, fmt.Errorf("exporting %q: %w", name, err)
	}
	return append(files, path), nil
}
