// assetforge is a CLI for mesh cleanup, vertex-animation baking and batch
// FBX export of scene documents.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/config"
	"github.com/Faultbox/assetforge/internal/export"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/progress"
	"github.com/Faultbox/assetforge/internal/quadmerge"
	"github.com/Faultbox/assetforge/internal/rig"
	"github.com/Faultbox/assetforge/internal/scene"
	"github.com/Faultbox/assetforge/internal/symmetrize"
	"github.com/Faultbox/assetforge/internal/texture"
	"github.com/Faultbox/assetforge/internal/vertexanim"
	"github.com/Faultbox/assetforge/pkg/formats"
	"github.com/Faultbox/assetforge/pkg/math"
)

var cfg *config.Config

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatal(err)
	}
	defer logger.Sync()

	command := args[0]
	args = args[1:]

	switch command {
	case "export":
		err = cmdExport(args)
	case "quads":
		err = cmdQuads(args)
	case "symmetrize", "sym":
		err = cmdSymmetrize(args)
	case "bake":
		err = cmdBake(args)
	case "constraints":
		err = cmdConstraints(args)
	case "info":
		err = cmdInfo(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logger.Sync()
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`assetforge - mesh cleanup and batch export tool

Usage:
  assetforge [global options] <command> [options]

Commands:
  export <scene.yaml>                       Export every flagged object to FBX
  quads <scene.yaml> [-object name]         Merge triangle pairs from the active edge
  symmetrize <scene.yaml> [-object name]    Mirror the -X half onto the +X half by UV
  bake <scene.yaml> [-object name]          Bake vertex animation textures
  constraints mute|unmute <scene.yaml>      Mute or unmute bone constraints
  info <scene.yaml|mesh.obj|texture.exr>    Show file information
  config show|init [-o path] [-force]       Print or save the effective config

Global options:
  -config path        Config file
  -debug              Debug logging
  -quiet              No progress bars
  -export-path dir    Export directory
  -on-error policy    abort or continue
  -normal-format fmt  exr, webp, tga or bmp
  -tolerance value    Symmetrize UV tolerance

Examples:
  assetforge export level.yaml
  assetforge -on-error continue export level.yaml
  assetforge quads -o fixed.yaml character.yaml
  assetforge constraints mute -selected rig.yaml`)
}

func newProgress(title string) *progress.Reporter {
	if !cfg.Progress.Enabled {
		return nil
	}
	return progress.New(title, os.Stdout).WithInterval(cfg.Progress.Interval)
}

// editFlags are shared by the commands that modify a scene in place.
type editFlags struct {
	fs     *flag.FlagSet
	object *string
	output *string
}

func newEditFlags(name string) *editFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &editFlags{
		fs:     fs,
		object: fs.String("object", "", "Object to edit (default: active object)"),
		output: fs.String("o", "", "Write the scene here instead of overwriting it"),
	}
}

// load parses the flags and loads the scene and target object.
func (f *editFlags) load(args []string) (*scene.Scene, *scene.Object, string, error) {
	f.fs.Parse(args)
	if f.fs.NArg() < 1 {
		return nil, nil, "", fmt.Errorf("usage: assetforge %s <scene.yaml>", f.fs.Name())
	}
	path := f.fs.Arg(0)
	sc, err := scene.Load(path)
	if err != nil {
		return nil, nil, "", err
	}

	obj := sc.Active()
	if *f.object != "" {
		obj = sc.Object(*f.object)
	}
	if obj == nil {
		return nil, nil, "", fmt.Errorf("no object to edit in %s", path)
	}
	if obj.Mesh == nil {
		return nil, nil, "", fmt.Errorf("%w: %q", scene.ErrNoMesh, obj.Name)
	}

	if *f.output != "" {
		path = *f.output
	}
	return sc, obj, path, nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: assetforge export <scene.yaml>")
	}

	sc, err := scene.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	opts, err := exportOptions()
	if err != nil {
		return err
	}
	// Relative export paths are relative to the scene file.
	if opts.ExportPath == "" && sc.ExportPath != "" && !filepath.IsAbs(sc.ExportPath) {
		sc.ExportPath = filepath.Join(filepath.Dir(fs.Arg(0)), sc.ExportPath)
	}

	rep, runErr := export.New(sc, export.FBXExporter{}, opts).Run()
	fmt.Printf("Exported %d meshes in %.2f seconds.\n", len(rep.Exported), rep.Elapsed.Seconds())
	for _, f := range rep.Failed {
		fmt.Printf("  failed: %s\n", f.Error())
	}
	return runErr
}

func exportOptions() (export.Options, error) {
	format, err := texture.ParseFormat(cfg.Export.NormalFormat)
	if err != nil {
		return export.Options{}, err
	}
	pt, err := formats.ParseEXRPixelType(cfg.Export.EXRPixelType)
	if err != nil {
		return export.Options{}, err
	}
	var types []scene.ObjectType
	for _, s := range cfg.Export.AllowedTypes {
		t, ok := scene.ParseObjectType(s)
		if !ok {
			return export.Options{}, fmt.Errorf("unknown object type %q", s)
		}
		types = append(types, t)
	}
	return export.Options{
		ExportPath:   cfg.Export.Path,
		AllowedTypes: types,
		OnError:      export.Policy(cfg.Export.OnError),
		NormalFormat: format,
		EXRPixelType: pt,
		Progress:     newProgress("Export"),
	}, nil
}

func cmdQuads(args []string) error {
	f := newEditFlags("quads")
	sc, obj, out, err := f.load(args)
	if err != nil {
		return err
	}

	res, err := quadmerge.Solve(obj.Mesh, obj.ActiveEdge, quadmerge.Options{Progress: newProgress("Tris to Quads")})
	if err != nil {
		return err
	}
	obj.ActiveEdge = res.NextActive

	fmt.Printf("Dissolved %d edges, selected %d\n", res.Dissolved, len(res.Selected))
	return scene.Save(sc, out)
}

func cmdSymmetrize(args []string) error {
	f := newEditFlags("symmetrize")
	sc, obj, out, err := f.load(args)
	if err != nil {
		return err
	}

	axis, _ := math.ParseAxis(cfg.Tools.Symmetrize.Axis)
	res, err := symmetrize.Symmetrize(obj.Mesh, symmetrize.Options{
		Tolerance: cfg.Tools.Symmetrize.Tolerance,
		Axis:      axis,
		Progress:  newProgress("Symmetrize"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Matched: %d, Unmatched: %d, On seam: %d\n", res.Matched, res.Unmatched, res.OnSeam)
	return scene.Save(sc, out)
}

func cmdBake(args []string) error {
	fs := flag.NewFlagSet("bake", flag.ExitOnError)
	object := fs.String("object", "", "Object to bake (default: active object)")
	outDir := fs.String("out", "", "Output directory (default: export path)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: assetforge bake <scene.yaml>")
	}

	sc, err := scene.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	obj := sc.Active()
	if *object != "" {
		obj = sc.Object(*object)
	}
	if obj == nil {
		return fmt.Errorf("no object to bake in %s", fs.Arg(0))
	}

	dir := *outDir
	if dir == "" {
		dir = cfg.Export.Path
	}
	if dir == "" {
		dir = sc.ExportPath
	}
	opts, err := exportOptions()
	if err != nil {
		return err
	}

	res, err := vertexanim.Bake(scene.FrameEvaluator{Scene: sc, Object: obj}, sc.FrameRange(),
		filepath.Join(dir, obj.Name+"_offsets.exr"),
		vertexanim.Options{PixelType: opts.EXRPixelType, Progress: newProgress("Vertex Animation")})
	if err != nil {
		return err
	}

	normals := filepath.Join(dir, obj.Name+"_normals."+string(opts.NormalFormat))
	if err := texture.Save(res.Normals, normals, opts.NormalFormat, opts.EXRPixelType); err != nil {
		return err
	}
	// OBJ keeps a single UV layer, so the lookup layer needs FBX.
	settings := export.DefaultSettings(filepath.Join(dir, obj.Name+"_vertex_anim.fbx"))
	if err := (export.FBXExporter{}).WriteMesh(obj.Name, res.ExportMesh, settings); err != nil {
		return err
	}

	fmt.Printf("Baked %d vertices x %d frames\n", res.VertexCount, res.FrameCount)
	return nil
}

func cmdConstraints(args []string) error {
	if len(args) < 1 || (args[0] != "mute" && args[0] != "unmute") {
		return fmt.Errorf("usage: assetforge constraints mute|unmute [-selected] <scene.yaml>")
	}
	mute := args[0] == "mute"

	fs := flag.NewFlagSet("constraints", flag.ExitOnError)
	selected := fs.Bool("selected", false, "Only selected pose bones")
	output := fs.String("o", "", "Write the scene here instead of overwriting it")
	fs.Parse(args[1:])
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: assetforge constraints mute|unmute [-selected] <scene.yaml>")
	}

	path := fs.Arg(0)
	sc, err := scene.Load(path)
	if err != nil {
		return err
	}
	n, err := rig.SetConstraintsMuted(sc, mute, *selected)
	if err != nil {
		return err
	}
	fmt.Printf("Changed %d constraints\n", n)

	if *output != "" {
		path = *output
	}
	return scene.Save(sc, path)
}

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: assetforge config show|init [-o path] [-force]")
	}

	switch args[0] {
	case "show":
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		source := cfg.Source()
		if source == "" {
			source = "defaults"
		}
		fmt.Printf("# source: %s\n%s", source, data)
		return nil

	case "init":
		fs := flag.NewFlagSet("config init", flag.ExitOnError)
		output := fs.String("o", "", "Write here instead of "+config.DefaultPath())
		force := fs.Bool("force", false, "Overwrite an existing file")
		fs.Parse(args[1:])

		path := *output
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
		var err error
		if *output == "" {
			err = cfg.Save()
		} else {
			err = cfg.SaveTo(path)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	}
	return fmt.Errorf("unknown config command %q", args[0])
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: assetforge info <file>")
	}
	path := args[0]
	logger.Debug("reading file", zap.String("path", path))

	switch filepath.Ext(path) {
	case ".obj":
		m, err := formats.ParseOBJFile(path)
		if err != nil {
			return err
		}
		fmt.Println(m)
	case ".exr":
		img, err := formats.ParseEXRFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("Image:  %dx%d\n", img.Width, img.Height)
		fmt.Printf("Pixels: %s\n", img.PixelType)
	default:
		sc, err := scene.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("Export path: %s\n", sc.ExportPath)
		fmt.Printf("Frames:      %d-%d step %d (current %d)\n", sc.FrameStart, sc.FrameEnd, sc.FrameStep, sc.FrameCurrent)
		fmt.Printf("Mode:        %s\n", sc.Mode())
		fmt.Println()
		for _, obj := range sc.Objects() {
			line := fmt.Sprintf("  %-20s %-9s", obj.Name, obj.Type)
			if obj.Mesh != nil {
				line += " " + obj.Mesh.String()
			}
			if obj.Export.EnableExport {
				line += " [export]"
			}
			fmt.Println(line)
		}
	}
	return nil
}
