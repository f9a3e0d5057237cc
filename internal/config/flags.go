package config

import "flag"

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagQuiet        = flag.Bool("quiet", false, "Disable progress output")
	flagExportPath   = flag.String("export-path", "", "Export directory (overrides the scene)")
	flagOnError      = flag.String("on-error", "", "Batch failure policy: abort or continue")
	flagNormalFormat = flag.String("normal-format", "", "Normal texture format: exr, webp, tga or bmp")
	flagTolerance    = flag.Float64("tolerance", 0, "Symmetrize UV tolerance")
)

// ParseFlags parses command-line flags. Call this early in main(). Flags
// must precede the subcommand.
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after the global flags.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagQuiet {
		cfg.Progress.Enabled = false
	}
	if *flagExportPath != "" {
		cfg.Export.Path = *flagExportPath
	}
	if *flagOnError != "" {
		cfg.Export.OnError = *flagOnError
	}
	if *flagNormalFormat != "" {
		cfg.Export.NormalFormat = *flagNormalFormat
	}
	if *flagTolerance > 0 {
		cfg.Tools.Symmetrize.Tolerance = float32(*flagTolerance)
	}
}
