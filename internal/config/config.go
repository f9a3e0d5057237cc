// Package config handles assetforge configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Failure policies for batch export.
const (
	OnErrorAbort    = "abort"
	OnErrorContinue = "continue"
)

// Accepted values of the enumerated settings. Formats and axes are
// matched case-insensitively.
var (
	normalFormats = []string{"exr", "webp", "tga", "bmp"}
	pixelTypes    = []string{"float", "half"}
	axes          = []string{"x", "y", "z"}
)

// Config holds all assetforge settings.
type Config struct {
	Export   ExportConfig   `yaml:"export"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
	Progress ProgressConfig `yaml:"progress"`

	source string
}

// ExportConfig holds batch export settings.
type ExportConfig struct {
	Path         string   `yaml:"path"`           // Overrides the scene's export path when set
	OnError      string   `yaml:"on_error"`       // abort or continue
	NormalFormat string   `yaml:"normal_format"`  // exr, webp, tga or bmp
	EXRPixelType string   `yaml:"exr_pixel_type"` // float or half
	AllowedTypes []string `yaml:"allowed_types"`  // Object types eligible for export
}

// ToolsConfig holds mesh tool settings.
type ToolsConfig struct {
	Symmetrize SymmetrizeConfig `yaml:"symmetrize"`
}

// SymmetrizeConfig holds mirror-symmetrize settings.
type SymmetrizeConfig struct {
	Tolerance float32 `yaml:"tolerance"`
	Axis      string  `yaml:"axis"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// ProgressConfig holds terminal progress bar settings.
type ProgressConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			Path:         "",
			OnError:      OnErrorAbort,
			NormalFormat: "webp",
			EXRPixelType: "float",
			AllowedTypes: []string{"MESH"},
		},
		Tools: ToolsConfig{
			Symmetrize: SymmetrizeConfig{
				Tolerance: 0.001,
				Axis:      "x",
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Progress: ProgressConfig{
			Enabled:  true,
			Interval: 100 * time.Millisecond,
		},
	}
}

// Validate checks that enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.Export.OnError {
	case OnErrorAbort, OnErrorContinue:
	default:
		return fmt.Errorf("%w: export.on_error %q", ErrInvalidConfig, c.Export.OnError)
	}
	if !slices.Contains(normalFormats, strings.ToLower(strings.TrimPrefix(c.Export.NormalFormat, "."))) {
		return fmt.Errorf("%w: export.normal_format %q", ErrInvalidConfig, c.Export.NormalFormat)
	}
	if !slices.Contains(pixelTypes, c.Export.EXRPixelType) {
		return fmt.Errorf("%w: export.exr_pixel_type %q", ErrInvalidConfig, c.Export.EXRPixelType)
	}
	if len(c.Export.AllowedTypes) == 0 {
		return fmt.Errorf("%w: export.allowed_types is empty", ErrInvalidConfig)
	}
	if c.Tools.Symmetrize.Tolerance <= 0 {
		return fmt.Errorf("%w: tools.symmetrize.tolerance must be positive", ErrInvalidConfig)
	}
	if !slices.Contains(axes, strings.ToLower(c.Tools.Symmetrize.Axis)) {
		return fmt.Errorf("%w: tools.symmetrize.axis %q", ErrInvalidConfig, c.Tools.Symmetrize.Axis)
	}
	return nil
}

// Source returns the file the config was loaded from, or "" for defaults.
func (c *Config) Source() string {
	return c.source
}
