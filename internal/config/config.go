// Package config loads cogo run configuration from YAML, .env files and
// COGO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/surveytools/cogo/core"
	"github.com/surveytools/cogo/export"
	"github.com/surveytools/cogo/internal/logging"
	"github.com/surveytools/cogo/internal/observability"
	"github.com/surveytools/cogo/model"
)

// ErrInvalid reports a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full run configuration.
type Config struct {
	Tolerances  ToleranceConfig             `yaml:"tolerances"`
	Workers     int                         `yaml:"workers"`
	Instrument  core.InstrumentModel        `yaml:"instrument"`
	Orientation OrientationConfig           `yaml:"orientation"`
	Export      ExportConfig                `yaml:"export"`
	Store       StoreConfig                 `yaml:"store"`
	Logging     LoggingConfig               `yaml:"logging"`
	Tracing     observability.TracingConfig `yaml:"tracing"`
}

// ToleranceConfig holds angle tolerances as D:M:S text and the distance
// tolerance in metres.
type ToleranceConfig struct {
	Horizontal string  `yaml:"horizontal"`
	Zenith     string  `yaml:"zenith"`
	Distance   float64 `yaml:"distance"`
}

// OrientationConfig gives each station's horizontal circle offset as D:M:S
// text. Stations not listed use Default.
type OrientationConfig struct {
	Default  string            `yaml:"default"`
	Stations map[string]string `yaml:"stations"`
}

// ExportConfig selects the Columbus flavour and its options.
type ExportConfig struct {
	Kind             string `yaml:"kind"`
	Backsight        string `yaml:"backsight"`
	HorizontalOffset string `yaml:"horizontal_offset"`
	ZenithOffset     string `yaml:"zenith_offset"`
}

// StoreConfig points at the SQLite run database; empty disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig mirrors logging.Config in YAML form.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns 30" angle tolerances, 0.01 m distance tolerance,
// sequential reduction and azimuth export.
func DefaultConfig() *Config {
	return &Config{
		Tolerances: ToleranceConfig{
			Horizontal: "0:0:30",
			Zenith:     "0:0:30",
			Distance:   0.01,
		},
		Workers: 1,
		Orientation: OrientationConfig{
			Default:  "0:0:0",
			Stations: map[string]string{},
		},
		Export: ExportConfig{
			Kind:             string(export.ColumbusAzimuth),
			Backsight:        export.DefaultBacksight,
			HorizontalOffset: "0:0:0",
			ZenithOffset:     "0:0:0",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored and variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads the YAML file at path over the defaults, then applies COGO_*
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COGO_HORIZONTAL_TOLERANCE"); v != "" {
		c.Tolerances.Horizontal = v
	}
	if v := os.Getenv("COGO_ZENITH_TOLERANCE"); v != "" {
		c.Tolerances.Zenith = v
	}
	if v := os.Getenv("COGO_DISTANCE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tolerances.Distance = f
		}
	}
	if v := os.Getenv("COGO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("COGO_INSTRUMENT"); v != "" {
		c.Instrument.Name = v
	}
	if v := os.Getenv("COGO_EXPORT_KIND"); v != "" {
		c.Export.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("COGO_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	c.Tracing = c.Tracing.WithEnv()
}

// Validate checks every angle field parses and the numeric fields are sane.
func (c *Config) Validate() error {
	angles := []struct {
		name, text string
	}{
		{"tolerances.horizontal", c.Tolerances.Horizontal},
		{"tolerances.zenith", c.Tolerances.Zenith},
		{"orientation.default", c.Orientation.Default},
		{"export.horizontal_offset", c.Export.HorizontalOffset},
		{"export.zenith_offset", c.Export.ZenithOffset},
	}
	for code, text := range c.Orientation.Stations {
		angles = append(angles, struct{ name, text string }{"orientation.stations." + code, text})
	}
	for _, a := range angles {
		if _, err := parseOptionalAngle(a.text); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, a.name, err)
		}
	}
	if c.Tolerances.Distance < 0 {
		return fmt.Errorf("%w: tolerances.distance must not be negative", ErrInvalid)
	}
	if _, err := export.ParseColumbusKind(c.Export.Kind); err != nil {
		return fmt.Errorf("%w: export.kind: %v", ErrInvalid, err)
	}
	return nil
}

// ReductionTolerances converts the text tolerances to decimal degrees.
func (c *Config) ReductionTolerances() (core.Tolerances, error) {
	h, err := parseOptionalAngle(c.Tolerances.Horizontal)
	if err != nil {
		return core.Tolerances{}, fmt.Errorf("%w: tolerances.horizontal: %v", ErrInvalid, err)
	}
	z, err := parseOptionalAngle(c.Tolerances.Zenith)
	if err != nil {
		return core.Tolerances{}, fmt.Errorf("%w: tolerances.zenith: %v", ErrInvalid, err)
	}
	return core.Tolerances{
		Horizontal: h.DecimalDegrees(),
		Zenith:     z.DecimalDegrees(),
		Distance:   c.Tolerances.Distance,
	}, nil
}

// OrientationFor returns the orientation offset of a station code. Values
// are validated by Load, so unparsable text here falls back to zero.
func (c *Config) OrientationFor(code string) model.Angle {
	text, ok := c.Orientation.Stations[code]
	if !ok {
		text = c.Orientation.Default
	}
	a, _ := parseOptionalAngle(text)
	return a
}

// ResolveInstrument picks the configured instrument, then the field-book
// model name, then the defaults. Unset numeric fields of a configured
// model are filled from the matching known model.
func (c *Config) ResolveInstrument(bookModel string) core.InstrumentModel {
	name := c.Instrument.Name
	if name == "" {
		name = bookModel
	}
	known, _ := core.LookupInstrument(name)
	override := c.Instrument
	override.Name = known.Name
	return override.Merge(known)
}

// ColumbusOptions converts the export section.
func (c *Config) ColumbusOptions(directionSet string) (export.ColumbusOptions, error) {
	kind, err := export.ParseColumbusKind(c.Export.Kind)
	if err != nil {
		return export.ColumbusOptions{}, err
	}
	h, err := parseOptionalAngle(c.Export.HorizontalOffset)
	if err != nil {
		return export.ColumbusOptions{}, fmt.Errorf("%w: export.horizontal_offset: %v", ErrInvalid, err)
	}
	z, err := parseOptionalAngle(c.Export.ZenithOffset)
	if err != nil {
		return export.ColumbusOptions{}, fmt.Errorf("%w: export.zenith_offset: %v", ErrInvalid, err)
	}
	return export.ColumbusOptions{
		Kind:             kind,
		Backsight:        c.Export.Backsight,
		HorizontalOffset: h.DecimalDegrees(),
		ZenithOffset:     z.DecimalDegrees(),
		DirectionSet:     directionSet,
	}, nil
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
}

func parseOptionalAngle(text string) (model.Angle, error) {
	if strings.TrimSpace(text) == "" {
		return model.Angle{}, nil
	}
	return model.ParseAngle(strings.TrimSpace(text), ":")
}
