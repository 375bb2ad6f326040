// Package config loads sfcsim settings from YAML and environment variables.
//
// Order: defaults, then ~/.sfcsim/config.yaml (or an explicit file), then
// SFCSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sfcsim/internal/driver"
	"github.com/nvandessel/sfcsim/internal/model"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SFCSIM_"

// Config contains all sfcsim settings.
type Config struct {
	Solver    SolverConfig    `json:"solver" yaml:"solver" envPrefix:"SOLVER_"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	Store     StoreConfig     `json:"store" yaml:"store" envPrefix:"STORE_"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"OTEL_"`
}

// SolverConfig holds the driver and inner solver settings.
type SolverConfig struct {
	MaxOuterIterations int     `json:"max_outer_iterations" yaml:"max_outer_iterations" env:"MAX_OUTER_ITERATIONS"`
	InnerIterations    int     `json:"inner_iterations" yaml:"inner_iterations" env:"INNER_ITERATIONS"`
	InnerTolerance     float64 `json:"inner_tolerance" yaml:"inner_tolerance" env:"INNER_TOLERANCE"`
	ConvergenceRTol    float64 `json:"convergence_rtol" yaml:"convergence_rtol" env:"CONVERGENCE_RTOL"`
	ConvergenceATol    float64 `json:"convergence_atol" yaml:"convergence_atol" env:"CONVERGENCE_ATOL"`
	Decimals           int     `json:"decimals" yaml:"decimals" env:"DECIMALS"`

	// Method is "gauss-seidel" (default) or "newton".
	Method string `json:"method" yaml:"method" env:"METHOD"`

	// Rescale disables the between-iteration rescaling when false.
	Rescale bool `json:"rescale" yaml:"rescale" env:"RESCALE"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is "info" (default), "debug" or "trace". Debug and trace also
	// write iterations.jsonl to the store directory.
	Level string `json:"level" yaml:"level" env:"LEVEL"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	// Dir holds runs.db and iterations.jsonl. Default: ~/.sfcsim.
	Dir string `json:"dir" yaml:"dir" env:"DIR"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in settings.
func Default() *Config {
	d := driver.DefaultOptions()
	return &Config{
		Solver: SolverConfig{
			MaxOuterIterations: d.MaxOuterIterations,
			InnerIterations:    d.InnerIterations,
			InnerTolerance:     d.InnerTolerance,
			ConvergenceRTol:    d.ConvergenceRTol,
			ConvergenceATol:    d.ConvergenceATol,
			Decimals:           d.Decimals,
			Method:             string(model.MethodGaussSeidel),
			Rescale:            true,
		},
		Logging: LoggingConfig{Level: "info"},
		Store:   StoreConfig{Dir: DefaultDir()},
		Telemetry: TelemetryConfig{
			ServiceName: "sfcsim",
		},
	}
}

// DefaultDir returns ~/.sfcsim, or .sfcsim when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sfcsim"
	}
	return filepath.Join(home, ".sfcsim")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads path (or DefaultPath when empty) if it exists and applies
// environment overrides. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		file = DefaultPath()
	}
	if _, err := os.Stat(file); err == nil {
		loaded, err := LoadFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = loaded
	} else if path != "" {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Store.Dir = os.ExpandEnv(cfg.Store.Dir)
	return cfg, nil
}

// ApplyEnv overrides cfg with any SFCSIM_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes cfg as YAML to path, creating the directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if err := c.DriverOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseMethod(c.Solver.Method); err != nil {
		errs = append(errs, err)
	}
	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: info, debug, trace, warn, error)", c.Logging.Level))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.enabled requires telemetry.endpoint"))
	}
	return errors.Join(errs...)
}

// DriverOptions converts the solver settings to driver options. Table,
// Logger and Observer are left for the caller.
func (c *Config) DriverOptions() driver.Options {
	return driver.Options{
		MaxOuterIterations: c.Solver.MaxOuterIterations,
		InnerIterations:    c.Solver.InnerIterations,
		InnerTolerance:     c.Solver.InnerTolerance,
		ConvergenceRTol:    c.Solver.ConvergenceRTol,
		ConvergenceATol:    c.Solver.ConvergenceATol,
		Decimals:           c.Solver.Decimals,
	}
}

// Keys lists the dot-notation keys accepted by Get and Set.
func Keys() []string {
	return []string{
		"solver.max_outer_iterations",
		"solver.inner_iterations",
		"solver.inner_tolerance",
		"solver.convergence_rtol",
		"solver.convergence_atol",
		"solver.decimals",
		"solver.method",
		"solver.rescale",
		"logging.level",
		"store.dir",
		"telemetry.enabled",
		"telemetry.endpoint",
		"telemetry.service_name",
	}
}

// Get returns a setting by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "solver.max_outer_iterations":
		return c.Solver.MaxOuterIterations, true
	case "solver.inner_iterations":
		return c.Solver.InnerIterations, true
	case "solver.inner_tolerance":
		return c.Solver.InnerTolerance, true
	case "solver.convergence_rtol":
		return c.Solver.ConvergenceRTol, true
	case "solver.convergence_atol":
		return c.Solver.ConvergenceATol, true
	case "solver.decimals":
		return c.Solver.Decimals, true
	case "solver.method":
		return c.Solver.Method, true
	case "solver.rescale":
		return c.Solver.Rescale, true
	case "logging.level":
		return c.Logging.Level, true
	case "store.dir":
		return c.Store.Dir, true
	case "telemetry.enabled":
		return c.Telemetry.Enabled, true
	case "telemetry.endpoint":
		return c.Telemetry.Endpoint, true
	case "telemetry.service_name":
		return c.Telemetry.ServiceName, true
	default:
		return nil, false
	}
}

// Set parses value into the setting named by key.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "solver.max_outer_iterations":
		c.Solver.MaxOuterIterations, err = strconv.Atoi(value)
	case "solver.inner_iterations":
		c.Solver.InnerIterations, err = strconv.Atoi(value)
	case "solver.inner_tolerance":
		c.Solver.InnerTolerance, err = strconv.ParseFloat(value, 64)
	case "solver.convergence_rtol":
		c.Solver.ConvergenceRTol, err = strconv.ParseFloat(value, 64)
	case "solver.convergence_atol":
		c.Solver.ConvergenceATol, err = strconv.ParseFloat(value, 64)
	case "solver.decimals":
		c.Solver.Decimals, err = strconv.Atoi(value)
	case "solver.method":
		c.Solver.Method = value
	case "solver.rescale":
		c.Solver.Rescale, err = strconv.ParseBool(value)
	case "logging.level":
		c.Logging.Level = value
	case "store.dir":
		c.Store.Dir = value
	case "telemetry.enabled":
		c.Telemetry.Enabled, err = strconv.ParseBool(value)
	case "telemetry.endpoint":
		c.Telemetry.Endpoint = value
	case "telemetry.service_name":
		c.Telemetry.ServiceName = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
