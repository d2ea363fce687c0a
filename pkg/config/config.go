// Package config defines the configuration of a spawnpool run. A single
// Config carries the logging, metrics and tracing settings together with
// the pooled templates and the simulation that drives them.
//
// Example usage:
//
//	cfg, err := config.LoadFile("spawnpool.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	catalog := simulation.NewCatalog(cfg.Templates)
package config

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

// Tracing exporters understood by the observability package.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config is the root configuration structure.
type Config struct {
	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Metrics controls the Prometheus pool metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing controls the OpenTelemetry frame spans
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Templates lists the pooled object templates
	Templates []TemplateConfig `yaml:"templates" json:"templates"`

	// Simulation drives the frame loop
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
}

// MetricsConfig contains the Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TracingConfig contains the OpenTelemetry settings.
type TracingConfig struct {
	// Exporter is "stdout" or "none"
	Exporter    string  `yaml:"exporter" json:"exporter"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// TemplateConfig describes one pooled template and how often the
// simulation spawns it.
type TemplateConfig struct {
	Name                  string                     `yaml:"name" json:"name"`
	PoolCapacity          int                        `yaml:"pool_capacity" json:"pool_capacity"`
	CapacityLimitBehavior pool.CapacityLimitBehavior `yaml:"capacity_limit_behavior" json:"capacity_limit_behavior"`
	// SpawnPerFrame may be fractional; the remainder carries over frames
	SpawnPerFrame float64 `yaml:"spawn_per_frame" json:"spawn_per_frame"`
	// LifetimeFrames is how long a spawned instance stays active
	LifetimeFrames int `yaml:"lifetime_frames" json:"lifetime_frames"`
	// LifetimeJitter adds up to this many random frames to the lifetime
	LifetimeJitter int `yaml:"lifetime_jitter" json:"lifetime_jitter"`
}

// Settings returns the pool settings of the template.
func (t TemplateConfig) Settings() pool.Settings {
	return pool.Settings{
		CapacityLimitBehavior: t.CapacityLimitBehavior,
		PoolCapacity:          t.PoolCapacity,
	}
}

// SimulationConfig contains the frame loop settings.
type SimulationConfig struct {
	Frames int    `yaml:"frames" json:"frames"`
	Seed   uint64 `yaml:"seed" json:"seed"`
	// SweepInterval disposes idle instances every N frames; 0 disables it
	SweepInterval int `yaml:"sweep_interval" json:"sweep_interval"`
	// StrayInterval injects an instance built outside the registry every
	// N frames; 0 disables it
	StrayInterval int `yaml:"stray_interval" json:"stray_interval"`
	// FrameDuration paces the loop; 0 runs frames back to back
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`
}

// Default returns a configuration that runs a small simulation with two
// templates.
func Default() *Config {
	return &Config{
		Logging: logger.Config{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "spawnpool",
		},
		Tracing: TracingConfig{
			Exporter:    ExporterNone,
			ServiceName: "spawnpool",
			SampleRate:  1.0,
		},
		Templates: []TemplateConfig{
			{
				Name:                  "bullet",
				PoolCapacity:          32,
				CapacityLimitBehavior: pool.LimitRecycleOldestActive,
				SpawnPerFrame:         4,
				LifetimeFrames:        6,
				LifetimeJitter:        4,
			},
			{
				Name:                  "enemy",
				PoolCapacity:          8,
				CapacityLimitBehavior: pool.LimitDisposeOnReturn,
				SpawnPerFrame:         0.25,
				LifetimeFrames:        40,
				LifetimeJitter:        20,
			},
		},
		Simulation: SimulationConfig{
			Frames:        600,
			Seed:          1,
			SweepInterval: 120,
		},
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "invalid logging level").
				WithDetail("level", c.Logging.Level)
		}
	}

	switch c.Tracing.Exporter {
	case "", ExporterNone, ExporterStdout:
	default:
		return errors.New(errors.ErrorTypeValidation, "unknown tracing exporter").
			WithDetail("exporter", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New(errors.ErrorTypeValidation, "tracing sample_rate must be within [0, 1]").
			WithDetail("sample_rate", c.Tracing.SampleRate)
	}

	if len(c.Templates) == 0 {
		return errors.New(errors.ErrorTypeValidation, "at least one template is required")
	}
	seen := make(map[string]struct{}, len(c.Templates))
	for i, t := range c.Templates {
		if err := t.validate(); err != nil {
			return err.WithDetail("index", i)
		}
		if _, dup := seen[t.Name]; dup {
			return errors.New(errors.ErrorTypeValidation, "duplicate template name").
				WithDetail("template", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	return c.Simulation.validate()
}

func (t TemplateConfig) validate() *errors.Error {
	switch {
	case t.Name == "":
		return errors.New(errors.ErrorTypeValidation, "template name is required")
	case t.PoolCapacity < 1:
		return errors.New(errors.ErrorTypeValidation, "pool_capacity must be at least 1").
			WithDetail("template", t.Name)
	case !t.CapacityLimitBehavior.Valid():
		return errors.New(errors.ErrorTypeValidation, "unknown capacity_limit_behavior").
			WithDetail("template", t.Name)
	case t.SpawnPerFrame < 0:
		return errors.New(errors.ErrorTypeValidation, "spawn_per_frame cannot be negative").
			WithDetail("template", t.Name)
	case t.LifetimeFrames < 1:
		return errors.New(errors.ErrorTypeValidation, "lifetime_frames must be at least 1").
			WithDetail("template", t.Name)
	case t.LifetimeJitter < 0:
		return errors.New(errors.ErrorTypeValidation, "lifetime_jitter cannot be negative").
			WithDetail("template", t.Name)
	}
	return nil
}

func (s SimulationConfig) validate() error {
	switch {
	case s.Frames < 1:
		return errors.New(errors.ErrorTypeValidation, "simulation frames must be at least 1")
	case s.SweepInterval < 0:
		return errors.New(errors.ErrorTypeValidation, "sweep_interval cannot be negative")
	case s.StrayInterval < 0:
		return errors.New(errors.ErrorTypeValidation, "stray_interval cannot be negative")
	case s.FrameDuration < 0:
		return errors.New(errors.ErrorTypeValidation, "frame_duration cannot be negative")
	}
	return nil
}
