// Package config provides configuration loading and management for
// petsysmat. It handles loading configuration from YAML files, provides
// default values, and validates the grid and run parameters before any
// processing starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"petsysmat/internal/models"
)

// Config represents the estimation run configuration loaded from YAML.
type Config struct {
	// VoxelGrid discretizes the emission-source volume.
	VoxelGrid struct {
		// NX, NY, NZ are the voxel counts per axis.
		NX int `yaml:"nx"`
		NY int `yaml:"ny"`
		NZ int `yaml:"nz"`

		// XMin/XMax etc. bound the grid, in the same units as the
		// simulated source positions.
		XMin float64 `yaml:"xMin"`
		XMax float64 `yaml:"xMax"`
		YMin float64 `yaml:"yMin"`
		YMax float64 `yaml:"yMax"`
		ZMin float64 `yaml:"zMin"`
		ZMax float64 `yaml:"zMax"`
	} `yaml:"voxelGrid"`

	// SinogramGrid discretizes the detection space.
	SinogramGrid struct {
		// NTheta is the number of angular bins over the half rotation.
		NTheta int `yaml:"nTheta"`

		// NS is the number of radial offset bins.
		NS int `yaml:"nS"`

		// SMin, SMax bound the radial offset.
		SMin float64 `yaml:"sMin"`
		SMax float64 `yaml:"sMax"`
	} `yaml:"sinogramGrid"`

	// Events controls how the event stream is consumed.
	Events struct {
		// ChunkSize is the maximum number of records pulled per chunk.
		// It only affects memory use, never the result.
		ChunkSize int `yaml:"chunkSize"`

		// MaxEvents caps the number of records read; 0 means the full
		// stream.
		MaxEvents int64 `yaml:"maxEvents"`

		// NumWorkers bounds the per-angle worker pool within a chunk.
		NumWorkers int `yaml:"numWorkers"`

		// Table selects the event table for SQLite inputs; empty uses
		// the default.
		Table string `yaml:"table"`
	} `yaml:"events"`

	// Output controls verification and reporting.
	Output struct {
		// Tolerance is the numerical slack for the probability checks.
		Tolerance float64 `yaml:"tolerance"`

		// Verbose controls the level of progress output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values: a 64-cubed
// voxel grid over a 400 mm field of view, a 180-angle sinogram, and
// million-event chunks.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.VoxelGrid.NX = 64
	cfg.VoxelGrid.NY = 64
	cfg.VoxelGrid.NZ = 64
	cfg.VoxelGrid.XMin = -200
	cfg.VoxelGrid.XMax = 200
	cfg.VoxelGrid.YMin = -200
	cfg.VoxelGrid.YMax = 200
	cfg.VoxelGrid.ZMin = -200
	cfg.VoxelGrid.ZMax = 200

	cfg.SinogramGrid.NTheta = 180
	cfg.SinogramGrid.NS = 128
	cfg.SinogramGrid.SMin = -300
	cfg.SinogramGrid.SMax = 300

	cfg.Events.ChunkSize = 1_000_000
	cfg.Events.MaxEvents = 0
	cfg.Events.NumWorkers = runtime.NumCPU()

	cfg.Output.Tolerance = 1e-9
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every run parameter and returns the first configuration
// error found. It must pass before any event is processed.
func (cfg *Config) Validate() error {
	if err := cfg.VoxelModel().Validate(); err != nil {
		return err
	}
	if err := cfg.SinogramModel().Validate(); err != nil {
		return err
	}
	if cfg.Events.ChunkSize < 1 {
		return fmt.Errorf("events: chunkSize must be >= 1, got %d", cfg.Events.ChunkSize)
	}
	if cfg.Events.MaxEvents < 0 {
		return fmt.Errorf("events: maxEvents must be >= 0, got %d", cfg.Events.MaxEvents)
	}
	if cfg.Output.Tolerance < 0 {
		return fmt.Errorf("output: tolerance must be >= 0, got %g", cfg.Output.Tolerance)
	}
	return nil
}

// VoxelModel returns the voxel grid as the model type consumed by the
// pipeline components.
func (cfg *Config) VoxelModel() models.VoxelGrid {
	return models.VoxelGrid{
		NX: cfg.VoxelGrid.NX, NY: cfg.VoxelGrid.NY, NZ: cfg.VoxelGrid.NZ,
		XMin: cfg.VoxelGrid.XMin, XMax: cfg.VoxelGrid.XMax,
		YMin: cfg.VoxelGrid.YMin, YMax: cfg.VoxelGrid.YMax,
		ZMin: cfg.VoxelGrid.ZMin, ZMax: cfg.VoxelGrid.ZMax,
	}
}

// SinogramModel returns the sinogram grid as the model type consumed by
// the pipeline components.
func (cfg *Config) SinogramModel() models.SinogramGrid {
	return models.SinogramGrid{
		NTheta: cfg.SinogramGrid.NTheta,
		NS:     cfg.SinogramGrid.NS,
		SMin:   cfg.SinogramGrid.SMin,
		SMax:   cfg.SinogramGrid.SMax,
	}
}
