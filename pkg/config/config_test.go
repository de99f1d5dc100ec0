package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfigIsValid ensures the shipped defaults pass validation.
func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

// TestLoadConfigMissingFile verifies that a missing file falls back to
// defaults rather than failing.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.VoxelGrid.NX != DefaultConfig().VoxelGrid.NX {
		t.Errorf("missing file did not yield defaults")
	}
}

// TestLoadConfigOverrides verifies that YAML values override defaults and
// unspecified fields keep them.
func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
voxelGrid:
  nx: 8
  ny: 8
  nz: 4
  xMin: -50
  xMax: 50
  yMin: -50
  yMax: 50
  zMin: -25
  zMax: 25
events:
  chunkSize: 500
  maxEvents: 10000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.VoxelGrid.NX != 8 || cfg.VoxelGrid.NZ != 4 {
		t.Errorf("voxel grid overrides not applied: %+v", cfg.VoxelGrid)
	}
	if cfg.Events.ChunkSize != 500 || cfg.Events.MaxEvents != 10000 {
		t.Errorf("event overrides not applied: %+v", cfg.Events)
	}
	// Untouched section keeps defaults.
	if cfg.SinogramGrid.NTheta != 180 {
		t.Errorf("sinogram default lost: %+v", cfg.SinogramGrid)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

// TestSaveAndReloadConfig round-trips a config through disk.
func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.SinogramGrid.NTheta = 90
	cfg.Events.Table = "coincidences_run2"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got.SinogramGrid.NTheta != 90 || got.Events.Table != "coincidences_run2" {
		t.Errorf("reloaded config lost values: %+v", got)
	}
}

// TestValidateRejectsBadGrids covers the configuration error cases: zero
// bin counts and empty ranges.
func TestValidateRejectsBadGrids(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero nx", func(c *Config) { c.VoxelGrid.NX = 0 }},
		{"negative ny", func(c *Config) { c.VoxelGrid.NY = -1 }},
		{"xMin == xMax", func(c *Config) { c.VoxelGrid.XMin = c.VoxelGrid.XMax }},
		{"zMin > zMax", func(c *Config) { c.VoxelGrid.ZMin = 300 }},
		{"zero nTheta", func(c *Config) { c.SinogramGrid.NTheta = 0 }},
		{"sMin > sMax", func(c *Config) { c.SinogramGrid.SMin = 400 }},
		{"zero chunk size", func(c *Config) { c.Events.ChunkSize = 0 }},
		{"negative max events", func(c *Config) { c.Events.MaxEvents = -1 }},
		{"negative tolerance", func(c *Config) { c.Output.Tolerance = -1e-9 }},
	}
	for _, m := range mutations {
		cfg := DefaultConfig()
		m.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", m.name)
		}
	}
}
