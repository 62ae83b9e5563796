package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/shrinkwrap/shrinkwrap"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Shrinkwrap.Mode != "nearest_surface" {
		t.Errorf("expected mode nearest_surface, got %s", cfg.Shrinkwrap.Mode)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Output != "out.stl" {
		t.Errorf("expected output out.stl, got %s", cfg.Output)
	}
	p, err := cfg.Params(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != (shrinkwrap.NearestSurface{Snap: shrinkwrap.OnSurface}) {
		t.Errorf("unexpected default mode %v", p.Mode)
	}
	if !p.LocalToTarget.IsIdentity() {
		t.Error("expected identity transform by default")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error validating config without meshes")
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "shrinkwrap.yaml")
	yamlContent := `
source: "in.obj"
target: "target.stl"
output: "wrapped.stl"
shrinkwrap:
  mode: project
  snap: outside_surface
  keep_distance: 0.25
  project:
    axes: zx
    negative: true
    cull: back
    limit: 3
  transform:
    offset: [1, 2, 3]
logging:
  level: debug
  log_file: "wrap.log"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Source != "in.obj" || cfg.Target != "target.stl" || cfg.Output != "wrapped.stl" {
		t.Errorf("unexpected paths %q %q %q", cfg.Source, cfg.Target, cfg.Output)
	}
	if cfg.Logging.LogFile != "wrap.log" {
		t.Errorf("expected log file 'wrap.log', got %s", cfg.Logging.LogFile)
	}
	p, err := cfg.Params(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := shrinkwrap.Project{
		Axes:     shrinkwrap.AxisX | shrinkwrap.AxisZ,
		Positive: true, // Kept from defaults.
		Negative: true,
		Cull:     shrinkwrap.CullBack,
		Limit:    3,
		Snap:     shrinkwrap.OutsideSurface,
	}
	if p.Mode != want {
		t.Errorf("got mode %+v, want %+v", p.Mode, want)
	}
	if p.KeepDistance != 0.25 {
		t.Errorf("expected keep distance 0.25, got %g", p.KeepDistance)
	}
	got := p.LocalToTarget.Transform(r3.Vec{})
	if got != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("origin maps to %v", got)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
shrinkwrap:
  keep_distance: not a number
  invalid syntax here
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
	if err := loadFromFile(Default(), "/nonexistent/path/shrinkwrap.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Source = "a.stl"
	cfg.Shrinkwrap.Mode = "target_project"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	got := &Config{}
	if err := loadFromFile(got, path); err != nil {
		t.Fatal(err)
	}
	if *got != *cfg {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"mode", func(c *Config) { c.Shrinkwrap.Mode = "wrap" }},
		{"snap", func(c *Config) { c.Shrinkwrap.Snap = "beside" }},
		{"axes", func(c *Config) { c.Shrinkwrap.Mode = "project"; c.Shrinkwrap.Project.Axes = "xw" }},
		{"cull", func(c *Config) { c.Shrinkwrap.Mode = "project"; c.Shrinkwrap.Project.Cull = "side" }},
		{"no direction", func(c *Config) { c.Shrinkwrap.Mode = "project"; c.Shrinkwrap.Project.Positive = false }},
		{"negative limit", func(c *Config) { c.Shrinkwrap.Mode = "project"; c.Shrinkwrap.Project.Limit = -1 }},
		{"rotation axis", func(c *Config) { c.Shrinkwrap.Transform.RotateDeg = 90 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			if _, err := cfg.Params(nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseCull(t *testing.T) {
	for s, want := range map[string]shrinkwrap.Cull{
		"":      shrinkwrap.CullNone,
		"none":  shrinkwrap.CullNone,
		"front": shrinkwrap.CullFront,
		"back":  shrinkwrap.CullBack,
		"both":  shrinkwrap.CullBoth,
	} {
		got, err := ParseCull(s)
		if err != nil {
			t.Errorf("ParseCull(%q): %v", s, err)
		} else if got != want {
			t.Errorf("ParseCull(%q) = %d, want %d", s, got, want)
		}
	}
}

func TestTransformRotation(t *testing.T) {
	cfg := Default()
	cfg.Shrinkwrap.Transform = TransformConfig{
		Scale:      2,
		RotateAxis: [3]float64{0, 0, 1},
		RotateDeg:  90,
		Offset:     [3]float64{0, 0, 1},
	}
	p, err := cfg.Params(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := p.LocalToTarget.Transform(r3.Vec{X: 1})
	want := r3.Vec{Y: 2, Z: 1}
	if r3.Norm(r3.Sub(got, want)) > 1e-12 {
		t.Errorf("got %v, want %v", got, want)
	}
	if math.Abs(p.LocalToTarget.Det()-8) > 1e-9 {
		t.Errorf("determinant %g, want 8", p.LocalToTarget.Det())
	}
}

func TestApplyFlags(t *testing.T) {
	*flagDebug = true
	*flagMode = "target_project"
	*flagKeep = 0.5
	defer func() {
		*flagDebug = false
		*flagMode = ""
		*flagKeep = 0
	}()
	cfg := Default()
	applyFlags(cfg)
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Shrinkwrap.Mode != "target_project" {
		t.Errorf("expected mode target_project, got %s", cfg.Shrinkwrap.Mode)
	}
	if cfg.Shrinkwrap.KeepDistance != 0.5 {
		t.Errorf("expected keep distance 0.5, got %g", cfg.Shrinkwrap.KeepDistance)
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "shrinkwrap.yaml")
	yamlContent := `
source: "file.stl"
target: "target.stl"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	*flagSource = "flag.stl"
	defer func() {
		*flagConfig = ""
		*flagSource = ""
	}()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Source != "flag.stl" {
		t.Errorf("expected source from flag, got %s", cfg.Source)
	}
	if cfg.Target != "target.stl" {
		t.Errorf("expected target from file, got %s", cfg.Target)
	}
}
