package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tolerance == nil || *cfg.Tolerance != 0.01 {
		t.Errorf("Expected Tolerance 0.01, got %v", cfg.Tolerance)
	}
	if cfg.IDField == nil || *cfg.IDField != "OBJECTID" {
		t.Errorf("Expected IDField OBJECTID, got %v", cfg.IDField)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}

	empty := EmptyConfig()
	if diff := cmp.Diff(cfg.CompareOptions(), empty.CompareOptions()); diff != "" {
		t.Errorf("getters on an empty config should match defaults (-default +empty):\n%s", diff)
	}
	if empty.GetBufferDistance() != 9000 {
		t.Errorf("GetBufferDistance() = %f, want 9000", empty.GetBufferDistance())
	}
	if empty.GetThinEvery() != 15 {
		t.Errorf("GetThinEvery() = %d, want 15", empty.GetThinEvery())
	}
	if empty.GetProfileSpacing() != 1 {
		t.Errorf("GetProfileSpacing() = %f, want 1", empty.GetProfileSpacing())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults file differs from DefaultConfig (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Partial(t *testing.T) {
	path := writeFile(t, t.TempDir(), "partial.json", `{
  "tolerance": 0.05,
  "unit": "feet",
  "id_field": "",
  "aggregation": "pooled"
}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	opts := cfg.CompareOptions()
	if opts.Tolerance != 0.05 {
		t.Errorf("Tolerance = %f, want 0.05", opts.Tolerance)
	}
	if opts.Unit != "feet" {
		t.Errorf("Unit = %q, want feet", opts.Unit)
	}
	if opts.Aggregation != compare.AggregationPooled {
		t.Errorf("Aggregation = %q, want pooled", opts.Aggregation)
	}
	if cfg.GetIDField() != "" {
		t.Errorf("explicit empty id_field should select row numbering, got %q", cfg.GetIDField())
	}
	if cfg.GetThinEvery() != 15 {
		t.Errorf("omitted thin_every should default to 15, got %d", cfg.GetThinEvery())
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"tolerance":`, "parse config JSON"},
		{"zero tolerance", "tol.json", `{"tolerance": 0}`, "tolerance must be positive"},
		{"bad unit", "unit.json", `{"unit": "furlongs"}`, "unit must be one of"},
		{"bad aggregation", "agg.json", `{"aggregation": "median"}`, "aggregation must be"},
		{"negative buffer", "buf.json", `{"buffer_distance": -1}`, "buffer_distance"},
		{"zero spacing", "sp.json", `{"profile_spacing": 0}`, "profile_spacing"},
		{"zero thin", "thin.json", `{"thin_every": 0}`, "thin_every"},
		{"spill without dir", "spill.json", `{"spill_intermediates": true}`, "scratch_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, make([]byte, maxFileSize+1), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jobs.yaml", `
db_path: results.db
jobs:
  - label: Ophir
    raster1: a.asc
    raster2: /data/b.asc
    zones: aoi.shp
  - label: Catlins
    raster1: c.asc
    raster2: d.asc
    zones: aoi.shp
    id_field: ""
    unit: feet
    aggregation: pooled
    plots: plots
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(m.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(m.Jobs))
	}
	if m.DBPath != filepath.Join(dir, "results.db") {
		t.Errorf("DBPath = %q", m.DBPath)
	}
	first := m.Jobs[0]
	if first.Raster1 != filepath.Join(dir, "a.asc") || first.Raster2 != "/data/b.asc" {
		t.Errorf("paths not resolved: %q %q", first.Raster1, first.Raster2)
	}

	cfg := DefaultConfig()
	if got := first.ZoneIDField(cfg); got != "OBJECTID" {
		t.Errorf("ZoneIDField() = %q, want OBJECTID", got)
	}
	if opts := first.Options(cfg); opts.KeepDifference || opts.Aggregation != compare.AggregationAdditive {
		t.Errorf("unexpected options for first job: %+v", opts)
	}

	second := m.Jobs[1]
	if got := second.ZoneIDField(cfg); got != "" {
		t.Errorf("ZoneIDField() = %q, want row numbering", got)
	}
	opts := second.Options(cfg)
	if opts.Unit != "feet" || opts.Aggregation != compare.AggregationPooled || !opts.KeepDifference {
		t.Errorf("unexpected options for second job: %+v", opts)
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "jobs.json", `jobs: []`, "extension"},
		{"bad yaml", "bad.yaml", "jobs: [", "parse manifest"},
		{"no jobs", "empty.yaml", "jobs: []", "no jobs"},
		{"missing label", "label.yaml", "jobs:\n  - raster1: a\n    raster2: b\n    zones: z\n", "label is required"},
		{"missing raster", "r.yaml", "jobs:\n  - label: x\n    raster1: a\n    zones: z\n", "raster2 are required"},
		{"missing zones", "z.yaml", "jobs:\n  - label: x\n    raster1: a\n    raster2: b\n", "zones is required"},
		{"duplicate", "dup.yaml", "jobs:\n  - {label: x, raster1: a, raster2: b, zones: z}\n  - {label: x, raster1: a, raster2: b, zones: z}\n", "duplicate"},
		{"bad unit", "u.yaml", "jobs:\n  - {label: x, raster1: a, raster2: b, zones: z, unit: leagues}\n", "unit must be"},
		{"bad aggregation", "a.yml", "jobs:\n  - {label: x, raster1: a, raster2: b, zones: z, aggregation: max}\n", "aggregation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := LoadManifest(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadManifest() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
