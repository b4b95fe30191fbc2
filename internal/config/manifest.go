package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/banshee-data/raster.report/internal/units"
	"gopkg.in/yaml.v3"
)

// Job is one comparison in a batch manifest. Empty optional fields fall back
// to the tool configuration.
type Job struct {
	Label       string  `yaml:"label"`
	Raster1     string  `yaml:"raster1"`
	Raster2     string  `yaml:"raster2"`
	Zones       string  `yaml:"zones"`
	IDField     *string `yaml:"id_field,omitempty"`
	Unit        string  `yaml:"unit,omitempty"`
	Aggregation string  `yaml:"aggregation,omitempty"`
	KeepDiff    string  `yaml:"keep_diff,omitempty"`
	Plots       string  `yaml:"plots,omitempty"`
	JSON        string  `yaml:"json,omitempty"`
}

// Manifest is a YAML list of comparison jobs run in order.
type Manifest struct {
	DBPath string `yaml:"db_path,omitempty"`
	Jobs   []Job  `yaml:"jobs"`
}

// LoadManifest reads and validates a batch manifest. Relative paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("manifest must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("manifest too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	m.resolve(filepath.Dir(cleanPath))
	return &m, nil
}

// Validate checks that every job names its inputs and that labels are unique.
func (m *Manifest) Validate() error {
	if len(m.Jobs) == 0 {
		return errors.New("no jobs")
	}
	seen := make(map[string]bool, len(m.Jobs))
	for i, j := range m.Jobs {
		switch {
		case j.Label == "":
			return fmt.Errorf("job %d: label is required", i+1)
		case j.Raster1 == "" || j.Raster2 == "":
			return fmt.Errorf("job %s: raster1 and raster2 are required", j.Label)
		case j.Zones == "":
			return fmt.Errorf("job %s: zones is required", j.Label)
		}
		if seen[j.Label] {
			return fmt.Errorf("duplicate job label %q", j.Label)
		}
		seen[j.Label] = true
		if j.Unit != "" && !units.IsValid(j.Unit) {
			return fmt.Errorf("job %s: unit must be one of %s, got %q", j.Label, units.GetValidUnitsString(), j.Unit)
		}
		if j.Aggregation != "" && !compare.Aggregation(j.Aggregation).Valid() {
			return fmt.Errorf("job %s: unknown aggregation %q", j.Label, j.Aggregation)
		}
	}
	return nil
}

func (m *Manifest) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	m.DBPath = abs(m.DBPath)
	for i := range m.Jobs {
		j := &m.Jobs[i]
		j.Raster1 = abs(j.Raster1)
		j.Raster2 = abs(j.Raster2)
		j.Zones = abs(j.Zones)
		j.KeepDiff = abs(j.KeepDiff)
		j.Plots = abs(j.Plots)
		j.JSON = abs(j.JSON)
	}
}

// Options overlays the job's settings on the configured comparison options.
func (j Job) Options(cfg *Config) compare.Options {
	opts := cfg.CompareOptions()
	if j.Unit != "" {
		opts.Unit = j.Unit
	}
	if j.Aggregation != "" {
		opts.Aggregation = compare.Aggregation(j.Aggregation)
	}
	opts.KeepDifference = j.KeepDiff != "" || j.Plots != ""
	return opts
}

// ZoneIDField returns the job's id attribute, or the configured one.
func (j Job) ZoneIDField(cfg *Config) string {
	if j.IDField != nil {
		return *j.IDField
	}
	return cfg.GetIDField()
}
