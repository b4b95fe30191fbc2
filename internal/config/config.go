// Package config loads the raster-report tool configuration (JSON) and batch
// manifests (YAML).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/banshee-data/raster.report/internal/units"
	"github.com/banshee-data/raster.report/internal/vdatum"
	"github.com/banshee-data/raster.report/internal/xsection"
	"github.com/banshee-data/raster.report/internal/zones"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/raster.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds tool settings. Fields omitted from the JSON file fall back to
// the defaults returned by the Get* methods, so partial configs are safe.
type Config struct {
	// Comparison
	Tolerance          *float64 `json:"tolerance,omitempty"`
	Unit               *string  `json:"unit,omitempty"`
	IDField            *string  `json:"id_field,omitempty"`
	Aggregation        *string  `json:"aggregation,omitempty"`
	SpillIntermediates *bool    `json:"spill_intermediates,omitempty"`
	ScratchDir         *string  `json:"scratch_dir,omitempty"`

	// Datum grids
	BufferDistance *float64 `json:"buffer_distance,omitempty"`

	// Cross sections
	ProfileSpacing *float64 `json:"profile_spacing,omitempty"`
	ThinEvery      *int     `json:"thin_every,omitempty"`

	// Result store
	DBPath *string `json:"db_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Tolerance:          ptrFloat64(compare.DefaultTolerance),
		Unit:               ptrString(units.Meters),
		IDField:            ptrString(zones.DefaultIDField),
		Aggregation:        ptrString(string(compare.AggregationAdditive)),
		SpillIntermediates: ptrBool(false),
		ScratchDir:         ptrString(""),
		BufferDistance:     ptrFloat64(vdatum.DefaultBufferDistance),
		ProfileSpacing:     ptrFloat64(xsection.DefaultSpacing),
		ThinEvery:          ptrInt(xsection.DefaultThinEvery),
		DBPath:             ptrString(""),
	}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Tolerance != nil && *c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %f", *c.Tolerance)
	}
	if c.Unit != nil && !units.IsValid(*c.Unit) {
		return fmt.Errorf("unit must be one of %s, got %q", units.GetValidUnitsString(), *c.Unit)
	}
	if c.Aggregation != nil && !compare.Aggregation(*c.Aggregation).Valid() {
		return fmt.Errorf("aggregation must be %q or %q, got %q",
			compare.AggregationAdditive, compare.AggregationPooled, *c.Aggregation)
	}
	if c.BufferDistance != nil && *c.BufferDistance < 0 {
		return fmt.Errorf("buffer_distance must be non-negative, got %f", *c.BufferDistance)
	}
	if c.ProfileSpacing != nil && *c.ProfileSpacing <= 0 {
		return fmt.Errorf("profile_spacing must be positive, got %f", *c.ProfileSpacing)
	}
	if c.ThinEvery != nil && *c.ThinEvery < 1 {
		return fmt.Errorf("thin_every must be at least 1, got %d", *c.ThinEvery)
	}
	if c.GetSpillIntermediates() && c.GetScratchDir() == "" {
		return fmt.Errorf("spill_intermediates requires scratch_dir")
	}
	return nil
}

// GetTolerance returns the tolerance value or the default.
func (c *Config) GetTolerance() float64 {
	if c.Tolerance == nil {
		return compare.DefaultTolerance
	}
	return *c.Tolerance
}

// GetUnit returns the unit value or the default.
func (c *Config) GetUnit() string {
	if c.Unit == nil || *c.Unit == "" {
		return units.Meters
	}
	return *c.Unit
}

// GetIDField returns the zone id attribute. An explicit empty string selects
// row numbering.
func (c *Config) GetIDField() string {
	if c.IDField == nil {
		return zones.DefaultIDField
	}
	return *c.IDField
}

// GetAggregation returns the aggregation value or the default.
func (c *Config) GetAggregation() compare.Aggregation {
	if c.Aggregation == nil || *c.Aggregation == "" {
		return compare.AggregationAdditive
	}
	return compare.Aggregation(*c.Aggregation)
}

// GetSpillIntermediates returns the spill_intermediates value or the default.
func (c *Config) GetSpillIntermediates() bool {
	if c.SpillIntermediates == nil {
		return false
	}
	return *c.SpillIntermediates
}

// GetScratchDir returns the scratch_dir value or the default.
func (c *Config) GetScratchDir() string {
	if c.ScratchDir == nil {
		return ""
	}
	return *c.ScratchDir
}

// GetBufferDistance returns the buffer_distance value or the default.
func (c *Config) GetBufferDistance() float64 {
	if c.BufferDistance == nil {
		return vdatum.DefaultBufferDistance
	}
	return *c.BufferDistance
}

// GetProfileSpacing returns the profile_spacing value or the default.
func (c *Config) GetProfileSpacing() float64 {
	if c.ProfileSpacing == nil {
		return xsection.DefaultSpacing
	}
	return *c.ProfileSpacing
}

// GetThinEvery returns the thin_every value or the default.
func (c *Config) GetThinEvery() int {
	if c.ThinEvery == nil {
		return xsection.DefaultThinEvery
	}
	return *c.ThinEvery
}

// GetDBPath returns the db_path value, empty when results are not stored.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// CompareOptions builds comparison options from the config.
func (c *Config) CompareOptions() compare.Options {
	opts := compare.DefaultOptions()
	opts.Tolerance = c.GetTolerance()
	opts.Unit = c.GetUnit()
	opts.Aggregation = c.GetAggregation()
	opts.SpillIntermediates = c.GetSpillIntermediates()
	opts.ScratchDir = c.GetScratchDir()
	return opts
}
