// Package config loads the gantry and server settings from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/carm/internal/carm"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/carm.defaults.json"

const (
	DefaultListen              = ":8080"
	DefaultDBPath              = "carm_sessions.db"
	DefaultSessionTimeout      = 5 * time.Minute
	DefaultMaintenanceInterval = time.Minute
	DefaultSampleSeed          = 1
)

// Config holds optional settings. Unset fields fall back to the defaults
// returned by the Get* accessors, so partial files are safe.
type Config struct {
	// Export
	Endpoint  *string `json:"endpoint,omitempty"`
	SessionID *string `json:"session_id,omitempty"`

	// Gantry and camera
	BorderFactor             *float64 `json:"border_factor,omitempty"`
	SourceToDetectorDistance *float64 `json:"source_to_detector_distance,omitempty"`
	DetectorDiameter         *float64 `json:"detector_diameter,omitempty"`
	NumSamples               *int     `json:"num_samples,omitempty"`
	ViewportWidth            *int     `json:"viewport_width,omitempty"`
	ViewportHeight           *int     `json:"viewport_height,omitempty"`

	// Server
	Listen              *string `json:"listen,omitempty"`
	DBPath              *string `json:"db_path,omitempty"`
	SessionTimeout      *string `json:"session_timeout,omitempty"`      // duration string like "5m"
	MaintenanceInterval *string `json:"maintenance_interval,omitempty"` // duration string like "1m"
	SampleSeed          *uint64 `json:"sample_seed,omitempty"`
}

// LoadConfig reads a .json config file of at most 1MB and validates it.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or a parent. It panics if the file is missing, so it is meant for tests.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
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

// Validate checks the values that are set.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"border_factor", c.BorderFactor},
		{"source_to_detector_distance", c.SourceToDetectorDistance},
		{"detector_diameter", c.DetectorDiameter},
	}
	for _, p := range positive {
		if p.v != nil && !(*p.v > 0) {
			return fmt.Errorf("%s must be positive, got %v", p.name, *p.v)
		}
	}
	if c.NumSamples != nil && *c.NumSamples < 1 {
		return fmt.Errorf("num_samples must be at least 1, got %d", *c.NumSamples)
	}
	if c.ViewportWidth != nil && *c.ViewportWidth < 0 {
		return fmt.Errorf("viewport_width must be non-negative, got %d", *c.ViewportWidth)
	}
	if c.ViewportHeight != nil && *c.ViewportHeight < 0 {
		return fmt.Errorf("viewport_height must be non-negative, got %d", *c.ViewportHeight)
	}
	for name, s := range map[string]*string{
		"session_timeout":      c.SessionTimeout,
		"maintenance_interval": c.MaintenanceInterval,
	} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *s)
		}
	}
	return nil
}

// GetEndpoint returns the export endpoint, empty when unset.
func (c *Config) GetEndpoint() string {
	if c.Endpoint == nil {
		return ""
	}
	return *c.Endpoint
}

// GetSessionID returns the export session id, empty when unset.
func (c *Config) GetSessionID() string {
	if c.SessionID == nil {
		return ""
	}
	return *c.SessionID
}

func (c *Config) GetBorderFactor() float64 {
	if c.BorderFactor == nil {
		return carm.DefaultBorderFactor
	}
	return *c.BorderFactor
}

func (c *Config) GetSourceToDetectorDistance() float64 {
	if c.SourceToDetectorDistance == nil {
		return carm.DefaultSourceToDetectorDistanceMm
	}
	return *c.SourceToDetectorDistance
}

func (c *Config) GetDetectorDiameter() float64 {
	if c.DetectorDiameter == nil {
		return carm.DefaultDetectorDiameterMm
	}
	return *c.DetectorDiameter
}

func (c *Config) GetNumSamples() int {
	if c.NumSamples == nil {
		return carm.DefaultNumSamples
	}
	return *c.NumSamples
}

// GetViewport returns the configured viewport, 1x1 by default.
func (c *Config) GetViewport() carm.Viewport {
	vp := carm.Viewport{Width: 1, Height: 1}
	if c.ViewportWidth != nil {
		vp.Width = *c.ViewportWidth
	}
	if c.ViewportHeight != nil {
		vp.Height = *c.ViewportHeight
	}
	return vp
}

func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetSessionTimeout parses SessionTimeout, falling back to the default.
func (c *Config) GetSessionTimeout() time.Duration {
	return parseDurationOr(c.SessionTimeout, DefaultSessionTimeout)
}

// GetMaintenanceInterval parses MaintenanceInterval, falling back to the
// default.
func (c *Config) GetMaintenanceInterval() time.Duration {
	return parseDurationOr(c.MaintenanceInterval, DefaultMaintenanceInterval)
}

func (c *Config) GetSampleSeed() uint64 {
	if c.SampleSeed == nil {
		return DefaultSampleSeed
	}
	return *c.SampleSeed
}

// Pose returns the default pose with the configured detector geometry.
func (c *Config) Pose() carm.CArmPose {
	p := carm.DefaultPose()
	p.SourceToDetectorDistanceMm = c.GetSourceToDetectorDistance()
	p.DetectorDiameterMm = c.GetDetectorDiameter()
	return p
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
