// Package config loads the dashboard configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/fusion.report/internal/telemetry"
)

// Config is the root configuration for the fusion dashboard. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for everything else. The same schema works for
// startup configuration and for tests feeding fixture files.
type Config struct {
	// Transport
	ListenUDP  *string `json:"listen_udp,omitempty"`
	ListenHTTP *string `json:"listen_http,omitempty"`
	RcvBuf     *int    `json:"rcv_buf,omitempty"`

	// Fusion params
	Alpha          *float64 `json:"alpha,omitempty"`
	TrailMaxPoints *int     `json:"trail_max_points,omitempty"`
	TrailMaxAge    *string  `json:"trail_max_age,omitempty"` // duration string like "20s"
	StaleAfter     *string  `json:"stale_after,omitempty"`   // duration string like "2s"

	// Archive (empty path disables archiving)
	ArchivePath *string `json:"archive_path,omitempty"`
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and stay under a sanity size cap. Fields omitted from the file keep their
// defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
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

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Alpha != nil {
		if *c.Alpha <= 0 || *c.Alpha >= 1 {
			return fmt.Errorf("alpha must be in (0, 1), got %f", *c.Alpha)
		}
	}
	if c.TrailMaxPoints != nil && *c.TrailMaxPoints <= 0 {
		return fmt.Errorf("trail_max_points must be positive, got %d", *c.TrailMaxPoints)
	}
	if c.TrailMaxAge != nil && *c.TrailMaxAge != "" {
		if _, err := time.ParseDuration(*c.TrailMaxAge); err != nil {
			return fmt.Errorf("invalid trail_max_age %q: %w", *c.TrailMaxAge, err)
		}
	}
	if c.StaleAfter != nil && *c.StaleAfter != "" {
		if _, err := time.ParseDuration(*c.StaleAfter); err != nil {
			return fmt.Errorf("invalid stale_after %q: %w", *c.StaleAfter, err)
		}
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	return nil
}

// GetListenUDP returns the UDP bind address or the default.
func (c *Config) GetListenUDP() string {
	if c.ListenUDP == nil || *c.ListenUDP == "" {
		return "127.0.0.1:5000"
	}
	return *c.ListenUDP
}

// GetListenHTTP returns the HTTP listen address or the default.
func (c *Config) GetListenHTTP() string {
	if c.ListenHTTP == nil || *c.ListenHTTP == "" {
		return ":8080"
	}
	return *c.ListenHTTP
}

// GetRcvBuf returns the UDP receive buffer size or the default.
func (c *Config) GetRcvBuf() int {
	if c.RcvBuf == nil || *c.RcvBuf == 0 {
		return 1 << 20
	}
	return *c.RcvBuf
}

// GetAlpha returns the smoothing factor or the default.
func (c *Config) GetAlpha() float32 {
	if c.Alpha == nil {
		return telemetry.DefaultAlpha
	}
	return float32(*c.Alpha)
}

// GetTrailMaxPoints returns the trail count bound or the default.
func (c *Config) GetTrailMaxPoints() int {
	if c.TrailMaxPoints == nil {
		return telemetry.DefaultTrailMaxPoints
	}
	return *c.TrailMaxPoints
}

// GetTrailMaxAge returns the trail age bound or the default.
func (c *Config) GetTrailMaxAge() time.Duration {
	if c.TrailMaxAge == nil || *c.TrailMaxAge == "" {
		return telemetry.DefaultTrailMaxAge
	}
	d, err := time.ParseDuration(*c.TrailMaxAge)
	if err != nil {
		return telemetry.DefaultTrailMaxAge
	}
	return d
}

// GetStaleAfter returns the staleness threshold or the default.
func (c *Config) GetStaleAfter() time.Duration {
	if c.StaleAfter == nil || *c.StaleAfter == "" {
		return telemetry.DefaultStaleAfter
	}
	d, err := time.ParseDuration(*c.StaleAfter)
	if err != nil {
		return telemetry.DefaultStaleAfter
	}
	return d
}

// GetArchivePath returns the archive database path; empty disables archiving.
func (c *Config) GetArchivePath() string {
	if c.ArchivePath == nil {
		return ""
	}
	return *c.ArchivePath
}

// StoreConfig assembles the fusion store configuration from this file config.
func (c *Config) StoreConfig() telemetry.StoreConfig {
	return telemetry.StoreConfig{
		Alpha:          c.GetAlpha(),
		TrailMaxPoints: c.GetTrailMaxPoints(),
		TrailMaxAge:    c.GetTrailMaxAge(),
		StaleAfter:     c.GetStaleAfter(),
	}
}
