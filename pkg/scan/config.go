// Package scan wires the drone, the vision monitors and the flight controller
// into one scan session.
package scan

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-dronescan/internal/config"
	"github.com/teslashibe/go-dronescan/pkg/feed"
	"github.com/teslashibe/go-dronescan/pkg/flight"
	"github.com/teslashibe/go-dronescan/pkg/overlap"
)

// Default configuration values.
const (
	DefaultMinBattery    = 10
	DefaultCaptureDir    = "."
	DefaultLedgerPath    = "dronescan.db"
	DefaultDashboardPort = "8181"
)

// Config holds all configuration for a scan session.
// Flag parsing is done in cmd/scan/main.go; this struct is data only.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// DroneIP is the Tello's address in station or AP mode.
	DroneIP string

	// CaptureDir receives overlap_image_<n>.jpg files.
	CaptureDir string

	// LedgerPath is the sqlite session ledger; empty disables it.
	LedgerPath string

	// DashboardPort serves the web dashboard; empty disables it.
	DashboardPort string

	// MinBattery is the lowest battery percentage a scan may start with.
	MinBattery int

	// Band is the overlap range that triggers a capture.
	Band overlap.Band

	// FeedInterval paces frame polling.
	FeedInterval time.Duration

	Flight flight.Config
}

// DefaultConfig returns defaults for a four-marker scan at two metres.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		DroneIP:       config.DefaultDroneIP,
		CaptureDir:    DefaultCaptureDir,
		LedgerPath:    DefaultLedgerPath,
		DashboardPort: DefaultDashboardPort,
		MinBattery:    DefaultMinBattery,
		Band:          overlap.DefaultBand,
		FeedInterval:  feed.DefaultInterval,
		Flight:        flight.DefaultConfig(),
	}
}

// LoadEnvConfig applies environment overrides.
// cmd/scan calls it before flag parsing so flags override the environment.
func (c *Config) LoadEnvConfig() {
	c.DroneIP = config.DroneIP(c.DroneIP)
	c.LogLevel = config.String("LOG_LEVEL", c.LogLevel)
	c.CaptureDir = config.String("SCAN_DIR", c.CaptureDir)
	c.LedgerPath = config.String("SCAN_LEDGER", c.LedgerPath)
	c.DashboardPort = config.String("SCAN_DASHBOARD_PORT", c.DashboardPort)
	c.MinBattery = config.Int("SCAN_MIN_BATTERY", c.MinBattery)
	c.Band.Min = config.Float("SCAN_OVERLAP_MIN", c.Band.Min)
	c.Band.Max = config.Float("SCAN_OVERLAP_MAX", c.Band.Max)
	c.Flight.DesiredHeight = config.Int("SCAN_HEIGHT_CM", c.Flight.DesiredHeight)
	c.Flight.TargetMarkerCount = config.Int("SCAN_MARKERS", c.Flight.TargetMarkerCount)
	c.Flight.PollInterval = config.Millis("SCAN_POLL_MS", c.Flight.PollInterval)
}

// Validate checks that the configuration can fly.
func (c *Config) Validate() error {
	if c.DroneIP == "" {
		return &ConfigError{Field: "DroneIP", Message: "drone address is required"}
	}
	if c.CaptureDir == "" {
		return &ConfigError{Field: "CaptureDir", Message: "capture directory is required"}
	}
	if c.MinBattery < 0 || c.MinBattery > 100 {
		return &ConfigError{Field: "MinBattery", Message: fmt.Sprintf("minimum battery must be 0-100, got %d", c.MinBattery)}
	}
	if !c.Band.Valid() {
		return &ConfigError{Field: "Band", Message: fmt.Sprintf("overlap band [%g, %g] is not a range within 0-100", c.Band.Min, c.Band.Max)}
	}
	if err := c.Flight.Validate(); err != nil {
		return &ConfigError{Field: "Flight", Message: err.Error()}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
