// Package camera captures frames from a local video device with gocv.
package camera

import (
	"fmt"
	"time"
)

// Config holds capture settings.
type Config struct {
	Device    string        `json:"device" toml:"device"`       // index ("0") or path/URL
	Width     int           `json:"width" toml:"width"`         // requested frame width
	Height    int           `json:"height" toml:"height"`       // requested frame height
	Framerate int           `json:"framerate" toml:"framerate"` // requested FPS, 0 for driver default
	Quality   int           `json:"quality" toml:"quality"`     // preview JPEG quality 1-100
	Warmup    time.Duration `json:"warmup" toml:"-"`            // sensor settle time after open
}

// Capture limits.
const (
	MinWidth  = 160
	MinHeight = 120
	MaxWidth  = 4096
	MaxHeight = 2160
)

// DefaultConfig returns 640x480 at 30 FPS, the size the tracking gains were tuned at.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
		Warmup:    2 * time.Second,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device == "" {
		errs = append(errs, "device must be set")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 0 || c.Framerate > 120 {
		errs = append(errs, "framerate must be between 0 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.Warmup < 0 {
		errs = append(errs, "warmup must not be negative")
	}
	return errs
}
