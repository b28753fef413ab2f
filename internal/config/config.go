// Package config assembles the pantilt process configuration from defaults,
// an optional TOML file, PANTILT_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/camera"
	"github.com/teslashibe/go-pantilt/pkg/servo"
	"github.com/teslashibe/go-pantilt/pkg/state"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
	"github.com/teslashibe/go-pantilt/pkg/tracking/detection"
	"github.com/teslashibe/go-pantilt/pkg/web"
)

// ErrMissingCascade means no detector artifact was given for a hardware run.
var ErrMissingCascade = errors.New("--cascade is required")

// Config is the full process configuration.
type Config struct {
	Cascade  string // classifier definition or model file
	Detector string // cascade, yunet or yolo
	Class    string // YOLO class filter

	Camera    string
	Width     int
	Height    int
	Framerate int

	NoFlip   bool
	Fallback string
	Simulate bool

	StatusAddr string
	LogLevel   string

	I2CBus     string
	I2CAddress int

	Pan             state.Gains
	Tilt            state.Gains
	IntegralLimit   float64
	ControlInterval time.Duration
	DriveInterval   time.Duration
	LostAfter       int
	Invert          bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	tc := tracking.DefaultConfig()
	cc := camera.DefaultConfig()
	return Config{
		Detector:        string(detection.KindCascade),
		Camera:          cc.Device,
		Width:           cc.Width,
		Height:          cc.Height,
		Framerate:       cc.Framerate,
		Fallback:        string(tc.Fallback),
		LogLevel:        "info",
		I2CAddress:      servo.DefaultAddress,
		Pan:             tc.Pan,
		Tilt:            tc.Tilt,
		IntegralLimit:   tc.IntegralLimit,
		ControlInterval: tc.ControlInterval,
		DriveInterval:   tc.DriveInterval,
		LostAfter:       tc.LostAfter,
		Invert:          tc.Invert,
	}
}

// Validate checks the configuration. Detector artifacts are only required
// when driving real hardware.
func (c *Config) Validate() error {
	if !c.Simulate && c.Cascade == "" {
		return ErrMissingCascade
	}
	if _, err := detection.ParseKind(c.Detector); err != nil {
		return err
	}
	if _, err := tracking.ParseFallback(c.Fallback); err != nil {
		return err
	}
	if c.I2CAddress < 1 || c.I2CAddress > 0x7f {
		return fmt.Errorf("i2c address %#x out of range 0x01..0x7f", c.I2CAddress)
	}
	if !c.Simulate {
		cc := c.CameraConfig()
		if errs := cc.Validate(); len(errs) > 0 {
			return fmt.Errorf("camera: %v", errs)
		}
	}
	tc, err := c.TrackingConfig()
	if err != nil {
		return err
	}
	return tc.Validate()
}

// TrackingConfig builds the tracker configuration.
func (c *Config) TrackingConfig() (tracking.Config, error) {
	fallback, err := tracking.ParseFallback(c.Fallback)
	if err != nil {
		return tracking.Config{}, err
	}
	tc := tracking.DefaultConfig()
	tc.Pan = c.Pan
	tc.Tilt = c.Tilt
	tc.IntegralLimit = c.IntegralLimit
	tc.ControlInterval = c.ControlInterval
	tc.DriveInterval = c.DriveInterval
	tc.LostAfter = c.LostAfter
	tc.Invert = c.Invert
	tc.FlipVertical = !c.NoFlip
	tc.Fallback = fallback
	return tc, nil
}

// DetectorConfig builds the detection backend configuration.
func (c *Config) DetectorConfig() (detection.Config, error) {
	kind, err := detection.ParseKind(c.Detector)
	if err != nil {
		return detection.Config{}, err
	}
	dc := detection.DefaultConfig(kind)
	dc.ModelPath = c.Cascade
	if c.Class != "" {
		dc.Class = c.Class
	}
	return dc, nil
}

// CameraConfig builds the capture configuration.
func (c *Config) CameraConfig() camera.Config {
	cc := camera.DefaultConfig()
	cc.Device = c.Camera
	cc.Width = c.Width
	cc.Height = c.Height
	cc.Framerate = c.Framerate
	return cc
}

// ServoConfig builds the Pan-Tilt HAT configuration.
func (c *Config) ServoConfig() servo.Config {
	sc := servo.DefaultConfig()
	sc.Bus = c.I2CBus
	sc.Address = uint16(c.I2CAddress)
	return sc
}

// StatusConfig builds the status server configuration. ok is false when the
// server is disabled.
func (c *Config) StatusConfig() (web.Config, bool) {
	wc := web.DefaultConfig()
	wc.Addr = c.StatusAddr
	return wc, c.StatusAddr != ""
}

// configSetter applies values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) skip(flag string) bool {
	return flag != "" && s.changed[flag]
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.skip(flag) {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.skip(flag) {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value *float64, dst *float64) {
	if value == nil || s.skip(flag) {
		return
	}
	*dst = *value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.skip(flag) {
		return
	}
	*dst = *value
}

// setDuration accepts zero, which selects free-running loops.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.skip(flag) {
		return
	}
	*dst = value == "true" || value == "1"
}

// DefaultConfigPath returns ~/.pantilt/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pantilt", "config.toml")
	}
	return ""
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
