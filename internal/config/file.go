package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-pantilt/pkg/camera"
	"github.com/teslashibe/go-pantilt/pkg/state"
)

// FileConfig mirrors Config in a TOML-friendly shape. Durations are strings
// and optional values are pointers so that zero can be set explicitly.
type FileConfig struct {
	LogLevel   string `toml:"log_level"`
	StatusAddr string `toml:"status_addr"`
	Simulate   *bool  `toml:"simulate"`

	Detector struct {
		Kind    string `toml:"kind"`
		Cascade string `toml:"cascade"`
		Class   string `toml:"class"`
	} `toml:"detector"`

	Camera struct {
		Device    string `toml:"device"`
		Preset    string `toml:"preset"`
		Width     int    `toml:"width"`
		Height    int    `toml:"height"`
		Framerate int    `toml:"framerate"`
	} `toml:"camera"`

	Servo struct {
		Bus     string `toml:"bus"`
		Address int    `toml:"address"`
	} `toml:"servo"`

	Tracking struct {
		NoFlip          *bool     `toml:"no_flip"`
		Fallback        string    `toml:"fallback"`
		Invert          *bool     `toml:"invert"`
		ControlInterval string    `toml:"control_interval"`
		DriveInterval   string    `toml:"drive_interval"`
		IntegralLimit   *float64  `toml:"integral_limit"`
		LostAfter       int       `toml:"lost_after"`
		Pan             fileGains `toml:"pan"`
		Tilt            fileGains `toml:"tilt"`
	} `toml:"tracking"`
}

type fileGains struct {
	Kp *float64 `toml:"kp"`
	Ki *float64 `toml:"ki"`
	Kd *float64 `toml:"kd"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFileConfig applies file values to cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("status-addr", fc.StatusAddr, &cfg.StatusAddr)
	s.setBool("simulate", fc.Simulate, &cfg.Simulate)

	s.setString("detector", fc.Detector.Kind, &cfg.Detector)
	s.setString("cascade", fc.Detector.Cascade, &cfg.Cascade)
	s.setString("class", fc.Detector.Class, &cfg.Class)

	if fc.Camera.Preset != "" {
		p := camera.GetPreset(fc.Camera.Preset)
		if p == nil {
			return fmt.Errorf("unknown camera preset %q (have %v)", fc.Camera.Preset, camera.PresetNames())
		}
		s.setInt("width", p.Width, &cfg.Width)
		s.setInt("height", p.Height, &cfg.Height)
		s.setInt("", p.Framerate, &cfg.Framerate)
	}
	s.setString("camera", fc.Camera.Device, &cfg.Camera)
	s.setInt("width", fc.Camera.Width, &cfg.Width)
	s.setInt("height", fc.Camera.Height, &cfg.Height)
	s.setInt("", fc.Camera.Framerate, &cfg.Framerate)

	s.setString("i2c-bus", fc.Servo.Bus, &cfg.I2CBus)
	s.setInt("", fc.Servo.Address, &cfg.I2CAddress)

	t := fc.Tracking
	s.setBool("no-flip", t.NoFlip, &cfg.NoFlip)
	s.setString("fallback", t.Fallback, &cfg.Fallback)
	s.setBool("", t.Invert, &cfg.Invert)
	if err := s.setDuration("", t.ControlInterval, &cfg.ControlInterval); err != nil {
		return err
	}
	if err := s.setDuration("", t.DriveInterval, &cfg.DriveInterval); err != nil {
		return err
	}
	s.setFloat("", t.IntegralLimit, &cfg.IntegralLimit)
	s.setInt("", t.LostAfter, &cfg.LostAfter)
	applyGains(s, t.Pan, &cfg.Pan)
	applyGains(s, t.Tilt, &cfg.Tilt)

	return nil
}

func applyGains(s *configSetter, g fileGains, dst *state.Gains) {
	s.setFloat("", g.Kp, &dst.Proportional)
	s.setFloat("", g.Ki, &dst.Integral)
	s.setFloat("", g.Kd, &dst.Derivative)
}
