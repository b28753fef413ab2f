package config

import "os"

// ApplyEnvConfig applies PANTILT_* environment variables, skipping flags in
// changed. Returns an error if a variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("cascade", os.Getenv("PANTILT_CASCADE"), &cfg.Cascade)
	s.setString("detector", os.Getenv("PANTILT_DETECTOR"), &cfg.Detector)
	s.setString("class", os.Getenv("PANTILT_CLASS"), &cfg.Class)
	s.setString("camera", os.Getenv("PANTILT_CAMERA"), &cfg.Camera)
	s.setString("fallback", os.Getenv("PANTILT_FALLBACK"), &cfg.Fallback)
	s.setString("status-addr", os.Getenv("PANTILT_STATUS_ADDR"), &cfg.StatusAddr)
	s.setString("log-level", os.Getenv("PANTILT_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("i2c-bus", os.Getenv("PANTILT_I2C_BUS"), &cfg.I2CBus)

	if err := s.setIntFromString("width", os.Getenv("PANTILT_WIDTH"), &cfg.Width); err != nil {
		return err
	}
	if err := s.setIntFromString("height", os.Getenv("PANTILT_HEIGHT"), &cfg.Height); err != nil {
		return err
	}

	if err := s.setFloatFromString("", os.Getenv("PANTILT_PAN_KP"), &cfg.Pan.Proportional); err != nil {
		return err
	}
	if err := s.setFloatFromString("", os.Getenv("PANTILT_PAN_KI"), &cfg.Pan.Integral); err != nil {
		return err
	}
	if err := s.setFloatFromString("", os.Getenv("PANTILT_PAN_KD"), &cfg.Pan.Derivative); err != nil {
		return err
	}
	if err := s.setFloatFromString("", os.Getenv("PANTILT_TILT_KP"), &cfg.Tilt.Proportional); err != nil {
		return err
	}
	if err := s.setFloatFromString("", os.Getenv("PANTILT_TILT_KI"), &cfg.Tilt.Integral); err != nil {
		return err
	}
	if err := s.setFloatFromString("", os.Getenv("PANTILT_TILT_KD"), &cfg.Tilt.Derivative); err != nil {
		return err
	}

	s.setBoolFromString("no-flip", os.Getenv("PANTILT_NO_FLIP"), &cfg.NoFlip)
	s.setBoolFromString("simulate", os.Getenv("PANTILT_SIMULATE"), &cfg.Simulate)

	return nil
}
