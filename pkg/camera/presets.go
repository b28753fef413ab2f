package camera

import "sort"

// Preset names for common capture sizes.
const (
	PresetQVGA  = "qvga"
	PresetVGA   = "vga"
	Preset720p  = "720p"
	Preset1080p = "1080p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetQVGA:  QVGAConfig(),
		PresetVGA:   DefaultConfig(),
		Preset720p:  HD720Config(),
		Preset1080p: HD1080Config(),
	}
}

// PresetNames returns the sorted list of preset names.
func PresetNames() []string {
	names := make([]string, 0, 4)
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// QVGAConfig returns 320x240, for slow boards where detection dominates the loop.
func QVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// HD720Config returns 720p. Detection is slower; expect a lower loop rate.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p at 15 FPS.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Framerate = 15
	return cfg
}
