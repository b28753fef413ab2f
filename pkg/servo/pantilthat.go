package servo

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// Pan-Tilt HAT register map. Servo 1 is pan, servo 2 is tilt.
const (
	DefaultAddress = 0x15

	regConfig = 0x00
	regServo1 = 0x01
	regServo2 = 0x03

	// Config register bits.
	cfgServo1 = 1 << 0
	cfgServo2 = 1 << 1
)

// Pulse limits in microseconds.
const (
	DefaultPulseMin = 575
	DefaultPulseMax = 2325
)

// Servo angle limits in degrees.
const (
	MinAngle = -90.0
	MaxAngle = 90.0
)

var (
	// ErrOutOfRange means an angle outside [-90, 90] reached the hardware layer.
	ErrOutOfRange = errors.New("servo angle out of range")
	// ErrUnknownAxis means the axis is neither pan nor tilt.
	ErrUnknownAxis = errors.New("unknown axis")
	// ErrClosed means the device was already closed.
	ErrClosed = errors.New("servo device closed")
)

// Config holds hardware settings.
type Config struct {
	Bus      string `toml:"bus"`       // I2C bus name, empty for the default bus
	Address  uint16 `toml:"address"`   // HAT address
	PulseMin int    `toml:"pulse_min"` // microseconds at -90 degrees
	PulseMax int    `toml:"pulse_max"` // microseconds at +90 degrees
}

// DefaultConfig returns the settings of a stock Pimoroni Pan-Tilt HAT.
func DefaultConfig() Config {
	return Config{
		Address:  DefaultAddress,
		PulseMin: DefaultPulseMin,
		PulseMax: DefaultPulseMax,
	}
}

// Validate checks the pulse range.
func (c Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7f {
		return fmt.Errorf("invalid i2c address %#x", c.Address)
	}
	if c.PulseMin <= 0 || c.PulseMax <= c.PulseMin || c.PulseMax > math.MaxUint16 {
		return fmt.Errorf("invalid pulse range %d..%d us", c.PulseMin, c.PulseMax)
	}
	return nil
}

// PulseWidth converts degrees in [-90, 90] to a pulse width in microseconds.
func PulseWidth(degrees float64, min, max int) (uint16, error) {
	if math.IsNaN(degrees) || degrees < MinAngle || degrees > MaxAngle {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, degrees)
	}
	span := float64(max - min)
	return uint16(min + int(span*(degrees-MinAngle)/(MaxAngle-MinAngle))), nil
}

// PanTiltHAT drives the two servos of a Pimoroni Pan-Tilt HAT over I2C.
type PanTiltHAT struct {
	config Config
	dev    *i2c.Dev
	bus    i2c.BusCloser // nil when the caller owns the bus
	log    *slog.Logger

	mu     sync.Mutex
	reg    byte // shadow of the config register
	closed bool
}

// Open initialises the host drivers, opens the I2C bus and attaches to the HAT.
func Open(cfg Config, logger *slog.Logger) (*PanTiltHAT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	hat, err := New(bus, cfg, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	hat.bus = bus
	return hat, nil
}

// New attaches to a HAT on an already open bus. Both servos start disabled.
func New(bus i2c.Bus, cfg Config, logger *slog.Logger) (*PanTiltHAT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &PanTiltHAT{
		config: cfg,
		dev:    &i2c.Dev{Bus: bus, Addr: cfg.Address},
		log:    logger.With("component", "servo", "addr", fmt.Sprintf("%#x", cfg.Address)),
	}
	if err := h.dev.Tx([]byte{regConfig, 0}, nil); err != nil {
		return nil, fmt.Errorf("reset pan-tilt hat: %w", err)
	}
	h.log.Info("pan-tilt hat attached", "bus", bus.String())
	return h, nil
}

func registers(axis state.Axis) (reg byte, bit byte, err error) {
	switch axis {
	case state.Pan:
		return regServo1, cfgServo1, nil
	case state.Tilt:
		return regServo2, cfgServo2, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", ErrUnknownAxis, int(axis))
}

// Enable switches the servo's drive signal.
func (h *PanTiltHAT) Enable(axis state.Axis, on bool) error {
	_, bit, err := registers(axis)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	next := h.reg &^ bit
	if on {
		next |= bit
	}
	if err := h.dev.Tx([]byte{regConfig, next}, nil); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	h.reg = next
	h.log.Debug("servo enable", "axis", axis.String(), "on", on)
	return nil
}

// SetAngle moves the servo. Angles outside [-90, 90] are rejected.
func (h *PanTiltHAT) SetAngle(axis state.Axis, degrees float64) error {
	reg, _, err := registers(axis)
	if err != nil {
		return err
	}
	us, err := PulseWidth(degrees, h.config.PulseMin, h.config.PulseMax)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := h.dev.Tx([]byte{reg, byte(us), byte(us >> 8)}, nil); err != nil {
		return fmt.Errorf("write servo %s: %w", axis, err)
	}
	return nil
}

// Close releases the bus if Open created it. It does not disable the servos.
func (h *PanTiltHAT) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.bus != nil {
		return h.bus.Close()
	}
	return nil
}
