package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-pantilt/internal/log"
	"github.com/teslashibe/go-pantilt/pkg/state"
)

// Lifecycle is the supervisor state.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Running
	ShuttingDown
	Terminated
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("lifecycle(%d)", int(l))
}

// Supervisor errors.
var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrMissingSource     = errors.New("video source is required")
	ErrMissingDetector   = errors.New("detector is required")
	ErrMissingActuator   = errors.New("actuator is required")
)

// Tracker supervises the four tracking loops. It enables the servos, runs the
// locator, both axis controllers and the driver concurrently, and disables the
// servos exactly once when they have all stopped.
type Tracker struct {
	config   Config
	store    *state.Store
	actuator Actuator
	log      *slog.Logger
	runID    string

	locator *Locator
	pan     *AxisController
	tilt    *AxisController
	driver  *Driver

	mu        sync.RWMutex
	lifecycle Lifecycle
	startedAt time.Time

	disableOnce sync.Once
	disableErr  error
}

// New creates a tracker. The caller keeps ownership of source, detector and
// actuator and closes them after Run returns.
func New(config Config, source VideoSource, detector Detector, actuator Actuator) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	switch {
	case source == nil:
		return nil, ErrMissingSource
	case detector == nil:
		return nil, ErrMissingDetector
	case actuator == nil:
		return nil, ErrMissingActuator
	}

	runID := uuid.New().String()
	logger := log.With("run_id", runID)
	store := state.New(config.Pan, config.Tilt)

	return &Tracker{
		config:   config,
		store:    store,
		actuator: actuator,
		log:      logger,
		runID:    runID,
		locator:  NewLocator(source, detector, store, config, logger.With("component", "locator")),
		pan:      NewAxisController(state.Pan, store, config, logger.With("component", "controller")),
		tilt:     NewAxisController(state.Tilt, store, config, logger.With("component", "controller")),
		driver:   NewDriver(store, actuator, config, logger.With("component", "driver")),
	}, nil
}

// SetLogger replaces the logger for the tracker and its loops. Call before Run.
func (t *Tracker) SetLogger(logger *slog.Logger) {
	t.log = logger.With("run_id", t.runID)
	t.locator.log = t.log.With("component", "locator")
	t.pan.log = t.log.With("component", "controller", "axis", state.Pan.String())
	t.tilt.log = t.log.With("component", "controller", "axis", state.Tilt.String())
	t.driver.log = t.log.With("component", "driver")
}

// SetFrameObserver registers an observer for processed frames. Call before Run.
func (t *Tracker) SetFrameObserver(o FrameObserver) {
	t.locator.SetObserver(o)
}

// RunID identifies this tracker instance in logs and status.
func (t *Tracker) RunID() string {
	return t.runID
}

// Store exposes the shared state for read-only inspection.
func (t *Tracker) Store() *state.Store {
	return t.store
}

// State returns the current lifecycle state.
func (t *Tracker) State() Lifecycle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lifecycle
}

// transition moves to next if the move is legal.
func (t *Tracker) transition(next Lifecycle, reason string) error {
	t.mu.Lock()
	prev := t.lifecycle

	legal := false
	switch prev {
	case Uninitialized:
		legal = next == Running || next == ShuttingDown
	case Running:
		legal = next == ShuttingDown
	case ShuttingDown:
		legal = next == Terminated
	}
	if !legal {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	t.lifecycle = next
	if next == Running {
		t.startedAt = time.Now()
	}
	t.mu.Unlock()

	t.log.Info("state transition", "from", prev.String(), "to", next.String(), "reason", reason)
	return nil
}

// Run enables the servos and runs all loops until ctx is cancelled or a loop
// fails. It returns nil after a cancellation and the first loop error
// otherwise. The servos are disabled before Run returns on every path.
func (t *Tracker) Run(ctx context.Context) error {
	if t.State() != Uninitialized {
		return fmt.Errorf("%w: tracker already ran", ErrInvalidTransition)
	}

	for _, a := range state.Axes {
		if err := t.actuator.Enable(a, true); err != nil {
			_ = t.transition(ShuttingDown, "enable failed")
			t.disable()
			_ = t.transition(Terminated, "enable failed")
			return fmt.Errorf("enable %s: %w", a, err)
		}
	}

	if err := t.transition(Running, "started"); err != nil {
		return err
	}

	t.log.Info("tracker started",
		"pan_gains", t.config.Pan, "tilt_gains", t.config.Tilt,
		"range", t.config.Range.String(), "invert", t.config.Invert,
		"fallback", string(t.config.Fallback))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.locator.Run(gctx) })
	g.Go(func() error { return t.pan.Run(gctx) })
	g.Go(func() error { return t.tilt.Run(gctx) })
	g.Go(func() error { return t.driver.Run(gctx) })

	// Report the shutdown as soon as any unit triggers it.
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		<-gctx.Done()
		reason := "interrupt"
		if ctx.Err() == nil {
			reason = "loop failure"
		}
		_ = t.transition(ShuttingDown, reason)
	}()

	err := g.Wait()
	<-watchDone

	disableErr := t.disable()
	_ = t.transition(Terminated, "all loops stopped")

	if err != nil {
		t.log.Error("tracker stopped on error", "error", err)
		return err
	}
	if disableErr != nil {
		return disableErr
	}
	t.log.Info("tracker stopped",
		"frames", t.locator.Frames(), "detections", t.locator.Detections(),
		"uptime", t.Status().Uptime)
	return nil
}

// disable turns both servos off once. Both axes are attempted even if the
// first one fails.
func (t *Tracker) disable() error {
	t.disableOnce.Do(func() {
		var errs []error
		for _, a := range state.Axes {
			if err := t.actuator.Enable(a, false); err != nil {
				errs = append(errs, fmt.Errorf("disable %s: %w", a, err))
			}
		}
		t.disableErr = errors.Join(errs...)
		if t.disableErr != nil {
			t.log.Error("failed to disable servos", "error", t.disableErr)
		} else {
			t.log.Info("servos disabled")
		}
	})
	return t.disableErr
}
