package tracking

import (
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// AxisStatus reports one axis of the mount.
type AxisStatus struct {
	Command    float64 `json:"command"`    // raw controller output (degrees)
	Angle      float64 `json:"angle"`      // after the sign convention
	InRange    bool    `json:"in_range"`   // whether Angle would be dispatched
	Updates    uint64  `json:"updates"`    // controller updates
	Dispatched uint64  `json:"dispatched"` // angles sent to the servo
	Skipped    uint64  `json:"skipped"`    // out-of-range angles dropped
}

// Status is a read-only view of a running tracker.
type Status struct {
	RunID             string         `json:"run_id"`
	State             string         `json:"state"`
	Uptime            time.Duration  `json:"uptime_ns"`
	Frames            uint64         `json:"frames"`
	Detections        uint64         `json:"detections"`
	ConsecutiveMisses int            `json:"consecutive_misses"`
	Shared            state.Snapshot `json:"shared"`
	Pan               AxisStatus     `json:"pan"`
	Tilt              AxisStatus     `json:"tilt"`
}

// Status returns a snapshot of the tracker. Safe to call from any goroutine.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	lifecycle := t.lifecycle
	startedAt := t.startedAt
	t.mu.RUnlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	snap := t.store.Snapshot()
	return Status{
		RunID:             t.runID,
		State:             lifecycle.String(),
		Uptime:            uptime,
		Frames:            t.locator.Frames(),
		Detections:        t.locator.Detections(),
		ConsecutiveMisses: t.locator.ConsecutiveMisses(),
		Shared:            snap,
		Pan:               t.axisStatus(t.pan, snap.Pan),
		Tilt:              t.axisStatus(t.tilt, snap.Tilt),
	}
}

func (t *Tracker) axisStatus(c *AxisController, command float64) AxisStatus {
	angle := t.driver.Angle(command)
	return AxisStatus{
		Command:    command,
		Angle:      angle,
		InRange:    t.config.Range.Contains(angle),
		Updates:    c.Updates(),
		Dispatched: t.driver.Dispatched(c.Axis()),
		Skipped:    t.driver.Skipped(c.Axis()),
	}
}
