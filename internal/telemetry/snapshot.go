// Package telemetry holds the single-writer telemetry cell (C2) that
// pairs an atomic read of FC state to each captured frame.
package telemetry

import (
	"sync"
	"time"
)

// GPSFixType mirrors MAVLink's GPS_FIX_TYPE for the fields spec.md §3 names.
type GPSFixType int

const (
	GPSFixNone GPSFixType = 0
	GPSFix2D   GPSFixType = 2
	GPSFix3D   GPSFixType = 3
)

// Snapshot is an immutable record of FC state at one instant. Once
// constructed it is never mutated; callers pass it by value.
type Snapshot struct {
	Timestamp time.Time

	Latitude  float64
	Longitude float64
	AltitudeM float64 // MSL

	Roll  float64 // rad
	Pitch float64 // rad
	Yaw   float64 // rad

	GroundSpeedMS float64
	HeadingDeg    float64

	BatteryVoltage    float64
	BatteryCurrent    float64
	BatteryConsumedMAh float64
	BatteryPercent    int

	GPSFixType     GPSFixType
	SatelliteCount int
	HDOP           float64

	// Stale is true when the underlying link has not produced a value
	// within the configured staleness window. Callers must treat a
	// stale snapshot as "no data" for safety decisions (spec.md §4.2).
	Stale bool
}

// Cell is the single-writer/multi-reader telemetry store. The FC gateway
// (C9) is the sole writer; every other component reads through Snapshot(),
// which always returns a copy.
type Cell struct {
	mu           sync.RWMutex
	current      Snapshot
	lastWrite    time.Time
	staleAfter   time.Duration
}

// NewCell constructs a Cell that considers data stale after staleAfter
// (spec.md default: 1s).
func NewCell(staleAfter time.Duration) *Cell {
	return &Cell{staleAfter: staleAfter}
}

// Update atomically replaces the current snapshot. Called only by C9.
func (c *Cell) Update(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.Timestamp = time.Now()
	c.current = s
	c.lastWrite = s.Timestamp
}

// Snapshot returns the latest known FC state, with Stale set if no
// update has landed within the configured staleness window.
func (c *Cell) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.current
	if c.lastWrite.IsZero() || time.Since(c.lastWrite) > c.staleAfter {
		s.Stale = true
	}
	return s
}
