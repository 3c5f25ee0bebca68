package battery

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Action is the commanded response to a failsafe trigger.
type Action int

const (
	ActionNone Action = iota
	ActionReturnToHome
	ActionEmergencyLand
)

// Commander is the narrow slice of fc.Gateway the failsafe needs, kept as
// an interface so tests can supply a fake (spec.md §7 "no safety
// component talks to the FC gateway directly except through its public
// command surface").
type Commander interface {
	ReturnToHome() error
	Land() error
	Goto(lat, lon, altM float64) error
}

// LandingSiteFinder selects an emergency landing point. The production
// implementation is intentionally simplistic, matching the original
// module: a real terrain/vision-backed finder is future work.
type LandingSiteFinder struct{}

// FindNearestSafeSite returns a point offset from current, standing in
// for the terrain/vision analysis spec.md §7 defers to a later milestone.
func (LandingSiteFinder) FindNearestSafeSite(current GeoPoint) GeoPoint {
	const offsetDeg = 0.001 // roughly 100m at mid-latitudes
	return GeoPoint{Lat: current.Lat + offsetDeg, Lon: current.Lon + offsetDeg}
}

// Status is a point-in-time snapshot for the diagnostics surface.
type Status struct {
	VoltageV          float64
	RemainingMAh      float64
	RequiredRTHMAh    float64
	DistanceToHomeM   float64
	CanReachHome      bool
	EnergyMarginPct   float64
	Message           string
	FailsafeTriggered bool
}

// FailsafeSystem ties the energy model to a rate-limited check loop and
// the margin-based decision tree from spec.md §7.
type FailsafeSystem struct {
	calc         *EnergyCalculator
	landingSites LandingSiteFinder
	commander    Commander
	logger       *log.Logger

	checkInterval      time.Duration
	warningMarginPct   float64
	criticalMarginPct  float64
	cells              int
	minCellVoltage     float64

	mu                sync.Mutex
	monitoring        bool
	failsafeTriggered bool
	lastCheck         time.Time
	battery           *State
	flight            *FlightState
}

// Config bundles the tunables from config.BatteryConfig needed to build a
// FailsafeSystem, keeping this package independent of internal/config.
type Config struct {
	CapacityMAh        float64
	NominalVoltage     float64
	CellCount          int
	CruisePowerW       float64
	ClimbPowerW        float64
	CruiseSpeedMS      float64
	VerticalSpeedMS    float64
	ReserveFraction    float64
	MinCellVoltage     float64
	CheckInterval      time.Duration
	WarningMarginFrac  float64
	CriticalMarginFrac float64
}

// NewFailsafeSystem constructs a FailsafeSystem bound to a Commander.
func NewFailsafeSystem(cfg Config, commander Commander, logger *log.Logger) *FailsafeSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &FailsafeSystem{
		calc: &EnergyCalculator{
			CapacityMAh:     cfg.CapacityMAh,
			NominalVoltage:  cfg.NominalVoltage,
			Cells:           cfg.CellCount,
			CruisePowerW:    cfg.CruisePowerW,
			ClimbPowerW:     cfg.ClimbPowerW,
			CruiseSpeedMS:   cfg.CruiseSpeedMS,
			VerticalSpeedMS: cfg.VerticalSpeedMS,
			ReserveFraction: cfg.ReserveFraction,
			MinCellVoltage:  cfg.MinCellVoltage,
		},
		commander:         commander,
		logger:            logger,
		checkInterval:     cfg.CheckInterval,
		warningMarginPct:  cfg.WarningMarginFrac * 100,
		criticalMarginPct: cfg.CriticalMarginFrac * 100,
		cells:             cfg.CellCount,
		minCellVoltage:    cfg.MinCellVoltage,
	}
}

// StartMonitoring arms the failsafe; CheckFailsafe is a no-op until this
// is called.
func (f *FailsafeSystem) StartMonitoring() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitoring = true
	f.failsafeTriggered = false
}

// StopMonitoring disarms the failsafe.
func (f *FailsafeSystem) StopMonitoring() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitoring = false
}

// UpdateBattery records the latest battery telemetry.
func (f *FailsafeSystem) UpdateBattery(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.battery = &s
}

// UpdateFlight records the latest navigation telemetry.
func (f *FailsafeSystem) UpdateFlight(fs FlightState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flight = &fs
}

// CheckFailsafe runs the three-step decision tree: critical voltage,
// then RTH-energy reachability, then margin thresholds. Rate-limited to
// checkInterval; calling more often than that returns (false, "rate
// limited").
func (f *FailsafeSystem) CheckFailsafe() (needed bool, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	if now.Sub(f.lastCheck) < f.checkInterval {
		return false, "rate limited"
	}
	f.lastCheck = now

	if !f.monitoring {
		return false, "not monitoring"
	}
	if f.battery == nil || f.flight == nil {
		return false, "no telemetry"
	}

	if f.battery.IsCritical(f.cells, f.minCellVoltage) {
		f.logger.Printf("battery: critical voltage %.2fV", f.battery.VoltageV)
		return true, "critical voltage - immediate landing required"
	}

	canReach, margin, message := f.calc.CanReachHome(*f.battery, *f.flight)
	if !canReach {
		f.logger.Printf("battery: cannot reach home: %s", message)
		return true, fmt.Sprintf("insufficient energy for RTH: %s", message)
	}

	switch {
	case margin < f.criticalMarginPct:
		f.logger.Printf("battery: critical margin %.0f%%", margin)
		return true, fmt.Sprintf("critical energy margin: %.0f%%", margin)
	case margin < f.warningMarginPct:
		f.logger.Printf("battery: low margin %.0f%%", margin)
		return false, fmt.Sprintf("low energy margin: %.0f%%", margin)
	default:
		return false, "battery OK"
	}
}

// ExecuteFailsafe runs the failsafe action exactly once per arm cycle:
// RTH if reachable with positive margin, otherwise emergency landing at
// the nearest site the LandingSiteFinder proposes.
func (f *FailsafeSystem) ExecuteFailsafe(reason string) {
	f.mu.Lock()
	if f.failsafeTriggered {
		f.mu.Unlock()
		return
	}
	f.failsafeTriggered = true
	battery, flight := f.battery, f.flight
	f.mu.Unlock()

	f.logger.Printf("battery: executing failsafe: %s", reason)

	if battery == nil || flight == nil {
		f.logger.Println("battery: cannot execute failsafe without telemetry")
		return
	}

	canReach, margin, _ := f.calc.CanReachHome(*battery, *flight)
	if canReach && margin > 0 {
		f.logger.Println("battery: initiating immediate RTH")
		if err := f.commander.ReturnToHome(); err != nil {
			f.logger.Printf("battery: RTH command failed: %v", err)
		}
		return
	}

	f.logger.Println("battery: initiating emergency landing")
	site := f.landingSites.FindNearestSafeSite(flight.Position)
	if err := f.commander.Goto(site.Lat, site.Lon, flight.AltitudeM-10); err != nil {
		f.logger.Printf("battery: emergency goto failed: %v", err)
	}
	if err := f.commander.Land(); err != nil {
		f.logger.Printf("battery: land command failed: %v", err)
	}
}

// GetStatus reports the current failsafe state for the diagnostics
// surface.
func (f *FailsafeSystem) GetStatus() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.battery == nil || f.flight == nil {
		return Status{Message: "no telemetry"}
	}

	canReach, margin, message := f.calc.CanReachHome(*f.battery, *f.flight)
	return Status{
		VoltageV:          f.battery.VoltageV,
		RemainingMAh:      f.calc.RemainingEnergy(*f.battery),
		RequiredRTHMAh:    f.calc.EstimateRTHEnergy(*f.flight),
		DistanceToHomeM:   f.calc.DistanceToHome(*f.flight),
		CanReachHome:      canReach,
		EnergyMarginPct:   margin,
		Message:           message,
		FailsafeTriggered: f.failsafeTriggered,
	}
}
