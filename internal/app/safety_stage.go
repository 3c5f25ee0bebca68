package app

import (
	"context"
	"time"

	"github.com/flightpath-dev/sentinel-core/internal/battery"
	"github.com/flightpath-dev/sentinel-core/internal/fc"
	"github.com/flightpath-dev/sentinel-core/internal/geofence"
	"github.com/flightpath-dev/sentinel-core/internal/gpsdenial"
	"github.com/flightpath-dev/sentinel-core/internal/indicator"
	"github.com/flightpath-dev/sentinel-core/internal/telemetry"
)

// safetyStage is the pipeline.Stage that feeds every telemetry.Cell
// snapshot into the three independent safety components (C6 geofence, C7
// battery failsafe, C8 GPS-denial) on spec.md §4.6-§4.8's cadences and
// drives the status indicator (C12) from their combined severity. None of
// these components call each other directly (spec.md §5), so this stage
// is the only place their outcomes are composed.
type safetyStage struct {
	app        *App
	interval   time.Duration
	lastGPSFix time.Time
	blinkOn    bool
}

func newSafetyStage(a *App) *safetyStage {
	interval := a.Config.Geofence.CheckMinInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &safetyStage{app: a, interval: interval}
}

func (s *safetyStage) Name() string { return "safety" }

func (s *safetyStage) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one pass of every safety check against the latest telemetry
// snapshot and updates the indicator from their combined severity.
// Battery and GPS-denial self-rate-limit their own decision cadences
// (5s and AlertRateLimit respectively); this stage only needs to poll
// fast enough to satisfy the geofence's 2Hz requirement and let those
// components gate themselves.
func (s *safetyStage) tick() {
	snap := s.app.Telemetry.Snapshot()
	if snap.Stale {
		return
	}

	severityGeofence := s.checkGeofence(snap)
	severityBattery := s.checkBattery(snap)
	severityGPS := s.checkGPSDenial(snap)

	s.drive(maxSeverity(severityGeofence, severityBattery, severityGPS))
}

type severity int

const (
	severityOK severity = iota
	severityWarning
	severityCritical
)

func maxSeverity(values ...severity) severity {
	worst := severityOK
	for _, v := range values {
		if v > worst {
			worst = v
		}
	}
	return worst
}

// checkGeofence implements C6 against the current position, mapping the
// recommended Action onto fc.Gateway's command surface.
func (s *safetyStage) checkGeofence(snap telemetry.Snapshot) severity {
	pos := geofence.GeoPoint{Lat: snap.Latitude, Lon: snap.Longitude}
	safe, message, action := s.app.Geofence.CheckPosition(pos, snap.AltitudeM)
	if safe && action == geofence.ActionNone {
		return severityOK
	}

	sev := severityWarning
	switch action {
	case geofence.ActionReturnToHome, geofence.ActionGuidedReturn:
		// ActionGuidedReturn collapses onto the same RTH call as
		// ActionReturnToHome: no dedicated guided-return flight plan
		// component exists in this module (out of scope per spec.md §1).
		sev = severityCritical
		if err := s.app.FC.StatusText(fc.SeverityCritical, message); err != nil {
			s.app.Logger.Printf("safety: geofence status text failed: %v", err)
		}
		if err := s.app.FC.ReturnToHome(); err != nil {
			s.app.Logger.Printf("safety: geofence RTH command failed: %v", err)
		}
		s.app.Metrics.FailsafeTriggers.WithLabelValues("geofence").Inc()
	case geofence.ActionLand:
		sev = severityCritical
		if err := s.app.FC.StatusText(fc.SeverityCritical, message); err != nil {
			s.app.Logger.Printf("safety: geofence status text failed: %v", err)
		}
		if err := s.app.FC.Land(); err != nil {
			s.app.Logger.Printf("safety: geofence land command failed: %v", err)
		}
		s.app.Metrics.FailsafeTriggers.WithLabelValues("geofence").Inc()
	case geofence.ActionLoiter, geofence.ActionWarn:
		if err := s.app.FC.StatusText(fc.SeverityWarning, message); err != nil {
			s.app.Logger.Printf("safety: geofence status text failed: %v", err)
		}
	}
	return sev
}

// checkBattery implements C7: feed the current energy/flight state into
// the failsafe system and execute whatever it decides.
func (s *safetyStage) checkBattery(snap telemetry.Snapshot) severity {
	s.app.Battery.UpdateBattery(battery.State{
		VoltageV:     snap.BatteryVoltage,
		CurrentA:     snap.BatteryCurrent,
		RemainingPct: snap.BatteryPercent,
		ConsumedMAh:  snap.BatteryConsumedMAh,
	})
	s.app.Battery.UpdateFlight(battery.FlightState{
		Position:     battery.GeoPoint{Lat: snap.Latitude, Lon: snap.Longitude},
		AltitudeM:    snap.AltitudeM,
		GroundSpeed:  snap.GroundSpeedMS,
		HeadingDeg:   snap.HeadingDeg,
		Home:         s.batteryHome(),
		HomeAltitude: 0,
	})

	needed, reason := s.app.Battery.CheckFailsafe()
	if !needed {
		if s.app.Battery.GetStatus().FailsafeTriggered {
			return severityCritical
		}
		return severityOK
	}

	if err := s.app.FC.StatusText(fc.SeverityCritical, "battery failsafe: "+reason); err != nil {
		s.app.Logger.Printf("safety: battery status text failed: %v", err)
	}
	s.app.Battery.ExecuteFailsafe(reason)
	s.app.Metrics.FailsafeTriggers.WithLabelValues("battery").Inc()
	return severityCritical
}

func (s *safetyStage) batteryHome() battery.GeoPoint {
	home := s.app.Geofence.Home()
	return battery.GeoPoint{Lat: home.Lat, Lon: home.Lon}
}

// checkGPSDenial implements C8. Update only runs once per distinct
// snapshot timestamp; telemetry.Cell restamps the snapshot on every FC
// message, not only on GPS fixes, so this skips only ticks with no new
// telemetry at all. IMU cross-check data is cheap and fed every tick.
func (s *safetyStage) checkGPSDenial(snap telemetry.Snapshot) severity {
	s.app.GPSMonitor.UpdateIMU(gpsdenial.IMUReading{
		Timestamp:           snap.Timestamp,
		IntegratedGroundSpd: snap.GroundSpeedMS,
	})

	if !snap.Timestamp.After(s.lastGPSFix) {
		status, _ := s.app.GPSMonitor.Status()
		return gpsStatusSeverity(status)
	}
	s.lastGPSFix = snap.Timestamp

	status, message := s.app.GPSMonitor.Update(gpsdenial.GPSReading{
		Timestamp:   snap.Timestamp,
		Lat:         snap.Latitude,
		Lon:         snap.Longitude,
		AltitudeM:   snap.AltitudeM,
		GroundSpeed: snap.GroundSpeedMS,
		HeadingDeg:  snap.HeadingDeg,
		Satellites:  snap.SatelliteCount,
		HDOP:        snap.HDOP,
		FixType:     int(snap.GPSFixType),
	})

	if status == gpsdenial.StatusLost && s.app.GPSMonitor.AllowAlert("lost") {
		if err := s.app.FC.StatusText(fc.SeverityCritical, "gps denial: "+message); err != nil {
			s.app.Logger.Printf("safety: gps status text failed: %v", err)
		}
		s.app.Metrics.FailsafeTriggers.WithLabelValues("gps").Inc()
	}
	return gpsStatusSeverity(status)
}

func gpsStatusSeverity(status gpsdenial.Status) severity {
	if status == gpsdenial.StatusOK {
		return severityOK
	}
	if status == gpsdenial.StatusLost {
		return severityCritical
	}
	return severityWarning
}

// drive maps combined severity onto the indicator's blink pattern and
// advances the blink animation one step per tick. Slow and fast blink both
// toggle once per tick here, so the two patterns look the same on the LED.
func (s *safetyStage) drive(sev severity) {
	var pattern indicator.Pattern
	switch sev {
	case severityOK:
		pattern = indicator.PatternSolid
	case severityWarning:
		pattern = indicator.PatternSlowBlink
	default:
		pattern = indicator.PatternFastBlink
	}
	s.app.Indicator.Set(pattern)

	s.blinkOn = !s.blinkOn
	s.app.Indicator.Tick(s.blinkOn)
}
