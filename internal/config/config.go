// Package config loads and validates the sentinel's runtime configuration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Diagnostics DiagnosticsConfig
	MAVLink     MAVLinkConfig
	Logging     LoggingConfig
	Pipeline    PipelineConfig
	Camera      CameraConfig
	RCModes     RCModeConfig
	Detector    DetectorConfig
	Tracker     TrackerConfig
	Geolocator  GeolocatorConfig
	Geofence    GeofenceConfig
	Battery     BatteryConfig
	GPSMonitor  GPSMonitorConfig
	Uplink      UplinkConfig
	Indicator   IndicatorConfig
}

type DiagnosticsConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type MAVLinkConfig struct {
	Port            string
	BaudRate        int
	HeartbeatPeriod time.Duration
	LinkTimeout     time.Duration
	CommandTimeout  time.Duration
}

type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

type PipelineConfig struct {
	FrameQueueCapacity  int
	UploadQueueCapacity int
	WatchdogPeriod      time.Duration
	StageFailureBackoff time.Duration
	StageFailureWindow  time.Duration
	StageFailureLimit   int
	StopJoinTimeout     time.Duration
}

type CameraConfig struct {
	Width  int
	Height int
	FPS    int
}

// RCModeConfig holds the RC_CHANNELS channel numbers and PWM band
// thresholds read by internal/detector. LowMode, MiddleMode and HighMode
// are not read: the band-to-mode mapping is fixed in the detector's
// decodePrimaryMode. The zero value has both thresholds at 0, which
// classifies every PWM value as HIGH; Default() supplies working values.
type RCModeConfig struct {
	PrimaryChannel   int // 1-indexed RC channel selecting the primary mode
	FrequencyChannel int // 1-indexed RC channel selecting detection cadence
	EmergencyChannel int // 1-indexed RC channel for emergency override
	LowThresholdPWM  int
	HighThresholdPWM int
	LowMode          string
	MiddleMode       string
	HighMode         string
}

type DetectorConfig struct {
	DetectorLatencyFrames int // L, default 9 at 30 FPS
}

type TrackerConfig struct {
	VelocityWindowFrames  int // K, default 10
	VerifyEveryFrames     int // V, default 30
	GraceFrames           int // G, default 60
	TimeMachineCapacity   int // N, default 50
	DetectorLatencyFrames int // L, default 9
	DetectorLatencyTolFrm int // ± tolerance for TimeMachine lookup, default 5
	IoUExcellentThreshold float64
	IoUWarningThreshold   float64
	IoUDangerThreshold    float64
}

type GeolocatorConfig struct {
	CameraHFOVDeg float64
	CameraVFOVDeg float64
	MountPitchDeg float64
	MountRollDeg  float64
	MountYawDeg   float64
	GroundAltMSL  float64
}

type GeofenceConfig struct {
	PersistencePath  string
	WarningDistanceM float64
	CooldownPeriod   time.Duration
	CheckMinInterval time.Duration
}

type BatteryConfig struct {
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

type GPSMonitorConfig struct {
	GPSHistoryCapacity int
	IMUHistoryCapacity int
	DecayFactor        float64
	DegradedThreshold  float64
	ConfirmedThreshold float64
	ConsecutiveForLost int
	AlertRateLimit     time.Duration
}

type UplinkConfig struct {
	Endpoint       string
	AuthToken      string
	RequestTimeout time.Duration
}

type IndicatorConfig struct {
	Enabled bool
	GPIOPin string
}

// Default returns a Config with the defaults named throughout spec.md.
func Default() *Config {
	return &Config{
		Diagnostics: DiagnosticsConfig{
			Host: "0.0.0.0",
			Port: 8088,
			CORSOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
			},
		},
		MAVLink: MAVLinkConfig{
			Port:            "/dev/ttyUSB0",
			BaudRate:        57600,
			HeartbeatPeriod: 1 * time.Second,
			LinkTimeout:     3 * time.Second,
			CommandTimeout:  1 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Pipeline: PipelineConfig{
			FrameQueueCapacity:  2,
			UploadQueueCapacity: 50,
			WatchdogPeriod:      15 * time.Second,
			StageFailureBackoff: 100 * time.Millisecond,
			StageFailureWindow:  10 * time.Second,
			StageFailureLimit:   3,
			StopJoinTimeout:     2 * time.Second,
		},
		Camera: CameraConfig{Width: 640, Height: 480, FPS: 30},
		RCModes: RCModeConfig{
			PrimaryChannel:   5,
			FrequencyChannel: 7,
			EmergencyChannel: 8,
			LowThresholdPWM:  1300,
			HighThresholdPWM: 1700,
			LowMode:          "SEARCH_RESCUE",
			MiddleMode:       "RECONNAISSANCE",
			HighMode:         "PEOPLE_COUNTING",
		},
		Detector: DetectorConfig{DetectorLatencyFrames: 9},
		Tracker: TrackerConfig{
			VelocityWindowFrames:  10,
			VerifyEveryFrames:     30,
			GraceFrames:           60,
			TimeMachineCapacity:   50,
			DetectorLatencyFrames: 9,
			DetectorLatencyTolFrm: 5,
			IoUExcellentThreshold: 0.5,
			IoUWarningThreshold:   0.3,
			IoUDangerThreshold:    0.1,
		},
		Geolocator: GeolocatorConfig{
			CameraHFOVDeg: 54.0,
			CameraVFOVDeg: 41.0,
			MountPitchDeg: -20.0,
			MountRollDeg:  0.0,
			MountYawDeg:   0.0,
			GroundAltMSL:  0.0,
		},
		Geofence: GeofenceConfig{
			PersistencePath:  "./data/config/geofence.json",
			WarningDistanceM: 30.0,
			CooldownPeriod:   5 * time.Second,
			CheckMinInterval: 500 * time.Millisecond,
		},
		Battery: BatteryConfig{
			CapacityMAh:        10400,
			NominalVoltage:     14.8,
			CellCount:          4,
			CruisePowerW:       150,
			ClimbPowerW:        250,
			CruiseSpeedMS:      15,
			VerticalSpeedMS:    3,
			ReserveFraction:    0.20,
			MinCellVoltage:     3.3,
			CheckInterval:      5 * time.Second,
			WarningMarginFrac:  0.30,
			CriticalMarginFrac: 0.10,
		},
		GPSMonitor: GPSMonitorConfig{
			GPSHistoryCapacity: 100,
			IMUHistoryCapacity: 500,
			DecayFactor:        0.85,
			DegradedThreshold:  20.0,
			ConfirmedThreshold: 50.0,
			ConsecutiveForLost: 3,
			AlertRateLimit:     5 * time.Second,
		},
		Uplink: UplinkConfig{
			Endpoint:       "",
			RequestTimeout: 8 * time.Second,
		},
		Indicator: IndicatorConfig{
			Enabled: true,
			GPIOPin: "GPIO17",
		},
	}
}

// Validate checks invariants that must hold before the supervisor starts.
func (c *Config) Validate() error {
	if c.Diagnostics.Port < 1 || c.Diagnostics.Port > 65535 {
		return fmt.Errorf("invalid diagnostics port: %d", c.Diagnostics.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Pipeline.FrameQueueCapacity < 1 {
		return fmt.Errorf("frame queue capacity must be >= 1")
	}
	if c.Pipeline.UploadQueueCapacity < 1 {
		return fmt.Errorf("upload queue capacity must be >= 1")
	}
	if c.Battery.ReserveFraction < 0 || c.Battery.ReserveFraction > 1 {
		return fmt.Errorf("reserve fraction must be within [0,1]")
	}
	if c.Tracker.IoUDangerThreshold >= c.Tracker.IoUWarningThreshold ||
		c.Tracker.IoUWarningThreshold >= c.Tracker.IoUExcellentThreshold {
		return fmt.Errorf("tracker IoU thresholds must be strictly increasing: danger < warning < excellent")
	}

	return nil
}

// DiagnosticsAddr returns the diagnostics HTTP listen address as host:port.
func (c *Config) DiagnosticsAddr() string {
	return fmt.Sprintf("%s:%d", c.Diagnostics.Host, c.Diagnostics.Port)
}
