// Package app wires every core component (C1-C12) into one running
// companion-computer instance. Grounded on the teacher's now-retired
// internal/server/dependencies.go: one struct owning every collaborator,
// built once at startup and handed to whatever needs it, rather than
// package-level globals.
package app

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/flightpath-dev/sentinel-core/internal/battery"
	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/detector"
	"github.com/flightpath-dev/sentinel-core/internal/diagnostics"
	"github.com/flightpath-dev/sentinel-core/internal/fc"
	"github.com/flightpath-dev/sentinel-core/internal/geofence"
	"github.com/flightpath-dev/sentinel-core/internal/gpsdenial"
	"github.com/flightpath-dev/sentinel-core/internal/indicator"
	"github.com/flightpath-dev/sentinel-core/internal/metrics"
	"github.com/flightpath-dev/sentinel-core/internal/perception"
	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
	"github.com/flightpath-dev/sentinel-core/internal/telemetry"
	"github.com/flightpath-dev/sentinel-core/internal/tracker"
	"github.com/flightpath-dev/sentinel-core/internal/uplink"
)

// App bundles every wired collaborator for one companion-computer run.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Collector

	Telemetry *telemetry.Cell
	FC        *fc.Gateway

	Detector *detector.Controller
	Tracker  *tracker.Tracker

	Geofence  *geofence.System
	Battery   *battery.FailsafeSystem
	GPSMonitor *gpsdenial.Monitor

	FrameQueue  *pipeline.Queue[pipeline.FramePacket]
	UploadQueue *pipeline.Queue[pipeline.UploadItem]
	Runtime     *pipeline.Runtime
	Watchdog    *pipeline.Watchdog

	Diagnostics *diagnostics.Server
	Uplink      *uplink.Client
	Indicator   *indicator.LED
}

// New builds every collaborator and wires them together. Building the FC
// gateway already starts its reader and heartbeat goroutines; callers start
// the pipeline runtime and diagnostics server explicitly so cmd/sentinel
// controls ordering and shutdown.
func New(cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	cell := telemetry.NewCell(cfg.MAVLink.LinkTimeout)

	gateway, err := fc.NewGateway(fc.GatewayConfig{
		MAVLink: cfg.MAVLink,
		Cell:    cell,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: failed to start FC gateway: %w", err)
	}

	metricsCollector := metrics.NewCollector()

	fence := geofence.NewSystem(geofence.GeoPoint{}, 0, cfg.Geofence.WarningDistanceM, cfg.Geofence.CooldownPeriod, logger)
	if err := fence.Load(cfg.Geofence.PersistencePath); err != nil {
		logger.Printf("app: no persisted geofence state at %s, starting empty: %v", cfg.Geofence.PersistencePath, err)
	}

	failsafe := battery.NewFailsafeSystem(battery.Config{
		CapacityMAh:        cfg.Battery.CapacityMAh,
		NominalVoltage:     cfg.Battery.NominalVoltage,
		CellCount:          cfg.Battery.CellCount,
		CruisePowerW:       cfg.Battery.CruisePowerW,
		ClimbPowerW:        cfg.Battery.ClimbPowerW,
		CruiseSpeedMS:      cfg.Battery.CruiseSpeedMS,
		VerticalSpeedMS:    cfg.Battery.VerticalSpeedMS,
		ReserveFraction:    cfg.Battery.ReserveFraction,
		MinCellVoltage:     cfg.Battery.MinCellVoltage,
		CheckInterval:      cfg.Battery.CheckInterval,
		WarningMarginFrac:  cfg.Battery.WarningMarginFrac,
		CriticalMarginFrac: cfg.Battery.CriticalMarginFrac,
	}, gateway, logger)

	gpsMonitor := gpsdenial.NewMonitor(gpsdenial.Config{
		GPSHistoryCapacity: cfg.GPSMonitor.GPSHistoryCapacity,
		IMUHistoryCapacity: cfg.GPSMonitor.IMUHistoryCapacity,
		DecayFactor:        cfg.GPSMonitor.DecayFactor,
		ConsecutiveForLost: cfg.GPSMonitor.ConsecutiveForLost,
		AlertRateLimit:     cfg.GPSMonitor.AlertRateLimit,
	})

	detectorCtrl := detector.NewController(cfg.RCModes, detector.NoopInferencer{}, nil, logger)

	trackerAlerts := gatewayAlertSink{gateway: gateway}
	trk := tracker.New(tracker.Config{
		VelocityWindowFrames:  cfg.Tracker.VelocityWindowFrames,
		VerifyEveryFrames:     cfg.Tracker.VerifyEveryFrames,
		GraceFrames:           cfg.Tracker.GraceFrames,
		TimeMachineCapacity:   cfg.Tracker.TimeMachineCapacity,
		DetectorLatencyFrames: cfg.Tracker.DetectorLatencyFrames,
		DetectorLatencyTolFrm: cfg.Tracker.DetectorLatencyTolFrm,
		IoUExcellentThreshold: cfg.Tracker.IoUExcellentThreshold,
		IoUWarningThreshold:   cfg.Tracker.IoUWarningThreshold,
		IoUDangerThreshold:    cfg.Tracker.IoUDangerThreshold,
	}, noopFastTracker{}, detectorVerifierAdapter{detectorCtrl}, trackerAlerts, logger)
	detectorCtrl.SetTrackerSeeder(trk)
	trk.OnVerification(func(result tracker.VerifyResult) {
		metricsCollector.VerificationResults.WithLabelValues(result.Status.String()).Inc()
	})

	frameQueue := pipeline.NewQueue[pipeline.FramePacket](cfg.Pipeline.FrameQueueCapacity, pipeline.DropOldest)
	uploadQueue := pipeline.NewQueue[pipeline.UploadItem](cfg.Pipeline.UploadQueueCapacity, pipeline.DropNewest)

	uplinkClient := uplink.New(cfg.Uplink, logger)
	uplinkClient.OnFailure(func() { metricsCollector.UplinkFailures.Inc() })

	led := indicator.New(cfg.Indicator, logger)

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metricsCollector,
		Telemetry:   cell,
		FC:          gateway,
		Detector:    detectorCtrl,
		Tracker:     trk,
		Geofence:    fence,
		Battery:     failsafe,
		GPSMonitor:  gpsMonitor,
		FrameQueue:  frameQueue,
		UploadQueue: uploadQueue,
		Uplink:      uplinkClient,
		Indicator:   led,
	}

	stages := []pipeline.Stage{
		newCaptureStage(a),
		newPerceptionStage(a),
		newSafetyStage(a),
		newUplinkStage(a),
	}
	a.Runtime = pipeline.NewRuntime(pipeline.Config{
		WatchdogPeriod:      cfg.Pipeline.WatchdogPeriod,
		StageFailureBackoff: cfg.Pipeline.StageFailureBackoff,
		StageFailureWindow:  cfg.Pipeline.StageFailureWindow,
		StageFailureLimit:   cfg.Pipeline.StageFailureLimit,
		StopJoinTimeout:     cfg.Pipeline.StopJoinTimeout,
	}, logger, stages...)

	// Capture starvation is routed through the same Escalated channel as a
	// repeatedly-crashing stage, so cmd/sentinel only has one fatal-pipeline
	// signal to watch regardless of which liveness check tripped.
	a.Watchdog = pipeline.NewWatchdog(cfg.Pipeline.WatchdogPeriod, func() {
		logger.Println("app: capture watchdog starved, escalating")
		select {
		case a.Runtime.Escalated <- "capture-watchdog":
		default:
		}
		a.Runtime.Stop()
	})

	a.Diagnostics = diagnostics.New(cfg, logger, metricsCollector, a)

	return a, nil
}

// Status implements diagnostics.StatusProvider.
func (a *App) Status() diagnostics.StatusReport {
	mode, _ := a.Detector.CurrentMode()
	trackerState, confidence := a.Tracker.State()
	frameDepth := a.FrameQueue.Len()
	_, framesDropped := a.FrameQueue.Stats()
	uploadDepth := a.UploadQueue.Len()
	gpsStatus, _ := a.GPSMonitor.Status()

	return diagnostics.StatusReport{
		Mode:              mode.String(),
		FrameQueueDepth:   frameDepth,
		FrameQueueDropped: framesDropped,
		UploadQueueDepth:  uploadDepth,
		TrackerState:      trackerStateName(trackerState),
		TrackerConfidence: confidence,
		FailsafeActive:    a.Battery.GetStatus().FailsafeTriggered,
		GPSAnomalyActive:  gpsStatus != gpsdenial.StatusOK,
	}
}

// Close tears down every component that owns a background goroutine or
// OS resource, in reverse dependency order.
func (a *App) Close() error {
	a.Runtime.Stop()
	a.Tracker.Close()
	return a.FC.Close()
}

// Run starts the background collaborators (pipeline runtime, FC-driven
// safety loops) and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Battery.StartMonitoring()
	a.Runtime.Start(ctx)
	go a.Watchdog.Run(ctx)
	<-ctx.Done()
}

func trackerStateName(s tracker.State) string {
	switch s {
	case tracker.StateTracking:
		return "TRACKING"
	case tracker.StateStopped:
		return "STOPPED"
	default:
		return "IDLE"
	}
}

// gatewayAlertSink relays tracker pilot alerts as MAVLink STATUSTEXT
// warnings, satisfying tracker.AlertSink without the tracker package
// depending on fc.
type gatewayAlertSink struct {
	gateway *fc.Gateway
}

func (s gatewayAlertSink) Alert(msg string) {
	_ = s.gateway.StatusText(fc.SeverityWarning, msg)
}

// detectorVerifierAdapter narrows detector.Controller's ProcessFrame
// down to tracker.Verifier's Detect(image.Image) signature, since the
// hybrid tracker always verifies at full confidence/target-class scope
// rather than the detector's current mode filter.
type detectorVerifierAdapter struct {
	ctrl *detector.Controller
}

// Detect implements tracker.Verifier by running a full-scope inference
// pass through whatever Inferencer the detector is currently configured
// with, ignoring the detector's own mode-driven target/confidence filter
// so the tracker always verifies against every class the model can see.
func (a detectorVerifierAdapter) Detect(img image.Image) ([]perception.Detection, error) {
	allClasses := []perception.ClassID{
		perception.ClassPerson, perception.ClassVehicle, perception.ClassBoat,
		perception.ClassAnimal, perception.ClassUnknown,
	}
	return a.ctrl.Infer(context.Background(), img, allClasses, 0)
}

// noopFastTracker is the FastTracker stub used until a real CV backend
// is wired in; no such library exists anywhere in this module's example
// corpus (see DESIGN.md), so this ships as the only implementation.
type noopFastTracker struct{}

func (noopFastTracker) Init(_ image.Image, _ perception.BBox) error { return nil }
func (noopFastTracker) Update(_ image.Image) (perception.BBox, bool) {
	return perception.BBox{}, false
}
func (noopFastTracker) Reinitialize(_ image.Image, _ perception.BBox) error { return nil }
