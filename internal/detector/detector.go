package detector

import (
	"context"
	"image"
	"log"
	"sync"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

// Inferencer runs the actual object-detection model over a frame,
// restricted to targetClasses and filtered to confidenceThreshold. It is
// the seam where a real model backend (ONNX Runtime, TensorRT, ...) is
// plugged in; no such dependency exists in this module's corpus, so the
// companion ships only the interface and a deterministic stub.
type Inferencer interface {
	Infer(ctx context.Context, img image.Image, targetClasses []perception.ClassID, confidenceThreshold float64) ([]perception.Detection, error)
}

// TrackerSeeder is the subset of the tracker (C4) the detector drives:
// handing it fresh detections to (re)seed tracking, and stopping it when
// a mode switch invalidates whatever it was locked onto.
type TrackerSeeder interface {
	Seed(detections []perception.Detection)
	Stop()
}

// Controller is the adaptive detector (C3). It selects inference cadence
// from the current AI mission mode, runs the Inferencer every N frames,
// and otherwise leaves per-frame tracking to C4 entirely.
type Controller struct {
	mu sync.Mutex

	rcConfig config.RCModeConfig
	infer    Inferencer
	tracker  TrackerSeeder
	logger   *log.Logger

	mode             Mode
	lastNonEmergency Mode
	frequency        Frequency
	everyN           int
	frameCounter     uint64
	criticalOp       bool
	pendingMode      *Mode
}

// NewController constructs a Controller defaulting to RECONNAISSANCE,
// matching the original RC mode controller's startup default.
func NewController(rcConfig config.RCModeConfig, infer Inferencer, tracker TrackerSeeder, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		rcConfig:         rcConfig,
		infer:            infer,
		tracker:          tracker,
		logger:           logger,
		mode:             ModeReconnaissance,
		lastNonEmergency: ModeReconnaissance,
		frequency:        FrequencyMedium,
		everyN:           configFor(ModeReconnaissance, ModeReconnaissance).DetectEveryN,
	}
}

// SetTrackerSeeder wires the tracker (C4) after construction, breaking
// the constructor cycle between the detector and the hybrid tracker
// (which in turn verifies against the detector's own Inferencer).
func (c *Controller) SetTrackerSeeder(tracker TrackerSeeder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = tracker
}

// SetCriticalOperation marks whether a mode switch should be deferred
// (spec.md §4.3: "actively tracking a rescue target").
func (c *Controller) SetCriticalOperation(critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criticalOp = critical
	if !critical && c.pendingMode != nil {
		c.switchModeLocked(*c.pendingMode)
		c.pendingMode = nil
	}
}

// UpdateRCChannels decodes the primary mode, frequency, and emergency
// channels and applies any resulting mode/frequency change.
func (c *Controller) UpdateRCChannels(ch RCChannels) {
	primaryPWM := ch.Values[c.rcConfig.PrimaryChannel]
	freqPWM := ch.Values[c.rcConfig.FrequencyChannel]
	emergencyPWM := ch.Values[c.rcConfig.EmergencyChannel]

	newMode := decodePrimaryMode(primaryPWM, c.rcConfig)
	newFreq := decodeFrequency(freqPWM, c.rcConfig)
	if decodeEmergency(emergencyPWM, c.rcConfig) {
		newMode = ModeEmergency
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if newFreq != c.frequency {
		c.frequency = newFreq
		if c.mode != ModeManual {
			c.everyN = detectEveryNForFrequency(newFreq)
		}
	}

	if newMode == c.mode {
		return
	}

	if c.criticalOp {
		c.logger.Printf("detector: mode switch to %s deferred, critical operation in progress", newMode)
		m := newMode
		c.pendingMode = &m
		return
	}
	c.switchModeLocked(newMode)
}

func (c *Controller) switchModeLocked(newMode Mode) {
	c.logger.Printf("detector: AI mission mode %s -> %s", c.mode, newMode)
	if newMode != ModeEmergency {
		c.lastNonEmergency = newMode
	}
	c.mode = newMode
	c.frameCounter = 0
	c.everyN = configFor(newMode, c.lastNonEmergency).DetectEveryN

	// spec.md §4.3: "Mode transitions reset tracking state unless a
	// critical operation flag is set." switchModeLocked is only reached
	// once criticalOp has already been checked (directly from
	// UpdateRCChannels, or via the deferred pendingMode replay in
	// SetCriticalOperation), so any tracked target here is stale for the
	// new mode's target classes and must be dropped.
	if c.tracker != nil {
		c.tracker.Stop()
	}
}

// CurrentMode returns the active mode and its resolved config.
func (c *Controller) CurrentMode() (Mode, ModeConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, configFor(c.mode, c.lastNonEmergency)
}

// Infer runs the underlying Inferencer directly, bypassing the mode
// cadence gate. Used by the hybrid tracker's background verification
// pass (C4), which must be able to verify on its own schedule
// independent of how often ProcessFrame decides to run inference.
func (c *Controller) Infer(ctx context.Context, img image.Image, targetClasses []perception.ClassID, confidenceThreshold float64) ([]perception.Detection, error) {
	return c.infer.Infer(ctx, img, targetClasses, confidenceThreshold)
}

// ProcessFrame implements spec.md §4.3's per-frame decision: either run
// inference this frame and reseed the tracker, or skip inference
// entirely and let C4 handle cheap per-frame tracking.
func (c *Controller) ProcessFrame(ctx context.Context, frameID uint64, img image.Image) ([]perception.Detection, error) {
	c.mu.Lock()
	mode := c.mode
	cfg := configFor(mode, c.lastNonEmergency)
	c.frameCounter++
	counter := c.frameCounter
	everyN := c.everyN
	c.mu.Unlock()

	if everyN <= 0 {
		return nil, nil // MANUAL mode: detector never runs
	}
	if counter%uint64(everyN) != 0 {
		return nil, nil // delegate to tracker this frame
	}

	detections, err := c.infer.Infer(ctx, img, cfg.TargetClasses, cfg.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	for i := range detections {
		detections[i].FrameID = frameID
	}
	if c.tracker != nil && len(detections) > 0 {
		c.tracker.Seed(detections)
	}
	return detections, nil
}
