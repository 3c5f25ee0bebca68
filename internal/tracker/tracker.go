// Package tracker implements the hybrid tracker + async verifier (C4),
// spec.md's "hardest subsystem": a fast synchronous per-frame tracker
// reconciled against a slow background detector via a frame-id indexed
// TimeMachine buffer, solving the latency-mismatch problem where the
// detector's result always describes several-frames-stale ground truth.
// Ported from the original HybridVerifier, with its Python thread+queue
// model kept intact and expressed as goroutines + internal/pipeline's
// bounded queue.
package tracker

import (
	"image"
	"log"
	"sync"
	"time"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
)

// State is the tracker's coarse lifecycle state (spec.md §4.4).
type State int

const (
	StateIdle State = iota
	StateTracking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VerifyStatus is the outcome of one background verification pass.
type VerifyStatus int

const (
	VerifyExcellent VerifyStatus = iota
	VerifyWarning
	VerifyDanger
	VerifyCritical
	VerifyNoDetection
	VerifyErrored
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyExcellent:
		return "excellent"
	case VerifyWarning:
		return "warning"
	case VerifyDanger:
		return "danger"
	case VerifyCritical:
		return "critical"
	case VerifyNoDetection:
		return "no_detection"
	case VerifyErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// VerifyResult is produced by the verification worker and consumed by the
// main-thread Update loop (mirrors the original's result dict).
type VerifyResult struct {
	Status          VerifyStatus
	IoU             float64
	DetectorBox     perception.BBox
	HasDetectorBox  bool
	Message         string
	SubmissionFrame uint64
}

// Config bundles the tunables from config.TrackerConfig.
type Config struct {
	VelocityWindowFrames  int // K, default 10
	VerifyEveryFrames     int // V, default 30
	GraceFrames           int // G, default 60
	TimeMachineCapacity   int // N, default 50
	DetectorLatencyFrames int // L, default 9
	DetectorLatencyTolFrm int // tolerance, default 5
	IoUExcellentThreshold float64
	IoUWarningThreshold   float64
	IoUDangerThreshold    float64
}

func (c Config) withDefaults() Config {
	if c.VelocityWindowFrames <= 0 {
		c.VelocityWindowFrames = 10
	}
	if c.VerifyEveryFrames <= 0 {
		c.VerifyEveryFrames = 30
	}
	if c.GraceFrames <= 0 {
		c.GraceFrames = 60
	}
	if c.TimeMachineCapacity <= 0 {
		c.TimeMachineCapacity = 50
	}
	if c.DetectorLatencyFrames <= 0 {
		c.DetectorLatencyFrames = 9
	}
	if c.DetectorLatencyTolFrm <= 0 {
		c.DetectorLatencyTolFrm = 5
	}
	if c.IoUExcellentThreshold <= 0 {
		c.IoUExcellentThreshold = 0.5
	}
	if c.IoUWarningThreshold <= 0 {
		c.IoUWarningThreshold = 0.3
	}
	if c.IoUDangerThreshold <= 0 {
		c.IoUDangerThreshold = 0.1
	}
	return c
}

type verifyJob struct {
	frame           image.Image
	trackerBox      perception.BBox
	submissionFrame uint64
}

// Tracker is the hybrid tracker + async verifier.
type Tracker struct {
	cfg      Config
	fast     FastTracker
	verifier Verifier
	alerts   AlertSink
	logger   *log.Logger

	mu                sync.Mutex
	state             State
	confidence        float64
	currentBox        perception.BBox
	frameCounter      uint64
	graceCounter      int
	verificationInFly bool
	velocityHistory   []velocitySample
	velocity          [2]float64
	timeMachine       *TimeMachine

	resultMu sync.Mutex
	result   *VerifyResult

	jobs *pipeline.Queue[verifyJob]

	onVerified func(VerifyResult)

	stopOnce sync.Once
	wg       sync.WaitGroup
}

type velocitySample struct {
	frameID uint64
	cx, cy  float64
}

// New constructs a Tracker wired to a FastTracker and a Verifier, and
// starts its background verification worker.
func New(cfg Config, fast FastTracker, verifier Verifier, alerts AlertSink, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	t := &Tracker{
		cfg:         cfg,
		fast:        fast,
		verifier:    verifier,
		alerts:      alerts,
		logger:      logger,
		state:       StateIdle,
		timeMachine: NewTimeMachine(cfg.TimeMachineCapacity),
		jobs:        pipeline.NewQueue[verifyJob](2, pipeline.DropOldest),
	}
	t.wg.Add(1)
	go t.verificationWorker()
	return t
}

// OnVerification registers a callback invoked once per completed
// background verification pass, used by internal/app to feed verification
// outcomes into internal/metrics without the tracker package depending on
// it directly.
func (t *Tracker) OnVerification(fn func(VerifyResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onVerified = fn
}

// Seed implements detector.TrackerSeeder: the adaptive detector (C3) hands
// fresh detections here to (re)start tracking, preferring the highest
// confidence detection.
func (t *Tracker) Seed(detections []perception.Detection) {
	if len(detections) == 0 {
		return
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	t.Start(best.Box)
}

// Start begins tracking from a seed bbox, matching start_tracking.
func (t *Tracker) Start(box perception.BBox) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.fast.Init(nil, box); err != nil {
		t.logger.Printf("tracker: failed to initialize: %v", err)
		t.state = StateIdle
		return
	}

	t.resultMu.Lock()
	t.result = nil
	t.resultMu.Unlock()
	t.verificationInFly = false

	t.state = StateTracking
	t.currentBox = box
	t.frameCounter = 0
	t.graceCounter = 0
	t.confidence = 1.0
	t.velocityHistory = nil
	t.velocity = [2]float64{0, 0}
	t.timeMachine = NewTimeMachine(t.cfg.TimeMachineCapacity)
	t.timeMachine.Append(TimeMachineEntry{FrameID: 0, Timestamp: time.Now(), Box: box})

	t.logger.Printf("tracker: hybrid tracking started at %+v", box)
}

// Stop halts tracking and resets the tracker to idle. The background
// worker keeps running; Close stops it.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.state = StateIdle
	t.currentBox = perception.BBox{}
	t.confidence = 0
	t.verificationInFly = false
	t.mu.Unlock()
}

// Close permanently stops the background verification worker.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		t.jobs.Close()
	})
	t.wg.Wait()
}

// State reports the tracker's current lifecycle state and confidence.
func (t *Tracker) State() (State, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.confidence
}

// Update runs one iteration of the per-frame loop (spec.md §4.4): drain
// any completed verification, run the fast tracker, maintain velocity and
// the TimeMachine, and dispatch a new verification every V frames.
func (t *Tracker) Update(frame image.Image, frameID uint64) (perception.BBox, bool) {
	t.drainVerification()

	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return perception.BBox{}, false
	}
	t.mu.Unlock()

	box, ok := t.fast.Update(frame)
	if !ok {
		t.mu.Lock()
		t.state = StateStopped
		t.mu.Unlock()
		t.logger.Printf("tracker: fast tracker failed at frame %d", frameID)
		return perception.BBox{}, false
	}

	t.mu.Lock()
	t.currentBox = box
	t.updateVelocityLocked(frameID, box)
	t.timeMachine.Append(TimeMachineEntry{FrameID: frameID, Timestamp: time.Now(), Box: box, Velocity: t.velocity})
	t.frameCounter++
	shouldVerify := t.frameCounter >= uint64(t.cfg.VerifyEveryFrames) && !t.verificationInFly
	if shouldVerify {
		t.frameCounter = 0
		t.verificationInFly = true
	}
	t.mu.Unlock()

	if shouldVerify {
		if !t.jobs.Push(verifyJob{frame: frame, trackerBox: box, submissionFrame: frameID}) {
			t.mu.Lock()
			t.verificationInFly = false
			t.mu.Unlock()
		}
	}

	return box, true
}

func (t *Tracker) updateVelocityLocked(frameID uint64, box perception.BBox) {
	cx, cy := box.Center()
	t.velocityHistory = append(t.velocityHistory, velocitySample{frameID: frameID, cx: cx, cy: cy})
	if len(t.velocityHistory) > t.cfg.VelocityWindowFrames {
		t.velocityHistory = t.velocityHistory[len(t.velocityHistory)-t.cfg.VelocityWindowFrames:]
	}
	if len(t.velocityHistory) < 2 {
		t.velocity = [2]float64{0, 0}
		return
	}
	first := t.velocityHistory[0]
	last := t.velocityHistory[len(t.velocityHistory)-1]
	frames := float64(last.frameID - first.frameID)
	if frames <= 0 {
		t.velocity = [2]float64{0, 0}
		return
	}
	t.velocity = [2]float64{(last.cx - first.cx) / frames, (last.cy - first.cy) / frames}
}

// drainVerification applies a completed background result, if any,
// matching _process_verification_result (called on the main thread).
func (t *Tracker) drainVerification() {
	t.resultMu.Lock()
	result := t.result
	t.result = nil
	t.resultMu.Unlock()
	if result == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.verificationInFly = false

	switch result.Status {
	case VerifyExcellent:
		t.confidence = min(1.0, t.confidence+0.1)
		if result.HasDetectorBox {
			if err := t.fast.Reinitialize(nil, result.DetectorBox); err != nil {
				t.logger.Printf("tracker: reseed failed: %v", err)
			} else {
				t.currentBox = result.DetectorBox
			}
		}
	case VerifyWarning:
		t.confidence = max(0.3, t.confidence-0.05)
	case VerifyDanger:
		t.confidence = max(0.1, t.confidence-0.2)
		if t.alerts != nil {
			t.alerts.Alert("tracker may be wrong: " + result.Message)
		}
	case VerifyCritical:
		if result.HasDetectorBox {
			if err := t.fast.Reinitialize(nil, result.DetectorBox); err != nil {
				t.logger.Printf("tracker: reinit failed: %v", err)
				t.state = StateStopped
			} else {
				t.currentBox = result.DetectorBox
			}
		} else {
			t.state = StateStopped
		}
	case VerifyNoDetection:
		// Grace handling already applied by the worker; STOP_TRACKING is
		// signaled by leaving HasDetectorBox false and message set.
		if result.Message == msgGraceExceeded {
			t.state = StateStopped
		}
	case VerifyErrored:
		// treated like no-detection with grace; nothing to apply here.
	}
}

const msgGraceExceeded = "object lost: grace period exceeded"

// verificationWorker is the background goroutine running the slow
// detector over handed-off frames and time-aligning the result against
// the TimeMachine (spec.md §4.4's verification worker steps).
func (t *Tracker) verificationWorker() {
	defer t.wg.Done()
	for {
		job, ok := t.jobs.Pop()
		if !ok {
			return
		}
		result := t.doVerification(job)
		t.resultMu.Lock()
		t.result = &result
		t.resultMu.Unlock()

		t.mu.Lock()
		onVerified := t.onVerified
		t.mu.Unlock()
		if onVerified != nil {
			onVerified(result)
		}
	}
}

func (t *Tracker) doVerification(job verifyJob) VerifyResult {
	detections, err := t.verifier.Detect(job.frame)
	if err != nil {
		t.mu.Lock()
		t.graceCounter++
		grace := t.graceCounter
		t.mu.Unlock()
		if grace > t.cfg.GraceFrames {
			return VerifyResult{Status: VerifyNoDetection, Message: msgGraceExceeded, SubmissionFrame: job.submissionFrame}
		}
		return VerifyResult{Status: VerifyErrored, Message: err.Error(), SubmissionFrame: job.submissionFrame}
	}

	if len(detections) == 0 {
		t.mu.Lock()
		t.graceCounter++
		grace := t.graceCounter
		t.mu.Unlock()

		if grace > t.cfg.GraceFrames {
			return VerifyResult{Status: VerifyNoDetection, Message: msgGraceExceeded, SubmissionFrame: job.submissionFrame}
		}
		return VerifyResult{Status: VerifyNoDetection, Message: "grace period", SubmissionFrame: job.submissionFrame}
	}
	t.mu.Lock()
	t.graceCounter = 0
	velocity := t.velocity
	t.mu.Unlock()

	detectorFrameID := int64(job.submissionFrame) - int64(t.cfg.DetectorLatencyFrames)
	if detectorFrameID < 0 {
		detectorFrameID = 0
	}
	t.mu.Lock()
	comparisonBox, found := t.timeMachine.BBoxAtFrame(uint64(detectorFrameID), t.cfg.DetectorLatencyTolFrm)
	t.mu.Unlock()
	if !found {
		comparisonBox = job.trackerBox
	}

	bestIoU := 0.0
	var bestDetection perception.Detection
	haveBest := false
	for _, d := range detections {
		iou := perception.IoU(comparisonBox, d.Box)
		if !haveBest || iou > bestIoU || (iou == bestIoU && d.Confidence > bestDetection.Confidence) {
			bestIoU = iou
			bestDetection = d
			haveBest = true
		}
	}

	if haveBest && bestIoU < t.cfg.IoUExcellentThreshold {
		predicted := predictBBox(bestDetection.Box, velocity, float64(t.cfg.DetectorLatencyFrames))
		predictedIoU := perception.IoU(job.trackerBox, predicted)
		if predictedIoU > bestIoU {
			bestIoU = predictedIoU
			bestDetection.Box = predicted
		}
	}

	switch {
	case bestIoU > t.cfg.IoUExcellentThreshold:
		return VerifyResult{
			Status: VerifyExcellent, IoU: bestIoU,
			DetectorBox: bestDetection.Box, HasDetectorBox: haveBest,
			Message: "tracker accurate", SubmissionFrame: job.submissionFrame,
		}
	case bestIoU > t.cfg.IoUWarningThreshold:
		return VerifyResult{Status: VerifyWarning, IoU: bestIoU, Message: "tracker drifting", SubmissionFrame: job.submissionFrame}
	case bestIoU > t.cfg.IoUDangerThreshold:
		return VerifyResult{Status: VerifyDanger, IoU: bestIoU, Message: "tracker may be wrong", SubmissionFrame: job.submissionFrame}
	default:
		return VerifyResult{
			Status: VerifyCritical, IoU: bestIoU,
			DetectorBox: bestDetection.Box, HasDetectorBox: haveBest,
			Message: "tracker completely wrong", SubmissionFrame: job.submissionFrame,
		}
	}
}
