package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestSeedStartsTrackingAndUpdateAdvancesBBox(t *testing.T) {
	fast := &fakeFastTracker{dx: 5}
	verifier := &fixedVerifier{}
	tr := New(Config{VerifyEveryFrames: 1000}, fast, verifier, nil, nil)
	defer tr.Close()

	tr.Seed([]perception.Detection{{Box: perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.9}})

	state, conf := tr.State()
	assert.Equal(t, StateTracking, state)
	assert.Equal(t, 1.0, conf)

	box, ok := tr.Update(nil, 1)
	require.True(t, ok)
	assert.Equal(t, 5.0, box.X1)
}

func TestVerificationExcellentReseedsAndRaisesConfidence(t *testing.T) {
	fast := &fakeFastTracker{}
	seedBox := perception.BBox{X1: 100, Y1: 100, X2: 200, Y2: 200}
	verifier := &fixedVerifier{dets: []perception.Detection{{Box: seedBox, Confidence: 0.9}}}

	tr := New(Config{VerifyEveryFrames: 1, DetectorLatencyFrames: 1, DetectorLatencyTolFrm: 2}, fast, verifier, nil, nil)
	defer tr.Close()

	tr.Start(seedBox)
	// Drop confidence first so the EXCELLENT path's rise is observable.
	tr.mu.Lock()
	tr.confidence = 0.5
	tr.mu.Unlock()

	_, ok := tr.Update(nil, 1)
	require.True(t, ok)

	// Update applies a completed result on its next call, so keep calling it.
	frameID := uint64(2)
	waitUntil(t, time.Second, func() bool {
		tr.Update(nil, frameID)
		frameID++
		_, conf := tr.State()
		return conf > 0.5
	})

	_, conf := tr.State()
	assert.InDelta(t, 0.6, conf, 1e-6)
	assert.NotEmpty(t, fast.reinits)
}

func TestVerificationCriticalReinitializesTracker(t *testing.T) {
	fast := &fakeFastTracker{}
	seedBox := perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	farBox := perception.BBox{X1: 1000, Y1: 1000, X2: 1010, Y2: 1010}
	verifier := &fixedVerifier{dets: []perception.Detection{{Box: farBox, Confidence: 0.9}}}

	tr := New(Config{VerifyEveryFrames: 1, DetectorLatencyFrames: 0}, fast, verifier, nil, nil)
	defer tr.Close()
	tr.Start(seedBox)

	_, ok := tr.Update(nil, 1)
	require.True(t, ok)

	frameID := uint64(2)
	waitUntil(t, time.Second, func() bool {
		tr.Update(nil, frameID)
		frameID++
		return len(fast.reinits) > 0
	})
	assert.Equal(t, farBox, fast.reinits[len(fast.reinits)-1])
}

func TestVerificationNoDetectionStopsAfterGraceExceeded(t *testing.T) {
	fast := &fakeFastTracker{}
	verifier := &fixedVerifier{} // no detections ever
	tr := New(Config{VerifyEveryFrames: 1, GraceFrames: 1}, fast, verifier, nil, nil)
	defer tr.Close()
	tr.Start(perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10})

	for i := uint64(1); i <= 3; i++ {
		tr.Update(nil, i)
		time.Sleep(10 * time.Millisecond) // let the worker drain each job
	}

	waitUntil(t, time.Second, func() bool {
		state, _ := tr.State()
		return state == StateStopped
	})
}

func TestFastTrackerFailureStopsTracking(t *testing.T) {
	fast := &fakeFastTracker{fail: true}
	tr := New(Config{}, fast, &fixedVerifier{}, nil, nil)
	defer tr.Close()
	tr.Start(perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10})

	_, ok := tr.Update(nil, 1)
	assert.False(t, ok)
	state, _ := tr.State()
	assert.Equal(t, StateStopped, state)
}

func TestDangerAlertsPilot(t *testing.T) {
	fast := &fakeFastTracker{}
	seedBox := perception.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	// Overlapping but offset enough to land in the DANGER band (IoU ~0.2).
	dangerBox := perception.BBox{X1: 42, Y1: 42, X2: 142, Y2: 142}
	verifier := &fixedVerifier{dets: []perception.Detection{{Box: dangerBox, Confidence: 0.9}}}

	alerts := &recordingAlertSink{}
	tr := New(Config{VerifyEveryFrames: 1, DetectorLatencyFrames: 0}, fast, verifier, alerts, nil)
	defer tr.Close()
	tr.Start(seedBox)

	_, ok := tr.Update(nil, 1)
	require.True(t, ok)

	frameID := uint64(2)
	waitUntil(t, time.Second, func() bool {
		tr.Update(nil, frameID)
		frameID++
		return alerts.len() > 0
	})
}

func TestVerificationErrorDoesNotCrashOrStopTracking(t *testing.T) {
	fast := &fakeFastTracker{}
	verifier := &fixedVerifier{err: errDetect}
	tr := New(Config{VerifyEveryFrames: 1}, fast, verifier, nil, nil)
	defer tr.Close()
	tr.Start(perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10})

	_, ok := tr.Update(nil, 1)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)

	state, _ := tr.State()
	assert.Equal(t, StateTracking, state)
}

type recordingAlertSink struct {
	messages []string
}

func (r *recordingAlertSink) Alert(msg string) { r.messages = append(r.messages, msg) }
func (r *recordingAlertSink) len() int         { return len(r.messages) }

// TestDriftScenarioRecoversAtVerificationBoundary mirrors spec.md §8's
// worked example: seed at (100,100,200,200), 30 frames of a +5px/frame
// tracker drift, detector bbox (250,100,350,200) landing on the 30th
// frame's verification pass. Real-world noise and the detector's latency
// window account for the spec's documented IoU ≈ 0.92 rather than 1.0;
// this drives the same 30-frame drift and asserts the documented outcome
// (EXCELLENT verification, reseed, tracker stays locked) rather than
// pinning the exact IoU, since the precise figure depends on the
// time-alignment tolerance window this test doesn't control frame-by-frame.
func TestDriftScenarioRecoversAtVerificationBoundary(t *testing.T) {
	seedBox := perception.BBox{X1: 100, Y1: 100, X2: 200, Y2: 200}
	detectorBox := perception.BBox{X1: 250, Y1: 100, X2: 350, Y2: 200}

	fast := &fakeFastTracker{dx: 5}
	verifier := &fixedVerifier{dets: []perception.Detection{{Box: detectorBox, Confidence: 0.9}}}

	tr := New(Config{
		VerifyEveryFrames:     30,
		DetectorLatencyFrames: 9,
		DetectorLatencyTolFrm: 5,
		TimeMachineCapacity:   50,
	}, fast, verifier, nil, nil)
	defer tr.Close()
	tr.Start(seedBox)

	var box perception.BBox
	var ok bool
	for i := uint64(1); i <= 30; i++ {
		box, ok = tr.Update(nil, i)
		require.True(t, ok)
	}
	assert.Equal(t, detectorBox, box)

	// The verification worker applies its result asynchronously; Update
	// only drains a completed result on its next call, so keep nudging the
	// tracker forward (frame 31 onward, tracker stationary: dx=0 once
	// reseeded has no bearing here since fast.dx stays 5) until the
	// background pass lands.
	i := uint64(31)
	waitUntil(t, time.Second, func() bool {
		box, ok = tr.Update(nil, i)
		i++
		return len(fast.reinits) > 0
	})
	require.True(t, ok)

	state, conf := tr.State()
	assert.Equal(t, StateTracking, state)
	assert.Equal(t, 1.0, conf) // EXCELLENT raises confidence, capped at 1.0
	require.NotEmpty(t, fast.reinits)
	assert.Equal(t, detectorBox, fast.reinits[len(fast.reinits)-1])
}
