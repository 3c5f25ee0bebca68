package tracker

import (
	"errors"
	"image"
	"sync"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

// fakeFastTracker moves its bbox by a fixed per-update delta, simulating a
// tracker that drifts smoothly (or not at all with delta zero).
type fakeFastTracker struct {
	mu      sync.Mutex
	box     perception.BBox
	dx, dy  float64
	fail    bool
	reinits []perception.BBox
}

func (f *fakeFastTracker) Init(_ image.Image, box perception.BBox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.box = box
	return nil
}

func (f *fakeFastTracker) Update(_ image.Image) (perception.BBox, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return perception.BBox{}, false
	}
	f.box = f.box.Translate(f.dx, f.dy)
	return f.box, true
}

func (f *fakeFastTracker) Reinitialize(_ image.Image, box perception.BBox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.box = box
	f.reinits = append(f.reinits, box)
	return nil
}

// fixedVerifier always returns the same canned detections.
type fixedVerifier struct {
	mu   sync.Mutex
	dets []perception.Detection
	err  error
}

func (v *fixedVerifier) Detect(_ image.Image) ([]perception.Detection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return v.dets, nil
}

func (v *fixedVerifier) setDetections(d []perception.Detection) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dets = d
}

var errDetect = errors.New("detect failed")
