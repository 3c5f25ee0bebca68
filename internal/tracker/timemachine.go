package tracker

import (
	"time"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

// TimeMachineEntry is one tracker output recorded by frame-id, letting the
// verifier reconcile a delayed detector result against where the tracker
// actually was when the detector's frame was captured (spec.md §4.4).
type TimeMachineEntry struct {
	FrameID   uint64
	Timestamp time.Time
	Box       perception.BBox
	Velocity  [2]float64 // pixels/frame, (vx, vy)
}

// TimeMachine is a bounded, single-writer ring of recent tracker outputs.
type TimeMachine struct {
	entries  []TimeMachineEntry
	capacity int
}

// NewTimeMachine constructs a ring of the given capacity (spec.md default N=50).
func NewTimeMachine(capacity int) *TimeMachine {
	if capacity <= 0 {
		capacity = 50
	}
	return &TimeMachine{capacity: capacity}
}

// Append records a new tracker output, trimming the oldest entry if full.
func (t *TimeMachine) Append(entry TimeMachineEntry) {
	t.entries = append(t.entries, entry)
	if len(t.entries) > t.capacity {
		t.entries = t.entries[len(t.entries)-t.capacity:]
	}
}

// Len reports the number of entries currently retained.
func (t *TimeMachine) Len() int { return len(t.entries) }

// BBoxAtFrame finds the entry nearest to targetFrameID, matching within
// tolerance frames. If the nearest entry is older than the target, its
// bbox is projected forward using its stored velocity to compensate.
func (t *TimeMachine) BBoxAtFrame(targetFrameID uint64, tolerance int) (perception.BBox, bool) {
	if len(t.entries) == 0 {
		return perception.BBox{}, false
	}

	var best *TimeMachineEntry
	bestDiff := int64(-1)
	for i := range t.entries {
		e := &t.entries[i]
		diff := frameDiff(e.FrameID, targetFrameID)
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = e
		}
	}

	if best == nil || bestDiff > int64(tolerance) {
		return perception.BBox{}, false
	}

	if best.FrameID < targetFrameID {
		framesAhead := float64(targetFrameID - best.FrameID)
		return predictBBox(best.Box, best.Velocity, framesAhead), true
	}
	return best.Box, true
}

func frameDiff(a, b uint64) int64 {
	if a > b {
		return int64(a - b)
	}
	return int64(b - a)
}

// predictBBox projects bbox forward by framesAhead using a constant
// per-frame centroid velocity, preserving width and height.
func predictBBox(box perception.BBox, velocity [2]float64, framesAhead float64) perception.BBox {
	if framesAhead <= 0 {
		return box
	}
	cx, cy := box.Center()
	cx += velocity[0] * framesAhead
	cy += velocity[1] * framesAhead
	halfW := box.Width() / 2
	halfH := box.Height() / 2
	return perception.BBox{
		X1: cx - halfW, Y1: cy - halfH,
		X2: cx + halfW, Y2: cy + halfH,
	}
}
