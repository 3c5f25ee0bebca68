package tracker

import (
	"image"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

// FastTracker is the cheap per-frame visual tracker that runs synchronously
// on the main loop (spec.md §4.4: ~2ms/frame). It is the seam where a real
// correlation/VIT-style tracker backend is plugged in; no such library
// exists in this module's corpus, so the companion ships only the
// interface and a deterministic stub for tests.
type FastTracker interface {
	Init(frame image.Image, box perception.BBox) error
	Update(frame image.Image) (perception.BBox, bool)
	Reinitialize(frame image.Image, box perception.BBox) error
}

// Verifier runs object detection over a frame for the async verification
// worker. Kept distinct from detector.Inferencer so this package does not
// import internal/detector (matching the safety packages' independence
// pattern): both seams describe "run the model", but the tracker only
// ever needs the unfiltered form.
type Verifier interface {
	Detect(frame image.Image) ([]perception.Detection, error)
}

// AlertSink receives pilot-facing warnings emitted on DANGER verifications.
type AlertSink interface {
	Alert(message string)
}
