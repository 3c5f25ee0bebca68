package pipeline

import (
	"image"
	"time"

	"github.com/flightpath-dev/sentinel-core/internal/telemetry"
)

// FramePacket pairs one captured frame with the telemetry snapshot read at
// capture time (spec.md §3 "Frame"), so every downstream stage reasons
// about position/attitude as of that exact frame rather than whatever is
// current when it happens to run.
type FramePacket struct {
	FrameID    uint64
	Image      image.Image
	Telemetry  telemetry.Snapshot
	CapturedAt time.Time
}

// UploadItem is one unit of work for the uplink stage: either a processed
// frame or a standalone event (alert, status change) with no image.
type UploadItem struct {
	FrameID   uint64
	Kind      string
	Payload   any
	Timestamp time.Time
}
