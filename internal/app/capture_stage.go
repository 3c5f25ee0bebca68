package app

import (
	"context"
	"image"
	"time"

	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
)

// CaptureSource produces frames for the pipeline's capture stage. No
// camera driver exists anywhere in this module's example corpus (no
// gocv/v4l2/similar dependency), so production wiring ships only this
// interface plus NoopCaptureSource; a real frame grabber plugs in here.
//
// NextFrame only returns an error when ctx is cancelled: spec.md §7
// classifies camera read failures as transient I/O that a real
// implementation retries internally with backoff rather than
// propagating, so captureStage treats any error here as shutdown.
type CaptureSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// NoopCaptureSource never produces a frame; it blocks on ctx alone. The
// queues and diagnostics run with no camera attached, but the capture
// watchdog gets no beats and escalates once its period has passed.
type NoopCaptureSource struct{}

func (NoopCaptureSource) NextFrame(ctx context.Context) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// captureStage is the pipeline.Stage reading from CaptureSource and
// handing frames to perceptionStage over app.FrameQueue — spec.md §4.1's
// stage A, independent of and concurrent with stage B (perception).
type captureStage struct {
	app     *App
	capture CaptureSource
	frameID uint64
}

func newCaptureStage(a *App) *captureStage {
	return &captureStage{app: a, capture: NoopCaptureSource{}}
}

func (s *captureStage) Name() string { return "capture" }

func (s *captureStage) Run(ctx context.Context) error {
	for {
		img, err := s.capture.NextFrame(ctx)
		if err != nil {
			// Only a cancelled ctx reaches here (see CaptureSource); close
			// the queue so perceptionStage's blocked Pop unblocks too.
			s.app.FrameQueue.Close()
			return err
		}
		s.app.Watchdog.Beat()
		s.frameID++

		snapshot := s.app.Telemetry.Snapshot()
		s.app.FrameQueue.Push(pipeline.FramePacket{
			FrameID:    s.frameID,
			Image:      img,
			Telemetry:  snapshot,
			CapturedAt: time.Now(),
		})
		s.app.Metrics.QueueDepth.WithLabelValues("frame").Set(float64(s.app.FrameQueue.Len()))
	}
}
