package app

import (
	"context"

	"github.com/flightpath-dev/sentinel-core/internal/geolocate"
	"github.com/flightpath-dev/sentinel-core/internal/perception"
	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
)

// perceptionStage is the pipeline.Stage running detector -> tracker ->
// geolocate -> upload-queue over frames handed off by captureStage
// through app.FrameQueue — spec.md §4.1's stage B, concurrent with and
// independent of stage A (capture).
type perceptionStage struct {
	app         *App
	lastDropped uint64
}

func newPerceptionStage(a *App) *perceptionStage {
	return &perceptionStage{app: a}
}

func (s *perceptionStage) Name() string { return "perception" }

func (s *perceptionStage) Run(ctx context.Context) error {
	for {
		pkt, ok := s.app.FrameQueue.Pop()
		if !ok {
			return ctx.Err()
		}
		s.processFrame(ctx, pkt)
		s.updateQueueDepthMetrics()
	}
}

func (s *perceptionStage) processFrame(ctx context.Context, pkt pipeline.FramePacket) {
	detections, err := s.app.Detector.ProcessFrame(ctx, pkt.FrameID, pkt.Image)
	if err != nil {
		s.app.Logger.Printf("perception: inference failed on frame %d: %v", pkt.FrameID, err)
	}

	box, tracking := s.app.Tracker.Update(pkt.Image, pkt.FrameID)
	if !tracking {
		return
	}

	mount := geolocate.MountConfig{
		HFOVDeg:      s.app.Config.Geolocator.CameraHFOVDeg,
		VFOVDeg:      s.app.Config.Geolocator.CameraVFOVDeg,
		PitchDeg:     s.app.Config.Geolocator.MountPitchDeg,
		RollDeg:      s.app.Config.Geolocator.MountRollDeg,
		YawDeg:       s.app.Config.Geolocator.MountYawDeg,
		GroundAltMSL: s.app.Config.Geolocator.GroundAltMSL,
	}
	uav := geolocate.UAVAttitude{
		Latitude:  pkt.Telemetry.Latitude,
		Longitude: pkt.Telemetry.Longitude,
		AltitudeM: pkt.Telemetry.AltitudeM,
		RollRad:   pkt.Telemetry.Roll,
		PitchRad:  pkt.Telemetry.Pitch,
		YawRad:    pkt.Telemetry.Yaw,
	}
	cx, cy := box.Center()
	width, height := s.app.Config.Camera.Width, s.app.Config.Camera.Height

	target, err := geolocate.Locate(mount, uav, cx, cy, width, height)
	if err != nil {
		s.app.Logger.Printf("perception: geolocation failed on frame %d: %v", pkt.FrameID, err)
	}

	s.enqueueUpload(pkt, detections, box, target)
}

func (s *perceptionStage) enqueueUpload(pkt pipeline.FramePacket, detections []perception.Detection, box perception.BBox, target geolocate.Target) {
	payload := map[string]any{
		"detections": detections,
		"track_box":  box,
		"target":     target,
	}
	s.app.UploadQueue.Push(pipeline.UploadItem{
		FrameID:   pkt.FrameID,
		Kind:      "frame",
		Payload:   payload,
		Timestamp: pkt.CapturedAt,
	})
}

func (s *perceptionStage) updateQueueDepthMetrics() {
	s.app.Metrics.QueueDepth.WithLabelValues("frame").Set(float64(s.app.FrameQueue.Len()))
	s.app.Metrics.QueueDepth.WithLabelValues("upload").Set(float64(s.app.UploadQueue.Len()))

	if _, dropped := s.app.FrameQueue.Stats(); dropped > s.lastDropped {
		s.app.Metrics.FramesDropped.WithLabelValues("frame").Add(float64(dropped - s.lastDropped))
		s.lastDropped = dropped
	}
}
