package detector

import (
	"context"
	"image"

	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

// NoopInferencer is an Inferencer that never finds anything. It exists so
// the pipeline links and runs end to end before a real model backend is
// wired in; production deployments replace it with a model-backed
// Inferencer implementation.
type NoopInferencer struct{}

func (NoopInferencer) Infer(_ context.Context, _ image.Image, _ []perception.ClassID, _ float64) ([]perception.Detection, error) {
	return nil, nil
}
