package app

import "context"

// uplinkStage adapts uplink.Client.Run to pipeline.Stage so it runs under
// the same supervised runtime (restart-on-exit, failure escalation) as
// the perception stage.
type uplinkStage struct {
	app *App
}

func newUplinkStage(a *App) *uplinkStage {
	return &uplinkStage{app: a}
}

func (s *uplinkStage) Name() string { return "uplink" }

func (s *uplinkStage) Run(ctx context.Context) error {
	s.app.Uplink.Run(ctx, s.app.UploadQueue)
	return ctx.Err()
}
