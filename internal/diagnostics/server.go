// Package diagnostics serves the companion's local HTTP diagnostics
// surface: liveness, a JSON status snapshot, and Prometheus metrics.
// Composition is grounded on the teacher's internal/server/server.go
// (CORS -> Logging -> Recovery, wrapped in h2c for cleartext HTTP/2).
package diagnostics

import (
	"encoding/json"
	"log"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/metrics"
	"github.com/flightpath-dev/sentinel-core/internal/middleware"
)

// StatusProvider supplies the data rendered by GET /status. internal/app
// implements this by snapshotting the pipeline, detector, and tracker.
type StatusProvider interface {
	Status() StatusReport
}

// StatusReport is the JSON body served at /status.
type StatusReport struct {
	Mode              string `json:"mode"`
	FrameQueueDepth   int    `json:"frame_queue_depth"`
	FrameQueueDropped uint64 `json:"frame_queue_dropped"`
	UploadQueueDepth  int    `json:"upload_queue_depth"`
	TrackerState      string `json:"tracker_state"`
	TrackerConfidence float64 `json:"tracker_confidence"`
	FailsafeActive    bool   `json:"failsafe_active"`
	GPSAnomalyActive  bool   `json:"gps_anomaly_active"`
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	logger  *log.Logger
	metrics *metrics.Collector
	status  StatusProvider
}

// New builds a diagnostics Server. status may be nil until internal/app
// finishes wiring; handlers tolerate a nil provider by reporting empty.
func New(cfg *config.Config, logger *log.Logger, m *metrics.Collector, status StatusProvider) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		metrics: m,
		status:  status,
	}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", m.Handler())
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var report StatusReport
	if s.status != nil {
		report = s.status.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Printf("diagnostics: encode status failed: %v", err)
	}
}

// buildHandler composes the middleware chain around the mux, mirroring
// the teacher's server.go ordering.
func (s *Server) buildHandler() http.Handler {
	handler := http.Handler(s.mux)
	handler = middleware.CORS(s.cfg.Diagnostics.CORSOrigins)(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return h2c.NewHandler(handler, &http2.Server{})
}

// Start runs the diagnostics server; blocks until it exits or errors.
func (s *Server) Start() error {
	addr := s.cfg.DiagnosticsAddr()
	s.logger.Printf("diagnostics server starting on %s", addr)
	return http.ListenAndServe(addr, s.buildHandler())
}
