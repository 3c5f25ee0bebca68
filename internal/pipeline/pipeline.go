package pipeline

import (
	"context"
	"log"
	"sync"
	"time"
)

// Stage is one of the pipeline's concurrent OS-thread-parallel workers
// (spec.md §4.1). Run must return promptly when ctx is cancelled.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Config controls the watchdog period, the stage-restart escalation rule
// and the stop timeout (spec.md §4.1 defaults).
type Config struct {
	WatchdogPeriod      time.Duration
	StageFailureBackoff time.Duration
	StageFailureWindow  time.Duration
	StageFailureLimit   int
	StopJoinTimeout     time.Duration
}

// Runtime owns the stage goroutines, restarts a stage that exits
// unexpectedly, and escalates to a hard stop after repeated failures
// within a sliding window.
type Runtime struct {
	cfg    Config
	logger *log.Logger
	stages []Stage

	mu       sync.Mutex
	failures map[string][]time.Time
	stopped  bool

	cancel context.CancelFunc
	done   chan struct{}

	// Escalated receives the failing stage's name if the runtime gives up
	// restarting it and stops itself; callers should treat this as a fatal
	// pipeline fault. The channel is never closed.
	Escalated chan string
}

// NewRuntime constructs a Runtime over the given stages. Start launches
// them in the given order; Stop cancels them all at once through one
// shared context, in no particular order.
func NewRuntime(cfg Config, logger *log.Logger, stages ...Stage) *Runtime {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.WatchdogPeriod <= 0 {
		cfg.WatchdogPeriod = 15 * time.Second
	}
	if cfg.StageFailureLimit <= 0 {
		cfg.StageFailureLimit = 3
	}
	if cfg.StageFailureWindow <= 0 {
		cfg.StageFailureWindow = 10 * time.Second
	}
	if cfg.StageFailureBackoff <= 0 {
		cfg.StageFailureBackoff = 100 * time.Millisecond
	}
	if cfg.StopJoinTimeout <= 0 {
		cfg.StopJoinTimeout = 2 * time.Second
	}
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		stages:    stages,
		failures:  make(map[string][]time.Time),
		done:      make(chan struct{}),
		Escalated: make(chan string, 1),
	}
}

// Start launches one supervising goroutine per stage. The Watchdog is not
// started here; callers run it separately.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	var wg sync.WaitGroup
	for _, stage := range r.stages {
		wg.Add(1)
		go func(s Stage) {
			defer wg.Done()
			r.supervise(ctx, s)
		}(stage)
	}

	go func() {
		wg.Wait()
		close(r.done)
	}()
}

// supervise runs a stage, restarting it with backoff if it exits early,
// and escalates (stops the whole runtime) if it fails too often.
func (r *Runtime) supervise(ctx context.Context, s Stage) {
	for {
		err := s.Run(ctx)
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err != nil {
			r.logger.Printf("pipeline: stage %q exited: %v", s.Name(), err)
		} else {
			r.logger.Printf("pipeline: stage %q exited without error", s.Name())
		}

		if r.recordFailure(s.Name()) {
			r.logger.Printf("pipeline: stage %q failed %d times within %s, escalating",
				s.Name(), r.cfg.StageFailureLimit, r.cfg.StageFailureWindow)
			select {
			case r.Escalated <- s.Name():
			default:
			}
			r.cancel()
			return
		}

		time.Sleep(r.cfg.StageFailureBackoff)
	}
}

// recordFailure appends a failure timestamp for name and reports whether
// the stage has now reached StageFailureLimit within StageFailureWindow.
func (r *Runtime) recordFailure(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.cfg.StageFailureWindow)
	kept := r.failures[name][:0]
	for _, t := range r.failures[name] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	r.failures[name] = kept

	return len(kept) >= r.cfg.StageFailureLimit
}

// Stop cancels every stage and waits for all of them to exit, for at most
// StopJoinTimeout times one more than the number of stages; after that it
// logs and returns, leaving any straggler running.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	select {
	case <-r.done:
	case <-time.After(r.cfg.StopJoinTimeout * time.Duration(len(r.stages)+1)):
		r.logger.Println("pipeline: stop timed out waiting for stages to exit")
	}
}

// Watchdog runs independently of stage supervision: it periodically
// checks that the capture stage is still producing frames, and if not,
// triggers the same escalation path as a crashed stage (spec.md §4.1
// "T_wd" liveness check).
type Watchdog struct {
	period    time.Duration
	lastBeat  time.Time
	mu        sync.Mutex
	onStarved func()
}

// NewWatchdog constructs a Watchdog with the given liveness period.
func NewWatchdog(period time.Duration, onStarved func()) *Watchdog {
	return &Watchdog{period: period, onStarved: onStarved, lastBeat: time.Now()}
}

// Beat records a liveness pulse; call this once per captured frame.
func (w *Watchdog) Beat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastBeat = time.Now()
}

// Run blocks, checking liveness every period until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			since := time.Since(w.lastBeat)
			w.mu.Unlock()
			if since > w.period {
				w.onStarved()
			}
		}
	}
}
