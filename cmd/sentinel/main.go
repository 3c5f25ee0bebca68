// Command sentinel is the companion-computer process: it loads
// configuration, wires every core component via internal/app, and runs
// until a shutdown signal or an unrecoverable pipeline fault.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/flightpath-dev/sentinel-core/internal/app"
	"github.com/flightpath-dev/sentinel-core/internal/config"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	// Not grounded in any example repo's stack (no example targets
	// cgroup-constrained deployment); carried from SPEC_FULL.md's RPi
	// deployment target anyway, since GOMAXPROCS/GOMEMLIMIT defaults are
	// wrong on a cgroup-limited single-board computer. See DESIGN.md.
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Printf)); err != nil {
		logger.Printf("sentinel: automaxprocs: %v", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.FromCgroup),
	); err != nil {
		logger.Printf("sentinel: automemlimit: %v", err)
	}

	cfg := config.Load()

	a, err := app.New(cfg, logger)
	if err != nil {
		// spec.md: "Fatal (cannot start FC link): abort startup with
		// exit code 1" — log.Fatalf logs then calls os.Exit(1).
		logger.Fatalf("sentinel: fatal startup error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := a.Diagnostics.Start(); err != nil {
			logger.Printf("sentinel: diagnostics server exited: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := run(ctx, cancel, a, sigCh)

	if err := a.Close(); err != nil {
		logger.Printf("sentinel: error during shutdown: %v", err)
	}
	os.Exit(exitCode)
}

// run blocks until either an OS signal requests a clean shutdown or the
// pipeline runtime escalates a fatal fault, returning the process exit
// code for each case (spec.md §6: 0 normal shutdown, 2 watchdog-triggered
// restart/escalation).
func run(ctx context.Context, cancel context.CancelFunc, a *app.App, sigCh <-chan os.Signal) int {
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case sig := <-sigCh:
		a.Logger.Printf("sentinel: received %s, shutting down", sig)
		cancel()
		<-done
		return 0
	case stage := <-a.Runtime.Escalated:
		a.Logger.Printf("sentinel: pipeline escalation from %q, aborting", stage)
		cancel()
		<-done
		return 2
	}
}
