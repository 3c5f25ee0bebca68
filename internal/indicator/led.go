// Package indicator drives the onboard status LED over GPIO, grounded on
// periph.io/x/periph's own host.Init()/gpioreg idiom (the library's source
// is itself the retrieved example). The LED is advisory only: any failure
// to initialize the host or resolve the pin is logged once and the
// indicator silently becomes a no-op, per spec.md's "never block flight
// on a non-critical peripheral" rule.
package indicator

import (
	"log"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/flightpath-dev/sentinel-core/internal/config"
)

// Pattern names the blink pattern the LED should display, mirroring the
// companion's operating states (spec.md §4.6).
type Pattern int

const (
	PatternOff Pattern = iota
	PatternSolid
	PatternSlowBlink
	PatternFastBlink
)

// LED is the status indicator. A nil pin means the peripheral is
// unavailable; every method becomes a safe no-op in that case.
type LED struct {
	mu      sync.Mutex
	pin     gpio.PinIO
	logger  *log.Logger
	pattern Pattern
}

// New initializes the host and resolves the configured GPIO pin. It never
// returns an error: construction failures are logged and degrade to a
// no-op LED so startup never blocks on indicator hardware.
func New(cfg config.IndicatorConfig, logger *log.Logger) *LED {
	led := &LED{logger: logger}
	if !cfg.Enabled {
		return led
	}

	if _, err := host.Init(); err != nil {
		logger.Printf("indicator: host init failed, LED disabled: %v", err)
		return led
	}

	pin := gpioreg.ByName(cfg.GPIOPin)
	if pin == nil {
		logger.Printf("indicator: unknown GPIO pin %q, LED disabled", cfg.GPIOPin)
		return led
	}

	led.pin = pin
	return led
}

// Set changes the displayed pattern. The actual blinking is driven by
// internal/app's periodic ticker calling Tick(); Set records the pattern
// and only writes the pin itself for PatternOff, which drives it low.
func (l *LED) Set(p Pattern) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pattern = p
	if l.pin == nil {
		return
	}
	if p == PatternOff {
		if err := l.pin.Out(gpio.Low); err != nil {
			l.logger.Printf("indicator: write low failed: %v", err)
		}
	}
}

// Tick advances a blinking pattern by one step; on==true means the LED
// should be lit during this tick. Callers drive this from a ticker whose
// period matches the desired blink rate for PatternSlowBlink/FastBlink.
func (l *LED) Tick(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pin == nil {
		return
	}

	var level gpio.Level
	switch l.pattern {
	case PatternOff:
		level = gpio.Low
	case PatternSolid:
		level = gpio.High
	case PatternSlowBlink, PatternFastBlink:
		level = gpio.Low
		if on {
			level = gpio.High
		}
	}

	if err := l.pin.Out(level); err != nil {
		l.logger.Printf("indicator: write failed: %v", err)
	}
}
