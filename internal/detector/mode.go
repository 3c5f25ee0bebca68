// Package detector implements the adaptive, mode-aware detector (C3):
// it selects inference cadence and target classes from the RC mode
// channel and hands frames needing inference to an Inferencer, whose
// results reseed the tracker (C4). Ported from the original adaptive
// detector/RC mode controller pair; the mode table is fixed to spec.md
// §4.3's defaults but the RC PWM mapping stays configurable (spec.md
// §9 Open Question) via config.RCModeConfig.
package detector

import "github.com/flightpath-dev/sentinel-core/internal/perception"

// Mode is one of the AI mission modes selectable from the RC mode channel.
type Mode int

const (
	ModeSearchRescue Mode = iota
	ModePeopleCounting
	ModeVehicleCounting
	ModeReconnaissance
	ModeManual
	ModeEmergency
)

func (m Mode) String() string {
	switch m {
	case ModeSearchRescue:
		return "search_rescue"
	case ModePeopleCounting:
		return "people_counting"
	case ModeVehicleCounting:
		return "vehicle_counting"
	case ModeReconnaissance:
		return "reconnaissance"
	case ModeManual:
		return "manual"
	case ModeEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ModeConfig is the per-mode inference policy from spec.md §4.3's table.
type ModeConfig struct {
	TargetClasses       []perception.ClassID
	ConfidenceThreshold float64
	DetectEveryN        int // 0 means never run inference (MANUAL)
}

// modeTable holds the fixed defaults from spec.md §4.3. EMERGENCY is
// resolved dynamically (it inherits the last non-emergency mode's
// config) rather than listed here.
var modeTable = map[Mode]ModeConfig{
	ModeSearchRescue: {
		TargetClasses:       []perception.ClassID{perception.ClassPerson, perception.ClassBoat, perception.ClassVehicle},
		ConfidenceThreshold: 0.7,
		DetectEveryN:        5,
	},
	ModePeopleCounting: {
		TargetClasses:       []perception.ClassID{perception.ClassPerson},
		ConfidenceThreshold: 0.6,
		DetectEveryN:        30,
	},
	ModeVehicleCounting: {
		TargetClasses:       []perception.ClassID{perception.ClassVehicle},
		ConfidenceThreshold: 0.6,
		DetectEveryN:        30,
	},
	ModeReconnaissance: {
		TargetClasses:       []perception.ClassID{perception.ClassPerson, perception.ClassVehicle},
		ConfidenceThreshold: 0.5,
		DetectEveryN:        15,
	},
	ModeManual: {
		TargetClasses:       nil,
		ConfidenceThreshold: 0,
		DetectEveryN:        0,
	},
}

// configFor resolves the effective ModeConfig for a mode, given the last
// non-emergency mode for EMERGENCY's "as last" rule (spec.md §4.3) but
// forcing the high-frequency cadence emergency mode demands.
func configFor(mode, lastNonEmergency Mode) ModeConfig {
	if mode == ModeEmergency {
		cfg := modeTable[lastNonEmergency]
		cfg.DetectEveryN = 5
		return cfg
	}
	cfg, ok := modeTable[mode]
	if !ok {
		return modeTable[ModeReconnaissance]
	}
	return cfg
}
