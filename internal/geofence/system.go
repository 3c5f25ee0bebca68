package geofence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// persistedState is the JSON schema used by Save/Load (spec.md §6).
type persistedState struct {
	Home        GeoPoint `json:"home"`
	MaxDistance float64  `json:"max_distance"`
	Fences      []*Fence `json:"fences"`
}

// System holds the home position, the maximum-distance ring, and every
// named Fence, and decides the recommended Action for a position update.
type System struct {
	mu sync.RWMutex

	home        GeoPoint
	maxDistance float64
	fences      []*Fence

	warningDistanceM float64
	cooldown         time.Duration
	lastBreach       time.Time
	breachCount      int

	logger *log.Logger
}

// NewSystem constructs a System centered on home.
func NewSystem(home GeoPoint, maxDistanceM, warningDistanceM float64, cooldown time.Duration, logger *log.Logger) *System {
	if logger == nil {
		logger = log.Default()
	}
	return &System{
		home:             home,
		maxDistance:      maxDistanceM,
		warningDistanceM: warningDistanceM,
		cooldown:         cooldown,
		logger:           logger,
	}
}

// AddFence registers a new zone.
func (s *System) AddFence(f *Fence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fences = append(s.fences, f)
}

// RemoveFence deletes a zone by name, reporting whether it existed.
func (s *System) RemoveFence(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.fences {
		if f.Name == name {
			s.fences = append(s.fences[:i], s.fences[i+1:]...)
			return true
		}
	}
	return false
}

// SetHome updates the home/launch position.
func (s *System) SetHome(p GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = p
}

// Home returns the current home position.
func (s *System) Home() GeoPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home
}

// CheckPosition evaluates current against the max-distance ring and every
// registered fence, in that order, and returns whether the position is
// safe, a human-readable message, and the recommended Action.
//
// Checks home-distance first, then exclusion/inclusion breaches, then
// proximity warnings, mirroring the original module's check order.
func (s *System) CheckPosition(current GeoPoint, altitudeM float64) (safe bool, message string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	distFromHome := haversineDistance(s.home, current)
	if s.maxDistance > 0 && distFromHome > s.maxDistance {
		s.recordBreachLocked()
		return false, fmt.Sprintf("too far from home: %.0fm (max %.0fm)", distFromHome, s.maxDistance), ActionReturnToHome
	}

	for _, f := range s.fences {
		inside := f.ContainsPoint(current, altitudeM)

		if f.IsExclusion && inside {
			s.recordBreachLocked()
			return false, fmt.Sprintf("inside no-fly zone %q", f.Name), ActionGuidedReturn
		}
		if !f.IsExclusion && !inside {
			s.recordBreachLocked()
			return false, fmt.Sprintf("outside required zone %q", f.Name), ActionGuidedReturn
		}

		if f.IsExclusion {
			d := f.DistanceToBoundary(current)
			if d > 0 && d < s.warningDistanceM {
				s.logger.Printf("geofence: %.1fm from exclusion zone %q", d, f.Name)
			}
		}
	}

	return true, "position safe", ActionNone
}

func (s *System) recordBreachLocked() {
	now := time.Now()
	if now.Sub(s.lastBreach) < s.cooldown {
		return
	}
	s.lastBreach = now
	s.breachCount++
}

// BreachCount returns the number of breach events recorded since start,
// subject to the alert cooldown (spec.md §6 "5s cooldown").
func (s *System) BreachCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breachCount
}

// SafeReturnPoint returns the nearest safe point if current is presently
// inside a breached exclusion zone, or home if current is simply too far
// away. Returns ok=false if current is safe and nothing needs correcting.
func (s *System) SafeReturnPoint(current GeoPoint, altitudeM float64) (GeoPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.fences {
		if f.IsExclusion && f.ContainsPoint(current, altitudeM) {
			return f.SafeReturnPoint(current)
		}
	}

	if s.maxDistance > 0 && haversineDistance(s.home, current) > s.maxDistance {
		return s.home, true
	}

	return GeoPoint{}, false
}

// Save persists home, max distance and every fence as JSON (spec.md §6
// schema).
func (s *System) Save(path string) error {
	s.mu.RLock()
	state := persistedState{Home: s.home, MaxDistance: s.maxDistance, Fences: s.fences}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("geofence: failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("geofence: failed to write %s: %w", path, err)
	}
	return nil
}

// Load replaces home, max distance and all fences from a JSON file
// previously written by Save.
func (s *System) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("geofence: failed to read %s: %w", path, err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("geofence: failed to parse %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = state.Home
	s.maxDistance = state.MaxDistance
	s.fences = state.Fences
	return nil
}
