package detector

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/perception"
)

func testRCConfig() config.RCModeConfig {
	return config.RCModeConfig{
		PrimaryChannel:   5,
		FrequencyChannel: 7,
		EmergencyChannel: 8,
		LowThresholdPWM:  1300,
		HighThresholdPWM: 1700,
	}
}

type countingInferencer struct {
	calls int
	out   []perception.Detection
}

func (c *countingInferencer) Infer(_ context.Context, _ image.Image, _ []perception.ClassID, _ float64) ([]perception.Detection, error) {
	c.calls++
	return c.out, nil
}

type fakeSeeder struct {
	seeded []perception.Detection
	stops  int
}

func (f *fakeSeeder) Seed(d []perception.Detection) { f.seeded = d }
func (f *fakeSeeder) Stop()                         { f.stops++ }

func TestProcessFrameRunsInferenceOnCadence(t *testing.T) {
	infer := &countingInferencer{out: []perception.Detection{{Class: perception.ClassPerson, Confidence: 0.9}}}
	seeder := &fakeSeeder{}
	c := NewController(testRCConfig(), infer, seeder, nil)

	// RECONNAISSANCE default cadence is every 15 frames.
	for i := uint64(1); i < 15; i++ {
		_, err := c.ProcessFrame(context.Background(), i, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, infer.calls)

	dets, err := c.ProcessFrame(context.Background(), 15, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, infer.calls)
	require.Len(t, dets, 1)
	assert.Equal(t, uint64(15), dets[0].FrameID)
	assert.Len(t, seeder.seeded, 1)
}

func TestManualModeNeverInfers(t *testing.T) {
	infer := &countingInferencer{}
	c := NewController(testRCConfig(), infer, nil, nil)
	c.switchModeLocked(ModeManual)

	for i := uint64(1); i <= 100; i++ {
		_, err := c.ProcessFrame(context.Background(), i, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, infer.calls)
}

func TestRCChannelsSwitchMode(t *testing.T) {
	c := NewController(testRCConfig(), &countingInferencer{}, nil, nil)
	c.UpdateRCChannels(RCChannels{Values: map[int]uint16{5: 1000, 7: 1500, 8: 1000}})

	mode, cfg := c.CurrentMode()
	assert.Equal(t, ModeSearchRescue, mode)
	assert.Equal(t, 5, cfg.DetectEveryN)
	assert.Contains(t, cfg.TargetClasses, perception.ClassBoat)
}

func TestEmergencyOverrideChannelForcesEmergencyMode(t *testing.T) {
	c := NewController(testRCConfig(), &countingInferencer{}, nil, nil)
	c.UpdateRCChannels(RCChannels{Values: map[int]uint16{5: 1000, 7: 1500, 8: 1800}})

	mode, cfg := c.CurrentMode()
	assert.Equal(t, ModeEmergency, mode)
	assert.Equal(t, 5, cfg.DetectEveryN)
}

func TestCriticalOperationDefersModeSwitch(t *testing.T) {
	c := NewController(testRCConfig(), &countingInferencer{}, nil, nil)
	c.SetCriticalOperation(true)

	c.UpdateRCChannels(RCChannels{Values: map[int]uint16{5: 1000, 7: 1500, 8: 1000}})
	mode, _ := c.CurrentMode()
	assert.Equal(t, ModeReconnaissance, mode, "mode switch should be deferred during critical operation")

	c.SetCriticalOperation(false)
	mode, _ = c.CurrentMode()
	assert.Equal(t, ModeSearchRescue, mode, "deferred switch should apply once critical operation clears")
}

func TestModeSwitchStopsTracker(t *testing.T) {
	seeder := &fakeSeeder{}
	c := NewController(testRCConfig(), &countingInferencer{}, seeder, nil)

	c.UpdateRCChannels(RCChannels{Values: map[int]uint16{5: 1000, 7: 1500, 8: 1000}})
	mode, _ := c.CurrentMode()
	require.Equal(t, ModeSearchRescue, mode)
	assert.Equal(t, 1, seeder.stops, "a non-deferred mode switch must stop the tracker")
}

func TestDeferredModeSwitchStopsTrackerOnceApplied(t *testing.T) {
	seeder := &fakeSeeder{}
	c := NewController(testRCConfig(), &countingInferencer{}, seeder, nil)
	c.SetCriticalOperation(true)

	c.UpdateRCChannels(RCChannels{Values: map[int]uint16{5: 1000, 7: 1500, 8: 1000}})
	assert.Equal(t, 0, seeder.stops, "deferred switch must not stop the tracker while critical")

	c.SetCriticalOperation(false)
	assert.Equal(t, 1, seeder.stops, "tracker must be stopped once the deferred switch applies")
}
