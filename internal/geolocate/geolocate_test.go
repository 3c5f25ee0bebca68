package geolocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMount() MountConfig {
	return MountConfig{
		HFOVDeg: 54.0, VFOVDeg: 41.0,
		PitchDeg: -20.0, RollDeg: 0, YawDeg: 0,
		GroundAltMSL: 0,
	}
}

func TestLocateCenterPixelLevelFlightPointsAheadOfNadir(t *testing.T) {
	uav := UAVAttitude{Latitude: 21.0, Longitude: 105.0, AltitudeM: 100, RollRad: 0, PitchRad: 0, YawRad: 0}
	target, err := Locate(defaultMount(), uav, 320, 240, 640, 480)
	require.NoError(t, err)

	// Camera tilted down 20deg and pointed north (yaw 0): target should
	// be displaced north of the aircraft, roughly on the ground track.
	assert.Greater(t, target.Latitude, uav.Latitude)
	assert.InDelta(t, uav.Longitude, target.Longitude, 1e-6)
}

func TestLocateReturnsErrorWhenRayPointsUp(t *testing.T) {
	mount := defaultMount()
	mount.PitchDeg = 60 // camera pointed well above horizon
	uav := UAVAttitude{Latitude: 21.0, Longitude: 105.0, AltitudeM: 100}

	_, err := Locate(mount, uav, 320, 240, 640, 480)
	assert.ErrorIs(t, err, ErrRayDoesNotIntersectGround)
}

func TestLocateHigherAltitudeMovesTargetFarther(t *testing.T) {
	uav1 := UAVAttitude{Latitude: 21.0, Longitude: 105.0, AltitudeM: 50}
	uav2 := UAVAttitude{Latitude: 21.0, Longitude: 105.0, AltitudeM: 150}

	t1, err := Locate(defaultMount(), uav1, 320, 240, 640, 480)
	require.NoError(t, err)
	t2, err := Locate(defaultMount(), uav2, 320, 240, 640, 480)
	require.NoError(t, err)

	assert.Greater(t, t2.Latitude-uav2.Latitude, t1.Latitude-uav1.Latitude)
}
