package geofence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareFence(name string, exclusion bool) *Fence {
	return &Fence{
		Name: name,
		Points: []GeoPoint{
			{Lat: 21.000, Lon: 105.000},
			{Lat: 21.000, Lon: 105.002},
			{Lat: 21.002, Lon: 105.002},
			{Lat: 21.002, Lon: 105.000},
		},
		IsExclusion:  exclusion,
		AltitudeMinM: 0,
		AltitudeMaxM: 1000,
	}
}

func TestContainsPointInsideSquare(t *testing.T) {
	f := squareFence("zone", true)
	assert.True(t, f.ContainsPoint(GeoPoint{Lat: 21.001, Lon: 105.001}, 50))
}

func TestContainsPointOutsideSquare(t *testing.T) {
	f := squareFence("zone", true)
	assert.False(t, f.ContainsPoint(GeoPoint{Lat: 21.010, Lon: 105.010}, 50))
}

func TestContainsPointOutOfAltitudeBand(t *testing.T) {
	f := squareFence("zone", true)
	f.AltitudeMaxM = 30
	assert.False(t, f.ContainsPoint(GeoPoint{Lat: 21.001, Lon: 105.001}, 50))
}

func TestCheckPositionExclusionBreach(t *testing.T) {
	home := GeoPoint{Lat: 21.000, Lon: 105.000}
	sys := NewSystem(home, 5000, 30, 5*time.Second, nil)
	sys.AddFence(squareFence("restricted", true))

	safe, msg, action := sys.CheckPosition(GeoPoint{Lat: 21.001, Lon: 105.001}, 50)
	assert.False(t, safe)
	assert.Contains(t, msg, "restricted")
	assert.Equal(t, ActionGuidedReturn, action)
}

func TestCheckPositionInclusionBreach(t *testing.T) {
	home := GeoPoint{Lat: 21.000, Lon: 105.000}
	sys := NewSystem(home, 5000, 30, 5*time.Second, nil)
	sys.AddFence(squareFence("must-stay", false))

	safe, _, action := sys.CheckPosition(GeoPoint{Lat: 21.010, Lon: 105.010}, 50)
	assert.False(t, safe)
	assert.Equal(t, ActionGuidedReturn, action)
}

func TestCheckPositionMaxDistanceBreach(t *testing.T) {
	home := GeoPoint{Lat: 21.000, Lon: 105.000}
	sys := NewSystem(home, 100, 30, 5*time.Second, nil)

	safe, _, action := sys.CheckPosition(GeoPoint{Lat: 21.050, Lon: 105.050}, 50)
	assert.False(t, safe)
	assert.Equal(t, ActionReturnToHome, action)
}

func TestCheckPositionSafe(t *testing.T) {
	home := GeoPoint{Lat: 21.000, Lon: 105.000}
	sys := NewSystem(home, 5000, 30, 5*time.Second, nil)
	sys.AddFence(squareFence("restricted", true))

	safe, _, action := sys.CheckPosition(GeoPoint{Lat: 21.010, Lon: 105.010}, 50)
	assert.True(t, safe)
	assert.Equal(t, ActionNone, action)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geofence.json")

	home := GeoPoint{Lat: 21.000, Lon: 105.000}
	sys := NewSystem(home, 1000, 30, 5*time.Second, nil)
	sys.AddFence(squareFence("restricted", true))

	require.NoError(t, sys.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "restricted")

	loaded := NewSystem(GeoPoint{}, 0, 30, 5*time.Second, nil)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, home, loaded.Home())

	safe, _, _ := loaded.CheckPosition(GeoPoint{Lat: 21.001, Lon: 105.001}, 50)
	assert.False(t, safe)
}

func TestSafeReturnPointMovesOutward(t *testing.T) {
	f := squareFence("restricted", true)
	p, ok := f.SafeReturnPoint(GeoPoint{Lat: 21.001, Lon: 105.001})
	require.True(t, ok)
	assert.False(t, f.ContainsPoint(p, 50))
}
