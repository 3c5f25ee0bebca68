package gpsdenial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		GPSHistoryCapacity: 100,
		IMUHistoryCapacity: 500,
		DecayFactor:        0.85,
		ConsecutiveForLost: 3,
		AlertRateLimit:     5 * time.Second,
	}
}

func goodReading(t time.Time) GPSReading {
	return GPSReading{
		Timestamp: t, Lat: 21.000, Lon: 105.000, GroundSpeed: 15,
		Satellites: 12, HDOP: 0.8, FixType: 3,
	}
}

func TestMonitorStaysOKWithGoodReadings(t *testing.T) {
	m := NewMonitor(testConfig())
	base := time.Now()
	for i := 0; i < 10; i++ {
		status, _ := m.Update(goodReading(base.Add(time.Duration(i) * time.Second)))
		assert.Equal(t, StatusOK, status)
	}
}

func TestMonitorDetectsGPSLostSequence(t *testing.T) {
	m := NewMonitor(testConfig())
	base := time.Now()

	for i := 0; i < 10; i++ {
		m.Update(goodReading(base.Add(time.Duration(i) * time.Second)))
	}

	bad := GPSReading{
		Timestamp: base.Add(10 * time.Second), Lat: 21.0011, Lon: 105.0011,
		GroundSpeed: 5, Satellites: 5, HDOP: 3.5, FixType: 2,
	}
	status, _ := m.Update(bad)
	assert.NotEqual(t, StatusOK, status)

	bad2 := bad
	bad2.Timestamp = base.Add(11 * time.Second)
	status, _ = m.Update(bad2)

	bad3 := bad
	bad3.Timestamp = base.Add(12 * time.Second)
	status, msg := m.Update(bad3)

	assert.Equal(t, StatusLost, status)
	assert.NotEmpty(t, msg)
}

func TestMonitorRecoversAfterGoodReadings(t *testing.T) {
	m := NewMonitor(testConfig())
	base := time.Now()

	// Force into LOST via repeated no-fix readings.
	for i := 0; i < 5; i++ {
		m.Update(GPSReading{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Satellites: 2, HDOP: 5, FixType: 0,
		})
	}
	status, _ := m.Status()
	assert.Equal(t, StatusLost, status)

	// The first good reading also jumps position, so the score keeps rising
	// once; ten good readings let the decay pull it out of the LOST band.
	for i := 0; i < 10; i++ {
		status, _ = m.Update(goodReading(base.Add(time.Duration(5+i) * time.Second)))
	}
	assert.NotEqual(t, StatusLost, status)
}

func TestAnomalyScoreMonotonicWithGoodReadings(t *testing.T) {
	m := NewMonitor(testConfig())
	base := time.Now()
	m.Update(goodReading(base))
	_, firstScore := m.Status()

	m.Update(goodReading(base.Add(time.Second)))
	_, secondScore := m.Status()

	assert.LessOrEqual(t, secondScore, firstScore+1e-9)
}

func TestAllowAlertRateLimited(t *testing.T) {
	m := NewMonitor(testConfig())
	assert.True(t, m.AllowAlert("gps_lost"))
	assert.False(t, m.AllowAlert("gps_lost"))
}

func TestHeadingAndDistanceToHomeRequireValidFixAndHome(t *testing.T) {
	m := NewMonitor(testConfig())
	_, ok := m.HeadingToHome()
	assert.False(t, ok)

	m.Update(goodReading(time.Now()))
	m.SetHome(21.001, 105.001)

	heading, ok := m.HeadingToHome()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, heading, 0.0)

	dist, ok := m.DistanceToHome()
	assert.True(t, ok)
	assert.Greater(t, dist, 0.0)
}
