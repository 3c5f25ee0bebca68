package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	rthCalled  bool
	landCalled bool
	gotoCalled bool
}

func (f *fakeCommander) ReturnToHome() error { f.rthCalled = true; return nil }
func (f *fakeCommander) Land() error         { f.landCalled = true; return nil }
func (f *fakeCommander) Goto(lat, lon, altM float64) error {
	f.gotoCalled = true
	return nil
}

func testConfig() Config {
	return Config{
		CapacityMAh:        10400,
		NominalVoltage:     14.8,
		CellCount:          4,
		CruisePowerW:       150,
		ClimbPowerW:        250,
		CruiseSpeedMS:      15,
		VerticalSpeedMS:    2,
		ReserveFraction:    0.20,
		MinCellVoltage:     3.3,
		CheckInterval:      0, // disable rate limiting for deterministic tests
		WarningMarginFrac:  0.30,
		CriticalMarginFrac: 0.10,
	}
}

func TestCheckFailsafeGoodBatteryCloseToHome(t *testing.T) {
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(testConfig(), cmd, nil)
	fs.StartMonitoring()

	fs.UpdateBattery(State{VoltageV: 16.0, CurrentA: 10, RemainingPct: 80, ConsumedMAh: 2000})
	fs.UpdateFlight(FlightState{
		Position: GeoPoint{Lat: 21.029, Lon: 105.805}, AltitudeM: 50,
		Home: GeoPoint{Lat: 21.028, Lon: 105.804}, HomeAltitude: 10,
	})

	needed, reason := fs.CheckFailsafe()
	assert.False(t, needed)
	assert.Contains(t, reason, "OK")
}

func TestCheckFailsafeCriticalVoltage(t *testing.T) {
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(testConfig(), cmd, nil)
	fs.StartMonitoring()

	fs.UpdateBattery(State{VoltageV: 13.0, CurrentA: 10, RemainingPct: 5}) // 3.25V/cell < 3.3V
	fs.UpdateFlight(FlightState{
		Position: GeoPoint{Lat: 21.029, Lon: 105.805}, AltitudeM: 50,
		Home: GeoPoint{Lat: 21.028, Lon: 105.804}, HomeAltitude: 10,
	})

	needed, reason := fs.CheckFailsafe()
	assert.True(t, needed)
	assert.Contains(t, reason, "critical voltage")
}

func TestCheckFailsafeFarFromHomeLowBattery(t *testing.T) {
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(testConfig(), cmd, nil)
	fs.StartMonitoring()

	fs.UpdateBattery(State{VoltageV: 14.0, CurrentA: 10, RemainingPct: 25, ConsumedMAh: 8000})
	fs.UpdateFlight(FlightState{
		Position: GeoPoint{Lat: 21.035, Lon: 105.815}, AltitudeM: 100,
		Home: GeoPoint{Lat: 21.028, Lon: 105.804}, HomeAltitude: 10,
	})

	needed, _ := fs.CheckFailsafe()
	assert.True(t, needed)
}

func TestExecuteFailsafeTriggersOnlyOnce(t *testing.T) {
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(testConfig(), cmd, nil)
	fs.StartMonitoring()
	fs.UpdateBattery(State{VoltageV: 16.0, CurrentA: 10, RemainingPct: 80, ConsumedMAh: 2000})
	fs.UpdateFlight(FlightState{
		Position: GeoPoint{Lat: 21.029, Lon: 105.805}, AltitudeM: 50,
		Home: GeoPoint{Lat: 21.028, Lon: 105.804}, HomeAltitude: 10,
	})

	fs.ExecuteFailsafe("test")
	require.True(t, cmd.rthCalled)

	cmd.rthCalled = false
	fs.ExecuteFailsafe("test again")
	assert.False(t, cmd.rthCalled, "failsafe must not re-trigger once latched")
}

func TestExecuteFailsafeEmergencyLandWhenUnreachable(t *testing.T) {
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(testConfig(), cmd, nil)
	fs.StartMonitoring()
	fs.UpdateBattery(State{VoltageV: 13.4, CurrentA: 10, RemainingPct: 5, ConsumedMAh: 9500})
	fs.UpdateFlight(FlightState{
		Position: GeoPoint{Lat: 21.100, Lon: 105.900}, AltitudeM: 100,
		Home: GeoPoint{Lat: 21.028, Lon: 105.804}, HomeAltitude: 10,
	})

	fs.ExecuteFailsafe("insufficient energy")
	assert.True(t, cmd.gotoCalled)
	assert.True(t, cmd.landCalled)
	assert.False(t, cmd.rthCalled)
}

func TestRemainingEnergyDepleted(t *testing.T) {
	calc := &EnergyCalculator{CapacityMAh: 10000, NominalVoltage: 14.8, Cells: 4, MinCellVoltage: 3.3}
	remaining := calc.RemainingEnergy(State{VoltageV: 13.2}) // exactly 3.3V/cell
	assert.Equal(t, 0.0, remaining)
}

func TestCheckFailsafeRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.CheckInterval = time.Hour
	cmd := &fakeCommander{}
	fs := NewFailsafeSystem(cfg, cmd, nil)
	fs.StartMonitoring()
	fs.UpdateBattery(State{VoltageV: 16.0, RemainingPct: 80})
	fs.UpdateFlight(FlightState{Home: GeoPoint{Lat: 21, Lon: 105}})

	_, reason := fs.CheckFailsafe()
	assert.NotEqual(t, "rate limited", reason)

	_, reason = fs.CheckFailsafe()
	assert.Equal(t, "rate limited", reason)
}
