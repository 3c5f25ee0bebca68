// Package fc implements the FC Command Gateway (C9): the narrow,
// rate-limited surface the rest of the core uses to read flight-controller
// state and to request flight-controller actions. Grounded in the
// teacher's internal/mavlink client, generalized from a single multi-drone
// RPC backend to the onboard companion's sole MAVLink link.
package fc

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/telemetry"
)

// PX4 main flight modes, encoded in MAVLink's custom_mode field.
const (
	PX4MainModeManual     = 1
	PX4MainModeAltctl     = 2
	PX4MainModePosctl     = 3
	PX4MainModeAuto       = 4
	PX4MainModeAcro       = 5
	PX4MainModeOffboard   = 6
	PX4MainModeStabilized = 7
	PX4MainModeRattitude  = 8
)

// PX4 AUTO sub-modes, valid when the main mode is PX4MainModeAuto.
const (
	PX4AutoModeReady    = 1
	PX4AutoModeTakeoff  = 2
	PX4AutoModeLoiter   = 3
	PX4AutoModeMission  = 4
	PX4AutoModeRTL      = 5
	PX4AutoModeLand     = 6
	PX4AutoModeFollow   = 8
	PX4AutoModePrecland = 9
)

// Severity mirrors MAVLink STATUSTEXT severities used by spec.md §4.8/§7.
type Severity uint8

const (
	SeverityCritical Severity = 2
	SeverityWarning  Severity = 3
	SeverityInfo     Severity = 6
)

// Gateway is the sole owner of the MAVLink link (spec.md §5 "Shared-resource
// policy"). No other component touches the underlying socket.
type Gateway struct {
	node   *gomavlib.Node
	logger *log.Logger
	cell   *telemetry.Cell

	mu            sync.RWMutex
	systemID      uint8
	connected     bool
	armed         bool
	lastHeartbeat time.Time

	commandTimeout time.Duration

	rateMu    sync.Mutex
	lastWrite map[string]time.Time
	lastText  map[Severity]time.Time

	missionMu     sync.Mutex
	missionUpload *missionUpload

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

type missionUpload struct {
	waypoints []config.Waypoint
	done      chan error
}

// GatewayConfig bundles the construction-time dependencies for a Gateway.
type GatewayConfig struct {
	MAVLink config.MAVLinkConfig
	Cell    *telemetry.Cell
	Logger  *log.Logger
}

// NewGateway opens the MAVLink node and starts its background reader and
// ground-station heartbeat sender. Mirrors the teacher's NewClient.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Cell == nil {
		cfg.Cell = telemetry.NewCell(time.Second)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{
				Device: cfg.MAVLink.Port,
				Baud:   cfg.MAVLink.BaudRate,
			},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: 255, // ground-station-equivalent system ID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MAVLink node: %w", err)
	}

	timeout := cfg.MAVLink.CommandTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	g := &Gateway{
		node:           node,
		logger:         cfg.Logger,
		cell:           cfg.Cell,
		commandTimeout: timeout,
		lastWrite:      make(map[string]time.Time),
		lastText:       make(map[Severity]time.Time),
		stopHeartbeat:  make(chan struct{}),
		heartbeatDone:  make(chan struct{}),
	}

	go g.listen()
	go g.sendGroundStationMessages(cfg.MAVLink.HeartbeatPeriod)

	return g, nil
}

// listen processes incoming MAVLink messages and updates telemetry/state.
func (g *Gateway) listen() {
	g.logger.Println("fc: message listener started")
	for evt := range g.node.Events() {
		if frm, ok := evt.(*gomavlib.EventFrame); ok {
			g.handleMessage(frm.Message(), frm.SystemID())
		}
	}
	g.logger.Println("fc: message listener stopped")
}

func (g *Gateway) handleMessage(msg message.Message, sysID uint8) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		g.handleHeartbeat(m, sysID)
	case *common.MessageCommandAck:
		g.handleCommandAck(m)
	case *common.MessageGlobalPositionInt:
		g.handleGlobalPosition(m)
	case *common.MessageAttitude:
		g.handleAttitude(m)
	case *common.MessageVfrHud:
		g.handleVfrHud(m)
	case *common.MessageSysStatus:
		g.handleSysStatus(m)
	case *common.MessageGpsRawInt:
		g.handleGpsRaw(m)
	case *common.MessageMissionRequestInt:
		g.handleMissionRequestInt(m)
	case *common.MessageMissionAck:
		g.handleMissionAck(m)
	case *common.MessageStatustext:
		g.logger.Printf("fc: pilot status [%d] %s", m.Severity, m.Text)
	}
}

func (g *Gateway) handleHeartbeat(msg *common.MessageHeartbeat, sysID uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		g.logger.Printf("fc: connected to system %d", sysID)
	}
	g.connected = true
	g.systemID = sysID
	g.lastHeartbeat = time.Now()
	g.armed = (msg.BaseMode & common.MAV_MODE_FLAG_SAFETY_ARMED) != 0
}

func (g *Gateway) handleGlobalPosition(msg *common.MessageGlobalPositionInt) {
	snap := g.cell.Snapshot()
	snap.Latitude = float64(msg.Lat) / 1e7
	snap.Longitude = float64(msg.Lon) / 1e7
	snap.AltitudeM = float64(msg.Alt) / 1000.0
	g.cell.Update(snap)
}

func (g *Gateway) handleAttitude(msg *common.MessageAttitude) {
	snap := g.cell.Snapshot()
	snap.Roll = float64(msg.Roll)
	snap.Pitch = float64(msg.Pitch)
	snap.Yaw = float64(msg.Yaw)
	g.cell.Update(snap)
}

func (g *Gateway) handleVfrHud(msg *common.MessageVfrHud) {
	snap := g.cell.Snapshot()
	snap.HeadingDeg = float64(msg.Heading)
	snap.GroundSpeedMS = float64(msg.Groundspeed)
	g.cell.Update(snap)
}

func (g *Gateway) handleSysStatus(msg *common.MessageSysStatus) {
	snap := g.cell.Snapshot()
	snap.BatteryVoltage = float64(msg.VoltageBattery) / 1000.0
	snap.BatteryCurrent = float64(msg.CurrentBattery) / 100.0
	snap.BatteryPercent = int(msg.BatteryRemaining)
	g.cell.Update(snap)
}

func (g *Gateway) handleGpsRaw(msg *common.MessageGpsRawInt) {
	snap := g.cell.Snapshot()
	snap.HDOP = float64(msg.Eph) / 100.0
	snap.SatelliteCount = int(msg.SatellitesVisible)
	switch msg.FixType {
	case common.GPS_FIX_TYPE_3D_FIX, common.GPS_FIX_TYPE_DGPS, common.GPS_FIX_TYPE_RTK_FLOAT, common.GPS_FIX_TYPE_RTK_FIXED:
		snap.GPSFixType = telemetry.GPSFix3D
	case common.GPS_FIX_TYPE_2D_FIX:
		snap.GPSFixType = telemetry.GPSFix2D
	default:
		snap.GPSFixType = telemetry.GPSFixNone
	}
	g.cell.Update(snap)
}

func (g *Gateway) handleCommandAck(msg *common.MessageCommandAck) {
	g.logger.Printf("fc: command %d result %d", msg.Command, msg.Result)
}

// sendGroundStationMessages identifies this process to the FC as a ground
// station and feeds it accurate time, exactly as the teacher's client does.
func (g *Gateway) sendGroundStationMessages(period time.Duration) {
	defer close(g.heartbeatDone)
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopHeartbeat:
			return
		case <-ticker.C:
			_ = g.node.WriteMessageAll(&common.MessageHeartbeat{
				Type:           common.MAV_TYPE_GCS,
				Autopilot:      common.MAV_AUTOPILOT_INVALID,
				SystemStatus:   common.MAV_STATE_ACTIVE,
				MavlinkVersion: 3,
			})
			now := time.Now()
			_ = g.node.WriteMessageAll(&common.MessageSystemTime{
				TimeUnixUsec: uint64(now.UnixMicro()),
				TimeBootMs:   uint32(now.UnixMilli() % (1 << 32)),
			})
		}
	}
}

// IsConnected reports whether any FC heartbeat has been seen since the
// gateway started. The flag is not cleared when heartbeats stop; use
// HeartbeatAge (spec.md §4.9's "heartbeat_age" read) for link freshness.
func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// HeartbeatAge returns how long it has been since the last FC heartbeat.
func (g *Gateway) HeartbeatAge() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lastHeartbeat.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(g.lastHeartbeat)
}

// IsArmed reports the FC's most recently observed armed state.
func (g *Gateway) IsArmed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.armed
}

// Snapshot gives read-only access to the current telemetry snapshot
// (spec.md §4.9 read surface); its attitude, GPS and battery fields come
// from the same Cell, so they are always mutually consistent.
func (g *Gateway) Snapshot() telemetry.Snapshot {
	return g.cell.Snapshot()
}

func (g *Gateway) systemIDLocked() uint8 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.systemID
}

// Close stops the heartbeat sender and releases the MAVLink node, in
// reverse order of acquisition (spec.md §4.1 lifecycle).
func (g *Gateway) Close() error {
	close(g.stopHeartbeat)
	select {
	case <-g.heartbeatDone:
	case <-time.After(2 * time.Second):
		g.logger.Println("fc: heartbeat sender stop timed out")
	}
	g.node.Close()
	return nil
}
