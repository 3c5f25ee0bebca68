package fc

import (
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/flightpath-dev/sentinel-core/internal/config"
)

const gatewayTargetComponent = 1

// writeRateLimit is the minimum spacing between repeated writes of the same
// command kind, so a misbehaving caller cannot flood the serial link
// (spec.md §4.9 "rate-limited writes").
const writeRateLimit = 200 * time.Millisecond

// statusTextRateLimit bounds STATUSTEXT sends to at most one per severity
// per second, per spec.md §4.8.
const statusTextRateLimit = time.Second

// statusTextMaxLen is MAVLink's STATUSTEXT payload size.
const statusTextMaxLen = 50

// allowWrite applies the per-kind rate limit, returning false if the
// caller must wait before this write is permitted.
func (g *Gateway) allowWrite(kind string) bool {
	g.rateMu.Lock()
	defer g.rateMu.Unlock()
	now := time.Now()
	if last, ok := g.lastWrite[kind]; ok && now.Sub(last) < writeRateLimit {
		return false
	}
	g.lastWrite[kind] = now
	return true
}

func (g *Gateway) requireConnected() error {
	if !g.IsConnected() {
		return fmt.Errorf("fc: not connected to flight controller")
	}
	return nil
}

// Arm sends MAV_CMD_COMPONENT_ARM_DISARM with Param1=1.
func (g *Gateway) Arm() error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("arm") {
		return fmt.Errorf("fc: arm command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
		Param1:          1,
	})
}

// Disarm sends MAV_CMD_COMPONENT_ARM_DISARM with Param1=0.
func (g *Gateway) Disarm() error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("disarm") {
		return fmt.Errorf("fc: disarm command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
		Param1:          0,
	})
}

// SetMode sets PX4's main flight mode via MAV_CMD_DO_SET_MODE.
func (g *Gateway) SetMode(px4Mode uint32) error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("set_mode") {
		return fmt.Errorf("fc: set_mode command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_DO_SET_MODE,
		Param1:          float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		Param2:          float32(px4Mode),
	})
}

// Takeoff requests a climb to the given relative altitude in meters.
func (g *Gateway) Takeoff(altitudeM float32) error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("takeoff") {
		return fmt.Errorf("fc: takeoff command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_NAV_TAKEOFF,
		Param7:          altitudeM,
	})
}

// Land requests an immediate landing at the current position.
func (g *Gateway) Land() error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("land") {
		return fmt.Errorf("fc: land command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_NAV_LAND,
	})
}

// ReturnToHome requests RTL (spec.md calls this "RTH").
func (g *Gateway) ReturnToHome() error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("rth") {
		return fmt.Errorf("fc: rth command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_NAV_RETURN_TO_LAUNCH,
	})
}

// Goto commands a guided-mode position setpoint, ignoring velocity,
// acceleration and yaw (position-only type mask).
func (g *Gateway) Goto(latitude, longitude, altitudeM float64) error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("goto") {
		return fmt.Errorf("fc: goto command rate-limited")
	}

	const typeMask = common.POSITION_TARGET_TYPEMASK_VX_IGNORE |
		common.POSITION_TARGET_TYPEMASK_VY_IGNORE |
		common.POSITION_TARGET_TYPEMASK_VZ_IGNORE |
		common.POSITION_TARGET_TYPEMASK_AX_IGNORE |
		common.POSITION_TARGET_TYPEMASK_AY_IGNORE |
		common.POSITION_TARGET_TYPEMASK_AZ_IGNORE |
		common.POSITION_TARGET_TYPEMASK_YAW_IGNORE |
		common.POSITION_TARGET_TYPEMASK_YAW_RATE_IGNORE

	return g.node.WriteMessageAll(&common.MessageSetPositionTargetGlobalInt{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		TimeBootMs:      uint32(time.Now().UnixMilli()),
		CoordinateFrame: common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		TypeMask:        typeMask,
		LatInt:          int32(latitude * 1e7),
		LonInt:          int32(longitude * 1e7),
		Alt:             float32(altitudeM),
	})
}

// SetHeading commands a yaw setpoint in degrees via MAV_CMD_CONDITION_YAW.
func (g *Gateway) SetHeading(headingDeg float32) error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	if !g.allowWrite("set_heading") {
		return fmt.Errorf("fc: set_heading command rate-limited")
	}
	return g.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Command:         common.MAV_CMD_CONDITION_YAW,
		Param1:          headingDeg,
		Param2:          0, // default yaw rate
		Param3:          1, // clockwise
		Param4:          0, // absolute angle
	})
}

// SetAltitude commands a relative-altitude change at the current lat/lon.
func (g *Gateway) SetAltitude(altitudeM float64) error {
	snap := g.Snapshot()
	return g.Goto(snap.Latitude, snap.Longitude, altitudeM)
}

// StatusText sends a pilot-facing message over STATUSTEXT, truncated to 50
// bytes and rate-limited to one per severity per second (spec.md §4.8).
func (g *Gateway) StatusText(severity Severity, text string) error {
	if err := g.requireConnected(); err != nil {
		return err
	}

	g.rateMu.Lock()
	now := time.Now()
	if last, ok := g.lastText[severity]; ok && now.Sub(last) < statusTextRateLimit {
		g.rateMu.Unlock()
		return fmt.Errorf("fc: status_text rate-limited for severity %d", severity)
	}
	g.lastText[severity] = now
	g.rateMu.Unlock()

	if len(text) > statusTextMaxLen {
		text = text[:statusTextMaxLen]
	}
	var payload [50]byte
	copy(payload[:], text)

	return g.node.WriteMessageAll(&common.MessageStatustext{
		Severity: common.MAV_SEVERITY(severity),
		Text:     payload,
	})
}

// UploadMission performs the MISSION_COUNT -> MISSION_REQUEST_INT ->
// MISSION_ACK handshake, blocking until the FC accepts or rejects the
// upload, or the 30s timeout elapses.
func (g *Gateway) UploadMission(waypoints []config.Waypoint) error {
	if err := g.requireConnected(); err != nil {
		return err
	}

	g.missionMu.Lock()
	if g.missionUpload != nil {
		g.missionMu.Unlock()
		return fmt.Errorf("fc: mission upload already in progress")
	}
	upload := &missionUpload{
		waypoints: waypoints,
		done:      make(chan error, 1),
	}
	g.missionUpload = upload
	g.missionMu.Unlock()

	systemID := g.systemIDLocked()
	err := g.node.WriteMessageAll(&common.MessageMissionCount{
		TargetSystem:    systemID,
		TargetComponent: gatewayTargetComponent,
		Count:           uint16(len(waypoints)),
	})
	if err != nil {
		g.missionMu.Lock()
		g.missionUpload = nil
		g.missionMu.Unlock()
		return fmt.Errorf("fc: failed to send mission count: %w", err)
	}

	select {
	case err := <-upload.done:
		return err
	case <-time.After(30 * time.Second):
		g.missionMu.Lock()
		g.missionUpload = nil
		g.missionMu.Unlock()
		return fmt.Errorf("fc: mission upload timed out")
	}
}

// handleMissionRequestInt answers the FC's per-waypoint pull during an
// in-progress upload.
func (g *Gateway) handleMissionRequestInt(msg *common.MessageMissionRequestInt) {
	g.missionMu.Lock()
	upload := g.missionUpload
	g.missionMu.Unlock()
	if upload == nil {
		return
	}

	seq := int(msg.Seq)
	if seq >= len(upload.waypoints) {
		g.logger.Printf("fc: mission request for out-of-range seq %d", seq)
		return
	}

	wp := upload.waypoints[seq]
	err := g.node.WriteMessageAll(&common.MessageMissionItemInt{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
		Seq:             uint16(wp.Sequence),
		Frame:           common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
		Command:         mavlinkCommandForAction(wp.Action),
		Autocontinue:    1,
		Param1:          float32(wp.HoldTimeSec),
		Param2:          float32(wp.AcceptanceRadius),
		Param4:          float32(wp.Heading),
		X:               int32(wp.Latitude * 1e7),
		Y:               int32(wp.Longitude * 1e7),
		Z:               float32(wp.Altitude),
	})
	if err != nil {
		g.logger.Printf("fc: failed to send waypoint %d: %v", seq, err)
	}
}

// handleMissionAck completes a pending upload.
func (g *Gateway) handleMissionAck(msg *common.MessageMissionAck) {
	g.missionMu.Lock()
	upload := g.missionUpload
	g.missionUpload = nil
	g.missionMu.Unlock()
	if upload == nil {
		return
	}

	if msg.Type == common.MAV_MISSION_ACCEPTED {
		upload.done <- nil
		return
	}
	upload.done <- fmt.Errorf("fc: mission upload rejected: %d", msg.Type)
}

// ClearMission sends MISSION_CLEAR_ALL.
func (g *Gateway) ClearMission() error {
	if err := g.requireConnected(); err != nil {
		return err
	}
	return g.node.WriteMessageAll(&common.MessageMissionClearAll{
		TargetSystem:    g.systemIDLocked(),
		TargetComponent: gatewayTargetComponent,
	})
}

func mavlinkCommandForAction(action config.WaypointAction) common.MAV_CMD {
	switch action {
	case config.WaypointActionTakeoff:
		return common.MAV_CMD_NAV_TAKEOFF
	case config.WaypointActionLand:
		return common.MAV_CMD_NAV_LAND
	case config.WaypointActionLoiter:
		return common.MAV_CMD_NAV_LOITER_UNLIM
	case config.WaypointActionHold:
		return common.MAV_CMD_NAV_LOITER_TIME
	default:
		return common.MAV_CMD_NAV_WAYPOINT
	}
}
