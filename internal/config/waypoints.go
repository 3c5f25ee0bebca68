package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WaypointAction mirrors the small set of mission actions the gateway
// understands, analogous to the teacher's drone.Waypoint_Action enum but
// without the protobuf dependency it came from.
type WaypointAction int

const (
	WaypointActionWaypoint WaypointAction = iota
	WaypointActionTakeoff
	WaypointActionLand
	WaypointActionLoiter
	WaypointActionHold
)

// Waypoint is one row of a QGC WPL 110 mission file (spec.md §6).
type Waypoint struct {
	Sequence         int
	Current          bool
	Frame            int
	Command          int
	Param1           float64
	Param2           float64
	Param3           float64
	Param4           float64
	Latitude         float64
	Longitude        float64
	Altitude         float64
	Autocontinue     bool
	Action           WaypointAction
	HoldTimeSec      float64
	AcceptanceRadius float64
	Heading          float64
}

const qgcWPLHeader = "QGC WPL 110"

// LoadMissionFile parses a line-oriented QGC WPL 110 mission file. Seq 0
// is home, per spec.md §6, and is included in the returned slice.
func LoadMissionFile(path string) ([]Waypoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mission file: %w", err)
	}
	defer f.Close()
	return ParseMissionFile(f)
}

// ParseMissionFile parses the QGC WPL 110 format from an arbitrary reader.
func ParseMissionFile(r io.Reader) ([]Waypoint, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty mission file")
	}
	header := strings.TrimSpace(scanner.Text())
	if header != qgcWPLHeader {
		return nil, fmt.Errorf("unsupported mission file header: %q", header)
	}

	var waypoints []Waypoint
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		wp, err := parseWaypointLine(line)
		if err != nil {
			return nil, fmt.Errorf("mission file line %d: %w", lineNo, err)
		}
		waypoints = append(waypoints, wp)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mission file: %w", err)
	}
	return waypoints, nil
}

func parseWaypointLine(line string) (Waypoint, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 12 {
		return Waypoint{}, fmt.Errorf("expected 12 tab-separated fields, got %d", len(fields))
	}

	ints := make([]int, 4)
	for i, idx := range []int{0, 1, 2, 3} {
		v, err := strconv.Atoi(fields[idx])
		if err != nil {
			return Waypoint{}, fmt.Errorf("field %d: %w", idx, err)
		}
		ints[i] = v
	}

	floats := make([]float64, 8)
	for i, idx := range []int{4, 5, 6, 7, 8, 9, 10} {
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return Waypoint{}, fmt.Errorf("field %d: %w", idx, err)
		}
		floats[i] = v
	}
	autocontinue, err := strconv.Atoi(fields[11])
	if err != nil {
		return Waypoint{}, fmt.Errorf("field 11: %w", err)
	}

	wp := Waypoint{
		Sequence:     ints[0],
		Current:      ints[1] != 0,
		Frame:        ints[2],
		Command:      ints[3],
		Param1:       floats[0],
		Param2:       floats[1],
		Param3:       floats[2],
		Param4:       floats[3],
		Latitude:     floats[4],
		Longitude:    floats[5],
		Altitude:     floats[6],
		Autocontinue: autocontinue != 0,
	}
	wp.Action = actionForCommand(wp.Command)
	wp.HoldTimeSec = wp.Param1
	wp.AcceptanceRadius = wp.Param2
	wp.Heading = wp.Param4
	return wp, nil
}

// MAVLink NAV command ids relevant to action classification (spec.md §6).
const (
	mavCmdNavWaypoint = 16
	mavCmdNavLoiter   = 17
	mavCmdNavLand     = 21
	mavCmdNavTakeoff  = 22
	mavCmdNavLoiterTime = 19
)

func actionForCommand(cmd int) WaypointAction {
	switch cmd {
	case mavCmdNavTakeoff:
		return WaypointActionTakeoff
	case mavCmdNavLand:
		return WaypointActionLand
	case mavCmdNavLoiter:
		return WaypointActionLoiter
	case mavCmdNavLoiterTime:
		return WaypointActionHold
	default:
		return WaypointActionWaypoint
	}
}

// WriteMissionFile serializes waypoints back to the QGC WPL 110 format.
func WriteMissionFile(w io.Writer, waypoints []Waypoint) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, qgcWPLHeader); err != nil {
		return err
	}
	for _, wp := range waypoints {
		current := 0
		if wp.Current {
			current = 1
		}
		autocontinue := 0
		if wp.Autocontinue {
			autocontinue = 1
		}
		_, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%d\t%g\t%g\t%g\t%g\t%.8f\t%.8f\t%g\t%d\n",
			wp.Sequence, current, wp.Frame, wp.Command,
			wp.Param1, wp.Param2, wp.Param3, wp.Param4,
			wp.Latitude, wp.Longitude, wp.Altitude, autocontinue)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}
