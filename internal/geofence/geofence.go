// Package geofence implements the polygon-based virtual fence (C6):
// inclusion/exclusion zones with altitude bands, proximity warnings, and
// safe-return-point computation. Ported from the ray-casting fallback
// path of the original Python geofencing module (the shapely-backed path
// has no idiomatic Go equivalent in the example corpus, so the fallback
// becomes the only path here).
package geofence

import "math"

const earthRadiusM = 6371000.0

// Action names the recommended recovery maneuver for a breach.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionReturnToHome
	ActionLoiter
	ActionLand
	ActionGuidedReturn
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionReturnToHome:
		return "return_to_home"
	case ActionLoiter:
		return "loiter"
	case ActionLand:
		return "land"
	case ActionGuidedReturn:
		return "guided_return"
	default:
		return "none"
	}
}

// GeoPoint is a WGS-84 latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Fence is a single named polygon zone, either a no-fly exclusion zone or
// a must-stay-within inclusion zone, bounded to an altitude band.
type Fence struct {
	Name         string     `json:"name"`
	Points       []GeoPoint `json:"points"`
	IsExclusion  bool       `json:"is_exclusion"`
	AltitudeMinM float64    `json:"altitude_min"`
	AltitudeMaxM float64    `json:"altitude_max"`
}

// ContainsPoint reports whether p at altitudeM lies inside the fence
// polygon and altitude band.
func (f *Fence) ContainsPoint(p GeoPoint, altitudeM float64) bool {
	if altitudeM < f.AltitudeMinM || altitudeM > f.AltitudeMaxM {
		return false
	}
	return pointInPolygon(p, f.Points)
}

// pointInPolygon is the standard ray-casting test over lon/lat treated as
// a flat plane, matching the Python fallback's behavior exactly.
func pointInPolygon(p GeoPoint, poly []GeoPoint) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lon, p.Lat

	p1 := poly[0]
	for i := 1; i <= n; i++ {
		p2 := poly[i%n]
		if y > math.Min(p1.Lat, p2.Lat) && y <= math.Max(p1.Lat, p2.Lat) && x <= math.Max(p1.Lon, p2.Lon) {
			var xIntersect float64
			if p1.Lat != p2.Lat {
				xIntersect = (y-p1.Lat)*(p2.Lon-p1.Lon)/(p2.Lat-p1.Lat) + p1.Lon
			}
			if p1.Lon == p2.Lon || x <= xIntersect {
				inside = !inside
			}
		}
		p1 = p2
	}
	return inside
}

// DistanceToBoundary returns the distance in meters from p to the nearest
// fence edge: negative if p is inside the polygon, positive if outside.
func (f *Fence) DistanceToBoundary(p GeoPoint) float64 {
	minDist := math.Inf(1)
	n := len(f.Points)
	for i := 0; i < n; i++ {
		a := f.Points[i]
		b := f.Points[(i+1)%n]
		d := distanceToSegment(p, a, b)
		if d < minDist {
			minDist = d
		}
	}
	if pointInPolygon(p, f.Points) {
		return -minDist
	}
	return minDist
}

// distanceToSegment returns the distance in meters from p to the nearest
// point on segment a-b, projected on a local flat plane centred on p.
func distanceToSegment(p, a, b GeoPoint) float64 {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	ax, ay := (a.Lon-p.Lon)*cosLat, a.Lat-p.Lat
	bx, by := (b.Lon-p.Lon)*cosLat, b.Lat-p.Lat
	dx, dy := bx-ax, by-ay
	t := 0.0
	if lenSq := dx*dx + dy*dy; lenSq > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/lenSq))
	}
	nearest := GeoPoint{Lat: a.Lat + t*(b.Lat-a.Lat), Lon: a.Lon + t*(b.Lon-a.Lon)}
	return haversineDistance(p, nearest)
}

// SafeReturnPoint returns a point 20m beyond the nearest boundary vertex,
// on the bearing away from p, for an exclusion fence only.
func (f *Fence) SafeReturnPoint(p GeoPoint) (GeoPoint, bool) {
	if !f.IsExclusion || len(f.Points) == 0 {
		return GeoPoint{}, false
	}

	nearest := f.Points[0]
	minDist := haversineDistance(p, nearest)
	for _, v := range f.Points[1:] {
		d := haversineDistance(p, v)
		if d < minDist {
			minDist = d
			nearest = v
		}
	}

	bearing := bearingDegrees(p, nearest)
	return destinationPoint(nearest, 20.0, bearing), true
}

// haversineDistance returns great-circle distance in meters.
func haversineDistance(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// bearingDegrees returns the initial bearing from a to b, in [0, 360).
func bearingDegrees(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	brng := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(brng+360, 360)
}

// destinationPoint returns the point distanceM along bearingDeg from p.
func destinationPoint(p GeoPoint, distanceM, bearingDeg float64) GeoPoint {
	lat1 := p.Lat * math.Pi / 180
	lon1 := p.Lon * math.Pi / 180
	brng := bearingDeg * math.Pi / 180
	delta := distanceM / earthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return GeoPoint{Lat: lat2 * 180 / math.Pi, Lon: lon2 * 180 / math.Pi}
}
