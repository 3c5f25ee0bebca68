// Package geolocate implements the pixel-to-GPS target geolocation (C5):
// a flat-ground ray intersection using the camera's mount attitude and
// the UAV's own attitude, composed as Z-Y-X Euler rotations. Ported
// directly from the original navigation/geolocation module; the Euler
// composition and linear algebra use gonum in place of numpy.
package geolocate

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

const wgs84EquatorialRadiusM = 6378137.0

// ErrRayDoesNotIntersectGround is returned when the sight line points up
// or parallel to the ground, so it never crosses the flat-ground plane.
var ErrRayDoesNotIntersectGround = errors.New("geolocate: sight line does not intersect ground plane")

// MountConfig describes the camera's fixed mounting attitude relative to
// the airframe and its field of view (spec.md §4.5 camera assumptions).
type MountConfig struct {
	HFOVDeg   float64
	VFOVDeg   float64
	PitchDeg  float64 // negative = tilted down
	RollDeg   float64
	YawDeg    float64
	GroundAltMSL float64
}

// UAVAttitude is the subset of telemetry the geolocator needs.
type UAVAttitude struct {
	Latitude  float64
	Longitude float64
	AltitudeM float64 // MSL
	RollRad   float64
	PitchRad  float64
	YawRad    float64
}

// Target is the computed ground position of a detected object.
type Target struct {
	Latitude  float64
	Longitude float64
}

// Locate projects the pixel center of a bounding box through the camera
// and aircraft attitude onto a flat ground plane at GroundAltMSL.
func Locate(mount MountConfig, uav UAVAttitude, pixelX, pixelY float64, imageWidth, imageHeight int) (Target, error) {
	angleX := ((pixelX / float64(imageWidth)) - 0.5) * mount.HFOVDeg * math.Pi / 180
	angleY := ((pixelY / float64(imageHeight)) - 0.5) * mount.VFOVDeg * math.Pi / 180

	// Camera-frame ray (OpenCV convention: X right, Y down, Z forward).
	camVector := mat.NewVecDense(3, []float64{math.Tan(angleX), math.Tan(angleY), 1.0})
	normalizeVec(camVector)

	// OpenCV -> aerospace body convention: x_aero=z_cv, y_aero=x_cv, z_aero=y_cv.
	camAerospace := mat.NewVecDense(3, []float64{
		camVector.AtVec(2),
		camVector.AtVec(0),
		camVector.AtVec(1),
	})

	rCamToBody := eulerToRotationMatrix(
		mount.RollDeg*math.Pi/180,
		mount.PitchDeg*math.Pi/180,
		mount.YawDeg*math.Pi/180,
	)
	var bodyVector mat.VecDense
	bodyVector.MulVec(rCamToBody, camAerospace)

	rBodyToNED := eulerToRotationMatrix(uav.RollRad, uav.PitchRad, uav.YawRad)
	var nedVector mat.VecDense
	nedVector.MulVec(rBodyToNED, &bodyVector)

	down := nedVector.AtVec(2)
	if down <= 0 {
		return Target{}, ErrRayDoesNotIntersectGround
	}

	scale := (uav.AltitudeM - mount.GroundAltMSL) / down
	northOffsetM := nedVector.AtVec(0) * scale
	eastOffsetM := nedVector.AtVec(1) * scale

	dLat := northOffsetM / wgs84EquatorialRadiusM
	dLon := eastOffsetM / (wgs84EquatorialRadiusM * math.Cos(uav.Latitude*math.Pi/180))

	return Target{
		Latitude:  uav.Latitude + dLat*180/math.Pi,
		Longitude: uav.Longitude + dLon*180/math.Pi,
	}, nil
}

// eulerToRotationMatrix composes the body-to-NED rotation in Z-Y-X
// (yaw, pitch, roll) order, matching the original's _euler_to_rotation_matrix.
func eulerToRotationMatrix(roll, pitch, yaw float64) *mat.Dense {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var ryx, rzyx mat.Dense
	ryx.Mul(ry, rx)
	rzyx.Mul(rz, &ryx)
	return &rzyx
}

func normalizeVec(v *mat.VecDense) {
	norm := mat.Norm(v, 2)
	if norm == 0 {
		return
	}
	v.ScaleVec(1/norm, v)
}
