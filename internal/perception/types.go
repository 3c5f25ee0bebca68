// Package perception holds the detection/bounding-box vocabulary shared by
// the detector (C3) and tracker (C4), kept separate so neither package
// imports the other.
package perception

import "time"

// ClassID enumerates the object classes the detector recognizes, matching
// spec.md §3's target taxonomy.
type ClassID int

const (
	ClassPerson ClassID = iota
	ClassVehicle
	ClassBoat
	ClassAnimal
	ClassUnknown
)

func (c ClassID) String() string {
	switch c {
	case ClassPerson:
		return "person"
	case ClassVehicle:
		return "vehicle"
	case ClassBoat:
		return "boat"
	case ClassAnimal:
		return "animal"
	default:
		return "unknown"
	}
}

// BBox is an axis-aligned pixel-space bounding box, half-open on the
// high edge: a pixel at (X1, Y1) is inside, a pixel at (X2, Y2) is not.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width and Height return the box's pixel extent.
func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns zero for a degenerate or inverted box.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box's centroid in pixel space.
func (b BBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Translate returns a copy of b shifted by (dx, dy).
func (b BBox) Translate(dx, dy float64) BBox {
	return BBox{b.X1 + dx, b.Y1 + dy, b.X2 + dx, b.Y2 + dy}
}

// IoU computes the intersection-over-union of two boxes, the primary
// signal the hybrid verifier (C4) uses to judge tracker drift.
func IoU(a, b BBox) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih

	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Detection is a single detector output for one frame.
type Detection struct {
	Class      ClassID
	Confidence float64
	Box        BBox
	FrameID    uint64
	Timestamp  time.Time
}
