package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoUIdenticalBoxes(t *testing.T) {
	a := BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
}

func TestIoUDisjointBoxes(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := BBox{X1: 100, Y1: 100, X2: 110, Y2: 110}
	assert.Equal(t, 0.0, IoU(a, b))
}

func TestIoUPartialOverlap(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := BBox{X1: 5, Y1: 5, X2: 15, Y2: 15}
	// intersection: 5x5=25, union: 100+100-25=175
	assert.InDelta(t, 25.0/175.0, IoU(a, b), 1e-9)
}

func TestIoUDegenerateBox(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 0, Y2: 10}
	b := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	assert.Equal(t, 0.0, IoU(a, b))
}

func TestBBoxTranslate(t *testing.T) {
	b := BBox{X1: 10, Y1: 10, X2: 20, Y2: 20}
	t2 := b.Translate(5, -5)
	assert.Equal(t, BBox{X1: 15, Y1: 5, X2: 25, Y2: 15}, t2)
}

func TestClassIDString(t *testing.T) {
	assert.Equal(t, "person", ClassPerson.String())
	assert.Equal(t, "unknown", ClassID(99).String())
}
