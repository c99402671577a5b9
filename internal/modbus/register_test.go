package modbus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat32RoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 1.0, 73.0, 27.0, 3.14159, -1000.5, 1e10, 1e-10}
	for _, v := range values {
		r0, r1 := EncodeFloat32(v)
		got := DecodeFloat32(r0, r1)
		if math.IsNaN(float64(v)) {
			continue
		}
		assert.Equal(t, v, got, "round trip mismatch for %v", v)
	}
}

func TestFloat32KnownBits(t *testing.T) {
	// 0x3F800000 is IEEE-754 for 1.0, word-swapped per spec §4.2.
	got := DecodeFloat32(0x0000, 0x803F)
	assert.Equal(t, float32(1.0), got)
}

func TestFixedPoint100RoundTrip(t *testing.T) {
	values := []float64{0, 1.23, 9.88, 100.00, 655.35}
	for _, v := range values {
		r0, r1 := EncodeFixedPoint100(v)
		got := DecodeFixedPoint100(r0, r1)
		assert.InDelta(t, v, got, 1e-9)
	}
}
