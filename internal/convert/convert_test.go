package convert

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValveInversionNominal(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	got := s.Read(Valve, "V13", 73.0)
	assert.Equal(t, 27.0, got)
}

func TestValveV13Involution(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	for v := 0.0; v <= 100.0; v += 5 {
		written := s.Write(Valve, "V13", v)
		back := s.Read(Valve, "V13", written)
		assert.InDelta(t, v, back, 1e-9)
	}
	for v := 0.0; v <= 100.0; v += 5 {
		assert.Equal(t, v, s.Write(Valve, "V11", v))
		assert.Equal(t, v, s.Read(Valve, "V11", v))
	}
}

func TestValveClamp(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Read(Valve, "V11", -1.2))
	assert.Equal(t, -5.0, s.Read(Valve, "V11", -5.0))
	assert.Equal(t, 100.0, s.Read(Valve, "V11", 101.5))
	assert.Equal(t, 105.0, s.Read(Valve, "V11", 105.0))
}

func TestValveReadAlwaysInBandOrUntouched(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	for _, v := range []float64{-10, -1.9, -0.5, 0, 50, 100, 100.5, 101.9, 110} {
		got := s.Read(Valve, "V11", v)
		if got < 0 || got > 100 {
			assert.True(t, v <= valveLowerAccept || v >= valveUpperAccept, "out of band value %v should have been left untouched, got %v", v, got)
		}
	}
}

func TestPressureConversions(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	assert.InDelta(t, 17.0, s.Read(Pressure, "Pvac1", 0.017), 1e-9)
	assert.InDelta(t, 1000.5, s.Read(Pressure, "P2", 988.5), 1e-9)
	assert.InDelta(t, 0.0, s.Read(Pressure, "Pgen", 1.0), 1e-9)
}

func TestSiTempFallbackCurve(t *testing.T) {
	s, err := NewSet("")
	require.NoError(t, err)
	got := s.Read(SiTemp, "T1", 1000)
	want := genericPlatinumCurve(1000)
	assert.Equal(t, want, got)
}

func TestSiTempWithCoefficients(t *testing.T) {
	dir := t.TempDir()
	contents := "T1 calibration\na = 1.0\nb = 2.0\nc = 0.0\nd = 0.0\ne = 0.0\nf = 0.0\ng = 0.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "T1.txt"), []byte(contents), 0o644))

	s, err := NewSet(dir)
	require.NoError(t, err)

	v := 500.0
	got := s.Read(SiTemp, "T1", v)
	want := 1.0 + 2.0*(1000.0/v)
	assert.InDelta(t, want, got, 1e-9)
}

func TestSiTempMissingDirIsNotError(t *testing.T) {
	_, err := NewSet(filepath.Join(os.TempDir(), "does-not-exist-refrigctl"))
	require.NoError(t, err)
}

func TestParseTagDefaults(t *testing.T) {
	tag, err := ParseTag("")
	require.NoError(t, err)
	assert.Equal(t, Default, tag)

	_, err = ParseTag("Bogus")
	require.Error(t, err)
}

func TestGenericPlatinumCurveRounded(t *testing.T) {
	got := genericPlatinumCurve(2000)
	assert.Equal(t, math.Round(got*1000)/1000, got)
}
