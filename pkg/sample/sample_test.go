package sample

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFloat32File(t *testing.T, samples []float32) string {
	t.Helper()
	b := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(s))
	}
	path := filepath.Join(t.TempDir(), "samples.f32")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func writeInt16File(t *testing.T, samples []int16) string {
	t.Helper()
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	path := filepath.Join(t.TempDir(), "samples.s16")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func TestReadFloat32(t *testing.T) {
	path := writeFloat32File(t, []float32{0.5, -1.0, 0.25, 0})

	stats, err := ReadFloat32(path)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Samples)
	assert.InDelta(t, 1.0, stats.Peak, 1e-9)
	// RMS of {0.5, -1, 0.25, 0} = sqrt(1.3125/4)
	assert.InDelta(t, math.Sqrt(1.3125/4), stats.RMS, 1e-9)
}

func TestReadFloat32TruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.f32")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))

	_, err := ReadFloat32(path)
	assert.Error(t, err)
}

func TestReadInt16(t *testing.T) {
	path := writeInt16File(t, []int16{16384, -32768, 0})

	stats, err := ReadInt16(path)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Samples)
	assert.InDelta(t, 1.0, stats.Peak, 1e-6)
}

func TestPAPRdB(t *testing.T) {
	// A constant-envelope waveform has PAPR of 0 dB.
	p := PowerStats{Peak: 0.5, RMS: 0.5}
	assert.InDelta(t, 0.0, p.PAPRdB(), 1e-9)

	p = PowerStats{Peak: 1.0, RMS: 0.5}
	assert.InDelta(t, 6.0206, p.PAPRdB(), 1e-3)

	assert.True(t, math.IsInf(PowerStats{Peak: 1}.PAPRdB(), 1))
}

func TestCNodB(t *testing.T) {
	// S=1, N=1, Fs=8000 -> 10*log10(8000) ~= 39.03 dB
	assert.InDelta(t, 39.03, CNodB(1, 1, 8000), 0.01)

	// Doubling signal power adds 3 dB.
	assert.InDelta(t, CNodB(1, 1, 8000)+3.0103, CNodB(2, 1, 8000), 1e-3)

	assert.True(t, math.IsInf(CNodB(0, 1, 8000), -1))
	assert.True(t, math.IsInf(CNodB(1, 0, 8000), -1))
}

func TestHeadroomGain(t *testing.T) {
	stats := PowerStats{Peak: 0.5}
	assert.InDelta(t, 0.5, HeadroomGain(stats, 0.25), 1e-9)

	// No measurable peak: leave the waveform alone.
	assert.Equal(t, 1.0, HeadroomGain(PowerStats{}, 0.25))
}
