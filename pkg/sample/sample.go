// Package sample reads the raw waveform files the external tools exchange and
// computes the power quantities the calibration needs: peak and RMS power,
// PAPR, and the reference C/No implied by a known injected noise power.
package sample

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// PowerStats summarizes a waveform's power. Levels are linear; the dB views
// are derived.
type PowerStats struct {
	Peak    float64 `json:"peak"`    // max |sample|
	RMS     float64 `json:"rms"`     // sqrt(mean(sample^2))
	Samples int     `json:"samples"` // number of real samples read
}

// PAPRdB returns the peak-to-average power ratio in dB. A chirp reference
// waveform has PAPR close to zero, which is what makes peak-power based C/No
// estimation usable.
func (p PowerStats) PAPRdB() float64 {
	if p.RMS == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(p.Peak/p.RMS)
}

// ReadFloat32 reads a raw little-endian float32 sample file (the ..IQIQ..
// .f32 format; interleaving does not matter for power statistics).
func ReadFloat32(path string) (PowerStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return PowerStats{}, pkgerrors.Wrapf(err, "failed to open sample file %s", path)
	}
	defer f.Close()

	return statsFloat32(f)
}

// ReadInt16 reads a raw little-endian signed 16-bit sample file, normalized
// to +/-1.0.
func ReadInt16(path string) (PowerStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return PowerStats{}, pkgerrors.Wrapf(err, "failed to open sample file %s", path)
	}
	defer f.Close()

	return statsInt16(f)
}

func statsFloat32(r io.Reader) (PowerStats, error) {
	var (
		stats     PowerStats
		sumSq     float64
		buf       [4096]byte
		remainder []byte
	)

	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			b := append(remainder, buf[:n]...)
			usable := len(b) - len(b)%4
			for i := 0; i+4 <= usable; i += 4 {
				v := float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i : i+4])))
				a := math.Abs(v)
				if a > stats.Peak {
					stats.Peak = a
				}
				sumSq += v * v
				stats.Samples++
			}
			remainder = append(remainder[:0], b[usable:]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return PowerStats{}, pkgerrors.Wrap(err, "failed to read samples")
		}
	}

	if len(remainder) != 0 {
		return PowerStats{}, pkgerrors.Errorf("trailing %d bytes, not a whole float32 sample", len(remainder))
	}
	if stats.Samples > 0 {
		stats.RMS = math.Sqrt(sumSq / float64(stats.Samples))
	}
	return stats, nil
}

func statsInt16(r io.Reader) (PowerStats, error) {
	var (
		stats     PowerStats
		sumSq     float64
		buf       [4096]byte
		remainder []byte
	)

	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			b := append(remainder, buf[:n]...)
			usable := len(b) - len(b)%2
			for i := 0; i+2 <= usable; i += 2 {
				v := float64(int16(binary.LittleEndian.Uint16(b[i:i+2]))) / 32768.0
				a := math.Abs(v)
				if a > stats.Peak {
					stats.Peak = a
				}
				sumSq += v * v
				stats.Samples++
			}
			remainder = append(remainder[:0], b[usable:]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return PowerStats{}, pkgerrors.Wrap(err, "failed to read samples")
		}
	}

	if len(remainder) != 0 {
		return PowerStats{}, pkgerrors.Errorf("trailing %d bytes, not a whole int16 sample", len(remainder))
	}
	if stats.Samples > 0 {
		stats.RMS = math.Sqrt(sumSq / float64(stats.Samples))
	}
	return stats, nil
}

// CNodB computes the reference carrier-to-noise density ratio in dB from a
// signal power S, a noise power N measured in bandwidth fs, and the sample
// rate fs: C/No = 10*log10(S*fs/N).
func CNodB(signalPower, noisePower, fs float64) float64 {
	if signalPower <= 0 || noisePower <= 0 || fs <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(signalPower*fs/noisePower)
}

// HeadroomGain returns the gain that scales a waveform's peak down to the
// requested headroom so the subsequent noise injection cannot clip. With no
// measurable peak the gain is 1.
func HeadroomGain(stats PowerStats, headroom float64) float64 {
	if stats.Peak <= 0 || headroom <= 0 {
		return 1
	}
	return headroom / stats.Peak
}
