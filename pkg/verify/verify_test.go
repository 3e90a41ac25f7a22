package verify

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnocal/cnocal/pkg/metric"
)

func sample(v float64, src metric.Source) metric.Sample {
	return metric.Sample{Label: "C/No", Value: v, Source: src}
}

func TestCompareMetrics(t *testing.T) {
	tests := []struct {
		name      string
		ref       float64
		est       float64
		tolerance float64
		wantErr   float64
		wantPass  bool
	}{
		{"within tolerance", -20.0, -20.5, 1.0, 0.5, true},
		{"out of tolerance", -20.0, -21.2, 1.0, 1.2, false},
		{"exactly at tolerance fails", -20.0, -21.0, 1.0, 1.0, false},
		{"identical values", -20.0, -20.0, 1.0, 0.0, true},
		{"tight tolerance", 10.0, 10.05, 0.1, 0.05, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CompareMetrics(sample(tt.ref, metric.SourceReference), sample(tt.est, metric.SourceEstimate), tt.tolerance)
			assert.InDelta(t, tt.wantErr, v.AbsoluteError, 1e-9)
			assert.Equal(t, tt.wantPass, v.Passed)
			assert.Empty(t, v.Anomaly)
		})
	}
}

func TestCompareMetricsNonFinite(t *testing.T) {
	cases := []struct {
		name string
		ref  float64
		est  float64
	}{
		{"NaN reference", math.NaN(), -20.0},
		{"NaN estimate", -20.0, math.NaN()},
		{"both NaN", math.NaN(), math.NaN()},
		{"positive inf", math.Inf(1), -20.0},
		{"negative inf", -20.0, math.Inf(-1)},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			v := CompareMetrics(sample(tt.ref, metric.SourceReference), sample(tt.est, metric.SourceEstimate), 1e12)
			assert.False(t, v.Passed, "non-finite inputs must never pass")
			assert.NotEmpty(t, v.Anomaly, "anomaly must be recorded")
		})
	}
}

func TestCheckLossGate(t *testing.T) {
	g := CheckLossGate(0.25, 0.3)
	assert.True(t, g.Passed)

	// The threshold is strict: exactly at the maximum fails.
	g = CheckLossGate(0.3, 0.3)
	assert.False(t, g.Passed)

	g = CheckLossGate(0.31, 0.3)
	assert.False(t, g.Passed)

	g = CheckLossGate(math.NaN(), 0.3)
	assert.False(t, g.Passed)
}

func TestRunCalibrationBothGates(t *testing.T) {
	refLog := "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n"
	estLog := "Measured: -20.50 EbNodB: 3.10\n"

	r := RunCalibration(refLog, estLog, 0.25, 0.3, 1.0)
	require.NotNil(t, r.CNoGate)
	require.NotNil(t, r.LossGate)
	assert.NoError(t, r.CNoErr)
	assert.True(t, r.CNoGate.Passed)
	assert.InDelta(t, 0.5, r.CNoGate.AbsoluteError, 1e-9)
	assert.True(t, r.LossGate.Passed)
	assert.True(t, r.Passed())
	assert.False(t, r.Broken())
	assert.Equal(t, 0, r.ExitCode())
}

func TestRunCalibrationLossFailureDoesNotSuppressCNoGate(t *testing.T) {
	refLog := "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n"
	estLog := "Measured: -20.10\n"

	r := RunCalibration(refLog, estLog, 0.5, 0.3, 1.0)
	require.NotNil(t, r.LossGate)
	assert.False(t, r.LossGate.Passed)
	// The C/No gate must still be computed and reported.
	require.NotNil(t, r.CNoGate)
	assert.True(t, r.CNoGate.Passed)
	assert.False(t, r.Passed())
	assert.Equal(t, 1, r.ExitCode())
}

func TestRunCalibrationExtractionFailureDoesNotSuppressLossGate(t *testing.T) {
	r := RunCalibration("no usable output\n", "Measured: -20.0\n", 0.2, 0.3, 1.0)
	assert.Error(t, r.CNoErr)
	assert.Nil(t, r.CNoGate)
	// The loss gate result must still be present.
	require.NotNil(t, r.LossGate)
	assert.True(t, r.LossGate.Passed)
	assert.True(t, r.Broken())
	assert.Equal(t, 2, r.ExitCode())
}

func TestResultPrintAlwaysReportsBothGates(t *testing.T) {
	refLog := "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n"
	estLog := "Measured: -24.00\n"

	r := RunCalibration(refLog, estLog, 0.4, 0.3, 1.0)

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	// Failures are reported explicitly, never by silence.
	assert.Contains(t, out, "CNodB")
	assert.Contains(t, out, "loss")
	assert.Equal(t, 2, strings.Count(out, "FAIL"))
}

func TestResultPrintExtractionError(t *testing.T) {
	r := RunCalibration("garbage\n", "garbage\n", 0.2, 0.3, 1.0)

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "loss")
}
