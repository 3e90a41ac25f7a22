// Package verify implements the C/No calibration and tolerance-check
// protocol: compare a trusted reference metric against an estimator's output
// and gate the result on absolute error, plus a secondary reconstruction-loss
// gate. All comparisons here are pure functions; an out-of-tolerance result is
// data, never an error.
package verify

import (
	"fmt"
	"math"

	"github.com/cnocal/cnocal/pkg/metric"
)

const (
	// DefaultToleranceDb is the maximum absolute C/No error accepted between
	// reference and estimate.
	DefaultToleranceDb = 1.0

	// DefaultLossMax is the maximum acceptable feature-reconstruction loss.
	DefaultLossMax = 0.3
)

// Verdict is the outcome of comparing an estimated metric against a
// reference. Passed is a pure function of the two sample values and the
// tolerance; it is computed once at construction and never mutated.
type Verdict struct {
	Reference     metric.Sample `json:"reference"`
	Estimate      metric.Sample `json:"estimate"`
	ToleranceDb   float64       `json:"toleranceDb"`
	AbsoluteError float64       `json:"absoluteError"`
	Passed        bool          `json:"passed"`
	// Anomaly is set when either input was NaN or infinite. Such verdicts
	// never pass.
	Anomaly string `json:"anomaly,omitempty"`
}

// LossSample gates a reconstruction-loss measurement against a maximum.
type LossSample struct {
	Value      float64 `json:"value"`
	MaxAllowed float64 `json:"maxAllowed"`
	Passed     bool    `json:"passed"`
}

// CompareMetrics compares an estimate against a reference with the given
// tolerance in dB. The comparison is strict: an absolute error exactly equal
// to the tolerance fails. NaN or infinite values never pass and are recorded
// as an anomaly instead of silently comparing.
func CompareMetrics(reference, estimate metric.Sample, toleranceDb float64) Verdict {
	v := Verdict{
		Reference:   reference,
		Estimate:    estimate,
		ToleranceDb: toleranceDb,
	}

	if anomaly := describeAnomaly(reference.Value, estimate.Value); anomaly != "" {
		v.Anomaly = anomaly
		v.AbsoluteError = math.Abs(reference.Value - estimate.Value)
		v.Passed = false
		return v
	}

	v.AbsoluteError = math.Abs(reference.Value - estimate.Value)
	v.Passed = v.AbsoluteError < toleranceDb
	return v
}

// CheckLossGate gates a measured loss against the maximum allowed. Strictly
// below passes; exactly at the threshold fails. NaN never passes.
func CheckLossGate(measured, maxAllowed float64) LossSample {
	return LossSample{
		Value:      measured,
		MaxAllowed: maxAllowed,
		Passed:     measured < maxAllowed, // NaN comparisons are false
	}
}

func describeAnomaly(ref, est float64) string {
	switch {
	case math.IsNaN(ref) || math.IsNaN(est):
		return fmt.Sprintf("NaN value (reference=%v estimate=%v)", ref, est)
	case math.IsInf(ref, 0) || math.IsInf(est, 0):
		return fmt.Sprintf("infinite value (reference=%v estimate=%v)", ref, est)
	}
	return ""
}
