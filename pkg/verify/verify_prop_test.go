package verify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cnocal/cnocal/pkg/metric"
)

// Property: the verdict is exactly |ref-est| < tolerance, strictly.
func TestCompareMetricsToleranceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ref := rapid.Float64Range(-200, 200).Draw(t, "ref")
		est := rapid.Float64Range(-200, 200).Draw(t, "est")
		tol := rapid.Float64Range(0.001, 50).Draw(t, "tol")

		v := CompareMetrics(sample(ref, metric.SourceReference), sample(est, metric.SourceEstimate), tol)

		assert.Equal(t, math.Abs(ref-est) < tol, v.Passed)
		assert.False(t, v.AbsoluteError < 0, "absolute error can never be negative")
	})
}

// Property: error magnitude is symmetric in its arguments.
func TestCompareMetricsSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(-200, 200).Draw(t, "a")
		b := rapid.Float64Range(-200, 200).Draw(t, "b")
		tol := rapid.Float64Range(0.001, 50).Draw(t, "tol")

		fwd := CompareMetrics(sample(a, metric.SourceReference), sample(b, metric.SourceEstimate), tol)
		rev := CompareMetrics(sample(b, metric.SourceReference), sample(a, metric.SourceEstimate), tol)

		assert.Equal(t, fwd.AbsoluteError, rev.AbsoluteError)
		assert.Equal(t, fwd.Passed, rev.Passed)
	})
}

// Property: the loss gate is strict and total.
func TestCheckLossGateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		measured := rapid.Float64Range(0, 10).Draw(t, "measured")
		max := rapid.Float64Range(0, 10).Draw(t, "max")

		g := CheckLossGate(measured, max)
		assert.Equal(t, measured < max, g.Passed)
	})
}
