package verify

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/cnocal/cnocal/pkg/metric"
)

// Result carries both gate outcomes of one calibration run. The gates are
// evaluated independently and never short-circuit each other, so a single run
// surfaces all failures. A gate whose metric could not be extracted carries
// the extraction error instead of a verdict; that is a "pipeline broken"
// condition, distinct from a failed comparison.
type Result struct {
	CNoGate  *Verdict    `json:"cnoGate,omitempty"`
	CNoErr   error       `json:"-"`
	LossGate *LossSample `json:"lossGate,omitempty"`
	LossErr  error       `json:"-"`
}

// RunCalibration evaluates the C/No gate from the two logs and the loss gate
// from the measured loss. Extraction failures abort only the affected gate.
func RunCalibration(referenceLog, estimateLog string, lossMeasured, lossMax, toleranceDb float64) Result {
	r := Result{}

	loss := CheckLossGate(lossMeasured, lossMax)
	r.LossGate = &loss

	ref, refErr := metric.ExtractChannelSim(referenceLog)
	est, estErr := metric.ExtractReceiver(estimateLog)
	switch {
	case refErr != nil:
		r.CNoErr = refErr
	case estErr != nil:
		r.CNoErr = estErr
	default:
		v := CompareMetrics(ref, est, toleranceDb)
		r.CNoGate = &v
	}

	return r
}

// Passed reports whether every gate was evaluated and passed.
func (r Result) Passed() bool {
	return r.CNoErr == nil && r.LossErr == nil &&
		r.CNoGate != nil && r.CNoGate.Passed &&
		r.LossGate != nil && r.LossGate.Passed
}

// Broken reports whether any gate could not be evaluated at all (missing or
// malformed producer output). Callers should alert on this differently than
// on a numeric failure.
func (r Result) Broken() bool {
	return r.CNoErr != nil || r.LossErr != nil
}

var (
	passText  = color.New(color.FgGreen, color.Bold).Sprint("PASS")
	failText  = color.New(color.FgRed, color.Bold).Sprint("FAIL")
	errorText = color.New(color.FgYellow, color.Bold).Sprint("ERROR")
)

// Print writes an explicit report for both gates. Both outcomes are always
// printed, pass and fail alike, so automation never has to infer a verdict
// from silence.
func (r Result) Print(w io.Writer) {
	if r.CNoErr != nil {
		fmt.Fprintf(w, "CNodB %s %v\n", errorText, r.CNoErr)
	} else if r.CNoGate != nil {
		v := r.CNoGate
		verdict := failText
		if v.Passed {
			verdict = passText
		}
		fmt.Fprintf(w, "CNodB %s reference: %s dB estimate: %s dB error: %s dB tolerance: %s dB\n",
			verdict,
			strconv.FormatFloat(v.Reference.Value, 'f', 2, 64),
			strconv.FormatFloat(v.Estimate.Value, 'f', 2, 64),
			strconv.FormatFloat(v.AbsoluteError, 'f', 2, 64),
			strconv.FormatFloat(v.ToleranceDb, 'f', 2, 64))
		if v.Anomaly != "" {
			fmt.Fprintf(w, "CNodB anomaly: %s\n", v.Anomaly)
		}
	}

	if r.LossErr != nil {
		fmt.Fprintf(w, "loss %s %v\n", errorText, r.LossErr)
	} else if r.LossGate != nil {
		g := r.LossGate
		verdict := failText
		if g.Passed {
			verdict = passText
		}
		fmt.Fprintf(w, "loss %s measured: %s max: %s\n",
			verdict,
			strconv.FormatFloat(g.Value, 'f', 3, 64),
			strconv.FormatFloat(g.MaxAllowed, 'f', 3, 64))
	}
}

// ExitCode maps the result to a process exit status: 0 all gates passed,
// 1 at least one gate failed numerically, 2 the pipeline produced no usable
// output for at least one gate.
func (r Result) ExitCode() int {
	if r.Broken() {
		return 2
	}
	if !r.Passed() {
		return 1
	}
	return 0
}
