package calib

import (
	"time"

	"github.com/cnocal/cnocal/pkg/verify"
)

// Phase defines the steps of a calibration run.
type Phase string

const (
	PhaseIdle     Phase = "Idle"
	PhaseSetup    Phase = "Setup"             // scratch dir, waveform power measurement
	PhaseChannel  Phase = "ChannelSimulation" // noise injection, reference C/No
	PhaseReceiver Phase = "Reception"         // receiver under test, estimated C/No
	PhaseScoring  Phase = "LossScoring"       // feature-reconstruction loss
	PhaseReport   Phase = "Report"            // gate evaluation
	PhaseError    Phase = "Error"
)

// Action defines user actions on the run workflow.
type Action string

const (
	ActionStart            Action = "Start"
	ActionCancel           Action = "Cancel"
	ActionSchedule         Action = "Schedule"
	ActionScheduleDisable  Action = "DisableSchedule"
	ActionSchedulePostpone Action = "PostponeSchedule"
	ActionScheduleSkip     Action = "SkipSchedule"
	ActionUpcoming         Action = "UpcomingRun"
)

// RunResult is the JSON view of a finished run's gates. Error strings are
// carried separately from verdicts so "pipeline broken" stays distinguishable
// from "calibration drifted".
type RunResult struct {
	CNoGate   *verify.Verdict    `json:"cnoGate,omitempty"`
	CNoError  string             `json:"cnoError,omitempty"`
	LossGate  *verify.LossSample `json:"lossGate,omitempty"`
	LossError string             `json:"lossError,omitempty"`
	Passed    bool               `json:"passed"`
	Broken    bool               `json:"broken"`
}

// NewRunResult converts a verifier result to its JSON form.
func NewRunResult(r verify.Result) *RunResult {
	rr := &RunResult{
		CNoGate:  r.CNoGate,
		LossGate: r.LossGate,
		Passed:   r.Passed(),
		Broken:   r.Broken(),
	}
	if r.CNoErr != nil {
		rr.CNoError = r.CNoErr.Error()
	}
	if r.LossErr != nil {
		rr.LossError = r.LossErr.Error()
	}
	return rr
}

// State holds runtime state persisted to disk by the daemon. A run that is
// mid-flight when the daemon restarts is surfaced as errored, never silently
// resumed.
type State struct {
	RunID     string    `json:"runId"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
	NoDb      float64   `json:"NodB"`
	WorkDir   string    `json:"workDir,omitempty"`
	LastError string    `json:"lastError,omitempty"`

	LastResult   *RunResult `json:"lastResult,omitempty"`
	LastFinished time.Time  `json:"lastFinished,omitempty"`
}

// Status is the view model exposed over the HTTP API.
type Status struct {
	Phase     Phase     `json:"phase"`
	RunID     string    `json:"runId,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Running   bool      `json:"running"`
	CanCancel bool      `json:"canCancel"`
	Message   string    `json:"message,omitempty"`

	LastResult   *RunResult `json:"lastResult,omitempty"`
	LastFinished time.Time  `json:"lastFinished,omitempty"`
	ScheduledAt  time.Time  `json:"scheduledAt,omitempty"`
}
