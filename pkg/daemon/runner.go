package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/calib"
	"github.com/cnocal/cnocal/pkg/chansim"
	"github.com/cnocal/cnocal/pkg/events"
	"github.com/cnocal/cnocal/pkg/verify"
)

var (
	runMu        = &sync.Mutex{}
	runState     = &calib.State{Phase: calib.PhaseIdle}
	runStatePath = ""
	runCancel    context.CancelFunc
)

// executePipeline is a function var so workflow tests can substitute a fake
// pipeline run.
var executePipeline = func(ctx context.Context, p *chansim.Pipeline, keepArtifacts bool) (verify.Result, chansim.RunArtifacts, error) {
	return p.Run(ctx, keepArtifacts)
}

var ErrRunInProgress = &runError{"calibration run already in progress"}
var ErrRunNotActive = &runError{"no calibration run active"}

type runError struct{ msg string }

func (e *runError) Error() string { return e.msg }

func initRunState(path string) {
	runStatePath = path
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		logrus.WithError(err).Warn("failed to read run state")
		return
	}
	var st calib.State
	if err := json.Unmarshal(b, &st); err != nil {
		logrus.WithError(err).Warn("failed to unmarshal run state")
		return
	}
	// A run that was mid-flight when the daemon stopped cannot be resumed:
	// its processes are gone. Surface it as errored instead of losing it.
	if st.Phase != calib.PhaseIdle && st.Phase != calib.PhaseError {
		st.LastError = fmt.Sprintf("daemon restarted during phase %s", st.Phase)
		st.Phase = calib.PhaseError
	}
	runState = &st
}

func persistRunState() {
	if runStatePath == "" {
		return
	}
	b, err := json.MarshalIndent(runState, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal run state")
		return
	}
	if err := os.WriteFile(runStatePath, b, 0644); err != nil {
		logrus.WithError(err).Error("write run state")
	}
}

func buildPipeline(noDb float64) *chansim.Pipeline {
	return &chansim.Pipeline{
		ChannelSim:  conf.ChannelSimPath(),
		Receiver:    conf.ReceiverPath(),
		LossScorer:  conf.LossScorerPath(),
		TxWaveform:  conf.TxWaveform(),
		TxFeatures:  conf.TxFeatures(),
		NoDb:        noDb,
		FadingDir:   conf.FadingDir(),
		ToleranceDb: conf.ToleranceDb(),
		LossMax:     conf.LossMax(),
		RunTimeout:  conf.RunTimeout(),
	}
}

// startRun launches a calibration run in the background. A nil noDb uses the
// configured set point.
func startRun(noDb *float64) (string, error) {
	runMu.Lock()
	defer runMu.Unlock()

	if runState.Phase != calib.PhaseIdle && runState.Phase != calib.PhaseError {
		return "", ErrRunInProgress
	}

	no := conf.NoDb()
	if noDb != nil {
		no = *noDb
	}

	pipeline := buildPipeline(no)
	if err := pipeline.Validate(); err != nil {
		return "", err
	}

	prev := runState
	runState = &calib.State{
		RunID:        uuid.NewString(),
		Phase:        calib.PhaseSetup,
		StartedAt:    time.Now(),
		NoDb:         no,
		LastResult:   prev.LastResult,
		LastFinished: prev.LastFinished,
	}
	persistRunState()

	ctx, cancel := context.WithCancel(context.Background())
	runCancel = cancel

	sseHub.Publish(events.RunAction, events.RunActionEvent{
		Action:  string(calib.ActionStart),
		Message: fmt.Sprintf("Calibration run started at No=%.1f dB", no),
		Ts:      time.Now().Unix(),
	})

	pipeline.OnPhase = func(phase string) { setRunPhase(calib.Phase(phase)) }

	go executeRun(ctx, pipeline)

	return runState.RunID, nil
}

func executeRun(ctx context.Context, pipeline *chansim.Pipeline) {
	result, artifacts, err := executePipeline(ctx, pipeline, conf.KeepArtifacts())

	runMu.Lock()
	defer runMu.Unlock()
	runCancel = nil

	if err != nil {
		runState.LastError = err.Error()
		runState.WorkDir = artifacts.WorkDir
		transitionLocked(calib.PhaseError, err.Error())
		persistRunState()
		return
	}

	runState.LastResult = calib.NewRunResult(result)
	runState.LastFinished = time.Now()
	runState.LastError = ""
	runState.WorkDir = artifacts.WorkDir
	transitionLocked(calib.PhaseIdle, runOutcomeMessage(result))
	persistRunState()

	b, _ := json.Marshal(runState.LastResult)
	sseHub.Publish(events.RunResult, events.RunResultEvent{
		RunID:  runState.RunID,
		Passed: result.Passed(),
		Broken: result.Broken(),
		Result: b,
		Ts:     time.Now().Unix(),
	})

	logrus.WithFields(logrus.Fields{
		"runId":  runState.RunID,
		"passed": result.Passed(),
		"broken": result.Broken(),
	}).Info("calibration run finished")
}

func runOutcomeMessage(r verify.Result) string {
	switch {
	case r.Broken():
		return "calibration pipeline produced no usable output"
	case r.Passed():
		return "all gates passed"
	default:
		return "one or more gates failed"
	}
}

// setRunPhase records a phase transition and publishes it.
func setRunPhase(to calib.Phase) {
	runMu.Lock()
	defer runMu.Unlock()
	transitionLocked(to, "")
	persistRunState()
}

func transitionLocked(to calib.Phase, message string) {
	from := runState.Phase
	if from == to {
		return
	}
	runState.Phase = to

	logrus.WithFields(logrus.Fields{
		"runId": runState.RunID,
		"from":  from,
		"to":    to,
	}).Debug("run phase transition")

	sseHub.Publish(events.RunPhase, events.RunPhaseEvent{
		RunID:   runState.RunID,
		From:    string(from),
		To:      string(to),
		Message: message,
		Ts:      time.Now().Unix(),
	})
}

func cancelRun() error {
	runMu.Lock()
	defer runMu.Unlock()

	if runState.Phase == calib.PhaseIdle || runState.Phase == calib.PhaseError || runCancel == nil {
		return ErrRunNotActive
	}

	runCancel()

	sseHub.Publish(events.RunAction, events.RunActionEvent{
		Action:  string(calib.ActionCancel),
		Message: fmt.Sprintf("Calibration run canceled at phase %s", runState.Phase),
		Ts:      time.Now().Unix(),
	})
	return nil
}

func getRunStatus() *calib.Status {
	runMu.Lock()
	defer runMu.Unlock()

	st := runState
	running := st.Phase != calib.PhaseIdle && st.Phase != calib.PhaseError

	next, schedRunning := scheduler.Status()
	if !schedRunning {
		next = time.Time{}
	}

	return &calib.Status{
		Phase:        st.Phase,
		RunID:        st.RunID,
		StartedAt:    st.StartedAt,
		Running:      running,
		CanCancel:    running,
		Message:      st.LastError,
		LastResult:   st.LastResult,
		LastFinished: st.LastFinished,
		ScheduledAt:  next,
	}
}
