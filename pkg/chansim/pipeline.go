// Package chansim drives the external signal-processing tools that the
// calibration consumes as black boxes: the channel simulator that injects a
// known amount of noise, the receiver under test, and the feature-loss scorer.
// None of their algorithms are reimplemented here; only their command-line and
// log-line contracts are encoded.
package chansim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/metric"
	"github.com/cnocal/cnocal/pkg/sample"
	"github.com/cnocal/cnocal/pkg/verify"
)

// Headroom is the fixed gain applied to the transmit waveform before noise
// injection so the summed signal cannot clip.
const Headroom = 0.25

// Pipeline holds everything needed to run one calibration: tool locations,
// the noise set point, and gate thresholds.
type Pipeline struct {
	// ChannelSim, Receiver and LossScorer are paths to the external tools.
	ChannelSim string
	Receiver   string
	LossScorer string

	// TxWaveform is the clean transmit waveform (.f32) fed to the channel
	// simulator. TxFeatures is the feature file the loss scorer compares the
	// receiver output against.
	TxWaveform string
	TxFeatures string

	// NoDb is the injected noise power spectral density set point in dB.
	NoDb float64
	// FadingDir points the channel simulator at its fading sample files.
	FadingDir string
	// ExtraChannelArgs are forwarded verbatim to the channel simulator after
	// the harness-owned flags.
	ExtraChannelArgs []string

	ToleranceDb float64
	LossMax     float64

	// RunTimeout bounds every external process invocation.
	RunTimeout time.Duration

	// OnPhase, when set, is called at the start of each stage with one of
	// the calib phase names. The daemon uses it to publish progress.
	OnPhase func(phase string)
}

func (p *Pipeline) phase(name string) {
	if p.OnPhase != nil {
		p.OnPhase(name)
	}
}

// RunArtifacts records where a run's intermediate files and logs ended up,
// for diagnosis after a failure.
type RunArtifacts struct {
	WorkDir      string `json:"workDir"`
	ReferenceLog string `json:"-"`
	EstimateLog  string `json:"-"`
	LossLog      string `json:"-"`
}

// Run executes the full calibration: channel simulation, reception, loss
// scoring, then both gates. Every run gets its own scratch directory so the
// reference and the receiver never share mutable files; the directory is
// removed on all exit paths unless keepArtifacts is set.
func (p *Pipeline) Run(ctx context.Context, keepArtifacts bool) (result verify.Result, artifacts RunArtifacts, err error) {
	workDir, err := os.MkdirTemp("", "cnocal-run-")
	if err != nil {
		return verify.Result{}, RunArtifacts{}, pkgerrors.Wrap(err, "failed to create run directory")
	}
	artifacts = RunArtifacts{WorkDir: workDir}
	if !keepArtifacts {
		// Named returns: the defer must clear WorkDir on the value the caller
		// actually receives, or they would get a path to a deleted directory.
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				logrus.WithError(err).Warnf("failed to clean up run directory %s", workDir)
			}
			artifacts.WorkDir = ""
		}()
	}

	log := logrus.WithFields(logrus.Fields{
		"NodB":    p.NoDb,
		"workDir": workDir,
	})

	p.phase("Setup")
	stats, err := sample.ReadFloat32(p.TxWaveform)
	if err != nil {
		return verify.Result{}, artifacts, err
	}
	log.WithFields(logrus.Fields{
		"peak":   stats.Peak,
		"rms":    stats.RMS,
		"PAPRdB": stats.PAPRdB(),
	}).Info("transmit waveform measured")

	p.phase("ChannelSimulation")
	rxWaveform := filepath.Join(workDir, "rx.f32")
	refLog, err := p.runChannelSim(ctx, rxWaveform)
	artifacts.ReferenceLog = refLog
	if err != nil {
		return verify.Result{}, artifacts, err
	}

	p.phase("Reception")
	rxFeatures := filepath.Join(workDir, "features_rx.f32")
	estLog, err := p.runReceiver(ctx, rxWaveform, rxFeatures)
	artifacts.EstimateLog = estLog
	if err != nil {
		return verify.Result{}, artifacts, err
	}

	p.phase("LossScoring")
	lossLog, err := p.runLossScorer(ctx, rxFeatures)
	artifacts.LossLog = lossLog
	if err != nil {
		return verify.Result{}, artifacts, err
	}

	p.phase("Report")
	result = p.evaluate(refLog, estLog, lossLog)
	return result, artifacts, nil
}

// evaluate runs both gates over the captured logs. Extraction failures are
// carried per-gate so one gate never hides the other.
func (p *Pipeline) evaluate(refLog, estLog, lossLog string) verify.Result {
	r := verify.Result{}

	lossSample, err := metric.ExtractLoss(lossLog)
	if err != nil {
		r.LossErr = err
	} else {
		g := verify.CheckLossGate(lossSample.Value, p.LossMax)
		r.LossGate = &g
	}

	ref, refErr := metric.ExtractChannelSim(refLog)
	est, estErr := metric.ExtractReceiver(estLog)
	switch {
	case refErr != nil:
		r.CNoErr = refErr
	case estErr != nil:
		r.CNoErr = estErr
	default:
		v := verify.CompareMetrics(ref, est, p.ToleranceDb)
		r.CNoGate = &v
	}

	return r
}

func (p *Pipeline) runChannelSim(ctx context.Context, rxWaveform string) (string, error) {
	args := []string{
		p.TxWaveform, rxWaveform,
		"--gain", strconv.FormatFloat(Headroom, 'f', -1, 64),
		"--No", strconv.FormatFloat(p.NoDb, 'f', -1, 64),
		"--after_fade",
	}
	if p.FadingDir != "" {
		args = append(args, "--fading_dir", p.FadingDir)
	}
	args = append(args, p.ExtraChannelArgs...)

	out, err := runProcess(ctx, Invocation{
		Name:    p.ChannelSim,
		Args:    args,
		Dir:     filepath.Dir(rxWaveform),
		Timeout: p.RunTimeout,
	})
	if err != nil {
		return out, pkgerrors.Wrap(err, "channel simulator")
	}
	return out, nil
}

func (p *Pipeline) runReceiver(ctx context.Context, rxWaveform, rxFeatures string) (string, error) {
	out, err := runProcess(ctx, Invocation{
		Name:    p.Receiver,
		Args:    []string{rxWaveform, rxFeatures},
		Dir:     filepath.Dir(rxWaveform),
		Timeout: p.RunTimeout,
	})
	if err != nil {
		return out, pkgerrors.Wrap(err, "receiver")
	}
	return out, nil
}

func (p *Pipeline) runLossScorer(ctx context.Context, rxFeatures string) (string, error) {
	out, err := runProcess(ctx, Invocation{
		Name: p.LossScorer,
		Args: []string{
			p.TxFeatures, rxFeatures,
			"--loss_test", strconv.FormatFloat(p.LossMax, 'f', -1, 64),
		},
		Dir:     filepath.Dir(rxFeatures),
		Timeout: p.RunTimeout,
	})
	if err != nil {
		return out, pkgerrors.Wrap(err, "loss scorer")
	}
	return out, nil
}

// Validate checks the pipeline is runnable before any process is spawned.
func (p *Pipeline) Validate() error {
	for _, tool := range []struct {
		name string
		path string
	}{
		{"channel simulator", p.ChannelSim},
		{"receiver", p.Receiver},
		{"loss scorer", p.LossScorer},
	} {
		if tool.path == "" {
			return fmt.Errorf("%s path is not configured", tool.name)
		}
		if _, err := os.Stat(tool.path); err != nil {
			return pkgerrors.Wrapf(err, "%s not found at %s", tool.name, tool.path)
		}
	}
	if _, err := os.Stat(p.TxWaveform); err != nil {
		return pkgerrors.Wrapf(err, "transmit waveform not found at %s", p.TxWaveform)
	}
	if _, err := os.Stat(p.TxFeatures); err != nil {
		return pkgerrors.Wrapf(err, "transmit features not found at %s", p.TxFeatures)
	}
	return nil
}
