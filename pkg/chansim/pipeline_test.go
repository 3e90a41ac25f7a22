package chansim

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTools substitutes runProcess with canned per-tool outputs, mirroring the
// seam-injection style used for the daemon workflow tests.
type fakeTools struct {
	chOut   string
	chErr   error
	rxOut   string
	rxErr   error
	lossOut string
	lossErr error

	invocations []Invocation
}

func (f *fakeTools) inject(t *testing.T, p *Pipeline) {
	t.Helper()
	orig := runProcess
	runProcess = func(_ context.Context, inv Invocation) (string, error) {
		f.invocations = append(f.invocations, inv)
		switch inv.Name {
		case p.ChannelSim:
			return f.chOut, f.chErr
		case p.Receiver:
			return f.rxOut, f.rxErr
		case p.LossScorer:
			return f.lossOut, f.lossErr
		}
		return "", pkgerrors.Errorf("unexpected tool %s", inv.Name)
	}
	t.Cleanup(func() { runProcess = orig })
}

func writeTxWaveform(t *testing.T) string {
	t.Helper()
	samples := []float32{0.5, -0.25, 0.125}
	b := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(s))
	}
	path := filepath.Join(t.TempDir(), "tx.f32")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return &Pipeline{
		ChannelSim:  "ch",
		Receiver:    "radae_rx",
		LossScorer:  "loss_test",
		TxWaveform:  writeTxWaveform(t),
		TxFeatures:  "features_in.f32",
		NoDb:        -20,
		FadingDir:   "/tmp/fading",
		ToleranceDb: 1.0,
		LossMax:     0.3,
	}
}

func TestPipelineRunAllGatesPass(t *testing.T) {
	p := testPipeline(t)
	fake := &fakeTools{
		chOut:   "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n",
		rxOut:   "Measured: -20.50 EbNodB: 3.1\n",
		lossOut: "loss: 0.250 PASS\n",
	}
	fake.inject(t, p)

	result, artifacts, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Equal(t, 0, result.ExitCode())

	// Scratch dir is cleaned up when artifacts are not kept.
	assert.Empty(t, artifacts.WorkDir)

	require.Len(t, fake.invocations, 3)
	chArgs := strings.Join(fake.invocations[0].Args, " ")
	assert.Contains(t, chArgs, "--gain 0.25")
	assert.Contains(t, chArgs, "--No -20")
	assert.Contains(t, chArgs, "--after_fade")
	assert.Contains(t, chArgs, "--fading_dir /tmp/fading")
}

func TestPipelineForwardsExtraChannelArgs(t *testing.T) {
	p := testPipeline(t)
	p.ExtraChannelArgs = []string{"--mpp", "--fast"}
	fake := &fakeTools{
		chOut:   "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n",
		rxOut:   "Measured: -20.00\n",
		lossOut: "loss: 0.1\n",
	}
	fake.inject(t, p)

	_, _, err := p.Run(context.Background(), false)
	require.NoError(t, err)
	args := fake.invocations[0].Args
	assert.Equal(t, []string{"--mpp", "--fast"}, args[len(args)-2:])
}

func TestPipelineRunKeepsArtifacts(t *testing.T) {
	p := testPipeline(t)
	fake := &fakeTools{
		chOut:   "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n",
		rxOut:   "Measured: -20.00\n",
		lossOut: "loss: 0.1\n",
	}
	fake.inject(t, p)

	_, artifacts, err := p.Run(context.Background(), true)
	require.NoError(t, err)
	require.NotEmpty(t, artifacts.WorkDir)
	defer os.RemoveAll(artifacts.WorkDir)

	_, statErr := os.Stat(artifacts.WorkDir)
	assert.NoError(t, statErr)
	assert.Contains(t, artifacts.ReferenceLog, "C/No")
}

func TestPipelineProcessFailureSurfacedBeforeExtraction(t *testing.T) {
	p := testPipeline(t)
	fake := &fakeTools{
		// The simulator crashes; its partial output even contains a C/No
		// line, which must not be scraped.
		chOut: "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\nsegfault\n",
		chErr: pkgerrors.Wrap(ErrProcessFailed, "ch: exit status 139"),
	}
	fake.inject(t, p)

	_, _, err := p.Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, ErrProcessFailed))
	// Only the simulator ran; the receiver and scorer were never spawned.
	assert.Len(t, fake.invocations, 1)
}

func TestPipelineTimeoutKindIsDistinct(t *testing.T) {
	p := testPipeline(t)
	fake := &fakeTools{
		chOut: "ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n",
		rxErr: pkgerrors.Wrap(ErrTimeout, "radae_rx after 30s"),
	}
	fake.inject(t, p)

	_, _, err := p.Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, ErrTimeout))
	assert.False(t, pkgerrors.Is(err, ErrProcessFailed))
}

func TestPipelineEvaluateGateIndependence(t *testing.T) {
	p := testPipeline(t)

	// Loss output unusable, C/No gates fine: the C/No verdict must still be
	// produced, and the loss error reported distinctly.
	r := p.evaluate(
		"ch: SNR3k(dB): -22.00 C/No(dB): -20.00\n",
		"Measured: -21.20\n",
		"no loss line here\n")

	require.NotNil(t, r.CNoGate)
	assert.False(t, r.CNoGate.Passed)
	assert.InDelta(t, 1.2, r.CNoGate.AbsoluteError, 1e-9)
	assert.Error(t, r.LossErr)
	assert.Nil(t, r.LossGate)
	assert.True(t, r.Broken())
}

func TestPipelineValidate(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0755))
		return path
	}

	p := &Pipeline{
		ChannelSim: touch("ch"),
		Receiver:   touch("rx"),
		LossScorer: touch("loss"),
		TxWaveform: touch("tx.f32"),
		TxFeatures: touch("features.f32"),
	}
	assert.NoError(t, p.Validate())

	p.Receiver = filepath.Join(dir, "missing")
	assert.Error(t, p.Validate())
}
