package chansim

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrProcessFailed is returned when an external tool exits non-zero.
	// Metric extraction from a crashed process's output is meaningless, so
	// this is surfaced before any scraping is attempted.
	ErrProcessFailed = errors.New("external process failed")

	// ErrTimeout is returned when an external tool exceeds its run timeout.
	ErrTimeout = errors.New("external process timed out")
)

// Invocation describes one external tool run.
type Invocation struct {
	Name    string   // tool binary path
	Args    []string
	Dir     string        // working directory (the run's scratch dir)
	Timeout time.Duration // zero means no timeout
}

// runProcess executes the invocation and returns its combined stdout+stderr.
// It is a package-level function var so workflow tests can substitute fake
// tools.
var runProcess = runProcessReal

func runProcessReal(ctx context.Context, inv Invocation) (string, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logrus.WithFields(logrus.Fields{
		"tool": inv.Name,
		"args": inv.Args,
		"dir":  inv.Dir,
	}).Debug("running external tool")

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	if ctx.Err() == context.DeadlineExceeded {
		return out.String(), pkgerrors.Wrapf(ErrTimeout, "%s after %s", inv.Name, elapsed)
	}
	if err != nil {
		return out.String(), pkgerrors.Wrapf(ErrProcessFailed, "%s: %v", inv.Name, err)
	}

	logrus.WithFields(logrus.Fields{
		"tool":    inv.Name,
		"elapsed": elapsed,
	}).Debug("external tool finished")

	return out.String(), nil
}
