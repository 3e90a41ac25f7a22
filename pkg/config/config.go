package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the harness configuration shared by the daemon and one-shot runs.
type Config interface {
	ToleranceDb() float64
	LossMax() float64
	NoDb() float64
	BuildDir() string
	ChannelSimPath() string
	ReceiverPath() string
	LossScorerPath() string
	TxWaveform() string
	TxFeatures() string
	FadingDir() string
	RunTimeout() time.Duration
	KeepArtifacts() bool
	Cron() string
	AllowNonRootAccess() bool

	SetToleranceDb(float64)
	SetLossMax(float64)
	SetNoDb(float64)
	SetBuildDir(string)
	SetTxWaveform(string)
	SetTxFeatures(string)
	SetFadingDir(string)
	SetRunTimeout(time.Duration)
	SetKeepArtifacts(bool)
	SetCron(string)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
