package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/utils/ptr"
)

var defaultFileConfig = &RawFileConfig{
	ToleranceDb:       ptr.To(1.0),
	LossMax:           ptr.To(0.3),
	NoDb:              ptr.To(-20.0),
	BuildDir:          ptr.To(""),
	ChannelSim:        ptr.To("src/ch"),
	Receiver:          ptr.To("src/radae_rx"),
	LossScorer:        ptr.To("src/loss_test"),
	TxWaveform:        ptr.To("tx.f32"),
	TxFeatures:        ptr.To("features_in.f32"),
	FadingDir:         ptr.To(""),
	RunTimeoutSeconds: ptr.To(300),
	KeepArtifacts:     ptr.To(false),
	Cron:              ptr.To(""),
	// The daemon socket is root-owned; opt in explicitly to widen access.
	AllowNonRootAccess: ptr.To(false),
}

// RawFileConfig is the JSON on-disk form. Pointer fields distinguish "unset,
// use the default" from an explicit zero.
type RawFileConfig struct {
	ToleranceDb        *float64 `json:"toleranceDb,omitempty"`
	LossMax            *float64 `json:"lossMax,omitempty"`
	NoDb               *float64 `json:"NodB,omitempty"`
	BuildDir           *string  `json:"buildDir,omitempty"`
	ChannelSim         *string  `json:"channelSim,omitempty"`
	Receiver           *string  `json:"receiver,omitempty"`
	LossScorer         *string  `json:"lossScorer,omitempty"`
	TxWaveform         *string  `json:"txWaveform,omitempty"`
	TxFeatures         *string  `json:"txFeatures,omitempty"`
	FadingDir          *string  `json:"fadingDir,omitempty"`
	RunTimeoutSeconds  *int     `json:"runTimeoutSeconds,omitempty"`
	KeepArtifacts      *bool    `json:"keepArtifacts,omitempty"`
	Cron               *string  `json:"cron,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
}

var _ Config = &File{}

// File is a Config backed by a JSON file.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}
	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// NewRawFileConfigFromConfig snapshots any Config into its on-disk form, for
// returning over the API.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}
	secs := int(c.RunTimeout() / time.Second)
	return &RawFileConfig{
		ToleranceDb:        ptr.To(c.ToleranceDb()),
		LossMax:            ptr.To(c.LossMax()),
		NoDb:               ptr.To(c.NoDb()),
		BuildDir:           ptr.To(c.BuildDir()),
		ChannelSim:         ptr.To(c.ChannelSimPath()),
		Receiver:           ptr.To(c.ReceiverPath()),
		LossScorer:         ptr.To(c.LossScorerPath()),
		TxWaveform:         ptr.To(c.TxWaveform()),
		TxFeatures:         ptr.To(c.TxFeatures()),
		FadingDir:          ptr.To(c.FadingDir()),
		RunTimeoutSeconds:  ptr.To(secs),
		KeepArtifacts:      ptr.To(c.KeepArtifacts()),
		Cron:               ptr.To(c.Cron()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}, nil
}

func value[T any](field, def *T) T {
	if field != nil {
		return *field
	}
	return *def
}

func (f *File) get(read func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	read(f.c)
}

func (f *File) set(write func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	write(f.c)
}

func (f *File) ToleranceDb() (v float64) {
	f.get(func(c *RawFileConfig) { v = value(c.ToleranceDb, defaultFileConfig.ToleranceDb) })
	return
}

func (f *File) LossMax() (v float64) {
	f.get(func(c *RawFileConfig) { v = value(c.LossMax, defaultFileConfig.LossMax) })
	return
}

func (f *File) NoDb() (v float64) {
	f.get(func(c *RawFileConfig) { v = value(c.NoDb, defaultFileConfig.NoDb) })
	return
}

func (f *File) BuildDir() (v string) {
	f.get(func(c *RawFileConfig) { v = value(c.BuildDir, defaultFileConfig.BuildDir) })
	return
}

// ChannelSimPath resolves the channel simulator path, joining relative paths
// onto the build dir.
func (f *File) ChannelSimPath() string {
	var p string
	f.get(func(c *RawFileConfig) { p = value(c.ChannelSim, defaultFileConfig.ChannelSim) })
	return f.resolve(p)
}

// ReceiverPath resolves the receiver path.
func (f *File) ReceiverPath() string {
	var p string
	f.get(func(c *RawFileConfig) { p = value(c.Receiver, defaultFileConfig.Receiver) })
	return f.resolve(p)
}

// LossScorerPath resolves the loss scorer path.
func (f *File) LossScorerPath() string {
	var p string
	f.get(func(c *RawFileConfig) { p = value(c.LossScorer, defaultFileConfig.LossScorer) })
	return f.resolve(p)
}

func (f *File) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.BuildDir(), p)
}

func (f *File) TxWaveform() (v string) {
	f.get(func(c *RawFileConfig) { v = value(c.TxWaveform, defaultFileConfig.TxWaveform) })
	return
}

func (f *File) TxFeatures() (v string) {
	f.get(func(c *RawFileConfig) { v = value(c.TxFeatures, defaultFileConfig.TxFeatures) })
	return
}

func (f *File) FadingDir() (v string) {
	f.get(func(c *RawFileConfig) { v = value(c.FadingDir, defaultFileConfig.FadingDir) })
	return
}

func (f *File) RunTimeout() time.Duration {
	var secs int
	f.get(func(c *RawFileConfig) { secs = value(c.RunTimeoutSeconds, defaultFileConfig.RunTimeoutSeconds) })
	return time.Duration(secs) * time.Second
}

func (f *File) KeepArtifacts() (v bool) {
	f.get(func(c *RawFileConfig) { v = value(c.KeepArtifacts, defaultFileConfig.KeepArtifacts) })
	return
}

func (f *File) Cron() (v string) {
	f.get(func(c *RawFileConfig) { v = value(c.Cron, defaultFileConfig.Cron) })
	return
}

func (f *File) AllowNonRootAccess() (v bool) {
	f.get(func(c *RawFileConfig) { v = value(c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess) })
	return
}

func (f *File) SetToleranceDb(v float64) {
	if v <= 0 {
		panic("tolerance must be positive")
	}
	f.set(func(c *RawFileConfig) { c.ToleranceDb = &v })
}

func (f *File) SetLossMax(v float64) {
	if v <= 0 {
		panic("loss maximum must be positive")
	}
	f.set(func(c *RawFileConfig) { c.LossMax = &v })
}

func (f *File) SetNoDb(v float64) {
	f.set(func(c *RawFileConfig) { c.NoDb = &v })
}

func (f *File) SetBuildDir(v string) {
	f.set(func(c *RawFileConfig) { c.BuildDir = &v })
}

func (f *File) SetTxWaveform(v string) {
	f.set(func(c *RawFileConfig) { c.TxWaveform = &v })
}

func (f *File) SetTxFeatures(v string) {
	f.set(func(c *RawFileConfig) { c.TxFeatures = &v })
}

func (f *File) SetFadingDir(v string) {
	f.set(func(c *RawFileConfig) { c.FadingDir = &v })
}

func (f *File) SetRunTimeout(d time.Duration) {
	secs := int(d / time.Second)
	f.set(func(c *RawFileConfig) { c.RunTimeoutSeconds = &secs })
}

func (f *File) SetKeepArtifacts(v bool) {
	f.set(func(c *RawFileConfig) { c.KeepArtifacts = &v })
}

func (f *File) SetCron(v string) {
	f.set(func(c *RawFileConfig) { c.Cron = &v })
}

func (f *File) SetAllowNonRootAccess(v bool) {
	f.set(func(c *RawFileConfig) { c.AllowNonRootAccess = &v })
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if err := json.Unmarshal(b, &conf); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.c); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"toleranceDb":   f.ToleranceDb(),
		"lossMax":       f.LossMax(),
		"NodB":          f.NoDb(),
		"buildDir":      f.BuildDir(),
		"fadingDir":     f.FadingDir(),
		"runTimeout":    f.RunTimeout().String(),
		"keepArtifacts": f.KeepArtifacts(),
		"cron":          f.Cron(),
	}
}
