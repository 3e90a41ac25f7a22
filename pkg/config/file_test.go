package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnocal/cnocal/pkg/utils/ptr"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, f.ToleranceDb())
	assert.Equal(t, 0.3, f.LossMax())
	assert.Equal(t, -20.0, f.NoDb())
	assert.Equal(t, 5*time.Minute, f.RunTimeout())
	assert.False(t, f.KeepArtifacts())
	assert.Empty(t, f.Cron())
	assert.False(t, f.AllowNonRootAccess())
}

func TestDefaultsWhenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.ToleranceDb())
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFile(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	f, err := NewFile(path)
	require.NoError(t, err)

	f.SetToleranceDb(0.5)
	f.SetLossMax(0.25)
	f.SetNoDb(-17)
	f.SetBuildDir("/opt/radae/build")
	f.SetFadingDir("/opt/radae/fading")
	f.SetRunTimeout(90 * time.Second)
	f.SetKeepArtifacts(true)
	f.SetCron("0 3 * * *")
	require.NoError(t, f.Save())

	g, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, g.ToleranceDb())
	assert.Equal(t, 0.25, g.LossMax())
	assert.Equal(t, -17.0, g.NoDb())
	assert.Equal(t, "/opt/radae/build", g.BuildDir())
	assert.Equal(t, "/opt/radae/fading", g.FadingDir())
	assert.Equal(t, 90*time.Second, g.RunTimeout())
	assert.True(t, g.KeepArtifacts())
	assert.Equal(t, "0 3 * * *", g.Cron())
}

func TestToolPathsResolveAgainstBuildDir(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		BuildDir: ptr.To("/opt/radae/build"),
	}, "")

	assert.Equal(t, "/opt/radae/build/src/ch", f.ChannelSimPath())
	assert.Equal(t, "/opt/radae/build/src/radae_rx", f.ReceiverPath())
	assert.Equal(t, "/opt/radae/build/src/loss_test", f.LossScorerPath())
}

func TestAbsoluteToolPathsPassThrough(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		BuildDir:   ptr.To("/opt/radae/build"),
		ChannelSim: ptr.To("/usr/local/bin/ch"),
	}, "")

	assert.Equal(t, "/usr/local/bin/ch", f.ChannelSimPath())
}

func TestSettersRejectNonPositiveThresholds(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{}, "")

	assert.Panics(t, func() { f.SetToleranceDb(0) })
	assert.Panics(t, func() { f.SetLossMax(-0.1) })
}

func TestRawFileConfigSnapshot(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		ToleranceDb: ptr.To(0.7),
		BuildDir:    ptr.To("/b"),
	}, "")

	raw, err := NewRawFileConfigFromConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 0.7, *raw.ToleranceDb)
	assert.Equal(t, "/b", *raw.BuildDir)
	// Tool paths come back resolved.
	assert.Equal(t, "/b/src/ch", *raw.ChannelSim)
}
