package client

import (
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDaemon serves the handler on a throwaway unix socket and returns a
// client dialed at it.
func newTestDaemon(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "cnocal.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)

	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return NewClient(sock)
}

func TestGetVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"0.3.0"`))
	})
	c := newTestDaemon(t, mux)

	version, err := c.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", version)
}

func TestGetVersionMalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"empty":    "",
		"one byte": `"`,
		"not json": "dev",
	} {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			c := newTestDaemon(t, mux)

			_, err := c.GetVersion()
			assert.Error(t, err)
		})
	}
}

func TestNotFoundMapsToErrNotFound(t *testing.T) {
	c := newTestDaemon(t, http.NotFoundHandler())

	_, err := c.Get("/last-result")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingSocketMapsToErrDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))

	_, err := c.Get("/version")
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}
