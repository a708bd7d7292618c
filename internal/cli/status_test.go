package cli

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("stopped without PID file", func(t *testing.T) {
		dir := t.TempDir()

		out, err := execute(t, "status",
			"--pid-file", filepath.Join(dir, "missing.pid"),
			"--config", filepath.Join(dir, "turbogenius.json"))
		require.NoError(t, err)

		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running with reachable gateway", func(t *testing.T) {
		gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sessions", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"id":1,"title":"New session"},{"id":2,"title":"Weather"}]`)
		}))
		defer gw.Close()

		host, port, err := net.SplitHostPort(gw.Listener.Addr().String())
		require.NoError(t, err)

		dir := t.TempDir()
		configPath := filepath.Join(dir, "turbogenius.json")
		require.NoError(t, os.WriteFile(configPath,
			[]byte(fmt.Sprintf(`{"gateway": {"host": %q, "port": %s}}`, host, port)), 0644))

		pidPath := filepath.Join(dir, "turbogenius.pid")
		require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644))

		out, err := execute(t, "status", "--pid-file", pidPath, "--config", configPath)
		require.NoError(t, err)

		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, fmt.Sprintf("PID: %d", os.Getpid()))
		assert.Contains(t, out, "Sessions: 2")
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5_000_000_000))
	assert.Equal(t, "2m3s", formatDuration(123_000_000_000))
	assert.Equal(t, "1h0m1s", formatDuration(3_601_000_000_000))
}
