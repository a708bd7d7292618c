package daemon

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/turbogenius/internal/config"
	"github.com/harun/turbogenius/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = 0
	cfg.Gateway.ShutdownTimeout = time.Second
	return cfg
}

// createTestDaemon creates a daemon on an ephemeral port with a PID file in
// a temp dir
func createTestDaemon(t *testing.T, opts Options) *Daemon {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	if opts.PIDFile == "" {
		opts.PIDFile = filepath.Join(t.TempDir(), "turbogenius.pid")
	}

	d, err := New(testConfig(), log, opts)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := createTestDaemon(t, Options{})

	assert.NotNil(t, d.store)
	assert.NotNil(t, d.janitor)
	assert.NotNil(t, d.coordinator)
	assert.NotNil(t, d.titles)
	assert.NotNil(t, d.gatewayServer)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.watcher)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := testConfig()
	cfg.Engine.Template = "unknown"

	_, err = New(cfg, log, Options{})
	assert.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	d := createTestDaemon(t, Options{})

	require.NoError(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	require.NotEmpty(t, status.Addr)

	resp, err := http.Get("http://" + status.Addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = os.Stat(d.lifecycle.PIDFile())
	assert.NoError(t, err)

	require.NoError(t, d.Stop())

	status = d.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.Addr)

	_, err = os.Stat(d.lifecycle.PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t, Options{})

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, d.Start())
	defer d.Stop()

	d.GetStore().Create()
	time.Sleep(10 * time.Millisecond)

	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.Equal(t, 1, status.Sessions)
}

func TestDaemonDoubleStartStop(t *testing.T) {
	d := createTestDaemon(t, Options{})

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
}

func TestDaemonRefusesLivePIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "turbogenius.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getppid())), 0644))

	d := createTestDaemon(t, Options{PIDFile: pidFile})

	err := d.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance")
	assert.False(t, d.Status().Running)
}

func TestDaemonWaitStopsOnContext(t *testing.T) {
	d := createTestDaemon(t, Options{})
	require.NoError(t, d.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Wait(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.False(t, d.Status().Running)
}

func TestDaemonAppliesReloadedLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "turbogenius.json")
	d := createTestDaemon(t, Options{ConfigPath: path})
	require.NotNil(t, d.watcher)
	t.Cleanup(func() { _ = d.watcher.Stop() })

	reloaded := config.DefaultConfig()
	reloaded.Logging.Level = "warn"
	d.applyReload(reloaded)

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Equal(t, "warn", d.GetConfig().Logging.Level)
}
