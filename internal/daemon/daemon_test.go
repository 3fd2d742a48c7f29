package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldan/opschat/internal/config"
	"github.com/aldan/opschat/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Engine.Profiles = []config.EngineProfile{
		{ID: "test", Provider: "openai", APIKey: "sk-test"},
	}
	cfg.Tools.MetricsServiceURL = "http://metrics.local"
	cfg.Tools.DashboardServiceURL = "http://dash.local"
	cfg.Admin.Enabled = false
	cfg.Logging.Console = false
	cfg.Logging.File = filepath.Join(cfg.DataDir, "opschat.log")
	return cfg
}

func setupDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := testConfig(t)
	log, err := logger.New(logger.Config{Level: "error", File: cfg.Logging.File})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	t.Run("should wire all modules", func(t *testing.T) {
		d := setupDaemon(t)

		assert.NotNil(t, d.store)
		assert.NotNil(t, d.cache)
		assert.NotNil(t, d.registry)
		assert.NotNil(t, d.queue)
		assert.NotNil(t, d.orchestrator)
		assert.Equal(t, "openai", d.engineClient.Provider())
	})

	t.Run("should register ops tools from collaborator config", func(t *testing.T) {
		d := setupDaemon(t)
		assert.ElementsMatch(t,
			[]string{"query_metrics", "service_health", "generate_dashboard"},
			d.registry.Names())
	})

	t.Run("should fail without engine profiles", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Profiles = nil
		log, err := logger.New(logger.Config{Level: "error", File: filepath.Join(cfg.DataDir, "opschat.log")})
		require.NoError(t, err)
		defer log.Close()

		_, err = New(cfg, log)
		assert.Error(t, err)
	})

	t.Run("should fail when the default profile is unknown", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Default = "missing"
		log, err := logger.New(logger.Config{Level: "error", File: filepath.Join(cfg.DataDir, "opschat.log")})
		require.NoError(t, err)
		defer log.Close()

		_, err = New(cfg, log)
		assert.Error(t, err)
	})

	t.Run("should skip the cache when disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Enabled = false
		log, err := logger.New(logger.Config{Level: "error", File: filepath.Join(cfg.DataDir, "opschat.log")})
		require.NoError(t, err)
		defer log.Close()

		d, err := New(cfg, log)
		require.NoError(t, err)
		assert.Nil(t, d.cache)
	})
}

func TestDaemonStatus(t *testing.T) {
	t.Run("should report not running before start", func(t *testing.T) {
		d := setupDaemon(t)
		status := d.Status()

		assert.False(t, status.Running)
		assert.Zero(t, status.Uptime)
		assert.Equal(t, os.Getpid(), status.PID)
		assert.Equal(t, "openai", status.Provider)
	})

	t.Run("should report running with uptime after start", func(t *testing.T) {
		d := setupDaemon(t)
		require.NoError(t, d.Start())
		defer d.Stop()

		status := d.Status()
		assert.True(t, status.Running)
	})
}

func TestDaemonLifecycle(t *testing.T) {
	t.Run("should write and remove the pid file", func(t *testing.T) {
		d := setupDaemon(t)
		require.NoError(t, d.Start())

		pidFile := d.lifecycle.PIDFile()
		data, err := os.ReadFile(pidFile)
		require.NoError(t, err)
		pid, err := strconv.Atoi(string(data))
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)

		require.NoError(t, d.Stop())
		_, err = os.Stat(pidFile)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should reject a second start", func(t *testing.T) {
		d := setupDaemon(t)
		require.NoError(t, d.Start())
		defer d.Stop()

		assert.Error(t, d.Start())
	})

	t.Run("should tolerate stop without start", func(t *testing.T) {
		d := setupDaemon(t)
		assert.NoError(t, d.Stop())
	})
}
