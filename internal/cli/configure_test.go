package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldan/opschat/internal/config"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"configure", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "configuration file")

		// pflag values persist on the shared command between Execute
		// calls; clear the sticky help flag so later runs reach RunE.
		require.NoError(t, configureCmd.Flags().Set("help", "false"))
	})

	t.Run("writes an engine profile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "opschat.json")

		cmd := GetRootCmd()
		cmd.SetArgs([]string{
			"configure",
			"--config", path,
			"--provider", "openai",
			"--api-key", "sk-test-key",
			"--model", "gpt-4o",
			"--metrics-url", "http://metrics.internal:8080",
		})
		cmd.SetOut(&bytes.Buffer{})

		err := cmd.Execute()
		require.NoError(t, err)

		cfg, err := config.NewLoader(path).Load()
		require.NoError(t, err)
		require.Len(t, cfg.Engine.Profiles, 1)
		assert.Equal(t, "openai", cfg.Engine.Profiles[0].Provider)
		assert.Equal(t, "gpt-4o", cfg.Agent.Model)
		assert.Equal(t, "http://metrics.internal:8080", cfg.Tools.MetricsServiceURL)
	})

	t.Run("rejects api key without provider", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "opschat.json")

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"configure", "--config", path, "--api-key", "sk-test-key", "--provider", ""})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})

		err := cmd.Execute()
		assert.Error(t, err)
	})
}
