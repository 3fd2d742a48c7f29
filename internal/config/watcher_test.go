package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	writeConfig := func(t *testing.T, path, model string) {
		t.Helper()
		body := `{"agent": {"model": "` + model + `"}, "data_dir": "` + filepath.Dir(path) + `"}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}

	t.Run("should reload config on file change", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "opschat.json")
		writeConfig(t, path, "gpt-4o")

		loader := NewLoader(path)
		initial, err := loader.Load()
		require.NoError(t, err)

		var reloads atomic.Int32
		w, err := NewWatcher(loader, initial, zerolog.Nop(), func(*Config) {
			reloads.Add(1)
		})
		require.NoError(t, err)
		defer w.Stop()

		writeConfig(t, path, "gpt-4o-mini")

		require.Eventually(t, func() bool {
			return w.Current().Agent.Model == "gpt-4o-mini"
		}, 5*time.Second, 50*time.Millisecond)
		assert.GreaterOrEqual(t, reloads.Load(), int32(1))
	})

	t.Run("should keep previous config when reload fails validation", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "opschat.json")
		writeConfig(t, path, "gpt-4o")

		loader := NewLoader(path)
		initial, err := loader.Load()
		require.NoError(t, err)

		w, err := NewWatcher(loader, initial, zerolog.Nop(), nil)
		require.NoError(t, err)
		defer w.Stop()

		// Empty model fails validation
		writeConfig(t, path, "")

		time.Sleep(1 * time.Second)
		assert.Equal(t, "gpt-4o", w.Current().Agent.Model)
	})
}
