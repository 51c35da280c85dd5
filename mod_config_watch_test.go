package grok

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestConfigWatcher_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	writeConfig(t, path, "log:\n  level: info\n")

	w, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	_, ok, err := w.Poll()
	assert.False(t, ok)
	assert.NoError(t, err)

	writeConfig(t, path, "log:\n  level: debug\n")

	var got Config
	require.Eventually(t, func() bool {
		cfg, ok, _ := w.Poll()
		if ok {
			got = cfg
		}
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "debug", got.Log.Level)
}

func TestConfigWatcher_ReportsParseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	writeConfig(t, path, "")

	w, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, path, "renderer:\n  backend: dx12\n")
	require.Eventually(t, func() bool {
		_, _, err := w.Poll()
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFilename)
	writeConfig(t, path, "")

	w, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, filepath.Join(dir, "other.yml"), "not: [valid")
	time.Sleep(100 * time.Millisecond)
	_, ok, err := w.Poll()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestConfigWatcher_CloseTwice(t *testing.T) {
	w, err := NewConfigWatcher(filepath.Join(t.TempDir(), ConfigFilename))
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestNewConfigWatcher_MissingDirectory(t *testing.T) {
	_, err := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", ConfigFilename))
	assert.Error(t, err)
}

func TestConfigWatchModule_AppliesClearColorAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	writeConfig(t, path, "")

	initial := DefaultConfig()
	initial.Log.Level = "debug"
	h := newRenderHarness(t, ConfigWatchModule{Path: path, Initial: initial})
	state := GetResource[configState](h.cmd)
	require.NotNil(t, state)

	writeConfig(t, path, "renderer:\n  clear_color: [1, 0, 0, 1]\nlog:\n  level: error\n")
	require.Eventually(t, func() bool {
		h.app.Step()
		return h.rd.Clear == [4]float32{1, 0, 0, 1}
	}, 5*time.Second, 10*time.Millisecond)

	dl, ok := h.app.Logger().(*DefaultLogger)
	require.True(t, ok)
	assert.Equal(t, log.ErrorLevel, dl.GetLevel())
	assert.Equal(t, "error", state.current.Log.Level)

	h.app.shutdown()
}

func TestConfigWatchModule_WarnsOnRestartSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	writeConfig(t, path, "")

	h := newRenderHarness(t, ConfigWatchModule{Path: path, Initial: DefaultConfig()})
	defer h.app.shutdown()

	writeConfig(t, path, "window:\n  title: renamed\n")
	state := GetResource[configState](h.cmd)
	require.Eventually(t, func() bool {
		h.app.Step()
		return state.current.Window.Title == "renamed"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, h.log.String(), "apply on restart")
}

func TestConfigWatchModule_MissingDirectory(t *testing.T) {
	h := newRenderHarness(t, ConfigWatchModule{Path: filepath.Join(t.TempDir(), "nope", "grok.yml")})

	assert.Nil(t, GetResource[configState](h.cmd))
	assert.Contains(t, h.log.String(), "edits will not be applied")
}
