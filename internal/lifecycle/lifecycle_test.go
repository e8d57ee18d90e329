package lifecycle_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flagExists(t *testing.T, dir, name string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, name))
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err))
	return false
}

func TestSignaler_FlagSequence(t *testing.T) {
	dir := t.TempDir()
	s := lifecycle.New(dir, discardLogger())

	require.NoError(t, s.Initializing())
	assert.True(t, flagExists(t, dir, lifecycle.FlagInitializing))

	require.NoError(t, s.Ready())
	assert.False(t, flagExists(t, dir, lifecycle.FlagInitializing))
	assert.True(t, flagExists(t, dir, lifecycle.FlagReady))

	require.NoError(t, s.Stopping())
	assert.False(t, flagExists(t, dir, lifecycle.FlagReady))
	assert.True(t, flagExists(t, dir, lifecycle.FlagStopping))

	s.Stopped()
	assert.False(t, flagExists(t, dir, lifecycle.FlagStopping))
}

func TestSignaler_FlagContent(t *testing.T) {
	dir := t.TempDir()
	s := lifecycle.New(dir, discardLogger())

	require.NoError(t, s.Initializing())

	content, err := os.ReadFile(filepath.Join(dir, lifecycle.FlagInitializing))
	require.NoError(t, err)
	assert.Contains(t, string(content), "pid="+strconv.Itoa(os.Getpid()))
	assert.Contains(t, string(content), "at=")
}

func TestSignaler_ClearsStaleFlags(t *testing.T) {
	dir := t.TempDir()
	// A crashed predecessor left its ready flag behind.
	require.NoError(t, os.WriteFile(filepath.Join(dir, lifecycle.FlagReady), []byte("stale"), 0o644))

	s := lifecycle.New(dir, discardLogger())
	require.NoError(t, s.Initializing())

	assert.False(t, flagExists(t, dir, lifecycle.FlagReady))
	assert.True(t, flagExists(t, dir, lifecycle.FlagInitializing))
}

func TestSignaler_DisabledWithoutDir(t *testing.T) {
	s := lifecycle.New("", discardLogger())

	require.NoError(t, s.Initializing())
	require.NoError(t, s.Ready())
	require.NoError(t, s.Stopping())
	s.Stopped()
}

func TestSignaler_CreatesFlagDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flags")
	s := lifecycle.New(dir, discardLogger())

	require.NoError(t, s.Initializing())
	assert.True(t, flagExists(t, dir, lifecycle.FlagInitializing))
}
