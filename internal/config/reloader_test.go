package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloaderFileWatching(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0o644))

	var reloads atomic.Int32
	var lastLevel atomic.Value
	reloader, err := NewReloader(configPath, logger, func(cfg *Config) {
		lastLevel.Store(cfg.LogLevel)
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer reloader.Close()

	require.NoError(t, os.WriteFile(configPath, []byte("log_level: debug\n"), 0o644))

	deadline := time.After(3 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("reload callback never fired")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, "debug", lastLevel.Load())
}

func TestReloaderIgnoresInvalidConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0o644))

	var reloads atomic.Int32
	reloader, err := NewReloader(configPath, logger, func(cfg *Config) {
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer reloader.Close()

	// invalid log level fails validation, the callback must not fire
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: shouting\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestReloaderCloseIsIdempotent(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0o644))

	reloader, err := NewReloader(configPath, logger, func(cfg *Config) {})
	require.NoError(t, err)
	require.NoError(t, reloader.Close())
	require.NoError(t, reloader.Close())
}
