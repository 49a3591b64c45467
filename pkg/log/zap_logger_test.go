package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLoggerWritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	logger := NewZapLogger(Config{Format: "logfmt", Level: LevelDebug, Output: path})

	logger = logger.WithName("session").WithKV("chain", "0x1")
	logger.Info("connected", "accounts", 2)
	logger.Debug("snapshot applied")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "connected")
	assert.Contains(t, content, "session")
	assert.Contains(t, content, "chain=0x1")
	assert.Contains(t, content, "snapshot applied")
}

func TestZapLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	logger := NewZapLogger(Config{Format: "json", Level: LevelWarn, Output: path})

	logger.Info("hidden")
	logger.Warn("visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestZapLoggerName(t *testing.T) {
	t.Parallel()

	logger := NewZapLogger(Config{Output: filepath.Join(t.TempDir(), "out.log")})
	named := logger.WithName("provider").WithName("engine")
	assert.Equal(t, "provider.engine", named.Name())
	assert.Empty(t, logger.Name())
}

func TestNoopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNoopLogger()
	logger.Info("ignored", "key", "value")
	named := logger.WithName("x").WithKV("k", "v")
	assert.NotNil(t, named)
}
