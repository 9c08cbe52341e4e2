package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("encoders", func(t *testing.T) {
		_, err := New(Config{Encoder: "console"})
		assert.NoError(t, err)

		_, err = New(Config{Encoder: "json"})
		assert.NoError(t, err)

		_, err = New(Config{Encoder: "steve"})
		assert.EqualError(t, err, `"steve" is an invalid encoder`)
	})

	validLevels := []string{"debug", "info", "warn", "error"}

	t.Run("log_levels", func(t *testing.T) {
		for _, level := range validLevels {
			_, err := New(Config{Level: level})
			assert.NoError(t, err)
		}

		_, err := New(Config{Level: "steve"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "steve")
	})

	t.Run("logfile", func(t *testing.T) {
		fp := filepath.Join(t.TempDir(), "runner.json")
		log, err := New(Config{Logfile: fp})
		require.NoError(t, err)

		log.Info("hello steve")

		bs, err := os.ReadFile(fp)
		require.NoError(t, err)
		assert.Contains(t, string(bs), `"msg":"hello steve"`)
	})

	t.Run("default_level_is_info", func(t *testing.T) {
		_, err := New(Config{})
		assert.NoError(t, err)

		lvl, err := parseLevel("")
		require.NoError(t, err)
		assert.True(t, lvl.Enabled(zapcore.InfoLevel))
		assert.False(t, lvl.Enabled(zapcore.DebugLevel))
	})
}
