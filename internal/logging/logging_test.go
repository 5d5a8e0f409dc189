package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/config"
)

func TestNewLevel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	assert.Equal(t, zerolog.WarnLevel, New(cfg).GetLevel())

	cfg.Log.Level = "nonsense"
	assert.Equal(t, zerolog.InfoLevel, New(cfg).GetLevel())
}

func TestNewWritesFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.File = filepath.Join(t.TempDir(), "host.log")

	logger := New(cfg)
	logger.Info().Msg("hello")

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestForRunner(t *testing.T) {
	var buf bytes.Buffer
	logger := ForRunner(zerolog.New(&buf), "demo")
	logger.Info().Msg("loaded")
	assert.Contains(t, buf.String(), `"runner":"demo"`)
}
