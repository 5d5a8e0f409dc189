package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		os.Remove("config.yml")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "./mango-runner.db", cfg.Database.Path)
		assert.Equal(t, "./runners", cfg.Runners.Path)
		assert.True(t, cfg.Runners.Watch)
		assert.Equal(t, 30, cfg.Network.Timeout)
		assert.Equal(t, 360, cfg.Updates.Interval)
		assert.Equal(t, 4, cfg.Updates.Concurrency)
		assert.Equal(t, []string{"reading", "planned"}, cfg.Updates.ValidFlags)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("Loads from config file", func(t *testing.T) {
		configContent := `
port: 9999
database:
  path: "/tmp/test.db"
runners:
  path: "/tmp/runners"
  watch: false
updates:
  skip_conditions: ["has_unread", "no_markers"]
unknown_setting: "should be ignored"
`
		// Viper looks in the CWD, so t.TempDir() is not used here.
		configPath := "config.yml"
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
		defer os.Remove(configPath)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9999, cfg.Port)
		assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
		assert.Equal(t, "/tmp/runners", cfg.Runners.Path)
		assert.False(t, cfg.Runners.Watch)
		assert.Equal(t, []string{"has_unread", "no_markers"}, cfg.Updates.SkipConditions)
		assert.Equal(t, 360, cfg.Updates.Interval)
	})

	t.Run("Environment overrides", func(t *testing.T) {
		os.Remove("config.yml")
		t.Setenv("MANGO_NETWORK_TIMEOUT", "5")
		t.Setenv("MANGO_BROWSER_DEVTOOLS_URL", "http://127.0.0.1:9222")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Network.Timeout)
		assert.Equal(t, "http://127.0.0.1:9222", cfg.Browser.DevToolsURL)
	})
}
