package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/allowance-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 6, cfg.Engine.LookBackMonths)
	assert.False(t, cfg.Runner.Enabled)
	assert.Equal(t, time.Hour, cfg.Runner.Interval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ALLOWANCE_SERVER_PORT", "9090")
	t.Setenv("ALLOWANCE_DATABASE_DRIVER", "postgres")
	t.Setenv("ALLOWANCE_DATABASE_DSN", "host=localhost dbname=allowance")
	t.Setenv("ALLOWANCE_ENGINE_LOOK_BACK_MONTHS", "12")
	t.Setenv("ALLOWANCE_ENGINE_LIFETIME_KEYWORDS", "midwife,dentist")
	t.Setenv("ALLOWANCE_RUNNER_ENABLED", "true")
	t.Setenv("ALLOWANCE_RUNNER_INTERVAL", "30m")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost dbname=allowance", cfg.Database.DSN)
	assert.Equal(t, 12, cfg.Engine.LookBackMonths)
	assert.Equal(t, []string{"midwife", "dentist"}, cfg.Engine.LifetimeKeywords)
	assert.True(t, cfg.Runner.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Runner.Interval)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
engine:
  look_back_months: 3
  rules_file: /etc/allowance/rules.json
`), 0o600))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Engine.LookBackMonths)
	assert.Equal(t, "/etc/allowance/rules.json", cfg.Engine.RulesFile)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("dsn required", func(t *testing.T) {
		t.Setenv("ALLOWANCE_DATABASE_DRIVER", "mysql")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "database.dsn")
	})
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("ALLOWANCE_DATABASE_DRIVER", "oracle")
		_, err := config.Load("")
		assert.Error(t, err)
	})
	t.Run("look back", func(t *testing.T) {
		t.Setenv("ALLOWANCE_ENGINE_LOOK_BACK_MONTHS", "0")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "look_back_months")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
