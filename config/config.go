/*
Package config loads server configuration.

SOURCES (later wins):
  1. built-in defaults
  2. optional YAML/JSON file passed to Load
  3. ALLOWANCE_* environment variables, after an optional .env is loaded

  Nested keys map to variables with "." replaced by "_":
  database.driver -> ALLOWANCE_DATABASE_DRIVER.

EXAMPLE (.env):
  ALLOWANCE_SERVER_PORT=8080
  ALLOWANCE_DATABASE_DRIVER=postgres
  ALLOWANCE_DATABASE_DSN=host=db user=hr dbname=allowance sslmode=disable
  ALLOWANCE_ENGINE_LOOK_BACK_MONTHS=6
  ALLOWANCE_RUNNER_ENABLED=true
  ALLOWANCE_RUNNER_INTERVAL=30m
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "ALLOWANCE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Demo     DemoConfig     `mapstructure:"demo"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"` // debug | release
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite | postgres | mysql
	Path         string `mapstructure:"path"`   // sqlite file
	DSN          string `mapstructure:"dsn"`    // postgres / mysql
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type EngineConfig struct {
	LookBackMonths   int      `mapstructure:"look_back_months"`
	LifetimeKeywords []string `mapstructure:"lifetime_keywords"`
	RulesFile        string   `mapstructure:"rules_file"`
}

type RunnerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type DemoConfig struct {
	Seed bool `mapstructure:"seed"` // load the demo scenario at start-up
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/allowance.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_sql", false)

	v.SetDefault("engine.look_back_months", 6)
	v.SetDefault("engine.lifetime_keywords", []string{})
	v.SetDefault("engine.rules_file", "")

	v.SetDefault("runner.enabled", false)
	v.SetDefault("runner.interval", time.Hour)

	v.SetDefault("demo.seed", false)
}

// Load reads configuration. path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q: must be sqlite, postgres or mysql", c.Database.Driver)
	}
	if c.Engine.LookBackMonths < 1 || c.Engine.LookBackMonths > 120 {
		return fmt.Errorf("engine.look_back_months %d: must be between 1 and 120", c.Engine.LookBackMonths)
	}
	if c.Runner.Enabled && c.Runner.Interval <= 0 {
		return errors.New("runner.interval must be positive when the runner is enabled")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
