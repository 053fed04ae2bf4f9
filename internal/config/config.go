// Package config loads growth configuration from an optional YAML file,
// a .env file and GROWTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/roach88/growth/internal/level"
)

// EnvPrefix prefixes every environment override, e.g. GROWTH_REMOTE_URL.
const EnvPrefix = "GROWTH"

// Config is the full growth configuration.
type Config struct {
	UserID            string           `mapstructure:"user_id" yaml:"user_id"`
	CachePath         string           `mapstructure:"cache_path" yaml:"cache_path"`
	DailyCeiling      int              `mapstructure:"daily_ceiling" yaml:"daily_ceiling"`
	RetentionDays     int              `mapstructure:"retention_days" yaml:"retention_days"`
	LevelTable        string           `mapstructure:"level_table" yaml:"level_table"`
	Tables            map[string][]int `mapstructure:"tables" yaml:"tables,omitempty"`
	RepeatableSources []string         `mapstructure:"repeatable_sources" yaml:"repeatable_sources,omitempty"`
	Remote            RemoteConfig     `mapstructure:"remote" yaml:"remote"`
	Server            ServerConfig     `mapstructure:"server" yaml:"server"`
	Logging           LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// RemoteConfig locates the progress document service. An empty URL runs
// the engine offline.
type RemoteConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TokenSecret string        `mapstructure:"token_secret" yaml:"token_secret,omitempty"`
}

// ServerConfig configures `growth serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CachePath:     "growth.db",
		DailyCeiling:  100,
		RetentionDays: 7,
		LevelTable:    level.NameGraduated,
		Tables:        map[string][]int{},
		Remote: RemoteConfig{
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
			DSN:  "growth-docs.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment apply. A .env file next to path, or in the
// working directory when path is empty, is loaded first; variables already
// set in the environment win.
func Load(path string) (*Config, error) {
	envDir := "."
	if path != "" {
		envDir = filepath.Dir(path)
	}
	if err := loadDotEnv(filepath.Join(envDir, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())

	// Enable environment variable overrides
	// Example: GROWTH_REMOTE_URL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("cache_path", d.CachePath)
	v.SetDefault("daily_ceiling", d.DailyCeiling)
	v.SetDefault("retention_days", d.RetentionDays)
	v.SetDefault("level_table", d.LevelTable)
	v.SetDefault("tables", d.Tables)
	v.SetDefault("repeatable_sources", append([]string{}, d.RepeatableSources...))
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.token_secret", d.Remote.TokenSecret)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.dsn", d.Server.DSN)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func (c *Config) normalize() {
	c.UserID = strings.TrimSpace(c.UserID)
	c.LevelTable = strings.ToLower(strings.TrimSpace(c.LevelTable))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Tables == nil {
		c.Tables = map[string][]int{}
	}
	var sources []string
	for _, s := range c.RepeatableSources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	c.RepeatableSources = sources
}

// Save writes c to path as YAML, atomically.
func Save(path string, c *Config) error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Write atomically.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Registry returns the built-in level tables plus the configured ones.
func (c *Config) Registry() (*level.Registry, error) {
	reg := level.NewRegistry()
	for name, thresholds := range c.Tables {
		t, err := level.New(name, thresholds)
		if err != nil {
			return nil, fmt.Errorf("tables.%s: %w", name, err)
		}
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("tables.%s: %w", name, err)
		}
	}
	return reg, nil
}

// EngineTable returns the table the engine derives the stored level from.
func (c *Config) EngineTable() (level.Table, error) {
	reg, err := c.Registry()
	if err != nil {
		return level.Table{}, err
	}
	t, ok := reg.Lookup(c.LevelTable)
	if !ok {
		return level.Table{}, fmt.Errorf("level_table: unknown table %q (have %s)", c.LevelTable, strings.Join(reg.Names(), ", "))
	}
	return t, nil
}
