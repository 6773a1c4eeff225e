// Package config loads tasktrack settings from defaults, an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the merged configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	View   ViewConfig   `mapstructure:"view" yaml:"view"`
}

// StoreConfig selects and locates the task store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite | postgres
	Path   string `mapstructure:"path" yaml:"path"`     // sqlite file
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // postgres URL
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Mode            string        `mapstructure:"mode" yaml:"mode"` // gin mode: debug | release | test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ViewConfig tunes the live view engine.
type ViewConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultFile is read when no explicit config path is given and it exists.
const DefaultFile = "tasktrack.yaml"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "tasks.db",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		View: ViewConfig{
			GracePeriod: 5 * time.Second,
		},
	}
}

// Load merges defaults, the YAML file at path (or DefaultFile when path is empty and the file
// exists) and TASKTRACK_* environment variables. DATABASE_URL and PORT are honoured as well.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("tasktrack")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && !v.InConfig("server.addr") && os.Getenv("TASKTRACK_SERVER_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn (or DATABASE_URL) is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverPostgres)
	}
	if c.View.GracePeriod < 0 {
		return errors.New("view.grace_period must not be negative")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("view.grace_period", cfg.View.GracePeriod)
}
