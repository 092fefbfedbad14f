package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Store     StoreConfig
	Pages     PagesConfig
	Grid      GridConfig
	Host      HostConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// StoreConfig selects where the placement snapshot lives.
type StoreConfig struct {
	Driver   string
	FilePath string `mapstructure:"file_path"`
}

// PagesConfig sizes the layout. Apps lists the app packages offered on
// each page, by page index; HiddenApps are never shown.
type PagesConfig struct {
	Max        int
	Apps       [][]string
	HiddenApps []string `mapstructure:"hidden_apps"`
}

// GridConfig bounds widget sizes in cells.
type GridConfig struct {
	Columns int
	MaxRows int `mapstructure:"max_rows"`
}

// HostConfig configures the local widget host.
type HostConfig struct {
	Capacity  int
	Providers []string
}

type ReconcileConfig struct {
	Timeout time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Load reads configuration from file and env. Env var overrides use prefix HOMEDECK_.
func Load() (Config, error) {
	v := viper.New()

	dataDir := filepath.Join(os.Getenv("HOME"), ".local", "share", "homedeck")
	v.SetDefault("database.path", filepath.Join(dataDir, "homedeck.db"))
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.file_path", filepath.Join(dataDir, "placements.json"))
	v.SetDefault("pages.max", 3)
	v.SetDefault("grid.columns", 4)
	v.SetDefault("grid.max_rows", 4)
	v.SetDefault("host.capacity", 64)
	v.SetDefault("host.providers", []string{"com.x/Clock", "com.x/Weather", "com.y/Calendar"})
	v.SetDefault("reconcile.timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("HOMEDECK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "homedeck"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HOMEDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the page core cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Pages.Max < 1:
		return fmt.Errorf("config: pages.max must be >= 1, got %d", c.Pages.Max)
	case c.Grid.Columns < 1:
		return fmt.Errorf("config: grid.columns must be >= 1, got %d", c.Grid.Columns)
	case c.Grid.MaxRows < 1:
		return fmt.Errorf("config: grid.max_rows must be >= 1, got %d", c.Grid.MaxRows)
	case c.Store.Driver != DriverSQLite && c.Store.Driver != DriverFile:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	case c.Reconcile.Timeout <= 0:
		return fmt.Errorf("config: reconcile.timeout must be positive")
	case len(c.Pages.Apps) > c.Pages.Max:
		return fmt.Errorf("config: pages.apps lists %d pages, pages.max is %d", len(c.Pages.Apps), c.Pages.Max)
	}
	return nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("HOMEDECK_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "homedeck", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("store.driver", cfg.Store.Driver)
	v.Set("store.file_path", cfg.Store.FilePath)
	v.Set("pages.max", cfg.Pages.Max)
	if len(cfg.Pages.Apps) > 0 {
		v.Set("pages.apps", cfg.Pages.Apps)
	}
	if len(cfg.Pages.HiddenApps) > 0 {
		v.Set("pages.hidden_apps", cfg.Pages.HiddenApps)
	}
	v.Set("grid.columns", cfg.Grid.Columns)
	v.Set("grid.max_rows", cfg.Grid.MaxRows)
	v.Set("host.capacity", cfg.Host.Capacity)
	v.Set("host.providers", cfg.Host.Providers)
	v.Set("reconcile.timeout", cfg.Reconcile.Timeout.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
