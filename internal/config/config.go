// Package config loads nvrd's configuration from a YAML file with environment
// variable overrides, and supports hot-reloading the mutable subset.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"nvrd/internal/logging"
)

// Config is the full, typed configuration tree for the service.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Database DatabaseConfig       `mapstructure:"database"`
	JWT      JWTConfig            `mapstructure:"jwt"`
	Storage  StorageConfig        `mapstructure:"storage"`
	Router   RouterConfig         `mapstructure:"router"`
	Logging  logging.Config       `mapstructure:"logging"`
	Settings MutableSettings      `mapstructure:"settings"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// JWTConfig holds access/refresh token signing settings.
type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
}

// StorageConfig holds the on-disk layout root.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// RouterConfig holds MediaMTX connection settings (§6 of SPEC_FULL.md).
type RouterConfig struct {
	Host          string        `mapstructure:"host"`
	APIPort       string        `mapstructure:"api_port"`
	PublicHost    string        `mapstructure:"public_host"`
	WHEPPort      string        `mapstructure:"whep_port"`
	ConfigPath    string        `mapstructure:"config_path"`
	ReloadTimeout time.Duration `mapstructure:"reload_timeout"`
}

// MutableSettings is the subset of SystemSettings that hot-reloads from disk,
// mirroring spec.md §3 SystemSettings.
type MutableSettings struct {
	RetentionDays int     `mapstructure:"retention_days"`
	DiskFreeFloor float64 `mapstructure:"disk_free_floor"`
}

// Loader wraps a viper instance configured for nvrd's env/file layering.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with the NVRD_ environment prefix bound.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NVRD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("server.port", "8080")

	l.v.SetDefault("database.host", "localhost")
	l.v.SetDefault("database.port", "5432")
	l.v.SetDefault("database.user", "nvrd")
	l.v.SetDefault("database.password", "nvrd")
	l.v.SetDefault("database.dbname", "nvrd")
	l.v.SetDefault("database.sslmode", "disable")

	l.v.SetDefault("jwt.secret", "change-me-in-production")
	l.v.SetDefault("jwt.access_expiry", "15m")
	l.v.SetDefault("jwt.refresh_expiry", "720h")

	l.v.SetDefault("storage.root", "./data")

	l.v.SetDefault("router.host", "127.0.0.1")
	l.v.SetDefault("router.api_port", "9997")
	l.v.SetDefault("router.public_host", "localhost")
	l.v.SetDefault("router.whep_port", "8889")
	l.v.SetDefault("router.config_path", "./data/mediamtx.yml")
	l.v.SetDefault("router.reload_timeout", "10s")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
	l.v.SetDefault("logging.file_enabled", false)
	l.v.SetDefault("logging.file_path", "./data/logs/nvrd.log")
	l.v.SetDefault("logging.max_size_mb", 50)
	l.v.SetDefault("logging.max_backups", 5)

	l.v.SetDefault("settings.retention_days", 14)
	l.v.SetDefault("settings.disk_free_floor", 0.05)
}

// Load reads configPath (if it exists) overlaid with NVRD_* env vars and
// returns the parsed Config. A missing file is not an error: defaults apply.
func (l *Loader) Load(configPath string) (*Config, error) {
	l.setDefaults()
	if configPath != "" {
		l.v.SetConfigFile(configPath)
		if err := l.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Viper exposes the underlying instance for advanced callers (the watcher).
func (l *Loader) Viper() *viper.Viper {
	return l.v
}
