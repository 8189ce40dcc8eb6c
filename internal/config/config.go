package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "SAK"
	configFileName = "config"
	configFileType = "yaml"

	DefaultReleaseURL   = "https://api.github.com/repos/qsak/QtSwissArmyKnife/releases/latest"
	DefaultGithubPage   = "https://github.com/qsak/QtSwissArmyKnife/releases"
	DefaultGiteePage    = "https://gitee.com/qsak/QtSwissArmyKnife/releases"
	DefaultNoticeClear  = 5 * time.Second
	DefaultCheckTimeout = 30 * time.Second
)

// Config holds all application configuration
type Config struct {
	Logging   logger.Config   `mapstructure:"logging"`
	Update    UpdateConfig    `mapstructure:"update"`
	Transport TransportConfig `mapstructure:"transport"`
	Storage   StorageConfig   `mapstructure:"storage"`

	v *viper.Viper
}

// UpdateConfig holds release check configuration
type UpdateConfig struct {
	AutoCheck     bool          `mapstructure:"auto_check"`
	ReleaseURL    string        `mapstructure:"release_url"`
	GithubPage    string        `mapstructure:"github_page"`
	GiteePage     string        `mapstructure:"gitee_page"`
	Timeout       time.Duration `mapstructure:"timeout"`
	NoticeTimeout time.Duration `mapstructure:"notice_timeout"`
}

// TransportConfig describes where timed sends are written
type TransportConfig struct {
	// URL selects the connection by scheme: tcp://, udp://, ws://, wss://, stdout://
	URL             string        `mapstructure:"url"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	Burst           int           `mapstructure:"burst"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// StorageConfig locates the timed-send item database
type StorageConfig struct {
	Path     string `mapstructure:"path"`
	PageType string `mapstructure:"page_type"`
}

// LoadConfig loads configuration from file, environment and defaults.
// An empty path searches the working directory and $HOME/.sak.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sak")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.v = v

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("update.auto_check", true)
	v.SetDefault("update.release_url", DefaultReleaseURL)
	v.SetDefault("update.github_page", DefaultGithubPage)
	v.SetDefault("update.gitee_page", DefaultGiteePage)
	v.SetDefault("update.timeout", DefaultCheckTimeout)
	v.SetDefault("update.notice_timeout", DefaultNoticeClear)

	v.SetDefault("transport.url", "stdout://")
	v.SetDefault("transport.dial_timeout", 5*time.Second)
	v.SetDefault("transport.write_timeout", 5*time.Second)
	v.SetDefault("transport.rate_limit", 100.0)
	v.SetDefault("transport.burst", 10)
	v.SetDefault("transport.breaker_timeout", 30*time.Second)
	v.SetDefault("transport.breaker_failures", 5)

	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.page_type", "default")
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sak.db"
	}
	return filepath.Join(home, ".sak", "sak.db")
}

// DefaultConfig returns a default configuration not backed by any file
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults only, cannot fail to decode
	_ = v.Unmarshal(&config)
	config.v = v
	return &config
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.Update.ReleaseURL == "" {
		return fmt.Errorf("update.release_url is required")
	}
	if c.Transport.URL == "" {
		return fmt.Errorf("transport.url is required")
	}
	if c.Storage.PageType == "" {
		return fmt.Errorf("storage.page_type is required")
	}
	for _, r := range c.Storage.PageType {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("storage.page_type %q may only contain letters, digits and underscores", c.Storage.PageType)
		}
	}
	return nil
}

// AutoCheckForUpdate reports the persisted "check for update on startup" flag
func (c *Config) AutoCheckForUpdate() bool {
	return c.Update.AutoCheck
}

// SetAutoCheckForUpdate stores the flag and writes only that key back to
// the config file
func (c *Config) SetAutoCheckForUpdate(enabled bool) error {
	c.Update.AutoCheck = enabled
	if c.v == nil {
		return nil
	}
	c.v.Set("update.auto_check", enabled)
	return c.SaveSetting("update.auto_check", enabled)
}

// SaveSetting writes key into the file the config was loaded from, or into
// $HOME/.sak/config.yaml when none was found. Other keys of the file are
// kept as they are; defaults and environment overrides are never written.
func (c *Config) SaveSetting(key string, value any) error {
	if c.v == nil {
		return fmt.Errorf("config is not backed by viper")
	}

	path := c.v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".sak", configFileName+"."+configFileType)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file := viper.New()
	file.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}

	file.Set(key, value)
	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.v.SetConfigFile(path)
	return nil
}
