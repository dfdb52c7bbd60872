// Package config loads the zipfetch configuration from the XDG config
// directory, with environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const appName = "zipfetch"

// HTTPConfig holds transport options for downloads.
type HTTPConfig struct {
	MaxRedirects        int           `yaml:"maxRedirects,omitempty"`
	DialTimeout         time.Duration `yaml:"dialTimeout,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idleConnTimeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tlsHandshakeTimeout,omitempty"`
	// CACertFile optionally replaces the system trust roots with a PEM
	// bundle, for devices that ship their own.
	CACertFile string `yaml:"caCertFile,omitempty"`
}

// Config holds the configuration options for the application.
type Config struct {
	DownloadDir string      `yaml:"downloadDir,omitempty"`
	LogFile     string      `yaml:"logFile,omitempty"`
	JournalPath string      `yaml:"journalPath,omitempty"`
	Debug       bool        `yaml:"debug,omitempty"`
	UserAgent   string      `yaml:"userAgent,omitempty"`
	HTTP        *HTTPConfig `yaml:"http,omitempty"`
}

// DefaultConfig returns the configuration used when no file or
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		DownloadDir: xdg.UserDirs.Download,
		LogFile:     filepath.Join(xdg.DataHome, appName, appName+".log"),
		JournalPath: filepath.Join(xdg.DataHome, appName, "journal.db"),
		UserAgent:   "zipfetch/1.0",
		HTTP: &HTTPConfig{
			MaxRedirects:        10,
			DialTimeout:         30 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration file from the XDG config directory (if
// present), then applies environment overrides. A missing file is not
// an error.
func Load() (*Config, error) {
	// Populate the environment from a .env file when one exists.
	_ = godotenv.Load()

	return load(filepath.Join(xdg.ConfigHome, appName, "config.yaml"))
}

func load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ZIPFETCH_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("ZIPFETCH_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("ZIPFETCH_JOURNAL"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("ZIPFETCH_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
}

func (c *Config) validate() error {
	if c.HTTP == nil {
		c.HTTP = DefaultConfig().HTTP
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("%w: maxRedirects must not be negative", ErrInvalidConfig)
	}
	if c.HTTP.DialTimeout < 0 || c.HTTP.IdleConnTimeout < 0 || c.HTTP.TLSHandshakeTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("%w: userAgent must not be empty", ErrInvalidConfig)
	}

	return nil
}
