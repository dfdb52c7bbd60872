package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.UserAgent != "zipfetch/1.0" {
		t.Errorf("expected default user agent, got %q", cfg.UserAgent)
	}
	if cfg.HTTP.MaxRedirects != 10 {
		t.Errorf("expected 10 max redirects, got %d", cfg.HTTP.MaxRedirects)
	}
	if cfg.HTTP.DialTimeout != 30*time.Second {
		t.Errorf("expected 30s dial timeout, got %v", cfg.HTTP.DialTimeout)
	}
	if cfg.LogFile == "" || cfg.JournalPath == "" {
		t.Error("expected default log and journal paths to be set")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not be an error: %v", err)
	}
	if cfg.UserAgent != "zipfetch/1.0" {
		t.Errorf("expected defaults, got user agent %q", cfg.UserAgent)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
downloadDir: /sdmc/downloads
debug: true
userAgent: homebrew-agent/2.0
http:
  maxRedirects: 3
  caCertFile: /config/cacert.pem
`)

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.DownloadDir != "/sdmc/downloads" {
		t.Errorf("expected download dir override, got %q", cfg.DownloadDir)
	}
	if !cfg.Debug {
		t.Error("expected debug to be enabled")
	}
	if cfg.UserAgent != "homebrew-agent/2.0" {
		t.Errorf("expected user agent override, got %q", cfg.UserAgent)
	}
	if cfg.HTTP.MaxRedirects != 3 {
		t.Errorf("expected 3 max redirects, got %d", cfg.HTTP.MaxRedirects)
	}
	if cfg.HTTP.CACertFile != "/config/cacert.pem" {
		t.Errorf("expected CA cert file override, got %q", cfg.HTTP.CACertFile)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "downloadDir: [unclosed")

	_, err := load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZIPFETCH_DOWNLOAD_DIR", "/env/downloads")
	t.Setenv("ZIPFETCH_LOG_FILE", "/env/zipfetch.log")
	t.Setenv("ZIPFETCH_JOURNAL", "/env/journal.db")
	t.Setenv("ZIPFETCH_DEBUG", "true")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.DownloadDir != "/env/downloads" {
		t.Errorf("expected env download dir, got %q", cfg.DownloadDir)
	}
	if cfg.LogFile != "/env/zipfetch.log" {
		t.Errorf("expected env log file, got %q", cfg.LogFile)
	}
	if cfg.JournalPath != "/env/journal.db" {
		t.Errorf("expected env journal path, got %q", cfg.JournalPath)
	}
	if !cfg.Debug {
		t.Error("expected env debug override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "negative redirects", mutate: func(c *Config) { c.HTTP.MaxRedirects = -1 }},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.DialTimeout = -time.Second }},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got: %v", err)
			}
		})
	}
}

func TestValidateFillsMissingHTTPSection(t *testing.T) {
	cfg := &Config{UserAgent: "x"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if cfg.HTTP == nil || cfg.HTTP.MaxRedirects != 10 {
		t.Error("expected HTTP section to be filled with defaults")
	}
}
