package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the watch pipeline. The stream timeout bounds how stale a
// silently dropped connection can get; the watchdog threshold is deliberately
// twice that.
const (
	DefaultStreamTimeoutSeconds = int64(300)
	DefaultReconnectDelay       = 2 * time.Second
	DefaultWatchdogPeriod       = 60 * time.Second
	DefaultStalenessThreshold   = 600 * time.Second
	DefaultRestartDelay         = 10 * time.Second
	DefaultDisplayCap           = 15
)

type Config struct {
	WebhookURL  string
	Namespaces  []string
	APIAddress  string
	DatabaseURL string
	LogLevel    string

	StreamTimeoutSeconds int64
	ReconnectDelay       time.Duration
	WatchdogPeriod       time.Duration
	StalenessThreshold   time.Duration
	RestartDelay         time.Duration
	DisplayCap           int
}

// fileConfig is the YAML shape of the optional config file. Durations are
// plain seconds, pointer fields so absence keeps the default.
type fileConfig struct {
	WebhookURL           string   `yaml:"webhook_url"`
	Namespaces           []string `yaml:"namespaces"`
	APIAddress           string   `yaml:"api_address"`
	DatabaseURL          string   `yaml:"database_url"`
	LogLevel             string   `yaml:"log_level"`
	StreamTimeoutSeconds *int64   `yaml:"stream_timeout_seconds"`
	ReconnectSeconds     *int     `yaml:"reconnect_seconds"`
	WatchdogSeconds      *int     `yaml:"watchdog_seconds"`
	StalenessSeconds     *int     `yaml:"staleness_seconds"`
	RestartSeconds       *int     `yaml:"restart_seconds"`
	DisplayCap           *int     `yaml:"display_cap"`
}

// Load builds the configuration from an optional YAML file (CONFIG_FILE)
// overlaid by environment variables. The webhook URL is the only required
// setting; its absence is a startup error.
func Load() (*Config, error) {
	cfg := &Config{
		APIAddress:           ":8080",
		Namespaces:           []string{"production", "staging"},
		LogLevel:             "info",
		StreamTimeoutSeconds: DefaultStreamTimeoutSeconds,
		ReconnectDelay:       DefaultReconnectDelay,
		WatchdogPeriod:       DefaultWatchdogPeriod,
		StalenessThreshold:   DefaultStalenessThreshold,
		RestartDelay:         DefaultRestartDelay,
		DisplayCap:           DefaultDisplayCap,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("MONITORED_NAMESPACES"); v != "" {
		cfg.Namespaces = splitNamespaces(v)
	}
	if v := os.Getenv("API_ADDRESS"); v != "" {
		cfg.APIAddress = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL is required")
	}
	if len(cfg.Namespaces) == 0 {
		return nil, fmt.Errorf("at least one monitored namespace is required")
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	if fc.WebhookURL != "" {
		cfg.WebhookURL = fc.WebhookURL
	}
	if len(fc.Namespaces) > 0 {
		cfg.Namespaces = fc.Namespaces
	}
	if fc.APIAddress != "" {
		cfg.APIAddress = fc.APIAddress
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.StreamTimeoutSeconds != nil {
		cfg.StreamTimeoutSeconds = *fc.StreamTimeoutSeconds
	}
	if fc.ReconnectSeconds != nil {
		cfg.ReconnectDelay = time.Duration(*fc.ReconnectSeconds) * time.Second
	}
	if fc.WatchdogSeconds != nil {
		cfg.WatchdogPeriod = time.Duration(*fc.WatchdogSeconds) * time.Second
	}
	if fc.StalenessSeconds != nil {
		cfg.StalenessThreshold = time.Duration(*fc.StalenessSeconds) * time.Second
	}
	if fc.RestartSeconds != nil {
		cfg.RestartDelay = time.Duration(*fc.RestartSeconds) * time.Second
	}
	if fc.DisplayCap != nil {
		cfg.DisplayCap = *fc.DisplayCap
	}
	return nil
}

func splitNamespaces(raw string) []string {
	var namespaces []string
	for _, ns := range strings.Split(raw, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			namespaces = append(namespaces, ns)
		}
	}
	return namespaces
}
