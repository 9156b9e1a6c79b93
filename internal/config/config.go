// Package config loads the daemon configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/italolelis/download_scheduler/internal/scheduler"
)

// Config struct for environment variables.
type Config struct {
	MaxConcurrentDownloads int   `envconfig:"MAX_CONCURRENT_DOWNLOADS" default:"3"`
	MaxBandwidth           int64 `envconfig:"MAX_BANDWIDTH" default:"0"`
	QueueSize              int   `envconfig:"QUEUE_SIZE" default:"100"`
	AutoRemoveCompleted    bool  `envconfig:"AUTO_REMOVE_COMPLETED" default:"true"`
	MaxCompletedHistory    int   `envconfig:"MAX_COMPLETED_HISTORY" default:"100"`

	DownloadDir     string        `envconfig:"DOWNLOAD_DIR" required:"true"`
	ProcessInterval time.Duration `envconfig:"PROCESS_INTERVAL" default:"2s"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string `envconfig:"DB_PATH" default:"downloads.db"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		Exporter     string `split_words:"true" default:"prometheus"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// SchedulerConfig maps the environment settings onto the scheduler's limits.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxConcurrentDownloads: c.MaxConcurrentDownloads,
		MaxBandwidth:           c.MaxBandwidth,
		QueueSize:              c.QueueSize,
		AutoRemoveCompleted:    c.AutoRemoveCompleted,
		MaxCompletedHistory:    c.MaxCompletedHistory,
	}
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
