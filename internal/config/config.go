package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AhmedBakrXI/GeoMap/internal/notify"
)

type Config struct {
	Origin  OriginConfig  `mapstructure:"origin"`
	History HistoryConfig `mapstructure:"history"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Merge   MergeConfig   `mapstructure:"merge"`
	Session SessionConfig `mapstructure:"session"`
	Server  ServerConfig  `mapstructure:"server"`
	Notify  notify.Config `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type OriginConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	WSURL         string `mapstructure:"ws_url"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type HistoryConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type FeedConfig struct {
	HandshakeTimeoutSec int   `mapstructure:"handshake_timeout_sec"`
	PongWaitSec         int   `mapstructure:"pong_wait_sec"`
	MaxMessageBytes     int64 `mapstructure:"max_message_bytes"`
	Compression         bool  `mapstructure:"compression"`
}

type MergeConfig struct {
	DedupeByID bool `mapstructure:"dedupe_by_id"`
}

type SessionConfig struct {
	RestartAttempts int `mapstructure:"restart_attempts"`
	RestartDelaySec int `mapstructure:"restart_delay_sec"`
}

type ServerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Addr            string `mapstructure:"addr"`
	EventIntervalMS int    `mapstructure:"event_interval_ms"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func (c OriginConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c SessionConfig) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelaySec) * time.Second
}

func (c ServerConfig) EventInterval() time.Duration {
	return time.Duration(c.EventIntervalMS) * time.Millisecond
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("origin.base_url", "http://localhost:8080/api")
	v.SetDefault("origin.ws_url", "ws://localhost:8080/api/ws/data")
	v.SetDefault("origin.timeout_sec", 30)
	v.SetDefault("origin.rate_per_second", 20)
	v.SetDefault("history.page_size", 100)
	v.SetDefault("feed.handshake_timeout_sec", 10)
	v.SetDefault("feed.pong_wait_sec", 60)
	v.SetDefault("feed.max_message_bytes", 4<<20)
	v.SetDefault("feed.compression", true)
	v.SetDefault("merge.dedupe_by_id", true)
	v.SetDefault("session.restart_attempts", 0)
	v.SetDefault("session.restart_delay_sec", 2)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.event_interval_ms", 1000)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "world_map")
	v.SetDefault("notify.token", "")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GEOMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
