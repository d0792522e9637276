package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/arena/go/internal/match/lifecycle"
	"github.com/mcdev12/arena/go/internal/match/outbox"
	"github.com/mcdev12/arena/go/internal/match/store"
	"github.com/mcdev12/arena/go/internal/match/submission"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `yaml:"log_level" env:"LOG_LEVEL"`
	Engine   EngineConfig   `yaml:"engine" envPrefix:"ENGINE_"`
	Retry    RetryConfig    `yaml:"retry" envPrefix:"RETRY_"`
	Reporter ReporterConfig `yaml:"reporter" envPrefix:"REPORTER_"`
	NATS     NATSConfig     `yaml:"nats" envPrefix:"NATS_"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Replay   ReplayConfig   `yaml:"replay" envPrefix:"REPLAY_"`
}

type EngineConfig struct {
	CountdownSeconds        int           `yaml:"countdown_seconds" env:"COUNTDOWN_SECONDS"`
	GracePeriodSeconds      float64       `yaml:"grace_period_seconds" env:"GRACE_PERIOD_SECONDS"`
	WarningThresholdSeconds float64       `yaml:"warning_threshold_seconds" env:"WARNING_THRESHOLD_SECONDS"`
	RoundTransitionSeconds  float64       `yaml:"round_transition_seconds" env:"ROUND_TRANSITION_SECONDS"`
	MaxCheckpoints          int           `yaml:"max_checkpoints" env:"MAX_CHECKPOINTS"`
	QueueLimit              int           `yaml:"queue_limit" env:"QUEUE_LIMIT"`
	FinalSubmitTimeout      time.Duration `yaml:"final_submit_timeout" env:"FINAL_SUBMIT_TIMEOUT"`
	TickRate                time.Duration `yaml:"tick_rate" env:"TICK_RATE"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" env:"MULTIPLIER"`
}

type ReporterConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// NATSConfig enables the JetStream relay when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url" env:"URL"`
	StreamName    string `yaml:"stream_name" env:"STREAM_NAME"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	AppName string `yaml:"app_name" env:"APP_NAME"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type ReplayConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Default returns a configuration that runs without external services.
func Default() Config {
	engine := lifecycle.DefaultConfig()
	pipeline := submission.DefaultConfig()
	js := outbox.DefaultJetStreamConfig()

	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			CountdownSeconds:        engine.CountdownSeconds,
			GracePeriodSeconds:      engine.GracePeriodSeconds,
			WarningThresholdSeconds: engine.WarningThresholdSeconds,
			RoundTransitionSeconds:  engine.RoundTransitionSeconds,
			MaxCheckpoints:          pipeline.MaxCheckpoints,
			QueueLimit:              pipeline.QueueLimit,
			FinalSubmitTimeout:      engine.FinalSubmitTimeout,
			TickRate:                100 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: pipeline.Retry.MaxAttempts,
			BaseDelay:   pipeline.Retry.BaseDelay,
			MaxDelay:    pipeline.Retry.MaxDelay,
			Multiplier:  pipeline.Retry.Multiplier,
		},
		Reporter: ReporterConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			StreamName:    js.StreamName,
			SubjectPrefix: js.SubjectPrefix,
		},
		Database: DefaultDatabaseConfig(),
		Storage: StorageConfig{
			Backend: string(store.BackendMemory),
			AppName: "arena",
		},
		HTTP:   HTTPConfig{Addr: ":8090"},
		Replay: ReplayConfig{Interval: 30 * time.Second},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	if c.Engine.TickRate <= 0 {
		return fmt.Errorf("engine.tick_rate must be positive, got %s", c.Engine.TickRate)
	}
	if c.Engine.CountdownSeconds < 0 {
		return fmt.Errorf("engine.countdown_seconds must not be negative, got %d", c.Engine.CountdownSeconds)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Replay.Interval <= 0 {
		return fmt.Errorf("replay.interval must be positive, got %s", c.Replay.Interval)
	}
	switch store.Backend(c.Storage.Backend) {
	case store.BackendMemory, store.BackendPostgres, store.BackendDisk:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		CountdownSeconds:        c.Engine.CountdownSeconds,
		GracePeriodSeconds:      c.Engine.GracePeriodSeconds,
		WarningThresholdSeconds: c.Engine.WarningThresholdSeconds,
		RoundTransitionSeconds:  c.Engine.RoundTransitionSeconds,
		FinalSubmitTimeout:      c.Engine.FinalSubmitTimeout,
	}
}

func (c Config) Submission() submission.Config {
	return submission.Config{
		MaxCheckpoints: c.Engine.MaxCheckpoints,
		QueueLimit:     c.Engine.QueueLimit,
		Retry: submission.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Multiplier:  c.Retry.Multiplier,
		},
	}
}

func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend: store.Backend(c.Storage.Backend),
		DSN:     c.Database.DSN(),
		AppName: c.Storage.AppName,
	}
}

// JetStream returns the relay settings, or false when no NATS URL is configured.
func (c Config) JetStream() (outbox.JetStreamConfig, bool) {
	js := outbox.DefaultJetStreamConfig()
	if c.NATS.URL == "" {
		return js, false
	}
	js.URL = c.NATS.URL
	if c.NATS.StreamName != "" {
		js.StreamName = c.NATS.StreamName
	}
	if c.NATS.SubjectPrefix != "" {
		js.SubjectPrefix = c.NATS.SubjectPrefix
	}
	return js, true
}
