// Package config manages application configuration from config.yaml,
// ZAP_* environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ServerConfig holds the HTTP server settings for the webhook and the
// dashboard API.
type ServerConfig struct {
	Port         int           `mapstructure:"port"          validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"min=1s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=1s"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GatewayConfig configures the Evolution API client used for outbound
// WhatsApp messages.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"    validate:"required,url"`
	APIKey     string        `mapstructure:"api_key"`
	Instance   string        `mapstructure:"instance"    validate:"required"`
	AdminJID   string        `mapstructure:"admin_jid"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"min=1s,max=5m"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
}

// LLMConfig configures the Gemini client used for sentiment analysis
// and insight generation.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"     validate:"required"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// AnalyticsConfig holds the tunable constants of the analytics
// pipeline.
type AnalyticsConfig struct {
	MinContentLength       int           `mapstructure:"min_content_length"      validate:"min=1"`
	BatchConcurrency       int           `mapstructure:"batch_concurrency"       validate:"min=1,max=32"`
	PatternSweepInterval   int           `mapstructure:"pattern_sweep_interval"  validate:"min=1"`
	SweepParticipantLimit  int           `mapstructure:"sweep_participant_limit" validate:"min=1,max=500"`
	RelationshipWindow     time.Duration `mapstructure:"relationship_window"     validate:"min=1m"`
	RelationshipLookback   time.Duration `mapstructure:"relationship_lookback"   validate:"min=1h"`
	RelationshipSaturation int           `mapstructure:"relationship_saturation" validate:"min=1"`
	RelationshipPeerLimit  int           `mapstructure:"relationship_peer_limit" validate:"min=1,max=500"`
	PatternLookback        time.Duration `mapstructure:"pattern_lookback"        validate:"min=24h"`
}

// TaskConfig enables and schedules one named periodic task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// Load reads configuration in precedence order: defaults, then
// config.yaml (optional), then ZAP_* environment variables. The
// result is validated before being returned.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ZAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults plus env apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.port", 3333)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "zapinsight.db")

	v.SetDefault("gateway.base_url", "http://localhost:8080")
	v.SetDefault("gateway.instance", "default")
	// Secrets default to empty so AutomaticEnv can fill them in;
	// viper only consults the environment for keys it knows about.
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.admin_jid", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.max_retries", 3)

	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("analytics.min_content_length", 5)
	v.SetDefault("analytics.batch_concurrency", 5)
	v.SetDefault("analytics.pattern_sweep_interval", 100)
	v.SetDefault("analytics.sweep_participant_limit", 20)
	v.SetDefault("analytics.relationship_window", time.Hour)
	v.SetDefault("analytics.relationship_lookback", 30*24*time.Hour)
	v.SetDefault("analytics.relationship_saturation", 50)
	v.SetDefault("analytics.relationship_peer_limit", 50)
	v.SetDefault("analytics.pattern_lookback", 30*24*time.Hour)

	v.SetDefault("scheduler.tasks.alert_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.alert_sweep.schedule", "*/5 * * * *")
	v.SetDefault("scheduler.tasks.db_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.db_maintenance.schedule", "0 4 * * *")
}
