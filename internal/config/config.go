// Package config loads process configuration from the environment.
//
// Loading order: .env file (optional, never overrides the real environment),
// then envconfig tags, then validator rules.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod test"`
	Addr   string `envconfig:"ADDR" default:":8080" validate:"required"`

	// DatabaseURL selects PostgreSQL; when empty DBPath is used with SQLite.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBPath      string `envconfig:"DB_PATH" default:"data/notifier.db"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	Timezone string `envconfig:"APP_TIMEZONE" default:"America/Sao_Paulo" validate:"required"`

	SchedulerEnabled bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	ScheduleInterval time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"1h" validate:"gte=1s"`
	RunTimeout       time.Duration `envconfig:"RUN_TIMEOUT" default:"5m" validate:"gte=1s"`

	// JWTSecret enables bearer auth on the trigger route when set.
	JWTSecret    string   `envconfig:"JWT_SECRET"`
	TriggerRoles []string `envconfig:"TRIGGER_ROLES" default:"service_role"`

	Log      LogConfig
	Kafka    KafkaConfig
	Telegram TelegramConfig
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	Format string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	// Dir enables a rotating file next to stdout when set.
	Dir string `envconfig:"LOG_DIR"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"kpi-notifications"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

func (t TelegramConfig) Enabled() bool { return t.BotToken != "" && t.ChatID != 0 }

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the current environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.TriggerRoles = trimAll(cfg.TriggerRoles)
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return &cfg, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
