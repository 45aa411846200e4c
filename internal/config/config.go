package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken    string `envconfig:"BOT_TOKEN" required:"true" validate:"required"`
	AdminChatID int64  `envconfig:"ADMIN_CHAT_ID" default:"0"` // 0 disables admin features

	OWMAPIKey  string        `envconfig:"OWM_API_KEY" required:"true" validate:"required"`
	OWMLang    string        `envconfig:"OWM_LANG" default:"en" validate:"required,min=2,max=5"`
	OWMTimeout time.Duration `envconfig:"OWM_TIMEOUT" default:"10s" validate:"min=1s"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres json"`
	DBPath      string `envconfig:"DB_PATH" default:"./data/weather.db" validate:"required_if=StoreDriver sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	JSONPath    string `envconfig:"JSON_PATH" default:"./data/subscribers.json" validate:"required_if=StoreDriver json"`

	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"1m" validate:"min=1s"`
	DefaultTZ    string        `envconfig:"DEFAULT_TZ" default:"UTC" validate:"timezone"`
	SweepWorkers int           `envconfig:"SWEEP_WORKERS" default:"4" validate:"min=1,max=64"`
	SendRate     float64       `envconfig:"SEND_RATE" default:"25" validate:"gt=0,lte=30"` // Telegram allows ~30 msg/s

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"` // healthz + metrics
}

// Load reads environment variables into Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the fallback zone for subscribers without a usable one.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
