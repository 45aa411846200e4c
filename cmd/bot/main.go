package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata" // subscriber zones must resolve in minimal containers

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ykvlv/weather-bot/internal/app"
	"github.com/ykvlv/weather-bot/internal/config"
	"github.com/ykvlv/weather-bot/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run() error {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return err
	}
	return a.Run(context.Background())
}
