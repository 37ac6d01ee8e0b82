// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/bot"
	"github.com/rovshanmuradov/sentinel-bot/internal/config"
	"github.com/rovshanmuradov/sentinel-bot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		configPath = ""
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting sentinel", zap.Int("rpc_endpoints", len(cfg.RPCList)), zap.String("storage", cfg.StorageDriver))

	runner, err := bot.NewRunner(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("Failed to initialize engine", zap.Error(err))
		return err
	}
	if err := runner.Run(ctx); err != nil {
		log.Error("Engine stopped with error", zap.Error(err))
		return err
	}
	log.Info("Sentinel stopped")
	return nil
}
