package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/water-quality-server/internal/app"
	"github.com/water-quality-server/internal/config"
	"github.com/water-quality-server/internal/domain"
	"github.com/water-quality-server/internal/mcp"
)

// loadConfig returns the full viper configuration, or the standalone SQLite
// setup when started with --lite.
func loadConfig() (*domain.Config, error) {
	if len(os.Args) > 1 && os.Args[1] == "--lite" {
		lite := config.LoadLiteConfig()
		if err := lite.EnsureDataDir(); err != nil {
			return nil, err
		}
		return lite.Config(), nil
	}

	configManager, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, err
	}
	cfg := configManager.GetConfig()
	// stdout carries the protocol
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	server := mcp.NewServer(cfg.MCP, a.Service, a.Table, logger)

	logger.WithField("database", cfg.Database.Driver).Info("Starting water quality MCP server on stdio")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		a.Close()
		os.Exit(1)
	}

	logger.Info("MCP server stopped")
}
