package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/water-quality-server/internal/api"
	"github.com/water-quality-server/internal/app"
	"github.com/water-quality-server/internal/config"
	"github.com/water-quality-server/internal/ingest"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
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

	server := api.NewServer(configManager, api.Dependencies{
		Assessor: a.Service,
		Trends:   a.Analyzer,
		Table:    a.Table,
		Feed:     a.Hub,
		Metrics:  a.Metrics,
		Logger:   logger,
	})

	logger.WithFields(logrus.Fields{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"database":  cfg.Database.Driver,
		"predictor": a.Predictor.ModelVersion(),
	}).Info("Starting water quality server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if a.Relay != nil {
		g.Go(func() error {
			return a.Relay.Run(gctx)
		})
	}
	if cfg.MQTT.Enabled {
		subscriber := ingest.NewSubscriber(cfg.MQTT, a.Service, a.Metrics, logger)
		g.Go(func() error {
			return subscriber.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		a.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
