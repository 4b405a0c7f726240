package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/directory"
	"github.com/attendance-mainframe/internal/handler"
	"github.com/attendance-mainframe/internal/kafka"
	"github.com/attendance-mainframe/internal/postgres"
	"github.com/attendance-mainframe/internal/redis"
	"github.com/attendance-mainframe/internal/service"
	"github.com/attendance-mainframe/internal/websocket"
	"github.com/attendance-mainframe/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis marks board
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	board, err := redis.NewMarksBoard(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer board.Close()
	logger.Info("connected to Redis")

	// Initialize group directory client
	dir := directory.NewClient(&cfg.Directory, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize attendance service
	attendanceService := service.NewAttendanceService(repo, dir, cfg.Ranks.Table(), logger)
	attendanceService.SetHub(wsHub)
	attendanceService.SetBoard(board)

	// Rebuild the marks board from the database on startup (recovery)
	logger.Info("rebuilding marks board from database")
	profiles, err := repo.ListProfiles(ctx)
	if err != nil {
		logger.Warn("failed to list profiles for board rebuild", "error", err)
	} else if err := board.Rebuild(ctx, profiles); err != nil {
		logger.Warn("failed to rebuild marks board", "error", err)
	}

	// Initialize rank-refresh sweeper
	sweeper := worker.NewSweeper(attendanceService, &cfg.Sweep, logger)
	sweeper.SetNotifier(wsHub)
	if cfg.Sweep.Enabled {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("failed to start rank sweep", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for bulk event ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, attendanceService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(attendanceService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop rank sweep
	if err := sweeper.Stop(); err != nil {
		logger.Error("failed to stop rank sweep", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
