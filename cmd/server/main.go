package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidarena/arena-server/internal/api"
	"github.com/vidarena/arena-server/internal/catalog"
	"github.com/vidarena/arena-server/internal/competition"
	"github.com/vidarena/arena-server/internal/config"
	"github.com/vidarena/arena-server/internal/db"
	"github.com/vidarena/arena-server/internal/events"
	"github.com/vidarena/arena-server/internal/groundtruth"
	"github.com/vidarena/arena-server/internal/logging"
	"github.com/vidarena/arena-server/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.Load(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting arena server", "version", config.Version, "data_dir", cfg.DataDir)

	database, err := db.New(db.Options{Driver: cfg.DBDriver, Path: cfg.DBPath(), DSN: cfg.DBDSN}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := competition.NewRepository(database.Conn())
	gtStore := groundtruth.NewStore(database.Conn())
	catalogRepo := catalog.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("api auth token ready", "token", logging.SanitizeToken(authToken))

	cat := catalog.New(catalogRepo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cat.Load(ctx); err != nil {
		return fmt.Errorf("failed to load reference catalog: %w", err)
	}

	hub := events.NewHub(logging.WithComponent(logger, "events"))
	m := metrics.New()

	updater := competition.NewUpdater(logging.WithComponent(logger, "updater"))
	updater.Start(ctx)

	maintainer := db.NewMaintainer(database, time.Duration(cfg.CompactIntervalSeconds)*time.Second, logger)
	go maintainer.Run(ctx)

	svc := competition.NewService(repo, cat, gtStore, hub, updater, m, maintainer, competition.Config{
		FrameTolerance:  cfg.FrameTolerance,
		ScoreFloor:      float64(cfg.ScoreFloor),
		WrongPenalty:    float64(cfg.WrongPenalty),
		RangeGapSeconds: float64(cfg.RangeGapSeconds),
		CompactGrace:    time.Duration(cfg.CompactGraceSeconds) * time.Second,
		JudgeDelayMin:   time.Duration(cfg.JudgeDelayMinMillis) * time.Millisecond,
		JudgeDelayMax:   time.Duration(cfg.JudgeDelayMaxMillis) * time.Millisecond,
		Clock: competition.ClockConfig{
			Countdown:     time.Duration(cfg.CountdownSeconds) * time.Second,
			RemainingTick: time.Duration(cfg.RemainingTickSeconds) * time.Second,
			Tolerance:     time.Duration(cfg.ToleranceSeconds) * time.Second,
		},
	}, logging.WithComponent(logger, "competition"))

	if err := svc.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume persisted state: %w", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port,
		Service:    svc,
		Repository: repo,
		Catalog:    cat,
		Metrics:    m,
		Logger:     logger,
		StartTime:  startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo competition.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
