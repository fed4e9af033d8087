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

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/formcoach/formcheck/internal/analysis"
	"github.com/formcoach/formcheck/internal/api"
	"github.com/formcoach/formcheck/internal/config"
	"github.com/formcoach/formcheck/internal/db"
	"github.com/formcoach/formcheck/internal/journal"
	"github.com/formcoach/formcheck/internal/logging"
	"github.com/formcoach/formcheck/internal/provider"
)

const apiTokenKey = "api_token"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting formcheck",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := journal.NewRepository(database.Conn())

	authToken, generated, err := ensureAuthToken(repo, cfg.APIToken())
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	client, err := provider.NewHTTPClient(cfg.ProviderBaseURL(), cfg.ProviderAPIKey(),
		logging.WithComponent(logger, "provider"))
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	svc, err := analysis.NewService(client, pipelineConfig(cfg), logging.WithComponent(logger, "analysis"))
	if err != nil {
		return fmt.Errorf("failed to create analysis service: %w", err)
	}

	shownToken := logging.SanitizeToken(authToken)
	if generated {
		shownToken = authToken
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  FORMCHECK v%-45s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    %-45s ║\n", fmt.Sprintf("http://%s:%d", cfg.BindAddr(), cfg.Port()))
	fmt.Printf("║  Auth Token: %-45s ║\n", shownToken)
	fmt.Printf("║  Upload max: %-45s ║\n", humanize.Bytes(uint64(cfg.MaxInlineBytes())))
	fmt.Printf("║  Poll:       %-45s ║\n", fmt.Sprintf("%s x %d", cfg.PollInterval(), cfg.PollMaxAttempts()))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		BindAddr:       cfg.BindAddr(),
		Analyzer:       svc,
		Journal:        journal.NewRecorder(repo, logging.WithComponent(logger, "journal")),
		Logger:         logger,
		StartTime:      startTime,
		APIToken:       authToken,
		MaxInlineBytes: cfg.MaxInlineBytes(),
		HardMaxBytes:   cfg.HardMaxBytes(),
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")

	// In-flight requests may be mid-poll; give them one poll interval to land.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second+cfg.PollInterval())
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func pipelineConfig(cfg config.Config) analysis.Config {
	acfg := analysis.DefaultConfig()
	acfg.WorkspaceName = cfg.WorkspaceName()
	acfg.PollInterval = cfg.PollInterval()
	acfg.PollMaxAttempts = cfg.PollMaxAttempts()
	acfg.MaxInlineBytes = cfg.MaxInlineBytes()
	acfg.HardMaxBytes = cfg.HardMaxBytes()
	acfg.MaxTokens = cfg.AnalysisMaxTokens()
	acfg.Temperature = cfg.AnalysisTemperature()
	return acfg
}

// ensureAuthToken prefers the configured token, then a stored one, and
// otherwise generates and stores a new token.
func ensureAuthToken(repo journal.Repository, configured string) (token string, generated bool, err error) {
	if configured != "" {
		return configured, false, nil
	}

	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, apiTokenKey)
	if err == nil && existing != "" {
		return existing, false, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", false, err
	}
	token = hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, apiTokenKey, token); err != nil {
		return "", false, err
	}

	return token, true, nil
}
