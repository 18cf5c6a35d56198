package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/xiaot623/agentdir/internal/config"
	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/negotiation"
	"github.com/xiaot623/agentdir/internal/registry"
	"github.com/xiaot623/agentdir/internal/repository"
	"github.com/xiaot623/agentdir/internal/retry"
	"github.com/xiaot623/agentdir/internal/service"
	"github.com/xiaot623/agentdir/internal/session"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/token"
	transport "github.com/xiaot623/agentdir/internal/transport/http"
	"github.com/xiaot623/agentdir/policy"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("agentdir stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	logger.Info("starting agentdir",
		"http_port", cfg.HTTPPort,
		"internal_port", cfg.InternalPort,
		"search_backend", cfg.SearchBackend,
		"session_ttl", cfg.SessionTTL.String(),
	)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer db.Close()

	metrics, err := telemetry.NewMetrics(otel.Meter("github.com/xiaot623/agentdir"))
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	retryPolicy := retry.Policy{
		Attempts:  cfg.CASMaxAttempts,
		BaseDelay: cfg.CASBaseDelay,
		MaxDelay:  20 * cfg.CASBaseDelay,
	}
	reg := registry.New(db, registry.Options{Retry: retryPolicy, Metrics: metrics})

	// Initialize directory index
	var index directory.Index
	switch cfg.SearchBackend {
	case config.SearchBackendBleve:
		bi, err := directory.NewBleveIndex(db, cfg.SearchPageSize, logger)
		if err != nil {
			return fmt.Errorf("initialize search index: %w", err)
		}
		defer bi.Close()
		if err := bi.Rebuild(ctx); err != nil {
			return fmt.Errorf("build search index: %w", err)
		}
		reg.Subscribe(bi.Observe)
		index = bi
	default:
		index = directory.NewStoreIndex(db, cfg.SearchPageSize)
	}

	engine := negotiation.NewEngine(reg, index, negotiation.Options{
		Weights: negotiation.Weights{
			Task:        cfg.Negotiation.Weights.Task,
			Negotiation: cfg.Negotiation.Weights.Negotiation,
			Budget:      cfg.Negotiation.Weights.Budget,
			Skill:       cfg.Negotiation.Weights.Skill,
		},
		MaxCandidates: cfg.Negotiation.MaxCandidates,
		Metrics:       metrics,
	})

	// Initialize token issuer
	key, err := signingKey(cfg, logger)
	if err != nil {
		return err
	}
	issuer, err := token.NewIssuer(key, nil)
	if err != nil {
		return fmt.Errorf("initialize token issuer: %w", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("initialize policy engine: %w", err)
	}

	broker := session.NewBroker(db, reg, policyEngine, issuer, session.Options{
		TTL:     cfg.SessionTTL,
		Retry:   retryPolicy,
		Metrics: metrics,
		Logger:  logger,
	})

	svc := service.New(reg, index, engine, broker, logger)

	serverOpts := transport.Options{Logger: logger, RequestTimeout: cfg.RequestTimeout}
	externalServer := transport.NewExternalServer(svc, serverOpts)
	internalServer := transport.NewInternalServer(svc, serverOpts)

	if cfg.SweepEnabled() {
		sweeper, err := session.NewSweeper(broker, cfg.SweepSchedule, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	errCh := make(chan error, 2)

	// Start external server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("external server: %w", err)
		}
	}()

	// Start internal server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("internal server: %w", err)
		}
	}()

	logger.Info("agentdir started")

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-errCh:
	}

	logger.Info("shutting down agentdir")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := transport.Shutdown(shutdownCtx, externalServer, internalServer); err != nil {
		logger.Warn("failed to shut down servers gracefully", "error", err)
	}

	logger.Info("agentdir stopped")
	return runErr
}

// signingKey decodes the configured hex key, or generates an ephemeral one.
func signingKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SigningKey == "" {
		logger.Warn("no signing key configured; using an ephemeral key, tokens will not survive a restart")
		return token.GenerateKey()
	}
	key, err := hex.DecodeString(cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("signing key must be hex encoded")
	}
	return key, nil
}
