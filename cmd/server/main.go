// Package main is the entry point for the kilang API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kilang/internal/core/security"
	"kilang/internal/core/types"
	"kilang/internal/domain/formula"
	"kilang/internal/domain/ledger"
	"kilang/internal/domain/production"
	"kilang/internal/domain/snapshot"
	v1 "kilang/internal/infrastructure/http/v1"
	"kilang/internal/infrastructure/http/v1/middleware"
	"kilang/internal/infrastructure/storage/postgres"
	"kilang/internal/infrastructure/storage/postgres/formula_repo"
	"kilang/internal/infrastructure/storage/postgres/ledger_repo"
	"kilang/internal/infrastructure/storage/postgres/production_repo"
	"kilang/internal/infrastructure/storage/postgres/snapshot_repo"
	"kilang/pkg/logger"
	"kilang/pkg/numerator"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting kilang server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Posting policy ---
	// LEDGER_CLOSED_UNTIL (YYYY-MM-DD) freezes all writes before the date.
	var policy security.BackdatePolicy = security.OpenPolicy{}
	if closedStr := getEnv("LEDGER_CLOSED_UNTIL", ""); closedStr != "" {
		closedUntil, err := types.ParseBusinessDate(closedStr)
		if err != nil {
			log.Fatalw("invalid LEDGER_CLOSED_UNTIL", "value", closedStr, "error", err)
		}
		policy = security.NewStrictPolicy(closedUntil)
		log.Infow("posting policy: strict", "closed_until", closedStr)
	}

	// --- Services ---
	ledgerRepo := ledger_repo.NewLedgerRepo(txm)
	ledgerService := ledger.NewService(ledgerRepo, txm, policy)

	formulaRepo := formula_repo.NewFormulaRepo(txm)
	formulaService := formula.NewService(formulaRepo, txm)

	batchNumbers := numerator.NewSequence(
		numerator.New(pool.Unwrap()),
		numerator.DefaultConfig(getEnv("BATCH_NUMBER_PREFIX", "PB")),
	)

	auditService, err := postgres.NewAuditService(txm)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	batchRepo := production_repo.NewBatchRepo(txm).WithAudit(auditService)
	productionService := production.NewService(batchRepo, formulaService, ledgerService, batchNumbers, txm)

	snapshotRepo := snapshot_repo.NewSnapshotRepo(txm)
	snapshotService := snapshot.NewService(snapshotRepo)

	// --- Auth ---
	var validator middleware.TokenValidator
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		validator = middleware.NewJWTValidator(secret)
	} else {
		log.Warn("JWT_SECRET not set, API runs unauthenticated")
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:              pool,
		Logger:            log,
		TokenValidator:    validator,
		LedgerService:     ledgerService,
		FormulaService:    formulaService,
		ProductionService: productionService,
		SnapshotService:   snapshotService,
		AuditService:      auditService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
