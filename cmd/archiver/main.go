// Package main is the entry point for the kilang ledger archiver.
// It periodically copies daily balance rows into the immutable snapshot
// table for audit history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kilang/internal/domain/snapshot"
	"kilang/internal/infrastructure/storage/postgres"
	"kilang/internal/infrastructure/storage/postgres/snapshot_repo"
	"kilang/pkg/logger"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting kilang archiver")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	service := snapshot.NewService(snapshot_repo.NewSnapshotRepo(txm))

	interval := getEnvDuration("ARCHIVE_INTERVAL", 24*time.Hour)
	archiver := NewArchiver(service, log, interval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		archiver.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down archiver...")
	cancel()

	wg.Wait()
	log.Info("archiver stopped")
}

// Archiver snapshots ledger days on a schedule.
type Archiver struct {
	service  *snapshot.Service
	log      *logger.Logger
	interval time.Duration
}

func NewArchiver(service *snapshot.Service, log *logger.Logger, interval time.Duration) *Archiver {
	return &Archiver{
		service:  service,
		log:      log.WithComponent("archiver"),
		interval: interval,
	}
}

// Run archives once at startup, then on every tick. Each pass covers
// yesterday and today: yesterday because the day just closed, today so a
// mid-day crash still leaves a recent copy behind.
func (a *Archiver) Run(ctx context.Context) {
	a.archivePass(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.archivePass(ctx)
		}
	}
}

func (a *Archiver) archivePass(ctx context.Context) {
	now := time.Now().UTC()
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		count, err := a.service.ArchiveDay(ctx, day)
		if err != nil {
			a.log.Errorw("archive pass failed",
				"business_date", day.Format("2006-01-02"),
				"error", err,
			)
			continue
		}
		if count > 0 {
			a.log.Infow("archived ledger day",
				"business_date", day.Format("2006-01-02"),
				"rows", count,
			)
		}
	}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
