// Package main seeds a development database with a demo product, an
// active formula and opening stock, so the API has data to work with.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"kilang/internal/core/id"
	"kilang/internal/core/types"
	"kilang/internal/domain/formula"
	"kilang/internal/domain/ledger"
	"kilang/internal/infrastructure/storage/postgres"
	"kilang/internal/infrastructure/storage/postgres/formula_repo"
	"kilang/internal/infrastructure/storage/postgres/ledger_repo"
	"kilang/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	ledgerService := ledger.NewService(ledger_repo.NewLedgerRepo(txm), txm, nil)
	formulaService := formula.NewService(formula_repo.NewFormulaRepo(txm), txm)

	// Demo product: a finished syrup made from two raw materials.
	syrup := id.New()
	alcohol := id.New()
	essence := id.New()

	f, err := formulaService.Create(ctx, syrup, "demo syrup blend", []formula.MaterialInput{
		{MaterialID: alcohol, Ratio: types.MustQuantity("0.5"), Unit: "L"},
		{MaterialID: essence, Ratio: types.MustQuantity("0.0125"), Unit: "kg"},
	})
	if err != nil {
		log.Fatalw("failed to create formula", "error", err)
	}
	if _, err := formulaService.Activate(ctx, f.ID, time.Now()); err != nil {
		log.Fatalw("failed to activate formula", "error", err)
	}

	seedStock := []struct {
		productID id.ID
		name      string
		quantity  string
	}{
		{alcohol, "raw alcohol", "500"},
		{essence, "flavor essence", "12.5"},
	}
	for _, s := range seedStock {
		rec, err := ledgerService.RecordPurchase(ctx, s.productID, types.MustQuantity(s.quantity),
			time.Now(), ledger.Reference{Type: "seed", ID: s.name})
		if err != nil {
			log.Fatalw("failed to seed stock", "material", s.name, "error", err)
		}
		log.Infow("seeded opening stock",
			"material", s.name,
			"product_id", s.productID,
			"quantity", types.FormatQuantity(rec.Quantity),
		)
	}

	log.Infow("seed complete",
		"product_id", syrup,
		"formula_id", f.ID,
		"formula_version", f.Version,
	)
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
