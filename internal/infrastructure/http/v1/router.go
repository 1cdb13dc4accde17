// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"kilang/internal/domain/formula"
	"kilang/internal/domain/ledger"
	"kilang/internal/domain/production"
	"kilang/internal/domain/snapshot"
	"kilang/internal/infrastructure/http/v1/handlers"
	"kilang/internal/infrastructure/http/v1/middleware"
	"kilang/internal/infrastructure/storage/postgres"
	"kilang/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool   *postgres.Pool
	Logger *logger.Logger

	// TokenValidator for bearer token validation. When nil, the API runs
	// unauthenticated (development mode).
	TokenValidator middleware.TokenValidator

	LedgerService     *ledger.Service
	FormulaService    *formula.Service
	ProductionService *production.Service
	SnapshotService   *snapshot.Service

	// AuditService backs the batch history endpoint. Optional.
	AuditService *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	v1 := router.Group("/api/v1")
	if cfg.TokenValidator != nil {
		v1.Use(middleware.Auth(cfg.TokenValidator))
	}

	baseHandler := handlers.NewBaseHandler()

	ledgerHandler := handlers.NewLedgerHandler(baseHandler, cfg.LedgerService)
	ledgerHandler.RegisterRoutes(v1.Group("/ledger"))

	formulaHandler := handlers.NewFormulaHandler(baseHandler, cfg.FormulaService)
	formulaHandler.RegisterRoutes(v1.Group("/formulas"))

	productionHandler := handlers.NewProductionHandler(baseHandler, cfg.ProductionService, cfg.AuditService)
	productionHandler.RegisterRoutes(v1.Group("/batches"))

	snapshotHandler := handlers.NewSnapshotHandler(baseHandler, cfg.SnapshotService)
	snapshotHandler.RegisterRoutes(v1.Group("/snapshots"))

	return router
}
