package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"royalty-reconciliation-backend/internal/config"
	handler "royalty-reconciliation-backend/internal/handlers"
	"royalty-reconciliation-backend/internal/repository"
	"royalty-reconciliation-backend/internal/services/mapping"
	service "royalty-reconciliation-backend/internal/services/reconciliation"
)

// RegisterRoutes wires the repositories, the reconciliation service and its
// handler onto r. The service is returned so the caller can load the catalog and
// run the session sweeper.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, logger *slog.Logger) *service.ReconciliationService {
	catalog := repository.NewCatalog(db)
	batchRepo := repository.NewBatchRepository(db)

	reconService := service.NewReconciliationService(nil, catalog, batchRepo, service.Options{
		Mapping: mapping.Options{
			StatementSource: cfg.Pipeline.StatementSource,
			YieldEvery:      cfg.Pipeline.YieldEvery,
			YieldPause:      cfg.Pipeline.YieldPause,
		},
		SessionTTL: cfg.Staging.SessionTTL,
		Logger:     logger,
	})

	reconHandler := handler.NewReconciliationHandler(handler.Deps{
		Service:        reconService,
		Catalog:        catalog,
		Audit:          batchRepo,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	Mount(r.Group("/api"), reconHandler)
	return reconService
}

// Mount registers every endpoint under api.
func Mount(api *gin.RouterGroup, h *handler.ReconciliationHandler) {
	api.GET("/health", h.Health)

	// Staging session routes
	staging := api.Group("/staging")
	staging.POST("/upload", h.Upload)
	staging.GET("/:sessionId", h.GetSession)
	staging.DELETE("/:sessionId", h.Discard)
	staging.GET("/:sessionId/records", h.ListRecords)
	staging.POST("/:sessionId/records/:index/toggle", h.ToggleRecord)
	staging.POST("/:sessionId/selection", h.UpdateSelection)
	staging.POST("/:sessionId/commit", h.Commit)
	staging.GET("/:sessionId/export", h.Export)
	staging.GET("/:sessionId/residue", h.Residue)

	// Ledger routes
	api.GET("/batches/:id", h.GetBatch)
	api.GET("/commits/:key", h.CommitHistory)

	// Catalog routes
	catalog := api.Group("/catalog")
	{
		catalog.POST("/reload", h.ReloadCatalog)
		catalog.GET("/works", h.SearchWorks)
		catalog.GET("/works/:id", h.GetWork)
	}
}
