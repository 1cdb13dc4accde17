package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kilang/internal/core/types"
	"kilang/internal/domain/production"
	"kilang/internal/infrastructure/http/v1/dto"
	"kilang/internal/infrastructure/storage/postgres"
	"kilang/internal/infrastructure/storage/postgres/production_repo"
)

// ProductionHandler handles HTTP requests for production batches.
type ProductionHandler struct {
	*BaseHandler
	service *production.Service
	audit   *postgres.AuditService
}

// NewProductionHandler creates a new production handler. audit may be nil;
// the history endpoint is only registered when it is set.
func NewProductionHandler(base *BaseHandler, service *production.Service, audit *postgres.AuditService) *ProductionHandler {
	return &ProductionHandler{
		BaseHandler: base,
		service:     service,
		audit:       audit,
	}
}

// Create handles POST /batches
func (h *ProductionHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	formulaID, err := dto.ParseID("formulaId", req.FormulaID)
	if err != nil {
		h.Error(c, err)
		return
	}
	volume, err := dto.ParseQuantity("targetVolume", req.TargetVolume)
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Create(c.Request.Context(), productID, formulaID, volume)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromBatch(*b))
}

// Plan handles POST /batches/:batchId/plan
func (h *ProductionHandler) Plan(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Plan(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Start handles POST /batches/:batchId/start
func (h *ProductionHandler) Start(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Start(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// MarkQCPending handles POST /batches/:batchId/qc
func (h *ProductionHandler) MarkQCPending(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.QCNoteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b, err := h.service.MarkQCPending(c.Request.Context(), batchID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Complete handles POST /batches/:batchId/complete
func (h *ProductionHandler) Complete(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.CompleteBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	volume, err := dto.ParseQuantity("actualVolume", req.ActualVolume)
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Complete(c.Request.Context(), batchID, volume)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Reject handles POST /batches/:batchId/reject
func (h *ProductionHandler) Reject(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b, err := h.service.Reject(c.Request.Context(), batchID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Cancel handles POST /batches/:batchId/cancel
func (h *ProductionHandler) Cancel(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.ReasonRequest
	if !h.BindJSON(c, &req) {
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), batchID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Distribute handles POST /batches/:batchId/bottling
func (h *ProductionHandler) Distribute(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.BottlingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outputs := make([]production.OutputInput, len(req.Outputs))
	for i, line := range req.Outputs {
		productID, err := dto.ParseID("productId", line.ProductID)
		if err != nil {
			h.Error(c, err)
			return
		}
		goodQty, err := dto.ParseQuantity("goodQuantity", line.GoodQuantity)
		if err != nil {
			h.Error(c, err)
			return
		}
		wasteQty := types.Zero
		if line.WasteQuantity != "" {
			wasteQty, err = dto.ParseQuantity("wasteQuantity", line.WasteQuantity)
			if err != nil {
				h.Error(c, err)
				return
			}
		}
		outputs[i] = production.OutputInput{
			ProductID:    productID,
			GoodQuantity: goodQty,
			WasteQty:     wasteQty,
		}
	}

	b, err := h.service.Distribute(c.Request.Context(), batchID, outputs)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// Get handles GET /batches/:batchId
func (h *ProductionHandler) Get(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Get(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(*b))
}

// List handles GET /batches
func (h *ProductionHandler) List(c *gin.Context) {
	filter := production.BatchFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if pStr := c.Query("productId"); pStr != "" {
		productID, err := dto.ParseID("productId", pStr)
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.ProductID = &productID
	}
	if sStr := c.Query("status"); sStr != "" {
		status := production.BatchStatus(sStr)
		filter.Status = &status
	}

	batches, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BatchResponse, len(batches))
	for i, b := range batches {
		items[i] = dto.FromBatch(b)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: len(items),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// History handles GET /batches/:batchId/history
func (h *ProductionHandler) History(c *gin.Context) {
	batchID, err := dto.ParseID("batchId", c.Param("batchId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	entries, err := h.audit.GetEntityHistory(c.Request.Context(),
		production_repo.AuditEntityBatch, batchID.String(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AuditEntryResponse, len(entries))
	for i, e := range entries {
		items[i] = dto.FromAuditEntry(e)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: len(items),
		Limit:      limit,
	})
}

// RegisterRoutes registers production batch routes.
func (h *ProductionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:batchId", h.Get)
	if h.audit != nil {
		rg.GET("/:batchId/history", h.History)
	}
	rg.POST("/:batchId/plan", h.Plan)
	rg.POST("/:batchId/start", h.Start)
	rg.POST("/:batchId/qc", h.MarkQCPending)
	rg.POST("/:batchId/complete", h.Complete)
	rg.POST("/:batchId/reject", h.Reject)
	rg.POST("/:batchId/cancel", h.Cancel)
	rg.POST("/:batchId/bottling", h.Distribute)
}
