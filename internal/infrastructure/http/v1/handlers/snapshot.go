package handlers

import (
	"github.com/gin-gonic/gin"

	"kilang/internal/core/apperror"
	"kilang/internal/domain/snapshot"
	"kilang/internal/infrastructure/http/v1/dto"
)

// SnapshotHandler handles HTTP requests for balance snapshots.
type SnapshotHandler struct {
	*BaseHandler
	service *snapshot.Service
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(base *BaseHandler, service *snapshot.Service) *SnapshotHandler {
	return &SnapshotHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Archive handles POST /snapshots/archive
// Archives all balance rows for a business date on demand. The nightly
// archiver does this on a schedule; this endpoint exists for operators.
func (h *SnapshotHandler) Archive(c *gin.Context) {
	var req struct {
		BusinessDate string `json:"businessDate" binding:"required"`
	}
	if !h.BindJSON(c, &req) {
		return
	}

	date, err := dto.ParseDate("businessDate", req.BusinessDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	count, err := h.service.ArchiveDay(c.Request.Context(), date)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"businessDate": req.BusinessDate,
		"archived":     count,
	})
}

// List handles GET /snapshots
func (h *SnapshotHandler) List(c *gin.Context) {
	pStr := c.Query("productId")
	dStr := c.Query("date")
	if pStr == "" || dStr == "" {
		h.Error(c, apperror.NewValidation("productId and date are required"))
		return
	}

	productID, err := dto.ParseID("productId", pStr)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := dto.ParseDate("date", dStr)
	if err != nil {
		h.Error(c, err)
		return
	}

	snaps, err := h.service.ListSnapshots(c.Request.Context(), productID, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.SnapshotResponse, len(snaps))
	for i, s := range snaps {
		items[i] = dto.FromSnapshot(s)
	}

	h.OK(c, dto.ListResponse{Items: items, TotalCount: len(items)})
}

// Verify handles GET /snapshots/verify/:productId
func (h *SnapshotHandler) Verify(c *gin.Context) {
	productID, err := dto.ParseID("productId", c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	dStr := c.Query("date")
	if dStr == "" {
		h.Error(c, apperror.NewValidation("date is required"))
		return
	}
	date, err := dto.ParseDate("date", dStr)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Verify(c.Request.Context(), productID, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromVerifyResult(*result))
}

// RegisterRoutes registers snapshot routes.
func (h *SnapshotHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/archive", h.Archive)
	rg.GET("", h.List)
	rg.GET("/verify/:productId", h.Verify)
}
