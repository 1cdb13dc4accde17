package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kilang/internal/core/apperror"
	"kilang/internal/domain/formula"
	"kilang/internal/infrastructure/http/v1/dto"
)

// FormulaHandler handles HTTP requests for production formulas.
type FormulaHandler struct {
	*BaseHandler
	service *formula.Service
}

// NewFormulaHandler creates a new formula handler.
func NewFormulaHandler(base *BaseHandler, service *formula.Service) *FormulaHandler {
	return &FormulaHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /formulas
func (h *FormulaHandler) Create(c *gin.Context) {
	var req dto.CreateFormulaRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}

	materials := make([]formula.MaterialInput, len(req.Materials))
	for i, m := range req.Materials {
		materialID, err := dto.ParseID("materialId", m.MaterialID)
		if err != nil {
			h.Error(c, err)
			return
		}
		ratio, err := dto.ParseQuantity("ratio", m.Ratio)
		if err != nil {
			h.Error(c, err)
			return
		}
		materials[i] = formula.MaterialInput{
			MaterialID: materialID,
			Ratio:      ratio,
			Unit:       m.Unit,
		}
	}

	f, err := h.service.Create(c.Request.Context(), productID, req.Name, materials)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromFormula(*f))
}

// Activate handles POST /formulas/:formulaId/activate
func (h *FormulaHandler) Activate(c *gin.Context) {
	formulaID, err := dto.ParseID("formulaId", c.Param("formulaId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.ActivateFormulaRequest
	if !h.BindJSON(c, &req) {
		return
	}

	effectiveFrom := time.Now()
	if req.EffectiveFrom != "" {
		effectiveFrom, err = dto.ParseDate("effectiveFrom", req.EffectiveFrom)
		if err != nil {
			h.Error(c, err)
			return
		}
	}

	f, err := h.service.Activate(c.Request.Context(), formulaID, effectiveFrom)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromFormula(*f))
}

// Retire handles POST /formulas/:formulaId/retire
func (h *FormulaHandler) Retire(c *gin.Context) {
	formulaID, err := dto.ParseID("formulaId", c.Param("formulaId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	f, err := h.service.Retire(c.Request.Context(), formulaID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromFormula(*f))
}

// Get handles GET /formulas/:formulaId
func (h *FormulaHandler) Get(c *gin.Context) {
	formulaID, err := dto.ParseID("formulaId", c.Param("formulaId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	f, err := h.service.Get(c.Request.Context(), formulaID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromFormula(*f))
}

// ListVersions handles GET /formulas
func (h *FormulaHandler) ListVersions(c *gin.Context) {
	pStr := c.Query("productId")
	if pStr == "" {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	productID, err := dto.ParseID("productId", pStr)
	if err != nil {
		h.Error(c, err)
		return
	}

	versions, err := h.service.ListVersions(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.FormulaResponse, len(versions))
	for i, f := range versions {
		items[i] = dto.FromFormula(f)
	}

	h.OK(c, dto.ListResponse{Items: items, TotalCount: len(items)})
}

// CalculateRequirements handles POST /formulas/:formulaId/requirements
// Previews material needs for a target volume without touching stock.
func (h *FormulaHandler) CalculateRequirements(c *gin.Context) {
	formulaID, err := dto.ParseID("formulaId", c.Param("formulaId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.RequirementsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	volume, err := dto.ParseQuantity("targetVolume", req.TargetVolume)
	if err != nil {
		h.Error(c, err)
		return
	}

	reqs, err := h.service.CalculateRequirements(c.Request.Context(), formulaID, volume)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromRequirements(reqs),
		TotalCount: len(reqs),
	})
}

// RegisterRoutes registers formula routes.
func (h *FormulaHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.ListVersions)
	rg.GET("/:formulaId", h.Get)
	rg.POST("/:formulaId/activate", h.Activate)
	rg.POST("/:formulaId/retire", h.Retire)
	rg.POST("/:formulaId/requirements", h.CalculateRequirements)
}
