package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kilang/internal/core/apperror"
	"kilang/internal/core/entity"
	"kilang/internal/core/id"
	"kilang/internal/core/types"
	"kilang/internal/domain/ledger"
	"kilang/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles HTTP requests for the stock ledger.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		service:     service,
	}
}

// movementFn is the shape every single-product movement operation shares.
type movementFn func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error)

// handleMovement parses the shared movement body and dispatches.
func (h *LedgerHandler) handleMovement(c *gin.Context, fn movementFn) {
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := dto.ParseQuantity("quantity", req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := dto.ParseDate("businessDate", req.BusinessDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := fn(c, productID, qty, date, ledger.Reference{
		Type: req.ReferenceType,
		ID:   req.ReferenceID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromTransaction(*rec))
}

// RecordPurchase handles POST /ledger/purchases
func (h *LedgerHandler) RecordPurchase(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.RecordPurchase(c.Request.Context(), productID, qty, date, ref)
	})
}

// RecordSale handles POST /ledger/sales
func (h *LedgerHandler) RecordSale(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.RecordSale(c.Request.Context(), productID, qty, date, ref)
	})
}

// ReverseSale handles POST /ledger/sales/reverse
func (h *LedgerHandler) ReverseSale(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.ReverseSale(c.Request.Context(), productID, qty, date, ref)
	})
}

// RecordProductionReceipt handles POST /ledger/production-receipts
func (h *LedgerHandler) RecordProductionReceipt(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.RecordProductionReceipt(c.Request.Context(), productID, qty, date, ref)
	})
}

// RecordMaterialConsumption handles POST /ledger/material-consumptions
func (h *LedgerHandler) RecordMaterialConsumption(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.RecordMaterialConsumption(c.Request.Context(), productID, qty, date, ref)
	})
}

// RecordSample handles POST /ledger/samples
func (h *LedgerHandler) RecordSample(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.RecordSample(c.Request.Context(), productID, qty, date, ref)
	})
}

// ReturnSample handles POST /ledger/sample-returns
func (h *LedgerHandler) ReturnSample(c *gin.Context) {
	h.handleMovement(c, func(c *gin.Context, productID id.ID, qty types.Quantity, date time.Time, ref ledger.Reference) (*entity.TransactionRecord, error) {
		return h.service.ReturnSample(c.Request.Context(), productID, qty, date, ref)
	})
}

// AdjustStock handles POST /ledger/adjustments
func (h *LedgerHandler) AdjustStock(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	qty, err := dto.ParseQuantity("quantity", req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := dto.ParseDate("businessDate", req.BusinessDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.service.AdjustStock(c.Request.Context(), productID, date, qty, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromTransaction(*rec))
}

// RecordRepacking handles POST /ledger/repackings
func (h *LedgerHandler) RecordRepacking(c *gin.Context) {
	var req dto.RepackRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sourceID, err := dto.ParseID("sourceProductId", req.SourceProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	targetID, err := dto.ParseID("targetProductId", req.TargetProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	sourceQty, err := dto.ParseQuantity("sourceQuantity", req.SourceQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	targetQty, err := dto.ParseQuantity("targetQuantity", req.TargetQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	date, err := dto.ParseDate("businessDate", req.BusinessDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	out, in, err := h.service.RecordRepacking(c.Request.Context(), sourceID, targetID, sourceQty, targetQty, date, ledger.Reference{
		Type: req.ReferenceType,
		ID:   req.ReferenceID,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RepackResponse{
		Out: dto.FromTransaction(*out),
		In:  dto.FromTransaction(*in),
	})
}

// ReverseTransaction handles POST /ledger/transactions/:txId/reverse
func (h *LedgerHandler) ReverseTransaction(c *gin.Context) {
	txID, err := strconv.ParseInt(c.Param("txId"), 10, 64)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid transaction id"))
		return
	}

	var req dto.ReverseTransactionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.Reverse(c.Request.Context(), txID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromTransaction(*rec))
}

// GetBalance handles GET /ledger/balances/:productId
// Without a date query the current (today's) balance is returned.
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	productID, err := dto.ParseID("productId", c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	date := time.Now()
	if dateStr := c.Query("date"); dateStr != "" {
		date, err = dto.ParseDate("date", dateStr)
		if err != nil {
			h.Error(c, err)
			return
		}
	}

	balance, err := h.service.GetBalance(c.Request.Context(), productID, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBalance(*balance))
}

// GetBalanceHistory handles GET /ledger/balances/:productId/history
func (h *LedgerHandler) GetBalanceHistory(c *gin.Context) {
	productID, err := dto.ParseID("productId", c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	fromStr := c.Query("fromDate")
	toStr := c.Query("toDate")
	if fromStr == "" || toStr == "" {
		h.Error(c, apperror.NewValidation("fromDate and toDate are required"))
		return
	}

	from, err := dto.ParseDate("fromDate", fromStr)
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := dto.ParseDate("toDate", toStr)
	if err != nil {
		h.Error(c, err)
		return
	}

	balances, err := h.service.GetBalanceHistory(c.Request.Context(), productID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BalanceResponse, len(balances))
	for i, b := range balances {
		items[i] = dto.FromBalance(b)
	}

	h.OK(c, dto.ListResponse{Items: items, TotalCount: len(items)})
}

// ListTransactions handles GET /ledger/transactions
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	filter := ledger.TransactionFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
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

	if tStr := c.Query("type"); tStr != "" {
		txType := entity.TransactionType(tStr)
		if !txType.Valid() {
			h.Error(c, apperror.NewValidation("unknown transaction type: "+tStr))
			return
		}
		filter.Type = &txType
	}

	filter.ReferenceType = c.Query("referenceType")
	filter.ReferenceID = c.Query("referenceId")

	if fromStr := c.Query("fromDate"); fromStr != "" {
		from, err := dto.ParseDate("fromDate", fromStr)
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.FromDate = &from
	}
	if toStr := c.Query("toDate"); toStr != "" {
		to, err := dto.ParseDate("toDate", toStr)
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.ToDate = &to
	}

	records, err := h.service.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, len(records))
	for i, r := range records {
		items[i] = dto.FromTransaction(r)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: len(items),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/purchases", h.RecordPurchase)
	rg.POST("/sales", h.RecordSale)
	rg.POST("/sales/reverse", h.ReverseSale)
	rg.POST("/production-receipts", h.RecordProductionReceipt)
	rg.POST("/material-consumptions", h.RecordMaterialConsumption)
	rg.POST("/samples", h.RecordSample)
	rg.POST("/sample-returns", h.ReturnSample)
	rg.POST("/adjustments", h.AdjustStock)
	rg.POST("/repackings", h.RecordRepacking)
	rg.GET("/transactions", h.ListTransactions)
	rg.POST("/transactions/:txId/reverse", h.ReverseTransaction)
	rg.GET("/balances/:productId", h.GetBalance)
	rg.GET("/balances/:productId/history", h.GetBalanceHistory)
}
