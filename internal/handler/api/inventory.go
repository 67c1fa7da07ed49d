package api

import (
	"net/http"
	"strconv"

	reqdto "checkout-saga/internal/handler/dto/request"
	resdto "checkout-saga/internal/handler/dto/response"
	"checkout-saga/internal/handler/httperr"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	manager commands.ReservationManager
	q       queries.InventoryQueries
}

func NewInventoryHandler(manager commands.ReservationManager, q queries.InventoryQueries) *InventoryHandler {
	return &InventoryHandler{manager: manager, q: q}
}

// @Summary List inventory
// @Description List every SKU ledger row
// @Tags inventory
// @Produce json
// @Success 200 {array} resdto.InventoryResponse
// @Router /api/inventory [get]
func (h *InventoryHandler) List(c *gin.Context) {
	views, err := h.q.List(c.Request.Context())
	if err != nil {
		abortWithUseCaseError(c, err, "Failed to list inventory")
		return
	}
	c.JSON(http.StatusOK, resdto.FromInventoryViews(views))
}

// @Summary Get inventory
// @Description Get the ledger row for one SKU
// @Tags inventory
// @Produce json
// @Param sku path string true "SKU code"
// @Success 200 {object} resdto.InventoryResponse
// @Failure 404 {object} map[string]string
// @Router /api/inventory/{sku} [get]
func (h *InventoryHandler) Get(c *gin.Context) {
	view, err := h.q.GetBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		abortWithUseCaseError(c, err, "Failed to load inventory")
		return
	}
	c.JSON(http.StatusOK, resdto.FromInventoryView(view))
}

// @Summary Inventory history
// @Description Most recent ledger operations for one SKU, newest first
// @Tags inventory
// @Produce json
// @Param sku path string true "SKU code"
// @Param limit query int false "Max entries" default(50)
// @Success 200 {array} resdto.InventoryLogResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/inventory/{sku}/history [get]
func (h *InventoryHandler) History(c *gin.Context) {
	limit := queries.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httperr.AbortWithError(c, http.StatusBadRequest, strconv.ErrSyntax, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	views, err := h.q.History(c.Request.Context(), c.Param("sku"), limit)
	if err != nil {
		abortWithUseCaseError(c, err, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, resdto.FromInventoryLogViews(views))
}

// @Summary Provision SKU
// @Description Create the ledger row for a new SKU
// @Tags inventory
// @Accept json
// @Produce json
// @Param request body reqdto.ProvisionInventoryRequest true "Provision request"
// @Success 201 {object} resdto.InventoryResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/inventory [post]
func (h *InventoryHandler) Provision(c *gin.Context) {
	var req reqdto.ProvisionInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	rec, err := h.manager.Provision(c.Request.Context(), req.SKUCode, req.TotalQuantity, req.Operator)
	if err != nil {
		abortWithUseCaseError(c, err, "Provision failed")
		return
	}
	c.JSON(http.StatusCreated, resdto.FromInventoryRecord(rec))
}

// @Summary Adjust stock
// @Description Restock or write off available stock for a SKU
// @Tags inventory
// @Accept json
// @Produce json
// @Param sku path string true "SKU code"
// @Param request body reqdto.AdjustInventoryRequest true "Adjust request"
// @Success 200 {object} resdto.InventoryResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/inventory/{sku}/adjust [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req reqdto.AdjustInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	rec, err := h.manager.Adjust(c.Request.Context(), commands.AdjustCommand{
		SKUCode:  c.Param("sku"),
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Operator: req.Operator,
	})
	if err != nil {
		abortWithUseCaseError(c, err, "Adjust failed")
		return
	}
	c.JSON(http.StatusOK, resdto.FromInventoryRecord(rec))
}

// @Summary Deduct stock
// @Description Deduct stock immediately without a checkout, all lines or none
// @Tags inventory
// @Accept json
// @Produce json
// @Param request body reqdto.DeductInventoryRequest true "Deduct request"
// @Success 200 {object} resdto.DeductResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/inventory/deduct [post]
func (h *InventoryHandler) Deduct(c *gin.Context) {
	var req reqdto.DeductInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	items, err := req.ToLineItems()
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid items", nil)
		return
	}
	ids, err := h.manager.DeductNow(c.Request.Context(), req.ReferenceID, items)
	if err != nil {
		abortWithUseCaseError(c, err, "Deduct failed")
		return
	}
	c.JSON(http.StatusOK, resdto.DeductResponse{ReferenceID: req.ReferenceID, ReservationIDs: ids})
}
