package api

import (
	"net/http"

	reqdto "checkout-saga/internal/handler/dto/request"
	resdto "checkout-saga/internal/handler/dto/response"
	"checkout-saga/internal/handler/httperr"
	"checkout-saga/internal/usecase/commands"
	"checkout-saga/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutHandler struct {
	cmds commands.CheckoutCommands
	q    queries.CheckoutQueries
}

func NewCheckoutHandler(cmds commands.CheckoutCommands, q queries.CheckoutQueries) *CheckoutHandler {
	return &CheckoutHandler{cmds: cmds, q: q}
}

// @Summary Start checkout
// @Description Start a checkout saga. The Idempotency-Key header becomes the saga id, so retries return the same saga.
// @Tags checkouts
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Client generated UUID"
// @Param request body reqdto.CreateCheckoutRequest true "Checkout request"
// @Success 201 {object} resdto.CheckoutResponse
// @Success 200 {object} resdto.CheckoutResponse "Replayed"
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/checkouts [post]
func (h *CheckoutHandler) Create(c *gin.Context) {
	sagaID, err := uuid.Parse(c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Idempotency-Key must be a UUID", nil)
		return
	}
	var req reqdto.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	items, err := req.ToLineItems()
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid items", nil)
		return
	}

	result, err := h.cmds.Start(c.Request.Context(), commands.CheckoutCommand{
		SagaID: sagaID,
		UserID: req.UserID,
		Items:  items,
	})
	if err != nil {
		abortWithUseCaseError(c, err, "Checkout failed")
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), result.Saga.ID())
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to load checkout", nil)
		return
	}
	status := http.StatusCreated
	if result.IsReplayed {
		status = http.StatusOK
	}
	c.Header("Location", "/api/checkouts/"+sagaID.String())
	c.JSON(status, resdto.FromCheckoutView(view))
}

// @Summary Get checkout
// @Description Get a checkout saga by ID
// @Tags checkouts
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {object} resdto.CheckoutResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/checkouts/{id} [get]
func (h *CheckoutHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}
	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithUseCaseError(c, err, "Failed to load checkout")
		return
	}
	c.JSON(http.StatusOK, resdto.FromCheckoutView(view))
}

// @Summary Cancel checkout
// @Description Cancel a checkout that has not been paid yet. Held stock is released.
// @Tags checkouts
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {object} resdto.CheckoutResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/checkouts/{id}/cancel [post]
func (h *CheckoutHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}
	if _, err := h.cmds.Cancel(c.Request.Context(), id); err != nil {
		abortWithUseCaseError(c, err, "Cancel failed")
		return
	}
	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to load checkout", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromCheckoutView(view))
}

// @Summary List checkout events
// @Description List the outbound messages a checkout saga has emitted
// @Tags checkouts
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {array} resdto.SagaEventResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/checkouts/{id}/events [get]
func (h *CheckoutHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}
	views, err := h.q.ListEvents(c.Request.Context(), id)
	if err != nil {
		abortWithUseCaseError(c, err, "Failed to load events")
		return
	}
	c.JSON(http.StatusOK, resdto.FromSagaEventViews(views))
}
