package api

import (
	"net/http"

	reqdto "checkout-saga/internal/handler/dto/request"
	resdto "checkout-saga/internal/handler/dto/response"
	"checkout-saga/internal/handler/httperr"
	"checkout-saga/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	cmds commands.CheckoutCommands
}

func NewPaymentHandler(cmds commands.CheckoutCommands) *PaymentHandler {
	return &PaymentHandler{cmds: cmds}
}

// @Summary Payment callback
// @Description Receive a payment result. Stale and duplicate callbacks are acknowledged without effect.
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Payment-Signature header string true "HS256 token over the body digest"
// @Param request body reqdto.PaymentCallbackRequest true "Payment callback"
// @Success 200 {object} resdto.PaymentCallbackResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req reqdto.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}

	inst, err := h.cmds.HandlePaymentCallback(c.Request.Context(), req.ToCommand())
	if err != nil {
		abortWithUseCaseError(c, err, "Callback processing failed")
		return
	}
	c.JSON(http.StatusOK, resdto.PaymentCallbackResponse{
		SagaID:  inst.ID(),
		State:   string(inst.State()),
		StepSeq: inst.StepSeq(),
	})
}
