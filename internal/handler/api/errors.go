package api

import (
	"net/http"

	"checkout-saga/internal/handler/httperr"
	"checkout-saga/internal/pkg/errs"

	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	target error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	{errs.ErrInvalidCheckout, http.StatusBadRequest, "Invalid checkout"},
	{errs.ErrInvalidAdjustment, http.StatusBadRequest, "Invalid adjustment"},
	{errs.ErrInvalidSignature, http.StatusUnauthorized, "Invalid signature"},
	{errs.ErrSagaNotFound, http.StatusNotFound, "Checkout not found"},
	{errs.ErrSKUNotFound, http.StatusNotFound, "SKU not found"},
	{errs.ErrReservationNotFound, http.StatusNotFound, "Reservation not found"},
	{errs.ErrDuplicateCheckout, http.StatusConflict, "Idempotency key already used"},
	{errs.ErrCancelNotAllowed, http.StatusConflict, "Checkout can no longer be cancelled"},
	{errs.ErrInsufficientStock, http.StatusConflict, "Insufficient stock"},
	{errs.ErrSKUExists, http.StatusConflict, "SKU already exists"},
	{errs.ErrReservationExpired, http.StatusConflict, "Reservation expired"},
	{errs.ErrConcurrencyExhausted, http.StatusServiceUnavailable, "Inventory is busy, retry later"},
}

// abortWithUseCaseError picks the status from the first matching sentinel.
func abortWithUseCaseError(c *gin.Context, err error, fallback string) {
	for _, m := range errorMappings {
		if errs.Is(err, m.target) {
			httperr.AbortWithError(c, m.status, err, m.msg, nil)
			return
		}
	}
	httperr.AbortWithError(c, http.StatusInternalServerError, err, fallback, nil)
}
