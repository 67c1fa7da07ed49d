package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"checkout-saga/internal/handler/httperr"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

const (
	SignatureHeader = "X-Payment-Signature"

	maxCallbackBody = 64 << 10
)

type SignatureVerifier interface {
	Verify(token string, body []byte) error
}

var _ SignatureVerifier = (*jwt.Service)(nil)

type SignatureMiddleware struct {
	verifier SignatureVerifier
}

func NewSignatureMiddleware(verifier *jwt.Service) *SignatureMiddleware {
	return &SignatureMiddleware{verifier: verifier}
}

// RequireSignature checks the signed body digest and rewinds the body for the handler.
func (m *SignatureMiddleware) RequireSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SignatureHeader)
		if token == "" {
			httperr.AbortWithError(c, http.StatusUnauthorized, errs.ErrInvalidSignature, "Signature required", nil)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody+1))
		if err != nil {
			httperr.AbortWithError(c, http.StatusBadRequest, err, "Failed to read body", nil)
			return
		}
		if len(body) > maxCallbackBody {
			httperr.AbortWithError(c, http.StatusRequestEntityTooLarge, errs.ErrInvalidCheckout, "Callback body too large", nil)
			return
		}

		if err := m.verifier.Verify(token, body); err != nil {
			slog.Warn("payment callback signature rejected", "error", err.Error(), "client_ip", c.ClientIP())
			httperr.AbortWithError(c, http.StatusUnauthorized, errs.Mark(err, errs.ErrInvalidSignature), "Invalid signature", nil)
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
