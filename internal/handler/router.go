package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"checkout-saga/internal/handler/api"
	"checkout-saga/internal/handler/middleware"
	"checkout-saga/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

type Handlers struct {
	Checkout  *api.CheckoutHandler
	Payment   *api.PaymentHandler
	Inventory *api.InventoryHandler
}

func NewRouter(
	engine *gin.Engine,
	cfg config.Config,
	checkoutHandler *api.CheckoutHandler,
	paymentHandler *api.PaymentHandler,
	inventoryHandler *api.InventoryHandler,
	signature *middleware.SignatureMiddleware,
	registry *prometheus.Registry,
) {
	setupMiddleware(engine, cfg)
	setupRoutes(engine, Handlers{
		Checkout:  checkoutHandler,
		Payment:   paymentHandler,
		Inventory: inventoryHandler,
	}, signature, registry)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.LoggingMiddleware(nil, cfg.Log))
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(engine *gin.Engine, h Handlers, signature *middleware.SignatureMiddleware, registry *prometheus.Registry) {
	engine.GET("/health", healthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	if gin.Mode() == gin.DebugMode {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group("/api")
	{
		checkouts := apiGroup.Group("/checkouts")
		{
			addRoutes(checkouts, []route{
				{Method: http.MethodPost, Path: "", Handler: h.Checkout.Create},
				{Method: http.MethodGet, Path: "/:id", Handler: h.Checkout.Get},
				{Method: http.MethodPost, Path: "/:id/cancel", Handler: h.Checkout.Cancel},
				{Method: http.MethodGet, Path: "/:id/events", Handler: h.Checkout.Events},
			})
		}

		payments := apiGroup.Group("/payments")
		{
			addRoutes(payments, []route{
				{Method: http.MethodPost, Path: "/callback", Handler: h.Payment.Callback, Mw: []gin.HandlerFunc{signature.RequireSignature()}},
			})
		}

		inventory := apiGroup.Group("/inventory")
		{
			addRoutes(inventory, []route{
				{Method: http.MethodGet, Path: "", Handler: h.Inventory.List},
				{Method: http.MethodPost, Path: "", Handler: h.Inventory.Provision},
				{Method: http.MethodPost, Path: "/deduct", Handler: h.Inventory.Deduct},
				{Method: http.MethodGet, Path: "/:sku", Handler: h.Inventory.Get},
				{Method: http.MethodGet, Path: "/:sku/history", Handler: h.Inventory.History},
				{Method: http.MethodPost, Path: "/:sku/adjust", Handler: h.Inventory.Adjust},
			})
		}
	}
}

// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
