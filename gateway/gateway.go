package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/order"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	identityKey    = "identity"
)

// Services are the core operations the gateway exposes.
type Services struct {
	Carts    *cart.Service
	Checkout *checkout.Service
	Orders   *order.Service
	Offers   *offer.Service
	// Checks back the readiness endpoint, keyed by dependency name.
	Checks map[string]func(context.Context) error
}

type Gateway struct {
	config   *config.Config
	services Services
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(cfg *config.Config, logger *zap.Logger, services Services) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Gateway.Mode != "" {
		gin.SetMode(cfg.Gateway.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config:   cfg,
		services: services,
		logger:   logger.Named("gateway"),
		router:   router,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.router.GET("/ready", g.ready)

	v1 := g.router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		carts := v1.Group("/cart")
		{
			carts.GET("", g.getCart)
			carts.DELETE("", g.clearCart)
			carts.POST("/items", g.addCartItem)
			carts.PUT("/items/:productId", g.updateCartItem)
			carts.DELETE("/items/:productId", g.removeCartItem)
			carts.POST("/coupon", g.applyCoupon)
			carts.DELETE("/coupon", g.removeCoupon)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", g.checkout)
			orders.GET("", g.listOrders)
			orders.GET("/:number", g.getOrder)
			orders.POST("/:number/cancel", g.cancelOrder)
			orders.POST("/:number/refund", g.requestRefund)
		}

		offers := v1.Group("/offers")
		{
			offers.GET("/active", g.listActiveOffers)
			offers.POST("/validate", g.validateCoupon)
		}

		admin := v1.Group("/admin")
		admin.Use(requireAdmin())
		{
			admin.GET("/orders", g.adminListOrders)
			admin.PUT("/orders/:number/status", g.adminUpdateOrderStatus)
			admin.POST("/orders/:number/refund", g.adminProcessRefund)
			admin.POST("/orders/:number/recalculate", g.adminRecalculateOrder)

			admin.GET("/offers", g.adminListOffers)
			admin.POST("/offers", g.adminCreateOffer)
			admin.GET("/offers/:id", g.adminGetOffer)
			admin.PUT("/offers/:id", g.adminUpdateOffer)
			admin.DELETE("/offers/:id", g.adminDeactivateOffer)
		}
	}

	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := g.config.Gateway.Addr()
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) ready(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range g.services.Checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}

// Responses

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type page struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func (g *Gateway) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, envelope{Error: "internal", Message: "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, envelope{Error: string(kind), Message: apperr.Message(err)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindValidation, apperr.KindInvalidCoupon, apperr.KindExpired,
		apperr.KindAlreadyUsed, apperr.KindEmptyCart, apperr.KindProductUnavailable,
		apperr.KindOutOfStock, apperr.KindUnavailable:
		return http.StatusBadRequest
	case apperr.KindInvalidTransition, apperr.KindAlreadyRequested,
		apperr.KindNoRefundRequested, apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// bind decodes the JSON body into dst, reporting failures as validation errors.
func (g *Gateway) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		g.fail(c, apperr.FromValidation(err))
		return false
	}
	return true
}

func pagination(c *gin.Context) (int, int) {
	p, _ := strconv.Atoi(c.Query("page"))
	l, _ := strconv.Atoi(c.Query("limit"))
	return p, l
}

// Middleware

// identityMiddleware trusts the caller identity forwarded by the auth proxy.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Error: "unauthenticated", Message: "missing " + headerUserID})
			return
		}
		role := models.Role(c.GetHeader(headerUserRole))
		if role == "" {
			role = models.RoleUser
		}
		c.Set(identityKey, models.Identity{UserID: userID, Role: role})
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identity(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, envelope{Error: string(apperr.KindUnauthorized), Message: "admin role required"})
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) models.Identity {
	id, _ := c.MustGet(identityKey).(models.Identity)
	return id
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
