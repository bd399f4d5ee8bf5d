package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/example/eshop/docs"
	"github.com/example/eshop/pkg/auth"
	"github.com/example/eshop/pkg/config"
	"github.com/example/eshop/pkg/metrics"
	"github.com/example/eshop/pkg/storage"
)

const requestIDHeader = "X-Request-ID"

// Dependencies are the collaborators the HTTP handlers call into. They are
// created once at startup and shared read-only by every request.
type Dependencies struct {
	Orders     OrderService
	Products   ProductStore
	Categories CategoryStore
	Users      UserStore
	Audit      AuditReader
	UserCache  UserCache
	Images     storage.Store
	// UploadsDir is served under /public/uploads when images are kept on disk.
	UploadsDir string
	Tokens     *auth.TokenIssuer
	Metrics    *metrics.ServerMetrics
	Health     func(ctx context.Context) error
}

type Gateway struct {
	config *config.Config
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
	deps   Dependencies
}

func NewGateway(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Gateway {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
	}
	router.Use(corsMiddleware(cfg.Gateway.CORSOrigins))

	return &Gateway{
		config: cfg,
		logger: logger,
		router: router,
		server: &http.Server{
			Addr:              cfg.Gateway.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps: deps,
	}
}

func (g *Gateway) SetupRoutes() {
	// Health check
	g.router.GET("/health", g.health)
	if g.deps.Metrics != nil {
		g.router.GET("/metrics", gin.WrapH(g.deps.Metrics.Handler()))
	}
	if g.deps.UploadsDir != "" {
		g.router.Static(storage.UploadsRoute, g.deps.UploadsDir)
	}

	authn := g.authenticate()
	admin := g.requireAdmin()

	api := g.router.Group(g.config.Gateway.APIPrefix)
	{
		products := api.Group("/products")
		{
			products.GET("", g.listProducts)
			products.GET("/:id", g.getProduct)
			products.GET("/get/count", g.countProducts)
			products.GET("/get/featured/:count", g.featuredProducts)
			products.POST("", authn, admin, g.createProduct)
			products.PUT("/:id", authn, admin, g.updateProduct)
			products.PUT("/gallery-images/:id", authn, admin, g.updateGalleryImages)
			products.DELETE("/:id", authn, admin, g.deleteProduct)
		}

		categories := api.Group("/categories")
		{
			categories.GET("", g.listCategories)
			categories.GET("/:id", g.getCategory)
			categories.POST("", authn, admin, g.createCategory)
			categories.PUT("/:id", authn, admin, g.updateCategory)
			categories.DELETE("/:id", authn, admin, g.deleteCategory)
		}

		users := api.Group("/users")
		{
			users.POST("/login", g.login)
			users.POST("/register", g.register)
			users.GET("", authn, admin, g.listUsers)
			users.GET("/:id", authn, g.getUser)
			users.GET("/get/count", authn, admin, g.countUsers)
			users.POST("", authn, admin, g.createUser)
			users.DELETE("/:id", authn, admin, g.deleteUser)
		}

		orders := api.Group("/orders", authn)
		{
			orders.POST("", g.createOrder)
			orders.GET("", admin, g.listOrders)
			orders.GET("/:id", g.getOrder)
			orders.GET("/user/:userId", g.listUserOrders)
			orders.GET("/get/userorders/:userId", g.listUserOrders)
			orders.PUT("/:id", admin, g.updateOrderStatus)
			orders.DELETE("/:id", admin, g.deleteOrder)
			orders.GET("/:id/audit", admin, g.orderAudit)
		}

		api.GET("/api-docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves until Shutdown. It returns nil when Shutdown ran first.
func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway stopped: %w", err)
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) health(c *gin.Context) {
	if g.deps.Health != nil {
		if err := g.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

func metricsMiddleware(m *metrics.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(cfg)
}
