// Package httpapi serves the analysis operations as JSON over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/service"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Options configures the router.
type Options struct {
	// AllowedOrigins lists CORS origins. Empty or "*" allows all.
	AllowedOrigins []string
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Logger  logging.Logger
}

// NewRouter creates and configures the Gin router.
func NewRouter(svc *service.Service, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestContext(log))
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	h := NewHandler(svc)

	v1 := router.Group("/v1")
	v1.POST("/evaluate", h.Evaluate)
	v1.POST("/derivatives", h.Derivatives)
	v1.POST("/neutral-point", h.NeutralPoint)

	vehicles := v1.Group("/vehicles")
	vehicles.GET("", h.ListVehicles)
	vehicles.POST("", h.CreateVehicle)
	vehicles.GET("/:id", h.GetVehicle)
	vehicles.PUT("/:id", h.PutVehicle)
	vehicles.DELETE("/:id", h.DeleteVehicle)

	router.GET("/health", h.HealthCheck)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, RequestIDHeader)
	cfg.ExposeHeaders = []string{RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// requestContext attaches a request ID and a request-scoped logger, then
// logs the finished request.
func requestContext(base logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		if incoming := c.GetHeader(RequestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("path", c.FullPath())))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))

		c.Next()

		reqLog.Info(ctx, "http request",
			logging.String("method", c.Request.Method),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	}
}
