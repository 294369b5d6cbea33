package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-assistant/internal/handler/prometheus"
	"github.com/jwalitptl/booking-assistant/internal/middleware"
	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	metrics  *prometheus.Handler
	healthH  Handler
	authH    Handler
	messageH Handler
	adminH   []Handler
}

type RouterConfig struct {
	// RateLimiter is nil when rate limiting is disabled.
	RateLimiter *middleware.RateLimiter
	CORSConfig  middleware.CORSConfig
	MaxBodySize int64
	Debug       bool
}

type Handlers struct {
	Health  Handler
	Auth    Handler
	Message Handler
	// Admin handlers are mounted behind admin authentication.
	Admin []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	metrics *prometheus.Handler,
	handlers Handlers,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	r := &Router{
		engine:   engine,
		auth:     auth,
		metrics:  metrics,
		healthH:  handlers.Health,
		authH:    handlers.Auth,
		messageH: handlers.Message,
		adminH:   handlers.Admin,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
	)
	if config.RateLimiter != nil {
		engine.Use(config.RateLimiter.RateLimit())
	}
	engine.Use(middleware.BodyLimit(config.MaxBodySize))

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.metrics.Handler())
	r.healthH.RegisterRoutes(r.engine.Group(""))

	api := r.engine.Group("/api/v1")

	// Public routes
	r.messageH.RegisterRoutes(api)
	if r.authH != nil {
		r.authH.RegisterRoutes(api)
	}

	// Admin routes
	if r.auth == nil {
		return
	}
	admin := api.Group("/admin")
	admin.Use(
		r.auth.Authenticate(),
		r.auth.RequireRole(model.RoleAdmin),
	)
	for _, h := range r.adminH {
		h.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
