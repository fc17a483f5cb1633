// Package api 组装 HTTP 路由与中间件
package api

import (
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/live-commerce/docs"
	"github.com/d60-Lab/live-commerce/internal/api/handler"
	"github.com/d60-Lab/live-commerce/internal/api/middleware"
)

// Options 路由级开关
type Options struct {
	Mode         string
	JWTSecret    string
	CookieName   string
	AllowOrigins []string
	Sentry       bool
	Tracing      bool
	ServiceName  string
}

// NewRouter 注册全部路由
func NewRouter(h *handler.Handler, opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(middleware.Logger())
	r.Use(corsMiddleware(opts.AllowOrigins))

	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := func(roles ...string) gin.HandlerFunc {
		return middleware.Auth(opts.JWTSecret, opts.CookieName, roles...)
	}

	// websocket 不走 gzip
	r.GET("/ws/live", auth(), h.LiveSocket)

	v1 := r.Group("/api/v1")
	v1.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		lives := v1.Group("/lives")
		lives.GET("", h.ListLives)
		lives.GET("/:id", h.GetLive)
		lives.GET("/:id/messages", h.ListMessages)

		partner := v1.Group("/partner", auth(middleware.RolePartner))
		partner.POST("/settlements", h.RequestSettlement)
		partner.GET("/settlements", h.ListMySettlements)
		partner.GET("/settlements/available", h.AvailableAmount)
		partner.POST("/lives", h.CreateLive)
		partner.POST("/lives/:id/start", h.StartLive)
		partner.POST("/lives/:id/end", h.EndLive)

		admin := v1.Group("/admin", auth(middleware.RoleAdmin))
		admin.GET("/settlements", h.ListSettlements)
		admin.GET("/settlements/:id", h.GetSettlement)
		admin.PATCH("/settlements/:id", h.ResolveSettlement)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if containsWildcard(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}
