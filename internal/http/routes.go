package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/moments/internal/ws"
)

// RouteConfig holds the middleware settings.
type RouteConfig struct {
	CORSOrigin     string
	AdminToken     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRoutes configures all application routes and middleware. Background
// work started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, hub *ws.Hub, cfg RouteConfig) {
	// --- Middleware ---
	router.Use(RequestLogger(env.Logger))
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
	}
	if cfg.CORSOrigin == "" || cfg.CORSOrigin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.CORSOrigin}
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	go limiter.Cleanup(ctx, 10*time.Minute, 10*time.Minute)

	// --- API Routes ---
	api := router.Group("/api")
	{
		api.GET("/health", env.Health)
		api.GET("/moments", env.GetMoments)
		api.POST("/moments", RateLimitMiddleware(limiter), env.CreateMoment)
		api.POST("/moments/:id/like", env.LikeMoment)
		api.POST("/moments/:id/comments", RateLimitMiddleware(limiter), env.AddComment)
		api.DELETE("/moments/:id", env.DeleteMoment)
		api.DELETE("/moments/:id/comments/:index", env.DeleteComment)
		if cfg.AdminToken != "" {
			api.POST("/moments/clear-comments", AdminAuthMiddleware(cfg.AdminToken), env.ClearComments)
		}
	}

	// --- WebSocket Route ---
	if hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			ws.ServeWs(hub, c.Writer, c.Request)
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
