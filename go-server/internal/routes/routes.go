package route

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/handler"
	"github.com/shortly/shortly/go-server/internal/middleware"
)

type Dependencies struct {
	URLHandler    *handler.URLHandler
	AuthHandler   *handler.AuthHandler
	HealthHandler *handler.HealthHandler
	Tokens        middleware.TokenValidator
	Limiter       middleware.Limiter
	// MetricsHandler serves /metrics; omitted when nil.
	MetricsHandler http.Handler
	AllowAnonymous bool
	AllowedOrigins []string
	Logger         *zap.Logger
}

func SetupRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(d.Logger),
		middleware.MetricsMiddleware(),
	)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", d.HealthHandler.Health)
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	limited := r.Group("/")
	if d.Limiter != nil {
		limited.Use(middleware.RateLimit(d.Limiter))
	}

	auth := limited.Group("/api/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)

	urls := limited.Group("/api/urls")
	createAuth := middleware.AuthMiddleware(d.Tokens)
	if d.AllowAnonymous {
		createAuth = middleware.OptionalAuthMiddleware(d.Tokens)
	}
	urls.POST("", createAuth, d.URLHandler.CreateURL)
	urls.GET("/my-urls", middleware.AuthMiddleware(d.Tokens), d.URLHandler.ListMyURLs)

	limited.GET("/:slug", d.URLHandler.Redirect)

	return r
}
