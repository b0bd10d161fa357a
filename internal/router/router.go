package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/handler"
	"github.com/GolferGeek/sync-focus/internal/middleware"
	"github.com/GolferGeek/sync-focus/internal/service"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Documents *handler.DocumentHandler
	Watch     *handler.WatchHandler
}

func New(
	authService *service.AuthService,
	handlers Handlers,
	origins middleware.Origins,
	logger zerolog.Logger,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(origins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", middleware.AuthorizedDomain(origins), handlers.Auth.Register)
	auth.POST("/login", middleware.AuthorizedDomain(origins), handlers.Auth.Login)
	auth.GET("/me", middleware.Auth(authService), handlers.Auth.Me)

	docs := api.Group("/docs")
	docs.Use(middleware.Auth(authService))
	docs.GET("/:collection", handlers.Documents.List)
	docs.POST("/:collection", handlers.Documents.Create)
	docs.GET("/:collection/:id", handlers.Documents.Get)
	docs.PUT("/:collection/:id", handlers.Documents.Put)
	docs.PATCH("/:collection/:id", handlers.Documents.Patch)
	docs.DELETE("/:collection/:id", handlers.Documents.Delete)

	api.GET("/watch", middleware.Auth(authService), handlers.Watch.Watch)

	return engine
}
