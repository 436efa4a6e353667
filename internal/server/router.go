package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/minutes-backend/internal/handlers"
	"github.com/yungbote/minutes-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler      *handlers.AuthHandler
	AuthMiddleware   *middleware.AuthMiddleware
	ProjectHandler   *handlers.ProjectHandler
	RecordingHandler *handlers.RecordingHandler

	AllowOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	if cfg.AuthHandler != nil {
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
	}

	// Protected
	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	if cfg.ProjectHandler != nil {
		protected.POST("/projects", cfg.ProjectHandler.CreateProject)
		protected.GET("/projects", cfg.ProjectHandler.ListProjects)
		protected.POST("/projects/:id/workspaces", cfg.ProjectHandler.CreateWorkspace)
		protected.GET("/workspaces", cfg.ProjectHandler.ListWorkspaces)
	}
	if cfg.RecordingHandler != nil {
		protected.POST("/recordings/upload", cfg.RecordingHandler.Upload)
		protected.GET("/recordings/:id/status", cfg.RecordingHandler.Status)
		protected.POST("/recordings/:id/cancel", cfg.RecordingHandler.Cancel)
		protected.POST("/recordings/:id/retry", cfg.RecordingHandler.Retry)
		protected.GET("/workspaces/:id/recordings", cfg.RecordingHandler.ListByWorkspace)
	}

	return router
}
