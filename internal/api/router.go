package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/roundtable/internal/api/admin"
	"github.com/liliang-cn/roundtable/internal/api/discussion"
	"github.com/liliang-cn/roundtable/internal/api/middleware"
	"github.com/liliang-cn/roundtable/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	adminService *service.AdminService,
	discussionService *service.DiscussionService,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Roundtable API (public)
	discussionHandler := discussion.NewHandler(discussionService)
	discussionHandler.RegisterRoutes(r.Group("/api/roundtable"))

	// Admin API (requires API key when configured)
	adminHandler := admin.NewHandler(adminService)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.Auth(cfg.APIKey))
	adminHandler.RegisterRoutes(adminGroup)

	return r
}
