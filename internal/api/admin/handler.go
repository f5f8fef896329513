package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/roundtable/internal/api/respond"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/service"
)

// Handler handles admin API requests
type Handler struct {
	adminService *service.AdminService
}

// NewHandler creates a new admin handler
func NewHandler(adminService *service.AdminService) *Handler {
	return &Handler{adminService: adminService}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sites := r.Group("/sites")
	{
		sites.POST("", h.CreateSite)
		sites.GET("", h.ListSites)
		sites.PUT("/order", h.ReorderSites)
		sites.POST("/test", h.TestAllSites)
		sites.GET("/:id", h.GetSite)
		sites.PUT("/:id", h.UpdateSite)
		sites.DELETE("/:id", h.DeleteSite)
		sites.POST("/:id/toggle", h.ToggleSite)
		sites.POST("/:id/test", h.TestSite)
	}

	health := r.Group("/health")
	{
		health.GET("", h.ListHealth)
		health.DELETE("", h.ResetAllHealth)
		health.DELETE("/:id", h.ResetHealth)
	}

	r.GET("/loadbalancer", h.GetLoadBalancerConfig)
	r.PUT("/loadbalancer", h.UpdateLoadBalancerConfig)

	experts := r.Group("/experts")
	{
		experts.GET("", h.GetExperts)
		experts.PUT("", h.UpdateExperts)
		experts.POST("/reset", h.ResetExperts)
	}

	presets := r.Group("/presets")
	{
		presets.POST("", h.CreatePreset)
		presets.GET("", h.ListPresets)
		presets.GET("/:id", h.GetPreset)
		presets.PUT("/:id", h.UpdatePreset)
		presets.DELETE("/:id", h.DeletePreset)
		presets.POST("/:id/load", h.LoadPreset)
	}

	chats := r.Group("/chats")
	{
		chats.GET("", h.ListChats)
		chats.GET("/:id", h.GetChat)
		chats.PUT("/:id", h.RenameChat)
		chats.DELETE("/:id", h.DeleteChat)
	}

	r.GET("/stats", h.GetStats)
}

// Site handlers

func (h *Handler) CreateSite(c *gin.Context) {
	var req domain.CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	site, err := h.adminService.CreateSite(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, site)
}

func (h *Handler) ListSites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sites": h.adminService.ListSites(c.Request.Context())})
}

func (h *Handler) GetSite(c *gin.Context) {
	site, err := h.adminService.GetSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, site)
}

func (h *Handler) UpdateSite(c *gin.Context) {
	var req domain.UpdateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	site, err := h.adminService.UpdateSite(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, site)
}

func (h *Handler) DeleteSite(c *gin.Context) {
	if err := h.adminService.DeleteSite(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "site deleted"})
}

func (h *Handler) ToggleSite(c *gin.Context) {
	site, err := h.adminService.ToggleSite(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, site)
}

func (h *Handler) ReorderSites(c *gin.Context) {
	var req domain.ReorderSitesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	sites, err := h.adminService.ReorderSites(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

func (h *Handler) TestSite(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.adminService.TestSite(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"site_id": id, "ok": ok})
}

func (h *Handler) TestAllSites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.adminService.TestAllSites(c.Request.Context())})
}

// Health handlers

func (h *Handler) ListHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"health": h.adminService.ListHealth(c.Request.Context())})
}

func (h *Handler) ResetHealth(c *gin.Context) {
	if err := h.adminService.ResetHealth(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "site health reset"})
}

func (h *Handler) ResetAllHealth(c *gin.Context) {
	h.adminService.ResetAllHealth(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "all site health reset"})
}

// Load balancer handlers

func (h *Handler) GetLoadBalancerConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.adminService.GetLoadBalancerConfig(c.Request.Context()))
}

func (h *Handler) UpdateLoadBalancerConfig(c *gin.Context) {
	var req domain.LoadBalancerConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	cfg, err := h.adminService.UpdateLoadBalancerConfig(c.Request.Context(), req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// Expert handlers

func (h *Handler) GetExperts(c *gin.Context) {
	experts, err := h.adminService.GetExperts(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experts": experts})
}

func (h *Handler) UpdateExperts(c *gin.Context) {
	var req struct {
		Experts []domain.Expert `json:"experts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	experts, err := h.adminService.UpdateExperts(c.Request.Context(), req.Experts)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experts": experts})
}

func (h *Handler) ResetExperts(c *gin.Context) {
	experts, err := h.adminService.ResetExperts(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experts": experts})
}

// Preset handlers

func (h *Handler) CreatePreset(c *gin.Context) {
	var req domain.CreatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	preset, err := h.adminService.CreatePreset(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, preset)
}

func (h *Handler) ListPresets(c *gin.Context) {
	presets, err := h.adminService.ListPresets(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

func (h *Handler) GetPreset(c *gin.Context) {
	preset, err := h.adminService.GetPreset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, preset)
}

func (h *Handler) UpdatePreset(c *gin.Context) {
	var req domain.UpdatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	preset, err := h.adminService.UpdatePreset(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, preset)
}

func (h *Handler) DeletePreset(c *gin.Context) {
	if err := h.adminService.DeletePreset(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "preset deleted"})
}

func (h *Handler) LoadPreset(c *gin.Context) {
	experts, err := h.adminService.LoadPreset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experts": experts})
}

// Chat handlers

func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.adminService.ListChats(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) GetChat(c *gin.Context) {
	chat, err := h.adminService.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (h *Handler) RenameChat(c *gin.Context) {
	var req domain.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	chat, err := h.adminService.RenameChat(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	if err := h.adminService.DeleteChat(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}

// Stats handler

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
