package discussion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/roundtable/internal/api/respond"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/service"
)

// Handler handles roundtable API requests
type Handler struct {
	discussionService *service.DiscussionService
}

// NewHandler creates a new roundtable handler
func NewHandler(discussionService *service.DiscussionService) *Handler {
	return &Handler{discussionService: discussionService}
}

// RegisterRoutes registers roundtable routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/discussions", h.StartDiscussion)
	r.POST("/stop", h.Stop)
	r.GET("/state", h.GetState)
	r.GET("/messages", h.GetMessages)
	r.POST("/save", h.Save)
}

// Discussion handlers

// StartDiscussion runs a discussion and streams its events (SSE). The
// discussion stops when the client disconnects.
func (h *Handler) StartDiscussion(c *gin.Context) {
	var req domain.StartDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	events, err := h.discussionService.Start(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		writeEvent(w, event)
		return event.Type != domain.EventComplete && event.Type != domain.EventError
	})
}

// Stop cancels the running discussion, if any
func (h *Handler) Stop(c *gin.Context) {
	h.discussionService.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "discussion stopped"})
}

// Save stores the current transcript as a chat
func (h *Handler) Save(c *gin.Context) {
	var req domain.SaveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}

	chat, err := h.discussionService.Save(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, chat)
}

// State handlers

// GetState returns the progress of the current or last discussion
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.discussionService.State())
}

// GetMessages returns the transcript of the current or last discussion
func (h *Handler) GetMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.discussionService.Messages()})
}

func writeEvent(w io.Writer, event domain.DiscussionEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
