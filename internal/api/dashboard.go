package api

import (
	"net/http"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	Messenger campaign.Messenger
	Store     *store.ConversationStore
}

func NewDashboardHandler(messenger campaign.Messenger, convStore *store.ConversationStore) *DashboardHandler {
	return &DashboardHandler{Messenger: messenger, Store: convStore}
}

type SendRequest struct {
	To      string `json:"to" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// SendMessage sends a manual outbound text outside the automated funnel
// and logs it so the dialog engine sees it as context later.
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Messenger.SendText(req.To, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message: " + err.Error()})
		return
	}
	if err := h.Store.Append(req.To, models.DirectionOutbound, models.ChannelText, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Message sent but not logged: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Message sent"})
}
