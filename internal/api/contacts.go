package api

import (
	"net/http"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/models"
	"campaign-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	Manager *campaign.Manager
	Store   *store.ConversationStore
}

func NewContactHandler(manager *campaign.Manager, convStore *store.ConversationStore) *ContactHandler {
	return &ContactHandler{Manager: manager, Store: convStore}
}

// GetContacts returns the current lifecycle summary of every tracked
// contact.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	contacts := h.Manager.Snapshot()
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

// GetHistory returns a contact's full ordered message log.
func (h *ContactHandler) GetHistory(c *gin.Context) {
	number := c.Param("number")
	messages, err := h.Store.History(number, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}
