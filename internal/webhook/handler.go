package webhook

import (
	"log"
	"net/http"

	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/config"
	"campaign-gateway/pkg/models"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Config  *config.Config
	Manager *campaign.Manager
}

func NewHandler(cfg *config.Config, manager *campaign.Manager) *Handler {
	return &Handler{
		Config:  cfg,
		Manager: manager,
	}
}

// VerifyWebhook answers the messaging gateway's challenge/response
// handshake against the shared verify token.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			log.Println("Webhook verified successfully!")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleMessage ingests inbound events. Once the payload parses, receipt
// is acknowledged regardless of downstream outcomes so the gateway does
// not redeliver; malformed sibling entries are skipped, not fatal.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Error binding JSON: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			names := make(map[string]string, len(value.Contacts))
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, message := range value.Messages {
				if message.Type != "text" || message.From == "" {
					log.Printf("Skipping %s message from %q", message.Type, message.From)
					continue
				}
				log.Printf("Received text message from %s", message.From)
				// Enqueued in arrival order before the ACK below, so
				// per-contact log order matches delivery order.
				h.Manager.HandleInbound(message.From, names[message.From], message.Text.Body)
			}
		}
	}

	c.Status(http.StatusOK)
}
