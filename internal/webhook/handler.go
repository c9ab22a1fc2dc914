package webhook

import (
	"context"
	"net/http"

	"convogate/internal/config"
	"convogate/internal/inbound"
	"convogate/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	Config    *config.Config
	Processor *inbound.Processor
}

func NewHandler(cfg *config.Config, processor *inbound.Processor) *Handler {
	return &Handler{Config: cfg, Processor: processor}
}

// VerifyWebhook answers the provider's subscription challenge.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			logrus.Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleEvents classifies every event in the delivery and processes it in
// the background. The response is always 200: duplicate deliveries are
// absorbed by storage keyed on provider message id, not by NACKing.
func (h *Handler) HandleEvents(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logrus.WithError(err).Warn("malformed webhook payload")
		c.Status(http.StatusOK)
		return
	}

	var events []models.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			events = append(events, models.Classify(change.Value)...)
		}
	}

	if len(events) > 0 {
		go func(events []models.InboundEvent) {
			ctx := context.Background()
			for _, ev := range events {
				if err := h.Processor.Process(ctx, ev); err != nil {
					logrus.WithError(err).Error("inbound event processing failed")
				}
			}
		}(events)
	}

	c.Status(http.StatusOK)
}
