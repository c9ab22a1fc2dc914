package api

import (
	"errors"
	"net/http"

	"convogate/internal/dispatch"
	"convogate/internal/templates"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SendHandler struct {
	Dispatcher *dispatch.Dispatcher
	Builder    *templates.Builder
	Catalog    *templates.Catalog
}

func NewSendHandler(dispatcher *dispatch.Dispatcher, builder *templates.Builder, catalog *templates.Catalog) *SendHandler {
	return &SendHandler{Dispatcher: dispatcher, Builder: builder, Catalog: catalog}
}

type sendRequest struct {
	To        string `json:"to" binding:"required"`
	Text      string `json:"text"`
	MediaURL  string `json:"media_url"`
	MediaMime string `json:"media_mime"`
	ReplyToID string `json:"reply_to_id"`
}

// SendMessage dispatches a free-form message. Provider error detail stays in
// the server logs; dashboard clients only get a generic failure.
func (h *SendHandler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Dispatcher.Send(c.Request.Context(), req.To, dispatch.Options{
		Text:      req.Text,
		MediaURL:  req.MediaURL,
		MediaMime: req.MediaMime,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).WithField("to", req.To).Error("send failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"provider_id": result.ProviderID, "message": result.Message})
}

type sendTemplateRequest struct {
	To           string   `json:"to" binding:"required"`
	TemplateName string   `json:"template_name" binding:"required"`
	Language     string   `json:"language"`
	ImageURL     string   `json:"image_url"`
	BodyParams   []string `json:"body_params"`
}

// SendTemplate builds and dispatches one approved template to one recipient.
func (h *SendHandler) SendTemplate(c *gin.Context) {
	var req sendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def, err := h.Catalog.Find(c.Request.Context(), req.TemplateName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	built, err := h.Builder.Build(req.To, *def, req.ImageURL, req.BodyParams)
	if err != nil {
		if errors.Is(err, templates.ErrMissingAttachment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	lang := req.Language
	if lang == "" {
		lang = def.Language
	}

	result, err := h.Dispatcher.SendTemplate(c.Request.Context(), req.To, templatePayload(req.TemplateName, lang, built), built.Summary)
	if err != nil {
		logrus.WithError(err).WithField("to", req.To).Error("template send failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not send message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"provider_id": result.ProviderID, "summary": built.Summary})
}
