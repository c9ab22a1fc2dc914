package api

import (
	"net/http"

	"convogate/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type MessageHandler struct {
	DB *gorm.DB
}

func NewMessageHandler(db *gorm.DB) *MessageHandler {
	return &MessageHandler{DB: db}
}

// GetMessages returns a contact's history, newest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	waID := c.Query("contact")
	if waID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact query parameter required"})
		return
	}

	var messages []models.Message
	err := h.DB.Where("contact_id = ?", waID).
		Order("created_at DESC").
		Limit(200).
		Find(&messages).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Opening a conversation clears its unread counter.
	h.DB.Model(&models.Contact{}).Where("wa_id = ?", waID).Update("unread_count", 0)

	c.JSON(http.StatusOK, messages)
}

// GetConversations lists contacts ordered by recent activity.
func (h *MessageHandler) GetConversations(c *gin.Context) {
	var contacts []models.Contact
	query := h.DB.Order("last_message_at DESC").Limit(100)
	if search := c.Query("q"); search != "" {
		query = query.Where("name_lower LIKE ?", "%"+search+"%")
	}
	if err := query.Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contacts)
}
