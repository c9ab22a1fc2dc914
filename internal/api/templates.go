package api

import (
	"net/http"

	"convogate/internal/models"
	"convogate/internal/templates"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TemplateHandler struct {
	Catalog *templates.Catalog
	DB      *gorm.DB
}

func NewTemplateHandler(catalog *templates.Catalog, db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{Catalog: catalog, DB: db}
}

// GetTemplates returns the provider's approved-template catalog (cached).
func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	defs, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, defs)
}

// GetLocalTemplates returns locally synced catalog rows.
func (h *TemplateHandler) GetLocalTemplates(c *gin.Context) {
	var rows []models.Template
	if err := h.DB.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// SyncTemplates fetches the catalog from the provider and stores it locally.
func (h *TemplateHandler) SyncTemplates(c *gin.Context) {
	count, err := h.Catalog.Sync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Templates synced", "count": count})
}
