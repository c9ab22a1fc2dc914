package api

import (
	"net/http"

	"convogate/internal/campaign"
	"convogate/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CampaignHandler struct {
	Runner *campaign.Runner
	DB     *gorm.DB
}

func NewCampaignHandler(runner *campaign.Runner, db *gorm.DB) *CampaignHandler {
	return &CampaignHandler{Runner: runner, DB: db}
}

// RunTemplateCampaign fans one approved template out to many recipients.
// The batch always completes; per-recipient outcomes come back in buckets.
func (h *CampaignHandler) RunTemplateCampaign(c *gin.Context) {
	var req campaign.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := h.Runner.RunTemplate(c.Request.Context(), req)
	c.JSON(http.StatusOK, report)
}

// RunBroadcast fans a message sequence + photo out, routing lapsed-session
// recipients through the contingency template.
func (h *CampaignHandler) RunBroadcast(c *gin.Context) {
	var req campaign.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := h.Runner.RunBroadcast(c.Request.Context(), req)
	c.JSON(http.StatusOK, report)
}

// GetContingentJobs lists deferred sends, optionally for one contact.
func (h *CampaignHandler) GetContingentJobs(c *gin.Context) {
	query := h.DB.Order("created_at DESC").Limit(200)
	if waID := c.Query("contact"); waID != "" {
		query = query.Where("contact_id = ?", waID)
	}

	var jobs []models.ContingentSendJob
	if err := query.Find(&jobs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}
