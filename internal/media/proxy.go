package media

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Proxy streams media bytes straight from the provider without persisting a
// copy. Range headers pass through in both directions so players can seek.
type Proxy struct {
	Source Source
}

func NewProxy(source Source) *Proxy {
	return &Proxy{Source: source}
}

func (p *Proxy) Handle(c *gin.Context) {
	mediaID := c.Param("id")
	if mediaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Media ID required"})
		return
	}

	info, err := p.Source.ResolveMedia(c.Request.Context(), mediaID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
		return
	}

	resp, err := p.Source.StreamMedia(c.Request.Context(), info.URL, c.GetHeader("Range"))
	if err != nil {
		logrus.WithError(err).WithField("media_id", mediaID).Error("media proxy stream failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to stream media"})
		return
	}
	defer resp.Body.Close()

	for _, h := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	if c.Writer.Header().Get("Content-Type") == "" && info.MimeType != "" {
		c.Header("Content-Type", info.MimeType)
	}

	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logrus.WithError(err).WithField("media_id", mediaID).Debug("media proxy copy interrupted")
	}
}
