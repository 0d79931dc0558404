package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetShare returns a link to open the app on another device together with
// the address of its QR code image.
func (h *Handler) GetShare(c *gin.Context) {
	link := strings.TrimSpace(c.DefaultQuery("url", h.share.PublicURL))
	if len(link) < 5 || strings.HasPrefix(link, "blob:") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "link is not shareable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":    link,
		"qr_url": qrURL(h.share.QREndpoint, link),
	})
}

func qrURL(endpoint, link string) string {
	q := url.Values{}
	q.Set("size", "250x250")
	q.Set("data", link)
	return endpoint + "?" + q.Encode()
}
