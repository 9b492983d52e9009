package api

import (
	"meshgate/internal/web/models"

	"github.com/gin-gonic/gin"
)

// ApikeyIssuer creates api keys for clients presenting admin credentials
type ApikeyIssuer interface {
	AllowedToCreateApikey(authorization string) bool
	CreateApikey(devicetype, userAgent string) (string, error)
}

func RegisterAuthRoutes(router *gin.Engine, authModule ApikeyIssuer) {
	router.POST("/api", func(c *gin.Context) {
		if !authModule.AllowedToCreateApikey(c.GetHeader("Authorization")) {
			c.JSON(403, gin.H{"error": "unauthorized user", "address": "/"})
			return
		}
		var req models.CreateApikeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "invalid request", "address": "/"})
			return
		}
		apikey, err := authModule.CreateApikey(req.DeviceType, c.GetHeader("User-Agent"))
		if err != nil {
			apiLogger().Error().Err(err).Msg("failed to create api key")
			c.JSON(500, gin.H{"error": "internal error"})
			return
		}
		c.JSON(200, []gin.H{{"success": gin.H{"username": apikey}}})
	})
}
