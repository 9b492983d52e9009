package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireApikey rejects requests whose :apikey path segment is not whitelisted
func (m *MiddlewareManager) RequireApikey() gin.HandlerFunc {
	return func(c *gin.Context) {
		apikey := c.Param("apikey")
		if err := m.auth.CheckApikey(apikey, c.GetHeader("User-Agent"), false); err != nil {
			m.log.Debug().Str("path", c.Request.URL.Path).Err(err).Msg("rejected api key")
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized user", "address": c.Request.URL.Path})
			c.Abort()
			return
		}

		c.Set("apikey", apikey)

		c.Next()
	}
}
