package api

import (
	"meshgate/internal/models"
	"meshgate/internal/utils"
	"meshgate/internal/web/middleware"
	webModels "meshgate/internal/web/models"

	"github.com/gin-gonic/gin"
)

// WhitelistReader lists the usable api keys
type WhitelistReader interface {
	Whitelist() []models.ApiAuth
}

func RegisterWhitelistRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, auth WhitelistReader) {
	config := r.Group("/api/:apikey/config")
	config.Use(middleware.RequireApikey())
	{
		config.GET("/whitelist", func(c *gin.Context) {
			out := map[string]webModels.WhitelistEntry{}
			for _, a := range auth.Whitelist() {
				out[a.APIKey] = webModels.WhitelistEntry{
					Name:        a.DeviceType,
					UserAgent:   a.UserAgent,
					CreateDate:  utils.FormatTime(a.CreateDate),
					LastUseDate: utils.FormatTime(a.LastUseDate),
				}
			}
			c.JSON(200, out)
		})
	}
}
