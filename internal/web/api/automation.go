package api

import (
	"errors"

	"meshgate/internal/engine"
	"meshgate/internal/rules"
	"meshgate/internal/web/middleware"
	webModels "meshgate/internal/web/models"

	"github.com/gin-gonic/gin"
)

// RuleManager is the part of the engine the rule routes use
type RuleManager interface {
	CreateRule(def rules.Definition) (*rules.Rule, error)
	UpdateRule(id string, patch engine.RulePatch) (*rules.Rule, error)
	DeleteRule(id string) error
	Rule(id string) (*rules.Rule, error)
	Rules() ([]*rules.Rule, error)
}

func RegisterAutomationRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, manager RuleManager) {
	automations := r.Group("/api/:apikey/rules")
	automations.Use(middleware.RequireApikey())
	{
		automations.GET("", func(c *gin.Context) {
			all, err := manager.Rules()
			if err != nil {
				ruleError(c, err)
				return
			}
			out := make(map[string]webModels.RuleResponse, len(all))
			for _, rule := range all {
				out[rule.ID] = webModels.NewRuleResponse(rule)
			}
			c.JSON(200, out)
		})

		automations.POST("", func(c *gin.Context) {
			var newRuleReq webModels.AddRuleRequest
			if err := c.ShouldBindJSON(&newRuleReq); err != nil {
				c.JSON(400, gin.H{"error": "invalid request", "description": err.Error()})
				return
			}
			created, err := manager.CreateRule(rules.Definition{
				Name:       newRuleReq.Name,
				Owner:      c.GetString("apikey"),
				Status:     newRuleReq.Status,
				Periodic:   newRuleReq.Periodic,
				Conditions: newRuleReq.Conditions,
				Actions:    webModels.ActionDefinitions(newRuleReq.Actions),
			})
			if err != nil {
				ruleError(c, err)
				return
			}
			c.JSON(200, []gin.H{{"success": gin.H{"id": created.ID}}})
		})

		automations.GET("/:id", func(c *gin.Context) {
			rule, err := manager.Rule(c.Param("id"))
			if err != nil {
				ruleError(c, err)
				return
			}
			c.JSON(200, webModels.NewRuleResponse(rule))
		})

		automations.PUT("/:id", func(c *gin.Context) {
			var updateRuleReq webModels.UpdateRuleRequest
			if err := c.ShouldBindJSON(&updateRuleReq); err != nil {
				c.JSON(400, gin.H{"error": "invalid request", "description": err.Error()})
				return
			}
			updated, err := manager.UpdateRule(c.Param("id"), engine.RulePatch{
				Name:       updateRuleReq.Name,
				Status:     updateRuleReq.Status,
				Periodic:   updateRuleReq.Periodic,
				Conditions: updateRuleReq.Conditions,
				Actions:    webModels.ActionDefinitions(updateRuleReq.Actions),
			})
			if err != nil {
				ruleError(c, err)
				return
			}
			c.JSON(200, webModels.NewRuleResponse(updated))
		})

		automations.DELETE("/:id", func(c *gin.Context) {
			id := c.Param("id")
			if err := manager.DeleteRule(id); err != nil {
				ruleError(c, err)
				return
			}
			c.JSON(200, []gin.H{{"success": "/rules/" + id + " deleted."}})
		})
	}
}

func ruleError(c *gin.Context, err error) {
	var verr *rules.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(400, gin.H{"error": "invalid rule", "description": verr.Error()})
	case errors.Is(err, engine.ErrRuleNotFound), errors.Is(err, engine.ErrRuleDeleted):
		c.JSON(404, gin.H{"error": "resource not available", "address": c.Request.URL.Path})
	case errors.Is(err, engine.ErrStopped):
		c.JSON(503, gin.H{"error": "engine stopped"})
	default:
		apiLogger().Error().Err(err).Str("path", c.Request.URL.Path).Msg("rule request failed")
		c.JSON(500, gin.H{"error": "internal error"})
	}
}
