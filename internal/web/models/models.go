package models

import (
	"encoding/json"

	"meshgate/internal/rules"
)

type CreateApikeyRequest struct {
	DeviceType string `json:"devicetype" binding:"required"`
	Username   string `json:"username"`
}

type ActionRequest struct {
	Address string          `json:"address" binding:"required"`
	Method  string          `json:"method" binding:"required"`
	Body    json.RawMessage `json:"body"`
}

type AddRuleRequest struct {
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	Periodic   int              `json:"periodic"`
	Conditions []map[string]any `json:"conditions"`
	Actions    []ActionRequest  `json:"actions" binding:"required"`
}

type UpdateRuleRequest struct {
	Name       *string          `json:"name"`
	Status     *string          `json:"status"`
	Periodic   *int             `json:"periodic"`
	Conditions []map[string]any `json:"conditions"`
	Actions    []ActionRequest  `json:"actions"`
}

// ActionDefinitions converts request actions for the rule builder
func ActionDefinitions(in []ActionRequest) []rules.ActionDefinition {
	if in == nil {
		return nil
	}
	out := make([]rules.ActionDefinition, 0, len(in))
	for _, a := range in {
		body := string(a.Body)
		if body == "" || body == "null" {
			body = "{}"
		}
		out = append(out, rules.ActionDefinition{Address: a.Address, Method: a.Method, Body: body})
	}
	return out
}

type ConditionResponse struct {
	Address  string `json:"address"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

type ActionResponse struct {
	Address string          `json:"address"`
	Method  string          `json:"method"`
	Body    json.RawMessage `json:"body"`
}

type RuleResponse struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Owner          string              `json:"owner"`
	Status         string              `json:"status"`
	Created        string              `json:"created"`
	LastTriggered  string              `json:"lasttriggered"`
	TimesTriggered uint32              `json:"timestriggered"`
	Periodic       int                 `json:"periodic"`
	Conditions     []ConditionResponse `json:"conditions"`
	Actions        []ActionResponse    `json:"actions"`
}

// NewRuleResponse renders a rule for the management surface
func NewRuleResponse(r *rules.Rule) RuleResponse {
	resp := RuleResponse{
		ID:             r.ID,
		Name:           r.Name,
		Owner:          r.Owner,
		Status:         r.Status,
		Created:        r.CreationTime,
		LastTriggered:  r.LastTriggered,
		TimesTriggered: r.TimesTriggered,
		Periodic:       r.TriggerPeriodic,
		Conditions:     make([]ConditionResponse, 0, len(r.Conditions)),
		Actions:        make([]ActionResponse, 0, len(r.Actions)),
	}
	for _, c := range r.Conditions {
		resp.Conditions = append(resp.Conditions, ConditionResponse{Address: c.Address(), Operator: c.OperatorName(), Value: c.Value()})
	}
	for _, a := range r.Actions {
		body := json.RawMessage(a.Body())
		if !json.Valid(body) {
			body = json.RawMessage("{}")
		}
		resp.Actions = append(resp.Actions, ActionResponse{Address: a.Address(), Method: a.Method(), Body: body})
	}
	return resp
}

type WhitelistEntry struct {
	Name        string `json:"name"`
	UserAgent   string `json:"useragent,omitempty"`
	CreateDate  string `json:"create date"`
	LastUseDate string `json:"last use date"`
}
