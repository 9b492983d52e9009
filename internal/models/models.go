package models

import "time"

// RuleRecord is the persisted shape of a rule
type RuleRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	Status         string `json:"status"`
	CreationTime   string `json:"created"`
	LastTriggered  string `json:"lasttriggered"`
	TimesTriggered uint32 `json:"timestriggered"`
	Periodic       int    `json:"periodic"`
	Conditions     string `json:"conditions"` // JSON array
	Actions        string `json:"actions"`    // JSON array
}

// ApiAuthState tells whether an api key is usable
type ApiAuthState int

const (
	ApiAuthNormal ApiAuthState = iota
	ApiAuthDeleted
)

// ApiAuth is one whitelisted api key
type ApiAuth struct {
	APIKey      string       `json:"apikey"`
	DeviceType  string       `json:"devicetype"`
	UserAgent   string       `json:"useragent,omitempty"`
	CreateDate  time.Time    `json:"create date"`
	LastUseDate time.Time    `json:"last use date"`
	State       ApiAuthState `json:"-"`
	NeedSave    bool         `json:"-"`
}

// Gateway config keys persisted in the config table
const (
	ConfigGatewayUsername = "gwusername"
	ConfigGatewayPassword = "gwpassword"
)
