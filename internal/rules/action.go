package rules

import (
	"errors"

	"meshgate/internal/utils"
)

var ErrInvalidMethod = errors.New("action method must be either POST, PUT, BIND or DELETE")

// Allowed action methods
const (
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodBind   = "BIND"
)

// ValidMethod reports whether m is one of the allowed action methods
func ValidMethod(m string) bool {
	switch m {
	case MethodPost, MethodPut, MethodDelete, MethodBind:
		return true
	}
	return false
}

// Action is the HTTP-shaped instruction executed when a rule fires
type Action struct {
	address string
	method  string
	body    string
}

// NewAction builds an action. An invalid method leaves the method empty.
func NewAction(address, method, body string) Action {
	var a Action
	a.SetAddress(address)
	a.SetMethod(method)
	a.SetBody(body)
	return a
}

func (a *Action) SetAddress(address string) { a.address = address }

// SetMethod stores the method if it is allowed. Otherwise the previous
// method is kept and false is returned.
func (a *Action) SetMethod(method string) bool {
	if !ValidMethod(method) {
		utils.Logger("rules").Debug().Str("method", method).Msg("actions method must be either POST, PUT, BIND or DELETE")
		return false
	}
	a.method = method
	return true
}

// SetBody stores the JSON body with all space characters removed,
// including spaces inside string literals.
func (a *Action) SetBody(body string) {
	a.body = utils.StripSpaces(body)
}

func (a Action) Address() string { return a.address }
func (a Action) Method() string  { return a.method }
func (a Action) Body() string    { return a.body }

// Validate reports an action whose method was never set to an allowed verb
func (a Action) Validate() error {
	if !ValidMethod(a.method) {
		return ErrInvalidMethod
	}
	return nil
}
