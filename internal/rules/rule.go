package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"meshgate/internal/resource"
)

// State is the internal lifecycle state of a rule
type State int

const (
	StateNormal State = iota
	StateDeleted
)

// Status values as persisted
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
	StatusDeleted  = "deleted"
)

// NotTriggered is the last-triggered text of a rule that never fired
const NotTriggered = "none"

// Rule combines conditions (all must hold) with actions executed in order
type Rule struct {
	ID           string
	Name         string
	Owner        string
	Status       string
	CreationTime string

	LastTriggered string
	// LastTriggeredMono is taken with LastTriggered and drives periodic timing.
	// Before the first trigger it holds the creation instant.
	LastTriggeredMono time.Time
	TimesTriggered    uint32
	// TriggerPeriodic < 0 disables triggering, 0 triggers on events,
	// > 0 fires every TriggerPeriodic milliseconds.
	TriggerPeriodic int

	Conditions []Condition
	Actions    []Action

	State State
	// LastBindingVerify is when bindings derived from the rule were last re-queued
	LastBindingVerify time.Time
}

// New creates an enabled rule with the defaults of a fresh record
func New() *Rule {
	return &Rule{
		ID:            "notSet",
		Name:          "notSet",
		Owner:         "notSet",
		Status:        StatusEnabled,
		CreationTime:  "notSet",
		LastTriggered: NotTriggered,
	}
}

// IsEnabled reports whether the status is "enabled"
func (r *Rule) IsEnabled() bool {
	return r.Status == StatusEnabled
}

// SetLastTriggered records a trigger time together with its monotonic snapshot
func (r *Rule) SetLastTriggered(text string, mono time.Time) {
	r.LastTriggered = text
	r.LastTriggeredMono = mono
}

// PeriodicDue reports whether a periodic rule should fire at now
func (r *Rule) PeriodicDue(now time.Time) bool {
	if r.TriggerPeriodic <= 0 {
		return false
	}
	return now.Sub(r.LastTriggeredMono) >= time.Duration(r.TriggerPeriodic)*time.Millisecond
}

// References reports whether any condition addresses the attribute
func (r *Rule) References(address string) bool {
	for _, c := range r.Conditions {
		if c.Address() == address {
			return true
		}
	}
	return false
}

// HasEdgeCondition reports whether the rule holds a dx/ddx condition
func (r *Rule) HasEdgeCondition() bool {
	for _, c := range r.Conditions {
		if c.Op().IsEdge() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to other goroutines
func (r *Rule) Clone() *Rule {
	c := *r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	c.Actions = append([]Action(nil), r.Actions...)
	return &c
}

// Validate checks every condition and action of the rule
func (r *Rule) Validate() error {
	v := &ValidationError{}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			v.add(fmt.Errorf("condition %d: %w", i, err))
		}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			v.add(fmt.Errorf("action %d: %w", i, err))
		}
	}
	if len(r.Actions) == 0 {
		v.add(errors.New("rule needs at least one action"))
	}
	if len(r.Conditions) == 0 && r.TriggerPeriodic <= 0 {
		v.add(errors.New("rule without conditions needs a positive periodic value"))
	}
	switch r.Status {
	case StatusEnabled, StatusDisabled:
	default:
		v.add(fmt.Errorf("invalid status %q", r.Status))
	}
	return v.orNil()
}

// ValidationError lists every problem of a rule definition
type ValidationError struct {
	Errs []error
}

func (v *ValidationError) add(err error) { v.Errs = append(v.Errs, err) }

func (v *ValidationError) orNil() error {
	if len(v.Errs) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	msgs := make([]string, len(v.Errs))
	for i, e := range v.Errs {
		msgs[i] = e.Error()
	}
	return "invalid rule: " + strings.Join(msgs, "; ")
}

func (v *ValidationError) Unwrap() []error { return v.Errs }

// Definition is a rule as submitted by the management surface
type Definition struct {
	Name       string
	Owner      string
	Status     string
	Periodic   int
	Conditions []map[string]any
	Actions    []ActionDefinition
}

// ActionDefinition is an action as submitted by the management surface
type ActionDefinition struct {
	Address string
	Method  string
	Body    string
}

// Build parses and validates a definition. The whole rule is rejected if
// any condition or action is invalid.
func Build(def Definition, registry *resource.Registry) (*Rule, error) {
	r := New()
	v := &ValidationError{}
	if def.Name != "" {
		r.Name = def.Name
	}
	if def.Owner != "" {
		r.Owner = def.Owner
	}
	if def.Status != "" {
		r.Status = def.Status
	}
	r.TriggerPeriodic = def.Periodic

	for i, m := range def.Conditions {
		c, err := ParseCondition(m, registry)
		if err != nil {
			v.add(fmt.Errorf("condition %d: %w", i, err))
			continue
		}
		r.Conditions = append(r.Conditions, c)
	}
	for i, ad := range def.Actions {
		var a Action
		a.SetAddress(ad.Address)
		if !a.SetMethod(ad.Method) {
			v.add(fmt.Errorf("action %d: %w: %q", i, ErrInvalidMethod, ad.Method))
		}
		a.SetBody(ad.Body)
		r.Actions = append(r.Actions, a)
	}
	if len(v.Errs) > 0 {
		return nil, v
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
