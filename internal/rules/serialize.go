package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meshgate/internal/models"
	"meshgate/internal/resource"
	"meshgate/internal/utils"
)

// ErrMalformedJSON is returned when a persisted or submitted list is not a JSON array
var ErrMalformedJSON = errors.New("malformed JSON")

// ActionsToText is the legacy encoding of an action list, built by string
// concatenation. Bodies are emitted as raw JSON text.
func ActionsToText(actions []Action) string {
	if len(actions) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteString("[")
	for _, a := range actions {
		sb.WriteString(`{"address":`)
		sb.WriteString(`"` + a.Address() + `",`)
		sb.WriteString(`"body":` + a.Body() + `,`)
		sb.WriteString(`"method":"` + a.Method() + `"},`)
	}
	s := sb.String()
	return s[:len(s)-1] + "]"
}

type actionJSON struct {
	Address string          `json:"address"`
	Body    json.RawMessage `json:"body"`
	Method  string          `json:"method"`
}

// MarshalActions is the structural encoding of an action list. For bodies
// that are compact JSON it yields the same text as ActionsToText.
func MarshalActions(actions []Action) (string, error) {
	out := make([]actionJSON, 0, len(actions))
	for i, a := range actions {
		body := json.RawMessage(a.Body())
		if a.Body() == "" {
			body = json.RawMessage("{}")
		}
		if !json.Valid(body) {
			return "", fmt.Errorf("action %d: body is not valid JSON", i)
		}
		out = append(out, actionJSON{Address: a.Address(), Body: body, Method: a.Method()})
	}
	return encode(out)
}

// EncodeActions picks the legacy or structural encoding
func EncodeActions(actions []Action, legacy bool) (string, error) {
	if legacy {
		return ActionsToText(actions), nil
	}
	return MarshalActions(actions)
}

type conditionJSON struct {
	Address  string `json:"address"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ConditionsToText encodes conditions as a JSON array of {address, operator, value}
func ConditionsToText(conditions []Condition) string {
	out := make([]conditionJSON, 0, len(conditions))
	for _, c := range conditions {
		out = append(out, conditionJSON{Address: c.Address(), Operator: c.OperatorName(), Value: c.Value()})
	}
	s, err := encode(out)
	if err != nil {
		utils.Logger("rules").Warn().Err(err).Msg("failed to encode rule conditions")
		return "[]"
	}
	return s
}

// ParseActions decodes a JSON array of actions. Each body object is
// re-serialized and stored through SetBody. Malformed input returns
// ErrMalformedJSON, never an empty list mistaken for "no actions".
func ParseActions(data string) ([]Action, error) {
	var raw []struct {
		Address any             `json:"address"`
		Method  any             `json:"method"`
		Body    json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: actions: %v", ErrMalformedJSON, err)
	}
	actions := make([]Action, 0, len(raw))
	for _, r := range raw {
		var a Action
		a.SetAddress(toString(r.Address))
		var body map[string]any
		if err := json.Unmarshal(r.Body, &body); err != nil || body == nil {
			body = map[string]any{}
		}
		s, err := encode(body)
		if err != nil {
			s = "{}"
		}
		a.SetBody(s)
		a.SetMethod(toString(r.Method))
		actions = append(actions, a)
	}
	return actions, nil
}

// ParseConditions decodes a JSON array of conditions through ParseCondition
func ParseConditions(data string, registry *resource.Registry) ([]Condition, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		utils.Logger("rules").Info().Str("json", data).Msg("failed to parse rule conditions")
		return nil, fmt.Errorf("%w: conditions: %v", ErrMalformedJSON, err)
	}
	conditions := make([]Condition, 0, len(raw))
	for i, m := range raw {
		c, err := ParseCondition(m, registry)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

// ToRecord converts a rule to its persisted shape
func ToRecord(r *Rule, legacyActions bool) (models.RuleRecord, error) {
	actions, err := EncodeActions(r.Actions, legacyActions)
	if err != nil {
		return models.RuleRecord{}, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return models.RuleRecord{
		ID:             r.ID,
		Name:           r.Name,
		Owner:          r.Owner,
		Status:         r.Status,
		CreationTime:   r.CreationTime,
		LastTriggered:  r.LastTriggered,
		TimesTriggered: r.TimesTriggered,
		Periodic:       r.TriggerPeriodic,
		Conditions:     ConditionsToText(r.Conditions),
		Actions:        actions,
	}, nil
}

// FromRecord rebuilds a rule from its persisted shape
func FromRecord(rec models.RuleRecord, registry *resource.Registry) (*Rule, error) {
	conditions, err := ParseConditions(rec.Conditions, registry)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rec.ID, err)
	}
	actions, err := ParseActions(rec.Actions)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rec.ID, err)
	}
	r := New()
	r.ID = rec.ID
	r.Name = rec.Name
	r.Owner = rec.Owner
	r.Status = rec.Status
	r.CreationTime = rec.CreationTime
	r.LastTriggered = rec.LastTriggered
	if r.LastTriggered == "" {
		r.LastTriggered = NotTriggered
	}
	r.TimesTriggered = rec.TimesTriggered
	r.TriggerPeriodic = rec.Periodic
	r.Conditions = conditions
	r.Actions = actions
	if r.Status == StatusDeleted {
		r.State = StateDeleted
	}
	return r, nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// encode marshals without HTML escaping and without the trailing newline
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
