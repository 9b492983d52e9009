package rules

import (
	"errors"
	"testing"
	"time"

	"meshgate/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RejectsWholeRule(t *testing.T) {
	reg := resource.NewRegistry()
	_, err := Build(Definition{
		Name: "bad",
		Conditions: []map[string]any{
			{"address": "/sensors/1/state/buttonevent", "operator": "eq", "value": 1002},
			{"address": "/weather/1/state/rain", "operator": "eq", "value": true},
		},
		Actions: []ActionDefinition{{Address: "/groups/1/action", Method: "PUT", Body: `{"on":true}`}},
	}, reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.Errs)

	_, err = Build(Definition{
		Conditions: []map[string]any{{"address": "/sensors/1/state/buttonevent", "operator": "eq", "value": 1002}},
		Actions:    []ActionDefinition{{Address: "/groups/1/action", Method: "PATCH", Body: `{}`}},
	}, reg)
	assert.ErrorIs(t, err, ErrInvalidMethod)

	_, err = Build(Definition{
		Conditions: []map[string]any{{"address": "/sensors/1/state/buttonevent", "operator": "near", "value": 1002}},
		Actions:    []ActionDefinition{{Address: "/groups/1/action", Method: "PUT", Body: `{}`}},
	}, reg)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestBuild_Defaults(t *testing.T) {
	r, err := Build(Definition{
		Periodic: 60000,
		Actions:  []ActionDefinition{{Address: "/lights/1/state", Method: "PUT", Body: `{"on":false}`}},
	}, resource.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "notSet", r.Name)
	assert.Equal(t, StatusEnabled, r.Status)
	assert.True(t, r.IsEnabled())
	assert.Equal(t, NotTriggered, r.LastTriggered)
	assert.Equal(t, StateNormal, r.State)
}

func TestBuild_NoConditionsNeedsPeriodic(t *testing.T) {
	_, err := Build(Definition{
		Actions: []ActionDefinition{{Address: "/lights/1/state", Method: "PUT", Body: `{"on":false}`}},
	}, resource.NewRegistry())
	assert.Error(t, err)
}

func TestPeriodicDue(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New()
	r.TriggerPeriodic = 60000
	r.LastTriggeredMono = base

	assert.False(t, r.PeriodicDue(base.Add(59*time.Second)))
	assert.True(t, r.PeriodicDue(base.Add(60*time.Second)))

	r.TriggerPeriodic = 0
	assert.False(t, r.PeriodicDue(base.Add(time.Hour)))
	r.TriggerPeriodic = -1
	assert.False(t, r.PeriodicDue(base.Add(time.Hour)))
}

func TestCloneIsIndependent(t *testing.T) {
	reg := resource.NewRegistry()
	c, err := NewCondition("/sensors/1/state/presence", "eq", true, reg)
	require.NoError(t, err)
	r := New()
	r.Conditions = []Condition{c}
	r.Actions = []Action{NewAction("/groups/1/action", "PUT", `{"on":true}`)}

	cl := r.Clone()
	cl.Actions[0].SetMethod("DELETE")
	cl.Name = "other"
	assert.Equal(t, "PUT", r.Actions[0].Method())
	assert.Equal(t, "notSet", r.Name)
	assert.True(t, r.References("/sensors/1/state/presence"))
	assert.False(t, r.HasEdgeCondition())
}
