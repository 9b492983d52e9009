package rules

import (
	"os"
	"testing"

	"meshgate/internal/models"
	"meshgate/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleActions() []Action {
	return []Action{
		NewAction("/groups/1/action", "PUT", `{"on": true}`),
		NewAction("/lights/3/state", "PUT", `{"bri": 120, "on": true}`),
		NewAction("/sensors/9/state", "PUT", `{"flag": false}`),
	}
}

func TestActionsToText_Golden(t *testing.T) {
	golden, err := os.ReadFile("testdata/actions_legacy.golden")
	require.NoError(t, err)

	assert.Equal(t, string(golden), ActionsToText(sampleActions()))

	structural, err := MarshalActions(sampleActions())
	require.NoError(t, err)
	assert.Equal(t, string(golden), structural)
}

func TestActionsToText_Empty(t *testing.T) {
	assert.Equal(t, "[]", ActionsToText(nil))
	s, err := MarshalActions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", s)

	parsed, err := ParseActions(ActionsToText(nil))
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestParseActions_RoundTrip(t *testing.T) {
	in := sampleActions()
	for _, legacy := range []bool{true, false} {
		text, err := EncodeActions(in, legacy)
		require.NoError(t, err)

		out, err := ParseActions(text)
		require.NoError(t, err)
		require.Len(t, out, len(in))
		for i := range in {
			assert.Equal(t, in[i].Address(), out[i].Address())
			assert.Equal(t, in[i].Method(), out[i].Method())
			assert.Equal(t, in[i].Body(), out[i].Body())
		}
	}
}

func TestParseActions_BodyReserializedAndStripped(t *testing.T) {
	out, err := ParseActions(`[{"address":"/groups/2/action","method":"PUT","body":{"scene":"1","name":"Good Night"}}]`)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, `{"name":"GoodNight","scene":"1"}`, out[0].Body())
}

func TestParseActions_NonObjectBodyAndBadMethod(t *testing.T) {
	out, err := ParseActions(`[{"address":"/groups/2/action","method":"PATCH","body":[1,2]}]`)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "{}", out[0].Body())
	assert.Empty(t, out[0].Method())
}

func TestParseActions_Malformed(t *testing.T) {
	_, err := ParseActions(`[{"address":`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
	_, err = ParseActions(`{"address":"/x"}`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestConditionsToText(t *testing.T) {
	reg := resource.NewRegistry()
	c1, err := NewCondition("/sensors/1/state/buttonevent", "eq", "1002", reg)
	require.NoError(t, err)
	c2, err := NewCondition("/sensors/2/state/presence", "dx", nil, reg)
	require.NoError(t, err)

	text := ConditionsToText([]Condition{c1, c2})
	assert.Equal(t,
		`[{"address":"/sensors/1/state/buttonevent","operator":"eq","value":1002},{"address":"/sensors/2/state/presence","operator":"dx","value":null}]`,
		text)

	parsed, err := ParseConditions(text, reg)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.True(t, parsed[0].Equal(c1))
	assert.Equal(t, 1002, parsed[0].NumericValue())
	assert.Equal(t, OpDx, parsed[1].Op())
	assert.Equal(t, "[]", ConditionsToText(nil))
}

func TestParseConditions_Malformed(t *testing.T) {
	_, err := ParseConditions(`not json`, resource.NewRegistry())
	assert.ErrorIs(t, err, ErrMalformedJSON)

	empty, err := ParseConditions(`[]`, resource.NewRegistry())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecordRoundTrip(t *testing.T) {
	reg := resource.NewRegistry()
	r, err := Build(Definition{
		Name:     "switch",
		Owner:    "key1",
		Periodic: 0,
		Conditions: []map[string]any{
			{"address": "/sensors/1/state/buttonevent", "operator": "eq", "value": "1002"},
		},
		Actions: []ActionDefinition{{Address: "/groups/1/action", Method: "PUT", Body: `{"on":true}`}},
	}, reg)
	require.NoError(t, err)
	r.ID = "7"
	r.TimesTriggered = 3

	rec, err := ToRecord(r, true)
	require.NoError(t, err)
	assert.Equal(t, `[{"address":"/groups/1/action","body":{"on":true},"method":"PUT"}]`, rec.Actions)

	back, err := FromRecord(rec, reg)
	require.NoError(t, err)
	assert.Equal(t, "7", back.ID)
	assert.Equal(t, uint32(3), back.TimesTriggered)
	assert.Equal(t, NotTriggered, back.LastTriggered)
	require.Len(t, back.Conditions, 1)
	assert.Equal(t, "1", back.Conditions[0].ResourceID())
	require.Len(t, back.Actions, 1)
	assert.Equal(t, "PUT", back.Actions[0].Method())
}

func TestFromRecord_Deleted(t *testing.T) {
	r, err := FromRecord(models.RuleRecord{ID: "2", Status: StatusDeleted, Conditions: "[]", Actions: "[]"}, resource.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, r.State)

	_, err = FromRecord(models.RuleRecord{ID: "3", Conditions: "[", Actions: "[]"}, resource.NewRegistry())
	assert.ErrorIs(t, err, ErrMalformedJSON)
}
