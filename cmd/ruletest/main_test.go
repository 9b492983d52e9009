package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buttonRule = `{
	"name": "button",
	"conditions": [{"address": "/sensors/1/state/buttonevent", "operator": "eq", "value": "1002"}],
	"actions": [{"address": "/groups/1/action", "method": "PUT", "body": {"on": true}}]
}`

func TestCheckPrintsDerivedFields(t *testing.T) {
	var out bytes.Buffer
	fires, err := check(&out, []byte(buttonRule), nil)
	require.NoError(t, err)
	assert.False(t, fires)

	s := out.String()
	assert.Contains(t, s, `category=sensors id="1" suffix="state/buttonevent" kind=number number=1002`)
	assert.Contains(t, s, `structural: [{"address":"/groups/1/action","body":{"on":true},"method":"PUT"}]`)
	assert.Contains(t, s, `legacy:     [{"address":"/groups/1/action","body":{"on":true},"method":"PUT"}]`)
	assert.Contains(t, s, "sensor 1 cluster 0x0006 -> group 1")
	assert.NotContains(t, s, "Result:")
}

func TestCheckEvaluatesAttributes(t *testing.T) {
	var out bytes.Buffer
	fires, err := check(&out, []byte(buttonRule), []byte(`{"/sensors/1/state/buttonevent": 1002}`))
	require.NoError(t, err)
	assert.True(t, fires)
	assert.Contains(t, out.String(), "rule would trigger")

	out.Reset()
	fires, err = check(&out, []byte(buttonRule), []byte(`{"/sensors/1/state/buttonevent": 2002, "/sensors/1/state/bogus": 1}`))
	require.NoError(t, err)
	assert.False(t, fires)
	assert.Contains(t, out.String(), "Skipping /sensors/1/state/bogus")
}

func TestCheckRejectsInvalidRule(t *testing.T) {
	_, err := check(&bytes.Buffer{}, []byte(`{"actions":[{"address":"/groups/1/action","method":"GET"}]}`), nil)
	assert.Error(t, err)

	_, err = check(&bytes.Buffer{}, []byte(`{`), nil)
	assert.ErrorContains(t, err, "parse rule")
}
