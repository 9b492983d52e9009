package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionSetMethod(t *testing.T) {
	var a Action
	for _, m := range []string{"POST", "PUT", "DELETE", "BIND"} {
		assert.True(t, a.SetMethod(m))
		assert.Equal(t, m, a.Method())
	}

	assert.True(t, a.SetMethod("PUT"))
	assert.False(t, a.SetMethod("PATCH"))
	assert.Equal(t, "PUT", a.Method())
	assert.False(t, a.SetMethod("put"))
	assert.Equal(t, "PUT", a.Method())
}

func TestActionSetBodyStripsSpaces(t *testing.T) {
	a := NewAction("/groups/1/action", "PUT", `{ "on": true, "name": "Living Room" }`)
	assert.Equal(t, `{"on":true,"name":"LivingRoom"}`, a.Body())
}

func TestActionValidate(t *testing.T) {
	a := NewAction("/groups/1/action", "PATCH", `{"on":true}`)
	assert.Empty(t, a.Method())
	assert.ErrorIs(t, a.Validate(), ErrInvalidMethod)

	b := NewAction("/groups/1/action", "PUT", `{"on":true}`)
	assert.NoError(t, b.Validate())
}
