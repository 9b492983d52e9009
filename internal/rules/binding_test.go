package rules

import (
	"testing"

	"meshgate/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingTaskEquality(t *testing.T) {
	b := Binding{SourceID: "1", Cluster: ClusterOnOff, DestinationType: DestinationGroup, DestinationID: "4"}
	add1 := BindingTask{Action: BindingAdd, Binding: b}
	add2 := BindingTask{Action: BindingAdd, Binding: b}
	remove := BindingTask{Action: BindingRemove, Binding: b}

	assert.True(t, add1.Equal(add2))
	assert.False(t, add1.Equal(remove))

	other := add1
	other.Binding.Cluster = ClusterLevelControl
	assert.False(t, add1.Equal(other))
}

func TestDeriveBindings(t *testing.T) {
	reg := resource.NewRegistry()
	r, err := Build(Definition{
		Conditions: []map[string]any{
			{"address": "/sensors/5/state/buttonevent", "operator": "eq", "value": "1002"},
		},
		Actions: []ActionDefinition{
			{Address: "/groups/2/action", Method: "PUT", Body: `{"on": true, "bri": 200}`},
			{Address: "/lights/7/state", Method: "PUT", Body: `{"on": false}`},
			{Address: "/groups/2/scenes/1", Method: "PUT", Body: `{"on": true}`},
			{Address: "/groups/3/action", Method: "POST", Body: `{"on": true}`},
		},
	}, reg)
	require.NoError(t, err)

	tasks := DeriveBindings(r, BindingAdd)
	require.Len(t, tasks, 3)
	assert.Equal(t, Binding{SourceID: "5", Cluster: ClusterOnOff, DestinationType: DestinationGroup, DestinationID: "2"}, tasks[0].Binding)
	assert.Equal(t, ClusterLevelControl, tasks[1].Binding.Cluster)
	assert.Equal(t, DestinationLight, tasks[2].Binding.DestinationType)
	for _, task := range tasks {
		assert.Equal(t, BindingAdd, task.Action)
	}
}

func TestDeriveBindings_NoSensorSource(t *testing.T) {
	reg := resource.NewRegistry()
	r, err := Build(Definition{
		Conditions: []map[string]any{{"address": "/sensors/5/state/temperature", "operator": "gt", "value": 2000}},
		Actions:    []ActionDefinition{{Address: "/groups/2/action", Method: "PUT", Body: `{"on":true}`}},
	}, reg)
	require.NoError(t, err)
	assert.Empty(t, DeriveBindings(r, BindingAdd))
}

func TestBindingQueueDeduplicates(t *testing.T) {
	b := Binding{SourceID: "1", Cluster: ClusterOnOff, DestinationID: "4"}
	var q BindingQueue
	assert.True(t, q.Push(BindingTask{Action: BindingAdd, Binding: b}))
	assert.False(t, q.Push(BindingTask{Action: BindingAdd, Binding: b}))
	assert.True(t, q.Push(BindingTask{Action: BindingRemove, Binding: b}))
	assert.Equal(t, 2, q.Len())

	tasks := q.Drain()
	assert.Len(t, tasks, 2)
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Push(BindingTask{Action: BindingAdd, Binding: b}))
}
