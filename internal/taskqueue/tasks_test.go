package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"meshgate/internal/automation"
	"meshgate/internal/rules"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

type fakeSender struct {
	commands []automation.Command
	bindings []rules.BindingTask
	err      error
}

func (f *fakeSender) SendCommand(_ context.Context, address, method, body string) error {
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, automation.Command{Address: address, Method: method, Body: body})
	return nil
}

func (f *fakeSender) SendBindingRequest(_ context.Context, task rules.BindingTask) error {
	f.bindings = append(f.bindings, task)
	return nil
}

var sampleBinding = rules.BindingTask{
	Action: rules.BindingRemove,
	Binding: rules.Binding{
		SourceID:        "5",
		Cluster:         rules.ClusterOnOff,
		DestinationType: rules.DestinationGroup,
		DestinationID:   "2",
	},
}

func TestQueueDispatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueue(enq, "", 3, 0)

	require.NoError(t, q.DispatchCommand(automation.Command{RuleID: "1", Address: "/groups/2/action", Method: "PUT", Body: `{"on":true}`}))
	require.NoError(t, q.DispatchBinding(sampleBinding))
	require.Len(t, enq.tasks, 2)
	assert.Equal(t, TypeCommand, enq.tasks[0].Type())
	assert.JSONEq(t, `{"rule_id":"1","address":"/groups/2/action","method":"PUT","body":"{\"on\":true}"}`, string(enq.tasks[0].Payload()))
	assert.Equal(t, TypeBinding, enq.tasks[1].Type())
	assert.JSONEq(t, `{"action":"remove","binding":{"source":"5","cluster":6,"type":"group","destination":"2"}}`, string(enq.tasks[1].Payload()))

	enq.err = errors.New("redis down")
	assert.Error(t, q.DispatchCommand(automation.Command{}))
}

func TestHandlerProcessCommand(t *testing.T) {
	s := &fakeSender{}
	h := NewHandler(s)
	task, err := NewCommandTask(automation.Command{RuleID: "1", Address: "/lights/1/state", Method: "PUT", Body: `{"on":false}`})
	require.NoError(t, err)

	require.NoError(t, h.ProcessCommand(context.Background(), task))
	require.Len(t, s.commands, 1)
	assert.Equal(t, "/lights/1/state", s.commands[0].Address)
	assert.Equal(t, `{"on":false}`, s.commands[0].Body)

	s.err = errors.New("unreachable")
	assert.ErrorIs(t, h.ProcessCommand(context.Background(), task), s.err)
}

func TestHandlerSkipsBadPayload(t *testing.T) {
	h := NewHandler(&fakeSender{})
	err := h.ProcessCommand(context.Background(), asynq.NewTask(TypeCommand, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	err = h.ProcessBinding(context.Background(), asynq.NewTask(TypeBinding, []byte(`{"action":"swap"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerProcessBinding(t *testing.T) {
	s := &fakeSender{}
	h := NewHandler(s)
	payload, err := json.Marshal(sampleBinding)
	require.NoError(t, err)

	require.NoError(t, h.ProcessBinding(context.Background(), asynq.NewTask(TypeBinding, payload)))
	require.Len(t, s.bindings, 1)
	assert.True(t, s.bindings[0].Equal(sampleBinding))
}
