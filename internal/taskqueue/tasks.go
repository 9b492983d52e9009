package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meshgate/internal/automation"
	"meshgate/internal/rules"

	"github.com/hibiken/asynq"
)

// Task types
const (
	TypeCommand = "meshgate:command"
	TypeBinding = "meshgate:binding"
)

// Enqueuer is the part of the asynq client the queue needs
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands outbound commands and binding tasks to asynq
type Queue struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
}

// NewQueue creates an asynq backed dispatcher
func NewQueue(client Enqueuer, queue string, maxRetry int, timeout time.Duration) *Queue {
	if queue == "" {
		queue = "default"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Queue{client: client, queue: queue, maxRetry: maxRetry, timeout: timeout}
}

// NewCommandTask builds a command task
func NewCommandTask(cmd automation.Command) (*asynq.Task, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCommand, payload), nil
}

// NewBindingTask builds a binding task
func NewBindingTask(task rules.BindingTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBinding, payload), nil
}

func (q *Queue) DispatchCommand(cmd automation.Command) error {
	task, err := NewCommandTask(cmd)
	if err != nil {
		return err
	}
	return q.enqueue(task, "rule", cmd.RuleID)
}

func (q *Queue) DispatchBinding(b rules.BindingTask) error {
	task, err := NewBindingTask(b)
	if err != nil {
		return err
	}
	return q.enqueue(task, "binding", b.Binding.String())
}

func (q *Queue) enqueue(task *asynq.Task, key, value string) error {
	info, err := q.client.Enqueue(task, asynq.Queue(q.queue), asynq.MaxRetry(q.maxRetry), asynq.Timeout(q.timeout))
	if err != nil {
		logger().Warn().Err(err).Str("type", task.Type()).Str(key, value).Msg("failed to enqueue task")
		return err
	}
	logger().Debug().Str("type", task.Type()).Str("task", info.ID).Str(key, value).Msg("task enqueued")
	return nil
}

// Handler processes queued tasks against the device network
type Handler struct {
	sender automation.Sender
}

func NewHandler(sender automation.Sender) *Handler {
	return &Handler{sender: sender}
}

// Mux routes task types to the handler
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCommand, h.ProcessCommand)
	mux.HandleFunc(TypeBinding, h.ProcessBinding)
	return mux
}

// ProcessCommand sends one command. Undecodable payloads are not retried.
func (h *Handler) ProcessCommand(ctx context.Context, t *asynq.Task) error {
	var cmd automation.Command
	if err := json.Unmarshal(t.Payload(), &cmd); err != nil {
		return fmt.Errorf("decode command: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.sender.SendCommand(ctx, cmd.Address, cmd.Method, cmd.Body); err != nil {
		logger().Warn().Err(err).Str("rule", cmd.RuleID).Str("address", cmd.Address).Msg("command send failed")
		return err
	}
	logger().Debug().Str("rule", cmd.RuleID).Str("method", cmd.Method).Str("address", cmd.Address).Msg("command sent")
	return nil
}

// ProcessBinding sends one binding request
func (h *Handler) ProcessBinding(ctx context.Context, t *asynq.Task) error {
	var b rules.BindingTask
	if err := json.Unmarshal(t.Payload(), &b); err != nil {
		return fmt.Errorf("decode binding: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.sender.SendBindingRequest(ctx, b); err != nil {
		logger().Warn().Err(err).Str("binding", b.Binding.String()).Msg("binding request failed")
		return err
	}
	return nil
}
