package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"meshgate/internal/metrics"
	"meshgate/internal/rules"
)

var (
	ErrQueueFull         = errors.New("outbound queue full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Command is one action handed to the network layer
type Command struct {
	RuleID  string `json:"rule_id"`
	Address string `json:"address"`
	Method  string `json:"method"`
	Body    string `json:"body"`
}

// Sender delivers commands and binding requests to the device network
type Sender interface {
	SendCommand(ctx context.Context, address, method, body string) error
	SendBindingRequest(ctx context.Context, task rules.BindingTask) error
}

// Dispatcher accepts outbound work without waiting for it to complete
type Dispatcher interface {
	DispatchCommand(cmd Command) error
	DispatchBinding(task rules.BindingTask) error
}

// ExecuteActions hands every action of the rule to the dispatcher in list
// order. A refused action is logged and counted; the remaining actions are
// still dispatched. It returns the number of refused actions.
func ExecuteActions(d Dispatcher, r *rules.Rule, m *metrics.EngineMetrics) int {
	failed := 0
	for i, a := range r.Actions {
		err := d.DispatchCommand(Command{
			RuleID:  r.ID,
			Address: a.Address(),
			Method:  a.Method(),
			Body:    a.Body(),
		})
		m.RecordAction(err)
		if err != nil {
			failed++
			logger().Warn().Err(err).Str("rule", r.ID).Int("action", i).Str("address", a.Address()).Msg("failed to dispatch action")
			continue
		}
		logger().Debug().Str("rule", r.ID).Str("method", a.Method()).Str("address", a.Address()).Msg("action dispatched")
	}
	return failed
}

type job struct {
	cmd     *Command
	binding *rules.BindingTask
}

// AsyncDispatcher runs a Sender on a single background worker fed by a
// bounded buffer. Jobs are delivered in the order they were accepted.
type AsyncDispatcher struct {
	sender  Sender
	timeout time.Duration
	queue   chan job

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher buffering up to size jobs
func NewAsyncDispatcher(sender Sender, size int, timeout time.Duration) *AsyncDispatcher {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncDispatcher{
		sender:  sender,
		timeout: timeout,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It returns when ctx is done or Stop is called.
func (d *AsyncDispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				d.drain(ctx)
				return
			case j := <-d.queue:
				d.run(ctx, j)
			}
		}
	}()
}

// Stop delivers the jobs already accepted and waits for the worker
func (d *AsyncDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *AsyncDispatcher) DispatchCommand(cmd Command) error {
	return d.enqueue(job{cmd: &cmd})
}

func (d *AsyncDispatcher) DispatchBinding(task rules.BindingTask) error {
	return d.enqueue(job{binding: &task})
}

func (d *AsyncDispatcher) enqueue(j job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *AsyncDispatcher) drain(ctx context.Context) {
	for {
		select {
		case j := <-d.queue:
			d.run(ctx, j)
		default:
			return
		}
	}
}

func (d *AsyncDispatcher) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	switch {
	case j.cmd != nil:
		if err := d.sender.SendCommand(ctx, j.cmd.Address, j.cmd.Method, j.cmd.Body); err != nil {
			logger().Warn().Err(err).Str("rule", j.cmd.RuleID).Str("address", j.cmd.Address).Msg("command send failed")
		}
	case j.binding != nil:
		if err := d.sender.SendBindingRequest(ctx, *j.binding); err != nil {
			logger().Warn().Err(err).Str("binding", j.binding.Binding.String()).Msg("binding request failed")
		}
	}
}
