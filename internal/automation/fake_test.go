package automation

import (
	"context"
	"errors"
	"sync"

	"meshgate/internal/rules"
)

type fakeSender struct {
	mu       sync.Mutex
	commands []Command
	bindings []rules.BindingTask
	failOn   string
}

func (f *fakeSender) SendCommand(_ context.Context, address, method, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if address == f.failOn {
		return errors.New("destination unreachable")
	}
	f.commands = append(f.commands, Command{Address: address, Method: method, Body: body})
	return nil
}

func (f *fakeSender) SendBindingRequest(_ context.Context, task rules.BindingTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, task)
	return nil
}

func (f *fakeSender) sent() ([]Command, []rules.BindingTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...), append([]rules.BindingTask(nil), f.bindings...)
}

type recordingDispatcher struct {
	commands []Command
	refuse   map[string]bool
}

func (d *recordingDispatcher) DispatchCommand(cmd Command) error {
	if d.refuse[cmd.Address] {
		return ErrQueueFull
	}
	d.commands = append(d.commands, cmd)
	return nil
}

func (d *recordingDispatcher) DispatchBinding(rules.BindingTask) error { return nil }
