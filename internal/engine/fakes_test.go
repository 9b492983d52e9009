package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"meshgate/internal/automation"
	"meshgate/internal/models"
	"meshgate/internal/rules"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	commands []automation.Command
	bindings []rules.BindingTask
}

func (d *fakeDispatcher) DispatchCommand(cmd automation.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return nil
}

func (d *fakeDispatcher) DispatchBinding(task rules.BindingTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = append(d.bindings, task)
	return nil
}

func (d *fakeDispatcher) sentCommands() []automation.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]automation.Command(nil), d.commands...)
}

func (d *fakeDispatcher) sentBindings() []rules.BindingTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rules.BindingTask(nil), d.bindings...)
}

type fakeRepo struct {
	mu      sync.Mutex
	records []models.RuleRecord
	saved   []models.RuleRecord
	deleted []string
	failErr error
}

func (r *fakeRepo) LoadRules(context.Context) ([]models.RuleRecord, error) {
	return r.records, nil
}

func (r *fakeRepo) SaveRules(_ context.Context, records []models.RuleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.saved = append(r.saved, records...)
	return nil
}

func (r *fakeRepo) DeleteRules(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.deleted = append(r.deleted, ids...)
	return nil
}

var errDBDown = errors.New("db down")

type fakeSaves struct {
	mu       sync.Mutex
	requests []time.Duration
}

func (s *fakeSaves) QueSave(kind string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == SaveKindRules {
		s.requests = append(s.requests, delay)
	}
}

func (s *fakeSaves) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
