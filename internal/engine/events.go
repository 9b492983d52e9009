package engine

import (
	"time"

	"meshgate/internal/automation"
	"meshgate/internal/metrics"
	"meshgate/internal/resource"
	"meshgate/internal/rules"
	"meshgate/internal/utils"
)

// Event types delivered to listeners
const (
	EventChanged   = "changed"
	EventTriggered = "triggered"
)

// Event notifies listeners about attribute changes and rule triggers
type Event struct {
	Type    string    `json:"e"`
	Address string    `json:"address,omitempty"`
	Value   any       `json:"value,omitempty"`
	RuleID  string    `json:"rule,omitempty"`
	At      time.Time `json:"at"`
}

// Listener receives events. It is called from engine goroutines and must not block.
type Listener func(Event)

// AddListener registers a listener
func (e *Engine) AddListener(l Listener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, l)
	e.listenersMu.Unlock()
}

func (e *Engine) emit(ev Event) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, l := range e.listeners {
		l(ev)
	}
}

// UpdateAttribute writes an attribute and, when its value changed, queues
// an evaluation of every rule addressing it. The evaluation sees the store
// as it was right after this write, however many writes follow before the
// loop gets to it.
func (e *Engine) UpdateAttribute(address string, v resource.Value) (bool, error) {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()
	u, err := automation.ProcessAttributeUpdate(e.store, address, v, e.relatedTo(address))
	if err != nil {
		return false, err
	}
	if !u.Changed {
		return false, nil
	}
	e.emit(Event{Type: EventChanged, Address: u.Address, Value: u.Value.Any(), At: u.At})
	return true, e.post(func() { e.handleEvent(u) })
}

// Attribute reads the current value of an attribute
func (e *Engine) Attribute(address string) (resource.Value, bool) {
	return e.store.Current(address)
}

func (e *Engine) handleEvent(u automation.Update) {
	candidates := automation.Candidates(e.rules, u.Address)
	if len(candidates) == 0 {
		return
	}
	now := e.opts.Now()
	for _, r := range candidates {
		e.opts.Metrics.RecordEvaluation()
		ok := automation.EvaluateConditions(r, u.Snapshot, e.edges)
		was := e.satisfied[r.ID]
		e.satisfied[r.ID] = ok
		if !ok {
			continue
		}
		if was && !r.HasEdgeCondition() {
			e.log.Debug().Str("rule", r.ID).Msg("conditions still hold, not refiring")
			continue
		}
		e.fire(r, metrics.ModeEvent, now)
	}
}

func (e *Engine) fire(r *rules.Rule, mode string, now time.Time) {
	e.log.Info().Str("rule", r.ID).Str("name", r.Name).Str("mode", mode).Int("actions", len(r.Actions)).Msg("rule triggered")
	if e.opts.Dispatcher != nil {
		automation.ExecuteActions(e.opts.Dispatcher, r, e.opts.Metrics)
	}
	r.TimesTriggered++
	r.SetLastTriggered(utils.FormatTime(now), now)
	e.markDirty(r, e.opts.TriggerSaveDelay)
	e.opts.Metrics.RecordTrigger(mode)
	e.emit(Event{Type: EventTriggered, RuleID: r.ID, At: now})
}

// Sweep fires due periodic rules, re-verifies bindings and hands queued
// binding tasks to the dispatcher.
func (e *Engine) Sweep(now time.Time) error {
	return e.do(func() { e.sweep(now) })
}

func (e *Engine) sweep(now time.Time) {
	for _, r := range automation.DuePeriodic(e.rules, now) {
		e.opts.Metrics.RecordEvaluation()
		e.fire(r, metrics.ModePeriodic, now)
	}

	for _, r := range e.rules {
		if automation.Active(r) && now.Sub(r.LastBindingVerify) >= e.opts.BindingVerifyInterval {
			e.queueBindings(r, rules.BindingAdd)
			r.LastBindingVerify = now
		}
	}
	e.drainBindings()
	e.opts.Metrics.SetActiveRules(e.activeCount())
}

func (e *Engine) queueBindings(r *rules.Rule, action rules.BindingAction) {
	var inUse map[rules.Binding]bool
	if action == rules.BindingRemove {
		inUse = e.bindingsInUse(r.ID)
	}
	for _, t := range rules.DeriveBindings(r, action) {
		if inUse[t.Binding] {
			continue
		}
		queued := e.bindings.Push(t)
		e.opts.Metrics.RecordBinding(action.String(), queued)
	}
}

// bindingsInUse collects the bindings other active rules still derive
func (e *Engine) bindingsInUse(except string) map[rules.Binding]bool {
	m := map[rules.Binding]bool{}
	for _, r := range e.rules {
		if r.ID == except || !automation.Active(r) {
			continue
		}
		for _, t := range rules.DeriveBindings(r, rules.BindingAdd) {
			m[t.Binding] = true
		}
	}
	return m
}

func (e *Engine) drainBindings() {
	tasks := e.bindings.Drain()
	if e.opts.Dispatcher == nil {
		return
	}
	for _, t := range tasks {
		if err := e.opts.Dispatcher.DispatchBinding(t); err != nil {
			e.log.Warn().Err(err).Str("binding", t.Binding.String()).Str("action", t.Action.String()).Msg("failed to dispatch binding task")
		}
	}
}

// PendingBindings returns the number of binding tasks waiting for the next sweep
func (e *Engine) PendingBindings() (int, error) {
	var n int
	err := e.do(func() { n = e.bindings.Len() })
	return n, err
}
