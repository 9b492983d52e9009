package engine

import (
	"context"
	"fmt"
	"time"

	"meshgate/internal/automation"
	"meshgate/internal/models"
	"meshgate/internal/rules"
	"meshgate/internal/utils"
)

// RulePatch lists the fields an update replaces. Nil fields are kept.
type RulePatch struct {
	Name       *string
	Status     *string
	Periodic   *int
	Conditions []map[string]any
	Actions    []rules.ActionDefinition
}

// CreateRule validates a definition and adds it as a new rule
func (e *Engine) CreateRule(def rules.Definition) (*rules.Rule, error) {
	r, err := rules.Build(def, e.store.Registry())
	if err != nil {
		return nil, err
	}
	var out *rules.Rule
	err = e.do(func() {
		now := e.opts.Now()
		r.ID = e.nextID()
		r.CreationTime = utils.FormatTime(now)
		r.LastTriggeredMono = now
		r.LastBindingVerify = now
		e.rules = append(e.rules, r)
		if automation.Active(r) {
			e.queueBindings(r, rules.BindingAdd)
		}
		e.markDirty(r, e.opts.SaveDelay)
		e.reindex()
		e.opts.Metrics.SetActiveRules(e.activeCount())
		out = r.Clone()
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("rule", out.ID).Str("name", out.Name).Msg("rule created")
	e.warnCoarsePeriod(out)
	return out, nil
}

// UpdateRule applies a patch. The whole update is rejected if the merged
// rule does not validate.
func (e *Engine) UpdateRule(id string, patch RulePatch) (*rules.Rule, error) {
	var out *rules.Rule
	var opErr error
	err := e.do(func() {
		old := e.find(id)
		if old == nil {
			opErr = ErrRuleNotFound
			return
		}
		if old.State == rules.StateDeleted {
			opErr = ErrRuleDeleted
			return
		}
		next, err := rules.Build(mergeDefinition(old, patch), e.store.Registry())
		if err != nil {
			opErr = err
			return
		}
		next.ID = old.ID
		next.Owner = old.Owner
		next.CreationTime = old.CreationTime
		next.TimesTriggered = old.TimesTriggered
		next.SetLastTriggered(old.LastTriggered, old.LastTriggeredMono)
		next.LastBindingVerify = e.opts.Now()

		if automation.Active(old) {
			e.queueBindings(old, rules.BindingRemove)
		}
		if automation.Active(next) {
			e.queueBindings(next, rules.BindingAdd)
		}
		e.forget(id)
		*old = *next
		e.markDirty(old, e.opts.SaveDelay)
		e.reindex()
		e.opts.Metrics.SetActiveRules(e.activeCount())
		out = old.Clone()
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	e.log.Info().Str("rule", id).Msg("rule updated")
	e.warnCoarsePeriod(out)
	return out, nil
}

// warnCoarsePeriod flags periodic rules that fire less often than asked
// because their period is below the sweep interval
func (e *Engine) warnCoarsePeriod(r *rules.Rule) bool {
	period := time.Duration(r.TriggerPeriodic) * time.Millisecond
	if r.TriggerPeriodic <= 0 || e.opts.SweepInterval <= 0 || period >= e.opts.SweepInterval {
		return false
	}
	e.log.Warn().Str("rule", r.ID).Dur("periodic", period).Dur("sweep", e.opts.SweepInterval).Msg("periodic value is below the sweep interval, rule fires once per sweep")
	return true
}

func mergeDefinition(r *rules.Rule, p RulePatch) rules.Definition {
	def := rules.Definition{
		Name:     r.Name,
		Owner:    r.Owner,
		Status:   r.Status,
		Periodic: r.TriggerPeriodic,
	}
	if p.Name != nil {
		def.Name = *p.Name
	}
	if p.Status != nil {
		def.Status = *p.Status
	}
	if p.Periodic != nil {
		def.Periodic = *p.Periodic
	}
	if p.Conditions != nil {
		def.Conditions = p.Conditions
	} else {
		for _, c := range r.Conditions {
			def.Conditions = append(def.Conditions, map[string]any{
				"address":  c.Address(),
				"operator": c.OperatorName(),
				"value":    c.Value(),
			})
		}
	}
	if p.Actions != nil {
		def.Actions = p.Actions
	} else {
		for _, a := range r.Actions {
			def.Actions = append(def.Actions, rules.ActionDefinition{Address: a.Address(), Method: a.Method(), Body: a.Body()})
		}
	}
	return def
}

// DeleteRule marks a rule deleted. It stops evaluating at once and is
// removed from storage on the next flush.
func (e *Engine) DeleteRule(id string) error {
	var opErr error
	err := e.do(func() {
		r := e.find(id)
		if r == nil || r.State == rules.StateDeleted {
			opErr = ErrRuleNotFound
			return
		}
		if automation.Active(r) {
			e.queueBindings(r, rules.BindingRemove)
		}
		r.State = rules.StateDeleted
		r.Status = rules.StatusDeleted
		e.forget(id)
		e.markDirty(r, e.opts.SaveDelay)
		e.reindex()
		e.opts.Metrics.SetActiveRules(e.activeCount())
	})
	if err != nil {
		return err
	}
	if opErr == nil {
		e.log.Info().Str("rule", id).Msg("rule deleted")
	}
	return opErr
}

// Rule returns a copy of a rule that is not deleted
func (e *Engine) Rule(id string) (*rules.Rule, error) {
	var out *rules.Rule
	err := e.do(func() {
		if r := e.find(id); r != nil && r.State != rules.StateDeleted {
			out = r.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrRuleNotFound
	}
	return out, nil
}

// Rules returns copies of every rule that is not deleted, ordered by id
func (e *Engine) Rules() ([]*rules.Rule, error) {
	var out []*rules.Rule
	err := e.do(func() {
		for _, r := range e.rules {
			if r.State != rules.StateDeleted {
				out = append(out, r.Clone())
			}
		}
	})
	return out, err
}

// FlushDirty writes changed rules and removes deleted ones from storage.
// Records that failed to persist stay dirty.
func (e *Engine) FlushDirty(ctx context.Context) error {
	var records []models.RuleRecord
	var deleted []string
	var encodeErr error
	err := e.do(func() {
		for _, r := range e.rules {
			if !e.dirty[r.ID] {
				continue
			}
			delete(e.dirty, r.ID)
			if r.State == rules.StateDeleted {
				deleted = append(deleted, r.ID)
				continue
			}
			rec, err := rules.ToRecord(r, e.opts.LegacyActions)
			if err != nil {
				encodeErr = err
				continue
			}
			records = append(records, rec)
		}
	})
	if err != nil {
		return err
	}
	if encodeErr != nil {
		e.log.Error().Err(encodeErr).Msg("failed to encode rule")
	}
	if e.opts.Repository == nil || (len(records) == 0 && len(deleted) == 0) {
		return encodeErr
	}

	if len(records) > 0 {
		if err := e.opts.Repository.SaveRules(ctx, records); err != nil {
			ids := make([]string, len(records))
			for i, rec := range records {
				ids[i] = rec.ID
			}
			e.remark(append(ids, deleted...))
			return fmt.Errorf("save rules: %w", err)
		}
	}
	if len(deleted) > 0 {
		if err := e.opts.Repository.DeleteRules(ctx, deleted); err != nil {
			e.remark(deleted)
			return fmt.Errorf("delete rules: %w", err)
		}
		if err := e.do(func() { e.purge(deleted) }); err != nil {
			return err
		}
	}
	e.log.Debug().Int("saved", len(records)).Int("deleted", len(deleted)).Msg("rules flushed")
	return encodeErr
}

func (e *Engine) remark(ids []string) {
	_ = e.do(func() {
		for _, id := range ids {
			if e.find(id) != nil {
				e.dirty[id] = true
			}
		}
	})
}

func (e *Engine) purge(ids []string) {
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	kept := e.rules[:0]
	for _, r := range e.rules {
		if gone[r.ID] && r.State == rules.StateDeleted {
			continue
		}
		kept = append(kept, r)
	}
	e.rules = kept
	e.reindex()
}
