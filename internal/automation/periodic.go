package automation

import (
	"fmt"
	"time"

	"meshgate/internal/rules"
)

// TriggerMode is how a rule gets evaluated, derived from its periodic value
type TriggerMode int

const (
	ModeDisabled TriggerMode = iota
	ModeEvent
	ModePeriodic
)

func (m TriggerMode) String() string {
	switch m {
	case ModeEvent:
		return "event"
	case ModePeriodic:
		return "periodic"
	}
	return "disabled"
}

// ModeOf returns the trigger mode of a rule. Negative periodic values
// disable triggering, zero means event driven.
func ModeOf(r *rules.Rule) TriggerMode {
	switch {
	case r.TriggerPeriodic < 0:
		return ModeDisabled
	case r.TriggerPeriodic == 0:
		return ModeEvent
	}
	return ModePeriodic
}

// Active reports whether a rule takes part in evaluation at all
func Active(r *rules.Rule) bool {
	return r.State == rules.StateNormal && r.IsEnabled() && ModeOf(r) != ModeDisabled
}

// DuePeriodic returns the active periodic rules whose interval elapsed at now
func DuePeriodic(all []*rules.Rule, now time.Time) []*rules.Rule {
	var due []*rules.Rule
	for _, r := range all {
		if Active(r) && ModeOf(r) == ModePeriodic && r.PeriodicDue(now) {
			due = append(due, r)
		}
	}
	return due
}

// SweepSpec converts a sweep interval to a cron schedule. Intervals below
// one second are raised to one second. Periodic rules are only checked on a
// sweep, so a rule whose period is shorter than the interval fires once per
// sweep, and every period may run late by up to one interval.
func SweepSpec(interval time.Duration) string {
	if interval < time.Second {
		interval = time.Second
	}
	return fmt.Sprintf("@every %s", interval)
}
