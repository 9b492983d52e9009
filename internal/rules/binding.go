package rules

import (
	"encoding/json"
	"fmt"

	"meshgate/internal/resource"
)

// Cluster ids bindings are created for
const (
	ClusterScenes       uint16 = 0x0005
	ClusterOnOff        uint16 = 0x0006
	ClusterLevelControl uint16 = 0x0008
)

// DestinationType tells what a binding points at
type DestinationType int

const (
	DestinationGroup DestinationType = iota
	DestinationLight
)

func (d DestinationType) String() string {
	if d == DestinationLight {
		return "light"
	}
	return "group"
}

func (d DestinationType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DestinationType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "group":
		*d = DestinationGroup
	case "light":
		*d = DestinationLight
	default:
		return fmt.Errorf("unknown binding destination type %q", b)
	}
	return nil
}

// Binding links a source sensor's cluster to a destination actor
type Binding struct {
	SourceID        string          `json:"source"`
	Cluster         uint16          `json:"cluster"`
	DestinationType DestinationType `json:"type"`
	DestinationID   string          `json:"destination"`
}

func (b Binding) String() string {
	return fmt.Sprintf("sensor %s cluster 0x%04X -> %s %s", b.SourceID, b.Cluster, b.DestinationType, b.DestinationID)
}

// BindingAction is Add or Remove
type BindingAction int

const (
	BindingAdd BindingAction = iota
	BindingRemove
)

func (a BindingAction) String() string {
	if a == BindingRemove {
		return "remove"
	}
	return "add"
}

func (a BindingAction) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *BindingAction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "add":
		*a = BindingAdd
	case "remove":
		*a = BindingRemove
	default:
		return fmt.Errorf("unknown binding action %q", b)
	}
	return nil
}

// BindingTask requests adding or removing a binding. Two tasks are equal
// iff action and binding match, so tasks compare with ==.
type BindingTask struct {
	Action  BindingAction `json:"action"`
	Binding Binding       `json:"binding"`
}

// Equal reports whether both tasks carry the same action and binding
func (t BindingTask) Equal(o BindingTask) bool {
	return t.Action == o.Action && t.Binding == o.Binding
}

// bindingSuffixes are the sensor attributes whose device can drive a group directly
var bindingSuffixes = map[string]bool{
	"state/buttonevent": true,
	"state/presence":    true,
}

// DeriveBindings builds binding tasks for a rule whose conditions reference a
// sensor button or presence attribute and whose actions PUT to a group or light.
func DeriveBindings(r *Rule, action BindingAction) []BindingTask {
	var sources []string
	seen := map[string]bool{}
	for _, c := range r.Conditions {
		if c.Category() != resource.CategorySensors || !bindingSuffixes[c.Suffix()] || c.ResourceID() == "" {
			continue
		}
		if !seen[c.ResourceID()] {
			seen[c.ResourceID()] = true
			sources = append(sources, c.ResourceID())
		}
	}
	if len(sources) == 0 {
		return nil
	}

	var tasks []BindingTask
	for _, a := range r.Actions {
		if a.Method() != MethodPut {
			continue
		}
		dt, id, ok := bindingDestination(a.Address())
		if !ok {
			continue
		}
		for _, cluster := range clustersForBody(a.Body()) {
			for _, src := range sources {
				tasks = append(tasks, BindingTask{
					Action: action,
					Binding: Binding{
						SourceID:        src,
						Cluster:         cluster,
						DestinationType: dt,
						DestinationID:   id,
					},
				})
			}
		}
	}
	return tasks
}

// bindingDestination accepts /groups/<id>/action and /lights/<id>/state
func bindingDestination(address string) (DestinationType, string, bool) {
	a := resource.SplitAddress(address)
	if a.ID == "" {
		return 0, "", false
	}
	switch {
	case a.Category == resource.CategoryGroups && a.Suffix == "action":
		return DestinationGroup, a.ID, true
	case a.Category == resource.CategoryLights && a.Suffix == "state":
		return DestinationLight, a.ID, true
	}
	return 0, "", false
}

func clustersForBody(body string) []uint16 {
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil
	}
	var out []uint16
	if _, ok := m["on"]; ok {
		out = append(out, ClusterOnOff)
	}
	if _, ok := m["bri"]; ok {
		out = append(out, ClusterLevelControl)
	} else if _, ok := m["bri_inc"]; ok {
		out = append(out, ClusterLevelControl)
	}
	if _, ok := m["scene"]; ok {
		out = append(out, ClusterScenes)
	}
	return out
}

// BindingQueue collects binding tasks and drops duplicates
type BindingQueue struct {
	tasks []BindingTask
}

// Push queues a task unless an equal one is already pending. It reports
// whether the task was added.
func (q *BindingQueue) Push(t BindingTask) bool {
	for _, p := range q.tasks {
		if p.Equal(t) {
			return false
		}
	}
	q.tasks = append(q.tasks, t)
	return true
}

// Len returns the number of pending tasks
func (q *BindingQueue) Len() int { return len(q.tasks) }

// Drain returns the pending tasks in queue order and empties the queue
func (q *BindingQueue) Drain() []BindingTask {
	t := q.tasks
	q.tasks = nil
	return t
}
