package automation

import (
	"meshgate/internal/resource"
	"meshgate/internal/rules"
)

// Evaluate reports whether a single condition holds for the current value of
// its attribute. previous is the value the condition compares against for
// dx/ddx; an unset previous counts as a change once current is set.
func Evaluate(c rules.Condition, current, previous resource.Value) bool {
	if !c.Satisfiable() || !current.IsSet() {
		return false
	}
	switch c.Op() {
	case rules.OpDx, rules.OpDdx:
		return !previous.IsSet() || !current.Equal(previous)
	}

	kind := c.Descriptor().Kind
	target, ok := c.TypedValue().Convert(kind)
	if !ok {
		return false
	}
	cur, ok := current.Convert(kind)
	if !ok {
		return false
	}

	switch kind {
	case resource.KindString:
		return compareStrings(c.Op(), cur.String(), target.String())
	case resource.KindBool:
		if c.Op() == rules.OpEqual {
			return cur.Bool() == target.Bool()
		}
	}
	return compareInts(c.Op(), cur.Int(), int64(c.NumericValue()))
}

func compareInts(op rules.Operator, a, b int64) bool {
	switch op {
	case rules.OpEqual:
		return a == b
	case rules.OpGreaterThan:
		return a > b
	case rules.OpLowerThan:
		return a < b
	}
	return false
}

func compareStrings(op rules.Operator, a, b string) bool {
	switch op {
	case rules.OpEqual:
		return a == b
	case rules.OpGreaterThan:
		return a > b
	case rules.OpLowerThan:
		return a < b
	}
	return false
}

type edgeKey struct {
	ruleID  string
	address string
}

// EdgeMemory keeps the value every dx/ddx condition observed at its last
// evaluation, so an unchanged value never satisfies the condition twice.
// It is owned by the evaluation loop and not safe for concurrent use.
type EdgeMemory struct {
	seen map[edgeKey]resource.Value
}

func NewEdgeMemory() *EdgeMemory {
	return &EdgeMemory{seen: make(map[edgeKey]resource.Value)}
}

// Previous returns the last observed value, falling back to the snapshot's
// previous value for a condition that was never evaluated.
func (m *EdgeMemory) Previous(ruleID, address string, snap resource.Snapshot) resource.Value {
	if v, ok := m.seen[edgeKey{ruleID, address}]; ok {
		return v
	}
	v, _ := snap.Previous(address)
	return v
}

func (m *EdgeMemory) Observe(ruleID, address string, v resource.Value) {
	m.seen[edgeKey{ruleID, address}] = v
}

// Forget drops everything remembered for a rule
func (m *EdgeMemory) Forget(ruleID string) {
	for k := range m.seen {
		if k.ruleID == ruleID {
			delete(m.seen, k)
		}
	}
}

// EvaluateConditions evaluates every condition of the rule against one
// snapshot and reports whether all of them hold. A rule without conditions
// holds trivially.
func EvaluateConditions(r *rules.Rule, snap resource.Snapshot, mem *EdgeMemory) bool {
	result := true
	for _, c := range r.Conditions {
		cur, _ := snap.Current(c.Address())
		var prev resource.Value
		if c.Op().IsEdge() {
			prev = mem.Previous(r.ID, c.Address(), snap)
		}
		ok := Evaluate(c, cur, prev)
		if c.Op().IsEdge() && cur.IsSet() {
			mem.Observe(r.ID, c.Address(), cur)
		}
		if !ok {
			result = false
		}
	}
	logger().Debug().Str("rule", r.ID).Bool("result", result).Int("conditions", len(r.Conditions)).Msg("conditions evaluated")
	return result
}
