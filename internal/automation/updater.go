package automation

import (
	"sort"
	"time"

	"meshgate/internal/resource"
	"meshgate/internal/rules"
)

// Update describes one attribute write. Snapshot holds the written
// attribute and its related attributes as they were right after the write.
type Update struct {
	Address  string
	Value    resource.Value
	Changed  bool
	At       time.Time
	Snapshot resource.Snapshot
}

// ProcessAttributeUpdate writes a value to the store and reports whether it
// changed. related names the attributes the snapshot copies with the write.
func ProcessAttributeUpdate(store *resource.Store, address string, v resource.Value, related []string) (Update, error) {
	changed, snap, err := store.SetAndSnapshot(address, v, related)
	if err != nil {
		return Update{}, err
	}
	cur, _ := snap.Current(address)
	logger().Debug().Str("address", address).Str("value", cur.String()).Bool("changed", changed).Msg("attribute updated")
	return Update{Address: address, Value: cur, Changed: changed, At: time.Now(), Snapshot: snap}, nil
}

// Candidates returns the active event driven rules addressing the attribute
func Candidates(all []*rules.Rule, address string) []*rules.Rule {
	var out []*rules.Rule
	for _, r := range all {
		if Active(r) && ModeOf(r) == ModeEvent && r.References(address) {
			out = append(out, r)
		}
	}
	return out
}

// ReferencedAddresses lists the distinct attributes the rules address, sorted
func ReferencedAddresses(rs []*rules.Rule) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rs {
		for _, c := range r.Conditions {
			if !seen[c.Address()] {
				seen[c.Address()] = true
				out = append(out, c.Address())
			}
		}
	}
	sort.Strings(out)
	return out
}

// RelatedAddresses maps every attribute an event driven rule addresses to the
// sorted attributes of all candidate rules for it.
func RelatedAddresses(all []*rules.Rule) map[string][]string {
	sets := map[string]map[string]bool{}
	for _, r := range all {
		if !Active(r) || ModeOf(r) != ModeEvent {
			continue
		}
		for _, c := range r.Conditions {
			set, ok := sets[c.Address()]
			if !ok {
				set = map[string]bool{}
				sets[c.Address()] = set
			}
			for _, o := range r.Conditions {
				set[o.Address()] = true
			}
		}
	}
	out := make(map[string][]string, len(sets))
	for addr, set := range sets {
		list := make([]string, 0, len(set))
		for a := range set {
			list = append(list, a)
		}
		sort.Strings(list)
		out[addr] = list
	}
	return out
}
