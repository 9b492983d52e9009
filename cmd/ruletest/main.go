package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"meshgate/internal/automation"
	"meshgate/internal/resource"
	"meshgate/internal/rules"
	webModels "meshgate/internal/web/models"
)

const usage = `usage: ruletest <rule.json> [attributes.json]

rule.json holds a rule as posted to /api/<apikey>/rules.
attributes.json maps attribute addresses to values, e.g.
  {"/sensors/1/state/buttonevent": 1002}
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ruleData, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read rule:", err)
		os.Exit(1)
	}
	var attrData []byte
	if len(os.Args) > 2 {
		if attrData, err = os.ReadFile(os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read attributes:", err)
			os.Exit(1)
		}
	}
	fires, err := check(os.Stdout, ruleData, attrData)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if attrData != nil && !fires {
		os.Exit(3)
	}
}

// check validates a rule definition, prints what the engine derives from
// it and, when attributes are given, whether the rule would fire
func check(w io.Writer, ruleData, attrData []byte) (bool, error) {
	var req webModels.AddRuleRequest
	if err := json.Unmarshal(ruleData, &req); err != nil {
		return false, fmt.Errorf("parse rule: %w", err)
	}
	registry := resource.NewRegistry()
	r, err := rules.Build(rules.Definition{
		Name:       req.Name,
		Status:     req.Status,
		Periodic:   req.Periodic,
		Conditions: req.Conditions,
		Actions:    webModels.ActionDefinitions(req.Actions),
	}, registry)
	if err != nil {
		return false, err
	}
	r.ID = "1"

	fmt.Fprintf(w, "Rule: %s (%s, trigger mode %s)\n", r.Name, r.Status, automation.ModeOf(r))
	fmt.Fprintln(w, "Conditions:")
	for i, c := range r.Conditions {
		fmt.Fprintf(w, "  %d. %s %s %v  category=%s id=%q suffix=%q kind=%s number=%d\n",
			i+1, c.Address(), c.Op(), c.Value(), c.Category(), c.ResourceID(), c.Suffix(), c.Descriptor().Kind, c.NumericValue())
	}

	fmt.Fprintln(w, "Actions:")
	for i, a := range r.Actions {
		fmt.Fprintf(w, "  %d. %s %s %s\n", i+1, a.Method(), a.Address(), a.Body())
	}
	structural, err := rules.MarshalActions(r.Actions)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(w, "Encoded actions:\n  structural: %s\n  legacy:     %s\n", structural, rules.ActionsToText(r.Actions))

	if tasks := rules.DeriveBindings(r, rules.BindingAdd); len(tasks) > 0 {
		fmt.Fprintln(w, "Bindings:")
		for _, t := range tasks {
			fmt.Fprintf(w, "  %s\n", t.Binding)
		}
	}

	if attrData == nil {
		return false, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(attrData, &attrs); err != nil {
		return false, fmt.Errorf("parse attributes: %w", err)
	}
	store := resource.NewStore(registry)
	addresses := make([]string, 0, len(attrs))
	for address := range attrs {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	for _, address := range addresses {
		if _, err := store.Set(address, resource.FromAny(attrs[address])); err != nil {
			fmt.Fprintf(w, "Skipping %s: %v\n", address, err)
		}
	}

	snap := store.SnapshotOf(automation.ReferencedAddresses([]*rules.Rule{r}))
	fires := automation.Active(r) && automation.EvaluateConditions(r, snap, automation.NewEdgeMemory())
	if fires {
		fmt.Fprintln(w, "Result: rule would trigger")
	} else {
		fmt.Fprintln(w, "Result: rule would not trigger")
	}
	return fires, nil
}
